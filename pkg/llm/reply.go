package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/dunelens/dunelens/pkg/apperrors"
)

// ReplyKind tags whether a model reply could be decoded.
type ReplyKind int

const (
	Unparsed ReplyKind = iota
	Parsed
)

// String returns a human-readable name for the kind.
func (k ReplyKind) String() string {
	if k == Parsed {
		return "parsed"
	}
	return "unparsed"
}

// Reply is a model reply that is either Parsed into T or kept as raw text.
// Value is only meaningful when Kind is Parsed; Err explains an Unparsed reply.
// Repaired marks a Parsed value that only decoded after JSON repair, which
// usually means the reply was truncated.
type Reply[T any] struct {
	Kind     ReplyKind
	Value    T
	Raw      string
	Err      error
	Repaired bool
}

// IsParsed reports whether Value holds a decoded reply.
func (r Reply[T]) IsParsed() bool {
	return r.Kind == Parsed
}

var (
	jsonFencePattern = regexp.MustCompile("(?s)```json[ \t]*\r?\n(.*?)\r?\n[ \t]*```")
	anyFencePattern  = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n(.*?)\r?\n[ \t]*```")
	thinkTagPattern  = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)
)

// StripCodeFence returns the body of the first ```json fence, else of the
// first fence of any language, else the trimmed text.
func StripCodeFence(text string) string {
	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := anyFencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// Decode turns a raw model reply into a Reply. It tries, in order, the
// fence-stripped text, the first balanced JSON object within it, and a
// repaired version of that text. valid, when non-nil, rejects decoded values
// that lack required fields. Decode never panics and never returns an error;
// failures are reported as an Unparsed reply.
func Decode[T any](raw string, valid func(*T) bool) Reply[T] {
	reply := Reply[T]{Kind: Unparsed, Raw: raw}

	body := thinkTagPattern.ReplaceAllString(StripCodeFence(raw), "")
	if strings.TrimSpace(body) == "" {
		reply.Err = fmt.Errorf("empty reply: %w", apperrors.ErrParseFailure)
		return reply
	}

	var candidates []string
	candidates = append(candidates, body)
	if obj, ok := extractBalancedJSON(body, '{', '}'); ok && obj != body {
		candidates = append(candidates, obj)
	}

	var lastErr error
	for _, c := range candidates {
		var v T
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			lastErr = err
			continue
		}
		return accept(reply, v, valid)
	}

	// Repair only text that looks like it was meant to be an object.
	start := strings.IndexByte(body, '{')
	if start >= 0 {
		repaired, err := jsonrepair.RepairJSON(body[start:])
		if err == nil {
			var v T
			if err := json.Unmarshal([]byte(repaired), &v); err == nil {
				reply = accept(reply, v, valid)
				reply.Repaired = reply.IsParsed()
				return reply
			} else {
				lastErr = err
			}
		} else {
			lastErr = err
		}
	}

	reply.Err = fmt.Errorf("%w: %v", apperrors.ErrParseFailure, lastErr)
	return reply
}

func accept[T any](reply Reply[T], v T, valid func(*T) bool) Reply[T] {
	if valid != nil && !valid(&v) {
		reply.Err = fmt.Errorf("reply missing required fields: %w", apperrors.ErrParseFailure)
		return reply
	}
	reply.Kind = Parsed
	reply.Value = v
	return reply
}

// extractBalancedJSON finds the first balanced structure starting with openChar.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// statementShapes are the openings accepted as a statement. A keyword alone
// is not enough: prose such as "help with that" must not match.
var statementShapes = []string{
	`WITH\s+(?:RECURSIVE\s+)?[\w"]+\s*(?:\([^)]*\)\s*)?AS\s*(?:NOT\s+)?(?:MATERIALIZED\s+)?\(`,
	`SELECT\s+\S`,
	`CREATE\s+(?:OR\s+REPLACE\s+)?(?:TEMP(?:ORARY)?\s+)?(?:TABLE|VIEW|MATERIALIZED\s+VIEW|INDEX)\b`,
	`INSERT\s+INTO\s`,
	`UPDATE\s+[\w."]+\s+SET\s`,
	`DELETE\s+FROM\s`,
}

// statementPatterns match a statement starting a line or following a colon,
// up to the next blank line.
var statementPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(statementShapes))
	for _, shape := range statementShapes {
		out = append(out, regexp.MustCompile(`(?ims)(?:^|:)[ \t]*(`+shape+`.*?)(?:\n[ \t\r]*\n|\z)`))
	}
	return out
}()

// FindStatement locates the earliest SQL statement in free text, ending at
// the next blank line. It returns "" when none is found.
func FindStatement(text string) string {
	body := StripCodeFence(text)
	best, bestAt := "", -1
	for _, p := range statementPatterns {
		m := p.FindStringSubmatchIndex(body)
		if m == nil {
			continue
		}
		if bestAt == -1 || m[2] < bestAt {
			best, bestAt = body[m[2]:m[3]], m[2]
		}
	}
	return strings.TrimSpace(best)
}
