// Package sql provides hygiene checks for the Dune SQL this service emits and
// the parameters it forwards to Dune.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyStatement indicates nothing but whitespace and comments.
	ErrEmptyStatement = errors.New("SQL statement is empty")
	// ErrUnterminated indicates an unclosed string literal, identifier or block comment.
	ErrUnterminated = errors.New("SQL has an unterminated quote or comment")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// Valid reports whether the statement passed validation.
func (r ValidationResult) Valid() bool {
	return r.Error == nil
}

// ValidateAndNormalize checks SQL for multiple statements and strips the trailing semicolon.
//
// The validation order is:
// 1. Strip trailing semicolon and whitespace (normalize)
// 2. Scan for semicolons outside strings and comments
// 3. Reject statements that are only comments
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{Error: ErrEmptyStatement}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	scan := scanStatement(normalized)
	switch {
	case scan.unterminated:
		return ValidationResult{NormalizedSQL: normalized, Error: ErrUnterminated}
	case scan.semicolon:
		return ValidationResult{Error: ErrMultipleStatements}
	case !scan.hasCode:
		return ValidationResult{NormalizedSQL: normalized, Error: ErrEmptyStatement}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

type scanResult struct {
	semicolon    bool
	hasCode      bool
	unterminated bool
}

// scanStatement walks the statement once, tracking quotes and comments.
// Any semicolon left after normalization separates two statements.
func scanStatement(sqlQuery string) scanResult {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateLineComment
		stateBlockComment
	)

	var res scanResult
	state := stateNormal
	runes := []rune(sqlQuery)

	for i := 0; i < len(runes); i++ {
		char := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case char == '-' && next == '-':
				state = stateLineComment
				i++
			case char == '/' && next == '*':
				state = stateBlockComment
				i++
			case char == ';':
				res.semicolon = true
			case char == '\'':
				state = stateSingleQuote
				res.hasCode = true
			case char == '"':
				state = stateDoubleQuote
				res.hasCode = true
			case !isSpace(char):
				res.hasCode = true
			}
		case stateSingleQuote:
			// A doubled quote exits and immediately re-enters the literal.
			if char == '\'' && (i == 0 || runes[i-1] != '\\') {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && (i == 0 || runes[i-1] != '\\') {
				state = stateNormal
			}
		case stateLineComment:
			if char == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if char == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	res.unterminated = state == stateSingleQuote || state == stateDoubleQuote || state == stateBlockComment
	return res
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
