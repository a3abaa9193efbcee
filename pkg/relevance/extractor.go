package relevance

import (
	"strings"
	"unicode"
)

// ShortTokenLength is the rune length at or below which tokens are dropped.
const ShortTokenLength = 2

// Context is what the Extractor recognizes in a free-text request.
type Context struct {
	Keywords   []string `json:"keywords"`
	Blockchain string   `json:"blockchain,omitempty"`
	Protocols  []string `json:"protocols"`
}

// Extractor turns free text into keywords plus blockchain/protocol context.
// It is safe for concurrent use.
type Extractor struct {
	vocab     *Vocabulary
	stopwords map[string]struct{}
}

// NewExtractor builds an Extractor over vocab, or the default vocabulary when nil.
func NewExtractor(vocab *Vocabulary) *Extractor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	stop := make(map[string]struct{}, len(vocab.Stopwords))
	for _, w := range vocab.Stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Extractor{vocab: vocab, stopwords: stop}
}

// Extract never fails; empty input yields empty results.
func (e *Extractor) Extract(text string) Context {
	lower := strings.ToLower(text)
	return Context{
		Keywords:   e.Keywords(lower),
		Blockchain: e.detectBlockchain(lower),
		Protocols:  e.detectProtocols(lower),
	}
}

// Keywords returns the de-duplicated, order-preserving keyword list of text.
func (e *Extractor) Keywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	keywords := []string{}
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) <= ShortTokenLength {
			continue
		}
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

func (e *Extractor) detectBlockchain(lower string) string {
	for _, chain := range e.vocab.Blockchains {
		if containsAny(lower, chain.Terms) {
			return chain.Name
		}
	}
	return ""
}

func (e *Extractor) detectProtocols(lower string) []string {
	protocols := []string{}
	for _, p := range e.vocab.Protocols {
		if containsAny(lower, p.Terms) {
			protocols = append(protocols, p.Name)
		}
	}
	return protocols
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
