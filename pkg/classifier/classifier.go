// Package classifier maps free text onto fixed tag sets using ordered
// substring rules. The first matching rule wins, so rule order is behavior.
package classifier

import (
	"strings"

	"github.com/dunelens/dunelens/pkg/models"
)

// Rule pairs a predicate over lower-cased text with the tag it yields.
type Rule[T any] struct {
	Tag   T
	Match func(lower string) bool
}

// Classifier evaluates rules top to bottom.
type Classifier[T any] struct {
	rules    []Rule[T]
	fallback T
}

// New builds a Classifier returning fallback when no rule matches.
func New[T any](fallback T, rules ...Rule[T]) *Classifier[T] {
	return &Classifier[T]{rules: rules, fallback: fallback}
}

// Classify lower-cases text and returns the tag of the first matching rule.
func (c *Classifier[T]) Classify(text string) T {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		if r.Match(lower) {
			return r.Tag
		}
	}
	return c.fallback
}

// Rules returns the rules in evaluation order.
func (c *Classifier[T]) Rules() []Rule[T] {
	return append([]Rule[T](nil), c.rules...)
}

func anyOf(terms ...string) func(string) bool {
	return func(s string) bool {
		for _, t := range terms {
			if strings.Contains(s, t) {
				return true
			}
		}
		return false
	}
}

func allOf(terms ...string) func(string) bool {
	return func(s string) bool {
		for _, t := range terms {
			if !strings.Contains(s, t) {
				return false
			}
		}
		return true
	}
}

// errorKinds is evaluated in this exact order. no_results must stay first:
// an empty result is analyzed, not repaired.
var errorKinds = New(models.ErrorKindUnknown,
	Rule[models.ErrorKind]{models.ErrorKindNoResults, anyOf(
		"no results from query", "query returned no rows", "no data found", "empty result")},
	Rule[models.ErrorKind]{models.ErrorKindSyntax, anyOf("syntax error", "syntax")},
	Rule[models.ErrorKind]{models.ErrorKindTableNotFound, allOf("table", "not found")},
	Rule[models.ErrorKind]{models.ErrorKindColumnNotFound, allOf("column", "not found")},
	Rule[models.ErrorKind]{models.ErrorKindTableNotFound, allOf("relation", "does not exist")},
	Rule[models.ErrorKind]{models.ErrorKindPermission, anyOf("permission", "access")},
	Rule[models.ErrorKind]{models.ErrorKindTimeout, anyOf("timeout")},
	Rule[models.ErrorKind]{models.ErrorKindLimitExceeded, anyOf("limit", "exceeded")},
	Rule[models.ErrorKind]{models.ErrorKindAggregation, allOf("must appear in", "group by")},
)

// ClassifyError maps an SQL error message to its ErrorKind.
func ClassifyError(message string) models.ErrorKind {
	return errorKinds.Classify(message)
}

// ErrorRules exposes the error rule order for inspection.
func ErrorRules() []Rule[models.ErrorKind] {
	return errorKinds.Rules()
}
