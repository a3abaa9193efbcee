package services

import (
	"time"

	"github.com/dunelens/dunelens/pkg/config"
	"github.com/dunelens/dunelens/pkg/models"
)

// Merge thresholds. Tuning constants with no derivation beyond keeping the
// stored corpus fresh without rewriting rows on every re-analysis.
const (
	DefaultQualityImprovementRatio = 0.20
	DefaultStaleAfter              = 30 * 24 * time.Hour
)

// Persist decision reasons.
const (
	ReasonNewRecord      = "new record"
	ReasonContentChanged = "content changed"
	ReasonQualityImprove = "quality improved"
	ReasonClassification = "classification added"
	ReasonStale          = "stale, refresh"
	ReasonAlreadyCurrent = "already current"
)

// PersistencePolicy decides whether an incoming analysis is written.
type PersistencePolicy struct {
	QualityImprovementRatio float64
	StaleAfter              time.Duration
}

// NewPersistencePolicy builds a policy from configuration, using the default
// for any unset threshold.
func NewPersistencePolicy(cfg *config.PersistenceConfig) *PersistencePolicy {
	p := &PersistencePolicy{
		QualityImprovementRatio: DefaultQualityImprovementRatio,
		StaleAfter:              DefaultStaleAfter,
	}
	if cfg != nil {
		if cfg.QualityImprovementRatio > 0 {
			p.QualityImprovementRatio = cfg.QualityImprovementRatio
		}
		if cfg.StaleAfter > 0 {
			p.StaleAfter = cfg.StaleAfter
		}
	}
	return p
}

// ShouldPersist evaluates the merge rules in order; the first match wins.
func (p *PersistencePolicy) ShouldPersist(existing, incoming *models.AnalyzedQuery, now time.Time) models.PersistDecision {
	switch {
	case existing == nil:
		return models.PersistDecision{Action: models.PersistInsert, Reason: ReasonNewRecord}
	case existing.RawSQL != incoming.RawSQL:
		return models.PersistDecision{Action: models.PersistUpdate, Reason: ReasonContentChanged}
	case p.qualityImproved(existing, incoming):
		return models.PersistDecision{Action: models.PersistUpdate, Reason: ReasonQualityImprove}
	case !existing.HasClassification() && incoming.HasClassification():
		return models.PersistDecision{Action: models.PersistUpdate, Reason: ReasonClassification}
	case now.Sub(existing.UpdatedAt) > p.StaleAfter:
		return models.PersistDecision{Action: models.PersistUpdate, Reason: ReasonStale}
	}
	return models.PersistDecision{Action: models.PersistSkip, Reason: ReasonAlreadyCurrent}
}

// qualityImproved reports whether incoming's explanatory text is at least
// the configured ratio longer than existing's.
func (p *PersistencePolicy) qualityImproved(existing, incoming *models.AnalyzedQuery) bool {
	before := explanatoryLength(existing)
	after := explanatoryLength(incoming)
	if after <= before {
		return false
	}
	return float64(after) >= float64(before)*(1+p.QualityImprovementRatio)
}

func explanatoryLength(q *models.AnalyzedQuery) int {
	return len([]rune(q.AnnotatedSQL)) + len([]rune(q.Summary))
}
