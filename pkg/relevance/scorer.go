package relevance

import (
	"sort"
	"strings"

	"github.com/dunelens/dunelens/pkg/models"
)

// Score weights. These are tuning constants carried over unchanged from the
// first deployment; they have no derivation beyond producing sensible rankings.
const (
	KeywordWeight    = 2
	BlockchainWeight = 5
	ProtocolWeight   = 3
	FeatureWeight    = 1

	// DefaultLimit is used when Rank is called with a non-positive limit.
	DefaultLimit = 10
)

// Score returns the additive relevance of candidate for the extracted context.
// It is deterministic and never negative.
func Score(candidate *models.AnalyzedQuery, qc Context) int {
	text := strings.ToLower(strings.Join([]string{
		candidate.Title,
		candidate.Summary,
		strings.Join(candidate.KeyFeatures, " "),
		candidate.Blockchain(),
		candidate.Project(),
	}, " "))

	score := 0
	for _, kw := range qc.Keywords {
		if strings.Contains(text, kw) {
			score += KeywordWeight
		}
	}

	if qc.Blockchain != "" && candidate.Blockchain() == qc.Blockchain {
		score += BlockchainWeight
	}

	project := strings.ToLower(candidate.Project())
	for _, p := range qc.Protocols {
		if project != "" && strings.Contains(project, p) {
			score += ProtocolWeight
		}
	}

	for _, feature := range candidate.KeyFeatures {
		f := strings.ToLower(feature)
		for _, kw := range qc.Keywords {
			if strings.Contains(f, kw) {
				score += FeatureWeight
				break
			}
		}
	}

	return score
}

// Rank scores every candidate, keeps those above zero and returns at most
// limit of them by descending score. Ties keep retrieval order.
func Rank(candidates []models.AnalyzedQuery, qc Context, limit int) []models.RelatedQuery {
	if limit <= 0 {
		limit = DefaultLimit
	}

	ranked := make([]models.RelatedQuery, 0, len(candidates))
	for i := range candidates {
		s := Score(&candidates[i], qc)
		if s > 0 {
			ranked = append(ranked, models.RelatedQuery{AnalyzedQuery: candidates[i], RelevanceScore: s})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
