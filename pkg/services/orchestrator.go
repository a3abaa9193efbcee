package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/config"
	"github.com/dunelens/dunelens/pkg/jsonutil"
	"github.com/dunelens/dunelens/pkg/llm"
	"github.com/dunelens/dunelens/pkg/logging"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/prompts"
	"github.com/dunelens/dunelens/pkg/relevance"
	"github.com/dunelens/dunelens/pkg/retry"
)

// Confidence assigned to degraded results.
const (
	// StatementFoundConfidence is used when a statement was located in an
	// unparseable reply. It also caps replies that only decoded after repair.
	StatementFoundConfidence = 0.7
	// OriginalSQLConfidence is used when a fix falls back to the caller's SQL.
	OriginalSQLConfidence = 0.3
	// TemplateConfidence is used when generation falls back to a template.
	TemplateConfidence = 0.6
	// DefaultParsedConfidence is used when a parsed reply omits confidence.
	DefaultParsedConfidence = 0.8
	// InvalidSQLConfidenceCap bounds confidence when the SQL fails validation.
	InvalidSQLConfidenceCap = 0.5
)

// exemplarLoader gathers related queries and past fixes for a prompt.
// Either leg may fail independently; a failed leg contributes nothing.
type exemplarLoader struct {
	related RelatedQueryService
	errors  SQLErrorService
	cfg     config.RelevanceConfig
	logger  *zap.Logger
}

func newExemplarLoader(related RelatedQueryService, errs SQLErrorService, cfg config.RelevanceConfig, logger *zap.Logger) *exemplarLoader {
	if cfg.ExemplarLimit <= 0 {
		cfg.ExemplarLimit = 3
	}
	if cfg.PastFixLimit <= 0 {
		cfg.PastFixLimit = DefaultPastFixLimit
	}
	return &exemplarLoader{related: related, errors: errs, cfg: cfg, logger: logger}
}

// load ranks candidates against qc (unless supplied is non-empty) and reads
// past fixes of kind in parallel.
func (l *exemplarLoader) load(ctx context.Context, qc relevance.Context, kind models.ErrorKind, supplied []models.RelatedQuery) prompts.Exemplars {
	ex := prompts.Exemplars{TokenBudget: l.cfg.PromptTokenBudget}

	g, gctx := errgroup.WithContext(ctx)

	if len(supplied) > 0 {
		ex.RelatedQueries = truncateRelated(supplied, l.cfg.ExemplarLimit)
	} else if l.related != nil {
		g.Go(func() error {
			res, err := l.related.FindForContext(gctx, qc, l.cfg.ExemplarLimit)
			if err != nil {
				l.logger.Warn("Failed to load related queries, continuing without them",
					zap.String("error", logging.SanitizeError(err)))
				return nil
			}
			ex.RelatedQueries = res.Queries
			return nil
		})
	}

	if l.errors != nil {
		g.Go(func() error {
			fixes, err := l.errors.PastFixes(gctx, kind, l.cfg.PastFixLimit)
			if err != nil {
				l.logger.Warn("Failed to load past fixes, continuing without them",
					zap.String("error", logging.SanitizeError(err)))
				return nil
			}
			ex.PastFixes = fixes
			return nil
		})
	}

	// Legs never return errors.
	_ = g.Wait()
	return ex
}

func truncateRelated(in []models.RelatedQuery, limit int) []models.RelatedQuery {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

// relatedIDs lists the Dune query ids of the exemplars used.
func relatedIDs(related []models.RelatedQuery) []string {
	ids := make([]string, 0, len(related))
	for _, q := range related {
		ids = append(ids, q.DuneQueryID)
	}
	return ids
}

// completeWithRetry sends req, retrying once when the provider timed out.
func completeWithRetry(ctx context.Context, completer llm.Completer, req llm.Request) (string, error) {
	resp, err := retry.DoWithResult(ctx, retry.Once(llm.IsTimeout), func() (*llm.Completion, error) {
		return completer.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// isDegradableUpstream reports whether err should yield a fallback result
// rather than fail the request. Timeouts propagate so callers can retry.
func isDegradableUpstream(err error) bool {
	if llm.IsTimeout(err) {
		return false
	}
	return errors.Is(err, apperrors.ErrUpstreamUnavailable) || errors.Is(err, apperrors.ErrUpstreamRejected)
}

// upstreamKind names the taxonomy kind of an upstream error.
func upstreamKind(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return string(llmErr.Type)
	}
	if kind := apperrors.Kind(err); kind != nil {
		return kind.Error()
	}
	return "upstream_unavailable"
}

// confidenceOr returns the clamped parsed confidence, or def when absent.
func confidenceOr(v *jsonutil.Float, def float64) float64 {
	if v == nil {
		return def
	}
	return jsonutil.Clamp01(float64(*v))
}

// isStorageDegraded reports whether a persistence error should be absorbed.
func isStorageDegraded(err error) bool {
	return errors.Is(err, apperrors.ErrStorageUnavailable)
}
