package dune

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dunelens/dunelens/pkg/apperrors"
)

var (
	queryURLPattern    = regexp.MustCompile(`^https://dune\.com/queries/(\d+)(?:/.*)?$`)
	executionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ParseQueryURL extracts the query id from a dune.com query URL and returns
// it with the canonical URL for that query.
func ParseQueryURL(raw string) (int64, string, error) {
	m := queryURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, "", fmt.Errorf("%w: expected https://dune.com/queries/<id>, got %q", apperrors.ErrInvalidInput, raw)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("%w: invalid query id %q", apperrors.ErrInvalidInput, m[1])
	}
	return id, fmt.Sprintf("https://dune.com/queries/%d", id), nil
}

// ValidateExecutionID rejects ids that could change the request path.
func ValidateExecutionID(id string) error {
	if !executionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid execution id %q", apperrors.ErrInvalidInput, id)
	}
	return nil
}
