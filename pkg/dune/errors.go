package dune

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dunelens/dunelens/pkg/apperrors"
)

// Error is a failed call to the Dune API.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Cause      error
	kind       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("dune %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("dune %s: %v", e.Op, e.Cause)
}

// Unwrap returns the transport error, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the apperrors upstream sentinel this error maps to.
func (e *Error) Is(target error) bool {
	return target == e.kind
}

func transportError(op string, err error) *Error {
	kind := apperrors.ErrUpstreamUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = apperrors.ErrUpstreamTimeout
	}
	return &Error{Op: op, Cause: err, kind: kind}
}

func statusError(op string, status int, body []byte) *Error {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &Error{Op: op, StatusCode: status, Body: string(body), kind: apperrors.ErrUpstreamRejected}
}
