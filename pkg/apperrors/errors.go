package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamRejected    = errors.New("upstream rejected")
	ErrParseFailure        = errors.New("parse failure")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// Kind returns the taxonomy sentinel err belongs to, or nil when err is
// outside the taxonomy.
func Kind(err error) error {
	for _, kind := range []error{
		ErrInvalidInput,
		ErrNotFound,
		ErrUpstreamTimeout,
		ErrUpstreamRejected,
		ErrUpstreamUnavailable,
		ErrParseFailure,
		ErrStorageUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// InvalidInput wraps msg so that errors.Is(err, ErrInvalidInput) holds.
func InvalidInput(msg string) error {
	return &inputError{msg: msg}
}

type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Unwrap() error { return ErrInvalidInput }
