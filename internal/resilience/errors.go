package resilience

import "errors"

// RateLimitedError marks a provider response that was rejected for
// exceeding the request rate (HTTP 429). It is the only error class the
// provider client retries.
type RateLimitedError struct {
	Err error
}

func (e *RateLimitedError) Error() string {
	return e.Err.Error()
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// NewRateLimitedError wraps an error as rate-limited.
func NewRateLimitedError(err error) *RateLimitedError {
	return &RateLimitedError{Err: err}
}

// IsRateLimited reports whether the error chain contains a RateLimitedError.
func IsRateLimited(err error) bool {
	var rle *RateLimitedError
	return errors.As(err, &rle)
}
