package legiscan

import (
	"errors"
	"fmt"
)

// ErrRateLimitExceeded is returned when the provider keeps responding
// with HTTP 429 after the configured retries are exhausted. It is
// terminal for the run.
var ErrRateLimitExceeded = errors.New("legiscan: rate limit exceeded after max retries")

// ProviderError is a non-success provider response or a transport or
// decode fault. It is never retried; only the explicit 429 path is.
type ProviderError struct {
	Op      string // provider operation, e.g. "getBill"
	Message string // provider alert message, when present
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("legiscan: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("legiscan: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether the error chain contains a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
