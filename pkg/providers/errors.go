package providers

import (
	stderrors "errors"
	"fmt"
)

// RateLimitError marks a provider rejection caused by rate limiting
// (HTTP 429 or a provider-specific equivalent). The router treats it
// differently from other failures: it short-circuits the retry loop
// after recording the backoff.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
}

// IsRateLimit reports whether err is, or wraps, a rate-limit rejection.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return stderrors.As(err, &rle)
}
