package reliability

import (
	"errors"
	"time"

	"github.com/antoniostano/scenegen/internal/chat"
)

// IsRetryableHTTPStatus classifies retryable generator HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsFixable reports whether a generation-attempt failure should feed the
// correction loop. Ownership, quota and not-found conditions are
// caller-correctable and never retried.
func IsFixable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, chat.ErrOwnership),
		errors.Is(err, chat.ErrQuotaExceeded),
		errors.Is(err, chat.ErrNotFound):
		return false
	default:
		return true
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
