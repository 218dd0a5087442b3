package collector

import (
	"errors"
	"fmt"
	"time"
)

// RetryAfterError signals a transient fetch failure (timeout, 429). The
// run loop backs off and retries; it never aborts the topic on one of
// these.
type RetryAfterError struct {
	Platform   string
	RetryAfter time.Duration // 0 when the platform gave no hint
	Err        error
}

func (e *RetryAfterError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s: %v", e.Platform, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: transient fetch failure: %v", e.Platform, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// ValidationError marks an item that cannot be processed. The item is
// skipped and logged; processing continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid item: field %q %s", e.Field, e.Reason)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var re *RetryAfterError
	return errors.As(err, &re)
}

const (
	defaultMaxAttempts = 5
	backoffBase        = 2 * time.Second
	backoffCap         = 5 * time.Minute
)

// NextDelay is the retry policy: given the attempt count (starting at 0)
// and the error, it returns how long to wait before the next attempt, or
// ok=false to give up. Transient errors back off exponentially, honoring
// an explicit retry-after hint when the platform provides one. Anything
// else is permanent.
func NextDelay(attempt int, err error) (time.Duration, bool) {
	var re *RetryAfterError
	if !errors.As(err, &re) {
		return 0, false
	}
	if attempt >= defaultMaxAttempts {
		return 0, false
	}
	delay := backoffBase << uint(attempt)
	if delay > backoffCap {
		delay = backoffCap
	}
	if re.RetryAfter > delay {
		delay = re.RetryAfter
	}
	return delay, true
}
