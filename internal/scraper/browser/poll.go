package browser

import (
	"context"
	"time"
)

// DefaultPollInterval is the sampling period shared by the waiting primitives.
const DefaultPollInterval = 250 * time.Millisecond

// poll runs check until it reports done, the timeout elapses, or ctx ends.
// Errors returned by check are treated as transient and remembered for the
// timeout report.
func poll(ctx context.Context, timeout, interval time.Duration, check func() (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		done, err := check()
		if done {
			return nil
		}
		if err != nil {
			last = err
		}
		if !time.Now().Before(deadline) {
			return &pollTimeoutError{last: last}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sleep waits d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
