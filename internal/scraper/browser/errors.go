package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
)

var (
	ErrReadyTimeout        = errors.New("document not ready")
	ErrNetworkQuietTimeout = errors.New("network did not go quiet")
	ErrElementNotFound     = errors.New("element not found")
	ErrDateNotConverged    = errors.New("date input did not converge")
)

// pollTimeoutError is returned by poll when the budget runs out. It keeps the
// last transient error seen so the caller can report why it kept retrying.
type pollTimeoutError struct {
	last error
}

func (e *pollTimeoutError) Error() string {
	if e.last == nil {
		return "poll budget exhausted"
	}
	return fmt.Sprintf("poll budget exhausted (last: %v)", e.last)
}

// timeoutAs maps a poll failure onto a taxonomy sentinel. Cancellation of the
// parent context is returned untouched.
func timeoutAs(sentinel error, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	var pt *pollTimeoutError
	if errors.As(err, &pt) && pt.last != nil {
		return fmt.Errorf("%w: %s: %v", sentinel, msg, pt.last)
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// staleMessages are CDP error fragments returned when a remote object or node
// outlived the document it belonged to.
var staleMessages = []string{
	"cannot find context with specified id",
	"could not find node with given id",
	"node with given id does not belong to the document",
	"no node with given id found",
	"cannot find object with id",
	"node is detached from document",
	"execution context was destroyed",
}

// IsStale reports whether err means an element handle (or the frame it lived
// in) no longer matches a live node. Such failures are retried by re-resolving
// the element, never by reusing the handle.
func IsStale(err error) bool {
	if err == nil {
		return false
	}

	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return true
	}

	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		return containsAny(strings.ToLower(cdpErr.Message), staleMessages)
	}

	return containsAny(strings.ToLower(err.Error()), staleMessages)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
