package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// setDateJS prefers the page's jQuery UI datepicker and falls back to writing
// the raw value and firing the events a user edit would fire.
const setDateJS = `(val) => {
	const el = this;
	const w = el.ownerDocument.defaultView || window;
	const $ = w.jQuery;
	if ($ && $.fn && $.fn.datepicker && $(el).datepicker) {
		$(el).datepicker('setDate', val);
		$(el).trigger('input').trigger('change').trigger('blur');
		return 'widget';
	}
	el.value = val;
	['input', 'change', 'blur'].forEach(ev => el.dispatchEvent(new Event(ev, { bubbles: true })));
	return 'raw';
}`

// attemptOutcome classifies one setDate attempt so the retry loop decides on
// inspected results instead of caught panics.
type attemptOutcome int

const (
	attemptConverged attemptOutcome = iota
	attemptStale
	attemptMismatch
	attemptFailed
)

func (o attemptOutcome) String() string {
	switch o {
	case attemptConverged:
		return "converged"
	case attemptStale:
		return "stale"
	case attemptMismatch:
		return "mismatch"
	default:
		return "failed"
	}
}

// DateDriver sets values on the portal's calendar inputs.
type DateDriver struct {
	Resolver *Resolver
	Sync     *Sync

	Attempts int
	// Backoff is multiplied by the attempt number between attempts.
	Backoff         time.Duration
	VisibleTimeout  time.Duration
	ConvergeTimeout time.Duration
	RefindTimeout   time.Duration
}

func NewDateDriver(r *Resolver, s *Sync) *DateDriver {
	return &DateDriver{
		Resolver:        r,
		Sync:            s,
		Attempts:        5,
		Backoff:         300 * time.Millisecond,
		VisibleTimeout:  10 * time.Second,
		ConvergeTimeout: 10 * time.Second,
		RefindTimeout:   10 * time.Second,
	}
}

// SetDate writes value into the input held by m and waits until the input's
// displayed value equals value (trimmed). root is the top-level page used to
// re-resolve the input by its name or id when the panel re-renders. It
// returns the match that finally converged, which may differ from m.
func (d *DateDriver) SetDate(ctx context.Context, root *rod.Page, m *Match, value string) (*Match, error) {
	want := strings.TrimSpace(value)
	refindBy := d.identity(m)

	var lastErr error
	for attempt := 1; attempt <= d.Attempts; attempt++ {
		outcome, err := d.attempt(ctx, m.Element, value, want)
		if outcome == attemptConverged {
			return m, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = fmt.Errorf("attempt %d %s: %w", attempt, outcome, err)

		if outcome == attemptStale {
			fresh, rerr := d.Resolver.Refind(ctx, root, refindBy, d.RefindTimeout)
			if rerr != nil {
				lastErr = fmt.Errorf("attempt %d refind %s: %w", attempt, refindBy, rerr)
			} else {
				m = fresh
			}
		}

		if err := sleep(ctx, d.Backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %q after %d attempts: %v", ErrDateNotConverged, want, d.Attempts, lastErr)
}

// SetRange sets both bounds of a date filter. The portal is queried for a
// single day by passing the same value twice.
func (d *DateDriver) SetRange(ctx context.Context, root *rod.Page, start, end *Match, from, to string) error {
	if _, err := d.SetDate(ctx, root, start, from); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if _, err := d.SetDate(ctx, root, end, to); err != nil {
		return fmt.Errorf("end date: %w", err)
	}
	return nil
}

func (d *DateDriver) attempt(ctx context.Context, el *rod.Element, value, want string) (attemptOutcome, error) {
	classify := func(err error) (attemptOutcome, error) {
		if IsStale(err) {
			return attemptStale, err
		}
		return attemptFailed, err
	}

	el = el.Context(ctx)

	if err := ensureConnected(el); err != nil {
		return classify(err)
	}

	err := poll(ctx, d.VisibleTimeout, d.Sync.Interval, func() (bool, error) {
		return el.Visible()
	})
	if err != nil {
		var pt *pollTimeoutError
		if errors.As(err, &pt) && IsStale(pt.last) {
			return attemptStale, pt.last
		}
		return attemptFailed, fmt.Errorf("input not visible: %w", err)
	}

	if err := ClickJS(el); err != nil {
		return classify(err)
	}
	if err := ensureConnected(el); err != nil {
		return classify(err)
	}
	if _, err := el.Eval(setDateJS, value); err != nil {
		return classify(err)
	}

	var (
		got      string
		detached bool
	)
	err = poll(ctx, d.ConvergeTimeout, d.Sync.Interval, func() (bool, error) {
		res, err := el.Eval(`() => ({ value: this.value, connected: this.isConnected })`)
		if err != nil {
			return false, err
		}
		if !res.Value.Get("connected").Bool() {
			detached = true
			return true, nil
		}
		got = strings.TrimSpace(res.Value.Get("value").Str())
		return got == want, nil
	})
	if err == nil && detached {
		return attemptStale, errDetached
	}
	if err == nil {
		return attemptConverged, nil
	}
	var pt *pollTimeoutError
	if errors.As(err, &pt) && IsStale(pt.last) {
		return attemptStale, pt.last
	}
	if ctx.Err() != nil {
		return attemptFailed, ctx.Err()
	}
	return attemptMismatch, fmt.Errorf("input shows %q, want %q", got, want)
}

// errDetached matches staleMessages, so a handle whose node was swapped out of
// the document is treated like any other stale handle.
var errDetached = errors.New("node is detached from document")

func ensureConnected(el *rod.Element) error {
	res, err := el.Eval(`() => this.isConnected`)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return errDetached
	}
	return nil
}

// identity picks the attribute the input is re-resolved by after it goes
// stale: name first, then id, then the locator it was found with.
func (d *DateDriver) identity(m *Match) Locator {
	if name, err := m.Element.Attribute("name"); err == nil && name != nil && *name != "" {
		return Name(*name)
	}
	if id, err := m.Element.Attribute("id"); err == nil && id != nil && *id != "" {
		return ID(*id)
	}
	return m.Locator
}
