package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

// FrameContext names the document an element was found in: the main
// document or the Nth iframe of it, in document order. It is only meaningful
// until the next navigation or re-render and must not be cached across them.
type FrameContext struct {
	Index int
}

// MainDocument is the top-level document of a page.
var MainDocument = FrameContext{Index: -1}

func (fc FrameContext) IsMain() bool { return fc.Index < 0 }

func (fc FrameContext) String() string {
	if fc.IsMain() {
		return "main"
	}
	return fmt.Sprintf("iframe[%d]", fc.Index)
}

// Match is a freshly resolved element together with the frame that holds it.
type Match struct {
	Frame   *rod.Page
	Element *rod.Element
	Context FrameContext
	Locator Locator
}

// Resolver finds which rendering context currently contains a locator. Only
// one level of iframe nesting is searched.
type Resolver struct {
	// Probe bounds how long a single frame is polled before moving on.
	Probe    time.Duration
	Interval time.Duration
}

func NewResolver() *Resolver {
	return &Resolver{Probe: 2 * time.Second, Interval: DefaultPollInterval}
}

// ResolveIn probes the main document first, then every iframe in document
// order, sweeping again until timeout. It fails with ErrElementNotFound.
func (r *Resolver) ResolveIn(ctx context.Context, page *rod.Page, loc Locator, timeout time.Duration) (*Match, error) {
	deadline := time.Now().Add(timeout)

	for {
		m, err := r.sweep(ctx, page, loc, deadline)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s in main document or iframes", ErrElementNotFound, loc)
		}
	}
}

// Refind resolves loc again to replace a handle that went stale. It performs
// the same search as ResolveIn and never hands back a handle obtained before
// the call.
func (r *Resolver) Refind(ctx context.Context, page *rod.Page, loc Locator, timeout time.Duration) (*Match, error) {
	return r.ResolveIn(ctx, page, loc, timeout)
}

// ResolveFirst walks the chain in order, giving each locator up to
// perLocator, and returns the first that resolves.
func (r *Resolver) ResolveFirst(ctx context.Context, page *rod.Page, chain Chain, perLocator time.Duration) (*Match, error) {
	for _, loc := range chain {
		m, err := r.ResolveIn(ctx, page, loc, perLocator)
		if err == nil {
			return m, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: none of [%s]", ErrElementNotFound, chain)
}

// sweep does one pass over the main document and its iframes. A nil match
// with a nil error means nothing was found in this pass.
func (r *Resolver) sweep(ctx context.Context, page *rod.Page, loc Locator, deadline time.Time) (*Match, error) {
	page = page.Context(ctx)

	if m, err := r.probe(ctx, page, MainDocument, loc, deadline); m != nil || err != nil {
		return m, err
	}

	iframes, err := page.Elements("iframe")
	if err != nil {
		// The document may be mid-navigation; the next sweep retries.
		return nil, nil
	}

	for i, iframe := range iframes {
		frame, err := iframe.Frame()
		if err != nil {
			continue
		}
		if m, err := r.probe(ctx, frame, FrameContext{Index: i}, loc, deadline); m != nil || err != nil {
			return m, err
		}
	}

	return nil, nil
}

func (r *Resolver) probe(ctx context.Context, frame *rod.Page, fc FrameContext, loc Locator, deadline time.Time) (*Match, error) {
	budget := r.Probe
	if remaining := time.Until(deadline); remaining < budget {
		budget = remaining
	}
	if budget < 0 {
		budget = 0
	}

	var found *rod.Element
	// A probe timing out only means "not in this frame".
	_ = poll(ctx, budget, r.Interval, func() (bool, error) {
		el, ok, err := loc.Find(frame)
		if err != nil || !ok {
			return false, err
		}
		found = el
		return true, nil
	})
	if found != nil {
		return &Match{Frame: frame, Element: found, Context: fc, Locator: loc}, nil
	}
	return nil, ctx.Err()
}

// Enter returns the page object for fc, re-walking the current DOM.
func Enter(page *rod.Page, fc FrameContext) (*rod.Page, error) {
	if fc.IsMain() {
		return page, nil
	}

	iframes, err := page.Elements("iframe")
	if err != nil {
		return nil, fmt.Errorf("list iframes: %w", err)
	}
	if fc.Index >= len(iframes) {
		return nil, fmt.Errorf("%w: %s (document has %d iframes)", ErrElementNotFound, fc, len(iframes))
	}

	frame, err := iframes[fc.Index].Frame()
	if err != nil {
		return nil, fmt.Errorf("failed to get frame context: %w", err)
	}
	return frame, nil
}

// CountFrames reports how many iframes the main document currently holds.
func CountFrames(page *rod.Page) int {
	iframes, err := page.Elements("iframe")
	if err != nil {
		return 0
	}
	return len(iframes)
}
