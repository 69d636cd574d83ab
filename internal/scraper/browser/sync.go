package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// netmonGlobal is the window property holding the in-page network monitor.
const netmonGlobal = "__virfonNetmon"

// netmonInstallFn wraps XMLHttpRequest.send and fetch of one window so the
// page itself counts outstanding calls and stamps the last activity. The
// install is a check-and-set on that window, so running it again (per wait,
// per frame, or on every new document) never double-wraps.
const netmonInstallFn = `function (w) {
	if (w.` + netmonGlobal + `) return false;
	const mon = { active: 0, last: Date.now() };
	Object.defineProperty(w, '` + netmonGlobal + `', { value: mon, configurable: false, enumerable: false });

	const done = () => { mon.active = Math.max(0, mon.active - 1); mon.last = Date.now(); };

	if (w.XMLHttpRequest) {
		const send = w.XMLHttpRequest.prototype.send;
		w.XMLHttpRequest.prototype.send = function () {
			mon.active++; mon.last = Date.now();
			this.addEventListener('loadend', done);
			return send.apply(this, arguments);
		};
	}

	if (w.fetch) {
		const origFetch = w.fetch;
		w.fetch = function () {
			mon.active++; mon.last = Date.now();
			return origFetch.apply(w, arguments).finally(done);
		};
	}
	return true;
}`

// netmonInstallJS installs the monitor in the top window and in every
// same-origin child frame. Cross-origin frames are skipped.
const netmonInstallJS = `() => {
	const install = ` + netmonInstallFn + `;
	const wins = [window];
	for (let i = 0; i < window.frames.length; i++) wins.push(window.frames[i]);
	let installed = 0;
	for (const w of wins) {
		try { if (install(w)) installed++; } catch (e) {}
	}
	return installed;
}`

// netmonStateJS sums the counters of all readable windows. The state only
// counts as installed when every same-origin window carries a monitor.
const netmonStateJS = `() => {
	const wins = [window];
	for (let i = 0; i < window.frames.length; i++) wins.push(window.frames[i]);
	let installed = true, seen = 0, active = 0, last = 0;
	for (const w of wins) {
		let m;
		try { m = w.` + netmonGlobal + `; } catch (e) { continue; }
		if (!m) { installed = false; continue; }
		seen++;
		active += m.active;
		last = Math.max(last, m.last);
	}
	return { installed: installed && seen > 0, active: active, idle: seen > 0 ? Date.now() - last : 0 };
}`

// netmonTouchJS stamps activity on every monitor without changing counts.
const netmonTouchJS = `() => {
	const wins = [window];
	for (let i = 0; i < window.frames.length; i++) wins.push(window.frames[i]);
	for (const w of wins) {
		try { if (w.` + netmonGlobal + `) w.` + netmonGlobal + `.last = Date.now(); } catch (e) {}
	}
}`

// readyStateJS holds when the top document and every readable child frame
// have finished loading.
const readyStateJS = `() => {
	const wins = [window];
	for (let i = 0; i < window.frames.length; i++) wins.push(window.frames[i]);
	for (const w of wins) {
		try { if (w.document.readyState !== 'complete') return false; } catch (e) {}
	}
	return true;
}`

// NetmonBootstrapScript installs the monitor into the current window as a
// plain script. Chromium runs scripts registered with
// Page.addScriptToEvaluateOnNewDocument in every frame, so each document
// instruments itself before its own scripts run.
func NetmonBootstrapScript() string {
	return "(" + netmonInstallFn + ")(window);"
}

// netState is one sample of the in-page monitor.
type netState struct {
	Installed bool
	Active    int
	Idle      time.Duration
}

// quiet holds when nothing is outstanding and the last call finished at
// least idle ago.
func (s netState) quiet(idle time.Duration) bool {
	return s.Installed && s.Active == 0 && s.Idle >= idle
}

// Sync holds the waiting primitives. Every wait is bounded; none blocks
// indefinitely.
type Sync struct {
	Interval time.Duration
	// ScriptTimeout bounds each individual in-page evaluation.
	ScriptTimeout time.Duration
}

func NewSync(scriptTimeout time.Duration) *Sync {
	return &Sync{Interval: DefaultPollInterval, ScriptTimeout: scriptTimeout}
}

func (s *Sync) eval(ctx context.Context, page *rod.Page, js string) (*proto.RuntimeRemoteObject, error) {
	if s.ScriptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ScriptTimeout)
		defer cancel()
	}
	return page.Context(ctx).Eval(js)
}

// WaitDocumentReady polls document.readyState of the page and its
// same-origin frames until all are "complete". Evaluation errors during a
// navigation are retried.
func (s *Sync) WaitDocumentReady(ctx context.Context, page *rod.Page, timeout time.Duration) error {
	err := poll(ctx, timeout, s.Interval, func() (bool, error) {
		res, err := s.eval(ctx, page, readyStateJS)
		if err != nil {
			return false, err
		}
		return res.Value.Bool(), nil
	})
	return timeoutAs(ErrReadyTimeout, err, "readyState not complete after %s", timeout)
}

// InstallNetworkMonitor installs the in-page call counter if it is absent.
func (s *Sync) InstallNetworkMonitor(ctx context.Context, page *rod.Page) error {
	_, err := s.eval(ctx, page, netmonInstallJS)
	return err
}

// MarkActivity restarts the idle window of every installed monitor. Calling
// it right before a click makes the next WaitNetworkQuiet wait at least a
// full idle window, long enough for a navigation the click starts to show up.
func (s *Sync) MarkActivity(ctx context.Context, page *rod.Page) error {
	_, err := s.eval(ctx, page, netmonTouchJS)
	return err
}

// WaitNetworkQuiet succeeds once no instrumented XHR/fetch call is
// outstanding in the page or its frames and at least idle has passed since
// the last one finished.
func (s *Sync) WaitNetworkQuiet(ctx context.Context, page *rod.Page, idle, timeout time.Duration) error {
	var last netState
	err := poll(ctx, timeout, s.Interval, func() (bool, error) {
		res, err := s.eval(ctx, page, netmonStateJS)
		if err != nil {
			return false, err
		}
		st := netState{
			Installed: res.Value.Get("installed").Bool(),
			Active:    res.Value.Get("active").Int(),
			Idle:      time.Duration(res.Value.Get("idle").Int()) * time.Millisecond,
		}
		if !st.Installed {
			// A window loaded a new document since the last install. The fresh
			// monitor's clock starts now, so the idle window is still honoured.
			return false, s.InstallNetworkMonitor(ctx, page)
		}
		last = st
		return st.quiet(idle), nil
	})
	return timeoutAs(ErrNetworkQuietTimeout, err,
		"%d call(s) active, idle %s after %s", last.Active, last.Idle, timeout)
}

// WaitReadyAndQuiet is the usual settle sequence after a navigation.
func (s *Sync) WaitReadyAndQuiet(ctx context.Context, page *rod.Page, idle, timeout time.Duration) error {
	if err := s.WaitDocumentReady(ctx, page, timeout); err != nil {
		return err
	}
	return s.WaitNetworkQuiet(ctx, page, idle, timeout)
}

// WaitClickable polls for an element that is present, visible and enabled.
// Stale handles between polls are absorbed by looking the element up again.
func (s *Sync) WaitClickable(ctx context.Context, page *rod.Page, loc Locator, timeout time.Duration) (*rod.Element, error) {
	var found *rod.Element
	err := poll(ctx, timeout, s.Interval, func() (bool, error) {
		el, ok, err := loc.Find(page.Context(ctx))
		if err != nil || !ok {
			return false, err
		}
		clickable, err := Clickable(el)
		if err != nil {
			return false, err
		}
		if clickable {
			found = el
		}
		return clickable, nil
	})
	if err != nil {
		return nil, timeoutAs(ErrElementNotFound, err, "%s not clickable after %s", loc, timeout)
	}
	return found, nil
}

// Clickable reports whether el is visible and not disabled.
func Clickable(el *rod.Element) (bool, error) {
	visible, err := el.Visible()
	if err != nil || !visible {
		return false, err
	}
	disabled, err := el.Property("disabled")
	if err != nil {
		return false, err
	}
	return !disabled.Bool(), nil
}

// ClickJS scrolls el into the middle of the viewport and clicks it through
// the DOM, which does not depend on the element being uncovered.
func ClickJS(el *rod.Element) error {
	_, err := el.Eval(`() => { this.scrollIntoView({block: 'center'}); this.click(); }`)
	if err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}
