package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// inlineFramesJS serialises the page with each same-origin iframe's document
// spliced in where the iframe element sits. The live DOM is left untouched:
// the work happens on a clone of the document element.
//
// Cross-origin frames cannot be read and are replaced with a marker carrying
// their src, which is usually enough to tell which frame went missing.
const inlineFramesJS = `() => {
	const live = Array.from(document.querySelectorAll('iframe'));
	const root = document.documentElement.cloneNode(true);
	const clones = Array.from(root.querySelectorAll('iframe'));
	let inlined = 0;

	clones.forEach((clone, i) => {
		const frame = live[i];
		const box = document.createElement('div');
		box.setAttribute('data-captured-iframe', String(i));
		box.setAttribute('data-iframe-src', (frame && frame.src) || '');
		try {
			const doc = frame && (frame.contentDocument || (frame.contentWindow && frame.contentWindow.document));
			if (!doc || !doc.body) throw new Error('no contentDocument');
			box.innerHTML = doc.body.innerHTML;
			inlined++;
		} catch (e) {
			box.setAttribute('data-iframe-error', e.message);
		}
		clone.parentNode.replaceChild(box, clone);
	});

	return JSON.stringify({ html: root.outerHTML, frames: live.length, inlined: inlined });
}`

type inlineResult struct {
	HTML    string `json:"html"`
	Frames  int    `json:"frames"`
	Inlined int    `json:"inlined"`
}

// InlineFrames returns the page markup with iframe documents merged in. On
// script failure it falls back to the plain top-level HTML.
func InlineFrames(page *rod.Page) (html string, inlined int, err error) {
	res, evalErr := page.Eval(inlineFramesJS)
	if evalErr == nil {
		var out inlineResult
		if jsonErr := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(res.Value.Str()), &out); jsonErr == nil {
			return out.HTML, out.Inlined, nil
		}
	}

	html, err = page.HTML()
	if err != nil {
		return "", 0, fmt.Errorf("inline frames failed and fallback HTML failed: %w", err)
	}
	return html, 0, nil
}

// Capture is the pair of files written for post-mortem triage.
type Capture struct {
	Screenshot string
	Markup     string
}

// Paths lists whichever capture files were actually written.
func (c Capture) Paths() []string {
	var out []string
	if c.Screenshot != "" {
		out = append(out, c.Screenshot)
	}
	if c.Markup != "" {
		out = append(out, c.Markup)
	}
	return out
}

// CaptureDebug writes a screenshot and the frame-inlined markup of page into
// dir, named <tag>_<timestamp>_<id>. Each half is best-effort; the returned
// error joins whatever failed.
func CaptureDebug(page *rod.Page, dir, tag string) (Capture, error) {
	var c Capture
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return c, fmt.Errorf("create debug dir: %w", err)
	}

	base := filepath.Join(dir, fmt.Sprintf("%s_%s_%s",
		tag, time.Now().Format("20060102-150405"), uuid.NewString()[:8]))

	var errs []error

	if buf, err := page.Screenshot(true, nil); err != nil {
		errs = append(errs, fmt.Errorf("screenshot: %w", err))
	} else if err := os.WriteFile(base+".png", buf, 0o644); err != nil {
		errs = append(errs, fmt.Errorf("write screenshot: %w", err))
	} else {
		c.Screenshot = base + ".png"
	}

	if html, _, err := InlineFrames(page); err != nil {
		errs = append(errs, fmt.Errorf("markup: %w", err))
	} else if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		errs = append(errs, fmt.Errorf("write markup: %w", err))
	} else {
		c.Markup = base + ".html"
	}

	if len(errs) > 0 {
		return c, fmt.Errorf("debug capture %s: %w", tag, errors.Join(errs...))
	}
	return c, nil
}
