package browser

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// setupPage launches a headless Chromium and opens a blank page. Tests that
// need it are skipped with -short or when no browser binary is installed.
func setupPage(t *testing.T) *rod.Page {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping browser test in -short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("Skipping: no Chromium/Chrome binary found")
	}

	l := launcher.New().Bin(bin).Headless(true).Set("no-sandbox")
	u, err := l.Launch()
	if err != nil {
		t.Skipf("Skipping: browser failed to launch: %v", err)
	}
	t.Cleanup(l.Kill)

	browser := rod.New().ControlURL(u).MustConnect()
	t.Cleanup(func() { _ = browser.Close() })

	page := browser.MustPage()
	t.Cleanup(func() { _ = page.Close() })

	return page
}

// servePages serves fixed HTML bodies by path.
func servePages(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	for path, body := range pages {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
