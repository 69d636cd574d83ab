package browser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineFrames(t *testing.T) {
	page := setupPage(t)
	srv := servePages(t, map[string]string{
		"/":      `<html><body><p>outer</p><iframe src="/frame"></iframe></body></html>`,
		"/frame": `<html><body><table><tr><td>Generali</td></tr></table></body></html>`,
	})
	page.MustNavigate(srv.URL + "/").MustWaitLoad()
	page.MustElement("iframe").MustFrame().MustWaitLoad()

	html, inlined, err := InlineFrames(page)

	require.NoError(t, err)
	assert.Equal(t, 1, inlined)
	assert.Contains(t, html, "outer")
	assert.Contains(t, html, "<td>Generali</td>")
	assert.Contains(t, html, `data-captured-iframe="0"`)
	assert.NotContains(t, html, "<iframe")
}

func TestCaptureDebug(t *testing.T) {
	page := setupPage(t)
	srv := servePages(t, map[string]string{"/": `<html><body><h1>Error page</h1></body></html>`})
	page.MustNavigate(srv.URL + "/").MustWaitLoad()

	dir := filepath.Join(t.TempDir(), "debug")
	c, err := CaptureDebug(page, dir, "calls_detail_failed")

	require.NoError(t, err)
	require.Len(t, c.Paths(), 2)
	assert.True(t, strings.HasPrefix(filepath.Base(c.Screenshot), "calls_detail_failed_"))
	assert.Equal(t, ".png", filepath.Ext(c.Screenshot))
	assert.Equal(t, ".html", filepath.Ext(c.Markup))

	markup, err := os.ReadFile(c.Markup)
	require.NoError(t, err)
	assert.Contains(t, string(markup), "Error page")
}

func TestCapturePaths(t *testing.T) {
	assert.Empty(t, Capture{}.Paths())
	assert.Equal(t, []string{"a.html"}, Capture{Markup: "a.html"}.Paths())
}
