package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearAndType(t *testing.T) {
	page := setupPage(t)
	srv := servePages(t, map[string]string{"/": `<html><body>
<input id="input_user" value="previous">
<input name="input_pass" type="password">
</body></html>`})
	page.MustNavigate(srv.URL + "/").MustWaitLoad()
	ctx := context.Background()

	user := page.MustElement("#input_user")
	require.NoError(t, ClearAndType(ctx, user, "agent01", true))
	assert.Equal(t, "agent01", user.MustProperty("value").Str())

	pass := page.MustElement(`[name="input_pass"]`)
	require.NoError(t, ClearAndType(ctx, pass, "pässwörd", false))
	assert.Equal(t, "pässwörd", pass.MustProperty("value").Str())
}
