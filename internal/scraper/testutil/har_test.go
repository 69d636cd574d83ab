package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeExport = `{
  "log": {
    "version": "1.2",
    "creator": {"name": "WebInspector", "version": "537.36"},
    "entries": [
      {
        "request": {
          "method": "POST",
          "url": "https://portal.example/index.php",
          "headers": [{"name": "Cookie", "value": "PHPSESSID=abc123"}],
          "postData": {"mimeType": "application/x-www-form-urlencoded", "text": "input_user=agent&input_pass=hunter2&submit_login=Entrar"}
        },
        "response": {
          "status": 302,
          "headers": [{"name": "Location", "value": "/index.php"}],
          "content": {"mimeType": "text/html", "text": ""}
        }
      },
      {
        "request": {"method": "GET", "url": "https://cdn.example/jquery.js"},
        "response": {"status": 200, "content": {"mimeType": "text/javascript", "text": "//"}}
      }
    ]
  }
}`

func TestParseHAR_ChromeExport(t *testing.T) {
	har, err := ParseHAR([]byte(chromeExport))

	require.NoError(t, err)
	require.Len(t, har.Entries, 2)
	assert.Equal(t, "POST", har.Entries[0].Request.Method)
	assert.Contains(t, har.Entries[0].Request.Body, "input_pass=hunter2")
	assert.Equal(t, 302, har.Entries[0].Response.Status)
}

func TestParseHAR_Simplified(t *testing.T) {
	har, err := ParseHAR([]byte(`{"entries":[{"request":{"method":"GET","url":"https://portal.example/"},"response":{"status":200,"content":{"mimeType":"text/html","text":"ok"}}}]}`))

	require.NoError(t, err)
	require.Len(t, har.Entries, 1)
	assert.Equal(t, "ok", har.Entries[0].Response.Content.Text)
}

func TestParseHAR_Invalid(t *testing.T) {
	_, err := ParseHAR([]byte(`not json`))
	assert.Error(t, err)
}

func TestHARLog_OnlyHost(t *testing.T) {
	har, err := ParseHAR([]byte(chromeExport))
	require.NoError(t, err)

	filtered := har.OnlyHost("portal.example")

	require.Len(t, filtered.Entries, 1)
	assert.Equal(t, "https://portal.example/index.php", filtered.Entries[0].Request.URL)
}

func TestSaveHAR_RoundTrip(t *testing.T) {
	har, err := ParseHAR([]byte(chromeExport))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "session.har.json")

	require.NoError(t, SaveHAR(path, har))
	loaded := MustLoadHAR(t, path)

	assert.Equal(t, har, loaded)
}
