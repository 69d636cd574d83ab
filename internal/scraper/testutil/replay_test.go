package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(method, url string, status int, text string, headers ...HARHeader) HAREntry {
	return HAREntry{
		Request:  HARRequest{Method: method, URL: url},
		Response: HARResponse{Status: status, Headers: headers, Content: HARContent{MimeType: "text/html", Text: text}},
	}
}

func TestReplayer_LookupServesInRecordedOrder(t *testing.T) {
	har := &HARLog{Entries: []HAREntry{
		entry("GET", "https://portal.example/index.php", 200, "login form"),
		entry("POST", "https://portal.example/index.php", 302, "", HARHeader{Name: "Location", Value: "/index.php"}),
		entry("GET", "https://portal.example/index.php", 200, "dashboard"),
	}}
	r := NewReplayer(har)

	first := r.lookup("GET", "https://portal.example/index.php")
	second := r.lookup("GET", "https://portal.example/index.php")
	third := r.lookup("GET", "https://portal.example/index.php")

	assert.Equal(t, "login form", first.Response.Content.Text)
	assert.Equal(t, "dashboard", second.Response.Content.Text)
	assert.Equal(t, "dashboard", third.Response.Content.Text, "last entry repeats")

	post := r.lookup("POST", "https://portal.example/index.php")
	require.NotNil(t, post)
	assert.Equal(t, 302, post.Response.Status)
}

func TestReplayer_LookupFallsBackToPath(t *testing.T) {
	har := &HARLog{Entries: []HAREntry{
		entry("GET", "https://portal.example/frame.php?menu=campaign_in&page=1", 200, "page one"),
	}}
	r := NewReplayer(har)

	got := r.lookup("GET", "https://portal.example/frame.php?menu=campaign_in&page=1&_=123")
	require.NotNil(t, got)
	assert.Equal(t, "page one", got.Response.Content.Text)

	assert.Nil(t, r.lookup("GET", "https://portal.example/other.php"))
	assert.Nil(t, r.lookup("POST", "https://portal.example/frame.php"))
}

func TestReplayer_FollowRedirects(t *testing.T) {
	har := &HARLog{Entries: []HAREntry{
		entry("POST", "https://portal.example/index.php", 302, "", HARHeader{Name: "Location", Value: "/index.php?menu=dashboard"}),
		entry("GET", "https://portal.example/index.php?menu=dashboard", 200, "dashboard"),
		entry("GET", "https://portal.example/gone", 301, "", HARHeader{Name: "Location", Value: "https://elsewhere.example/"}),
	}}
	r := NewReplayer(har)

	final := r.followRedirects(&har.Entries[0])
	assert.Equal(t, "dashboard", final.Response.Content.Text)

	unresolved := r.followRedirects(&har.Entries[2])
	assert.Equal(t, 301, unresolved.Response.Status)
}

func TestReplayer_Stats(t *testing.T) {
	har := &HARLog{Entries: []HAREntry{
		entry("GET", "https://portal.example/", 200, "a"),
		entry("GET", "https://portal.example/", 200, "b"),
	}}

	stats := NewReplayer(har).Stats()

	assert.Equal(t, 2, stats["recorded"])
	assert.Equal(t, 0, stats["served"])
}
