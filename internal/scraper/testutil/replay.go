package testutil

import (
	"encoding/base64"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Replayer serves recorded portal responses through a rod hijack router.
//
// The portal answers the same URL differently over a session (index.php is
// the login form, then the dashboard, then a CSV attachment), so entries
// recorded for one method and URL are served in recorded order. The last
// one repeats once the queue is exhausted.
type Replayer struct {
	mu sync.Mutex

	// exact maps "METHOD URL" to the recorded entries in order.
	exact map[string][]*HAREntry
	// cursor is the next index to serve per exact key.
	cursor map[string]int
	// byPath maps "METHOD scheme://host/path" to the first entry, used when
	// query strings differ from the recording.
	byPath map[string]*HAREntry

	passthrough bool
	log         *zap.Logger

	served, missing, passed int
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithPassthrough lets unmatched requests reach the network. By default they
// get a 404.
func WithPassthrough(enabled bool) ReplayerOption {
	return func(r *Replayer) { r.passthrough = enabled }
}

// WithLogger logs every match decision at Debug.
func WithLogger(l *zap.Logger) ReplayerOption {
	return func(r *Replayer) { r.log = l }
}

func NewReplayer(har *HARLog, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		exact:  make(map[string][]*HAREntry),
		cursor: make(map[string]int),
		byPath: make(map[string]*HAREntry),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := range har.Entries {
		entry := &har.Entries[i]
		method := methodOf(entry.Request.Method)

		key := method + " " + entry.Request.URL
		r.exact[key] = append(r.exact[key], entry)

		if pk, ok := pathKey(method, entry.Request.URL); ok {
			if _, exists := r.byPath[pk]; !exists {
				r.byPath[pk] = entry
			}
		}
	}
	return r
}

// Middleware returns the handler to install with the session's
// WithHijacker option.
func (r *Replayer) Middleware() func(*rod.Hijack) {
	return func(h *rod.Hijack) {
		method := methodOf(h.Request.Method())
		reqURL := h.Request.URL().String()

		entry := r.lookup(method, reqURL)
		if entry == nil {
			r.mu.Lock()
			if r.passthrough {
				r.passed++
			} else {
				r.missing++
			}
			r.mu.Unlock()

			r.log.Debug("replay: no recording", zap.String("method", method), zap.String("url", reqURL))
			if r.passthrough {
				_ = h.LoadResponse(nil, true)
				return
			}
			serveNotFound(h)
			return
		}

		entry = r.followRedirects(entry)
		r.mu.Lock()
		r.served++
		r.mu.Unlock()

		r.log.Debug("replay: served",
			zap.String("method", method),
			zap.String("url", reqURL),
			zap.Int("status", entry.Response.Status))
		serveEntry(h, entry)
	}
}

func (r *Replayer) lookup(method, reqURL string) *HAREntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := method + " " + reqURL
	if queue := r.exact[key]; len(queue) > 0 {
		i := r.cursor[key]
		if i >= len(queue) {
			i = len(queue) - 1
		} else {
			r.cursor[key] = i + 1
		}
		return queue[i]
	}

	if pk, ok := pathKey(method, reqURL); ok {
		return r.byPath[pk]
	}
	return nil
}

// followRedirects resolves a recorded 3xx to the recorded target, up to ten
// hops. When a target is missing the redirect itself is served.
func (r *Replayer) followRedirects(entry *HAREntry) *HAREntry {
	const maxRedirects = 10

	current := entry
	for i := 0; i < maxRedirects; i++ {
		if current.Response.Status < 300 || current.Response.Status >= 400 {
			return current
		}
		location := header(current.Response.Headers, "location")
		if location == "" {
			return current
		}
		if base, err := url.Parse(current.Request.URL); err == nil {
			if ref, err := url.Parse(location); err == nil {
				location = base.ResolveReference(ref).String()
			}
		}

		next := r.lookup("GET", location)
		if next == nil {
			r.log.Debug("replay: redirect target not recorded", zap.String("location", location))
			return current
		}
		current = next
	}
	return current
}

// Stats reports how many requests were served, missing, or passed through.
func (r *Replayer) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	recorded := 0
	for _, q := range r.exact {
		recorded += len(q)
	}
	return map[string]int{
		"recorded":    recorded,
		"served":      r.served,
		"missing":     r.missing,
		"passthrough": r.passed,
	}
}

func serveEntry(h *rod.Hijack, entry *HAREntry) {
	resp := entry.Response

	body := []byte(resp.Content.Text)
	if resp.Content.Encoding == "base64" {
		if decoded, err := base64.StdEncoding.DecodeString(resp.Content.Text); err == nil {
			body = decoded
		}
	}

	var headers []*proto.FetchHeaderEntry
	hasType := false
	for _, hd := range resp.Headers {
		switch strings.ToLower(hd.Name) {
		case "content-encoding", "content-length", "location":
			continue
		case "content-type":
			hasType = true
		}
		headers = append(headers, &proto.FetchHeaderEntry{Name: hd.Name, Value: hd.Value})
	}
	if !hasType && resp.Content.MimeType != "" {
		headers = append(headers, &proto.FetchHeaderEntry{Name: "Content-Type", Value: resp.Content.MimeType})
	}

	payload := h.Response.Payload()
	payload.ResponseCode = resp.Status
	payload.ResponseHeaders = headers
	payload.Body = body
}

func serveNotFound(h *rod.Hijack) {
	payload := h.Response.Payload()
	payload.ResponseCode = 404
	payload.ResponseHeaders = []*proto.FetchHeaderEntry{
		{Name: "Content-Type", Value: "text/plain"},
	}
	payload.Body = []byte("no recording for this request")
}

func methodOf(m string) string {
	if m == "" {
		return "GET"
	}
	return strings.ToUpper(m)
}

func pathKey(method, raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	return method + " " + u.Scheme + "://" + u.Host + u.Path, true
}

func header(headers []HARHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
