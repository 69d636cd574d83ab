package testutil

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// SensitiveKeys match form fields, query parameters, JSON keys and header
// names whose values must not be committed. input_user and input_pass are
// the portal's login fields; PHPSESSID is its session cookie.
var SensitiveKeys = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^input_(user|pass)$`),
	regexp.MustCompile(`(?i)phpsessid`),
	regexp.MustCompile(`(?i)pass(word|wd)?`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)token`),
	regexp.MustCompile(`(?i)session`),
	regexp.MustCompile(`(?i)auth`),
	regexp.MustCompile(`(?i)api_?key`),
	regexp.MustCompile(`(?i)credential`),
}

// SensitiveHeaders are always redacted, whatever their value looks like.
var SensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"proxy-authorization": true,
	"x-csrf-token":        true,
}

// jsonField matches "key": value for string and scalar values.
var jsonField = regexp.MustCompile(`"([^"]+)"\s*:\s*("(?:[^"\\]|\\.)*"|[^,}\]\s]+)`)

// SanitizeHAR returns a copy of har with credentials, cookies and tokens
// replaced by [REDACTED].
func SanitizeHAR(har *HARLog) *HARLog {
	out := &HARLog{Entries: make([]HAREntry, len(har.Entries))}
	for i, e := range har.Entries {
		out.Entries[i] = HAREntry{
			Request: HARRequest{
				Method:  e.Request.Method,
				URL:     sanitizeURL(e.Request.URL),
				Headers: sanitizeHeaders(e.Request.Headers),
				Body:    sanitizeBody(e.Request.Body),
			},
			Response: HARResponse{
				Status:  e.Response.Status,
				Headers: sanitizeHeaders(e.Response.Headers),
				Content: sanitizeContent(e.Response.Content),
			},
		}
	}
	return out
}

func IsSensitiveKey(key string) bool {
	for _, re := range SensitiveKeys {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	changed := false
	for key := range q {
		if IsSensitiveKey(key) {
			q.Set(key, redacted)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func sanitizeHeaders(headers []HARHeader) []HARHeader {
	if headers == nil {
		return nil
	}
	out := make([]HARHeader, len(headers))
	for i, h := range headers {
		out[i] = h
		if SensitiveHeaders[strings.ToLower(h.Name)] || IsSensitiveKey(h.Name) {
			out[i].Value = redacted
		}
	}
	return out
}

// sanitizeContent leaves binary bodies alone; CSV exports and images carry
// no credentials.
func sanitizeContent(c HARContent) HARContent {
	if c.Encoding == "base64" {
		return c
	}
	c.Text = sanitizeBody(c.Text)
	return c
}

func sanitizeBody(body string) string {
	trimmed := strings.TrimSpace(body)
	switch {
	case trimmed == "":
		return body
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return sanitizeJSON(body)
	case strings.Contains(body, "=") && !strings.ContainsAny(trimmed, "<\n"):
		return sanitizeForm(body)
	default:
		return body
	}
}

func sanitizeForm(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return body
	}
	for key := range values {
		if IsSensitiveKey(key) {
			values.Set(key, redacted)
		}
	}
	return values.Encode()
}

func sanitizeJSON(body string) string {
	return jsonField.ReplaceAllStringFunc(body, func(m string) string {
		parts := jsonField.FindStringSubmatch(m)
		if !IsSensitiveKey(parts[1]) {
			return m
		}
		return `"` + parts[1] + `": "` + redacted + `"`
	})
}
