// Package testutil holds test doubles for the portal: a fake portal server
// and HAR recording load, redaction and replay.
package testutil

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HARLog is the simplified archive the replayer works on.
type HARLog struct {
	Entries []HAREntry `json:"entries"`
}

type HAREntry struct {
	Request  HARRequest  `json:"request"`
	Response HARResponse `json:"response"`
}

type HARRequest struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers []HARHeader `json:"headers,omitempty"`
	Body    string      `json:"body,omitempty"`
}

type HARResponse struct {
	Status  int         `json:"status"`
	Headers []HARHeader `json:"headers,omitempty"`
	Content HARContent  `json:"content"`
}

type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARContent is a response body. Text is base64 when Encoding says so.
type HARContent struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
	Encoding string `json:"encoding,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// chromeHAR is the HAR 1.2 export of Chrome DevTools: entries sit under
// "log" and request bodies under postData.
type chromeHAR struct {
	Log struct {
		Entries []struct {
			Request struct {
				Method   string      `json:"method"`
				URL      string      `json:"url"`
				Headers  []HARHeader `json:"headers"`
				PostData *struct {
					Text string `json:"text"`
				} `json:"postData"`
			} `json:"request"`
			Response HARResponse `json:"response"`
		} `json:"entries"`
	} `json:"log"`
}

// LoadHAR reads either a DevTools export or a simplified archive.
func LoadHAR(path string) (*HARLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read HAR file: %w", err)
	}
	return ParseHAR(data)
}

func ParseHAR(data []byte) (*HARLog, error) {
	var chrome chromeHAR
	if err := json.Unmarshal(data, &chrome); err == nil && len(chrome.Log.Entries) > 0 {
		out := &HARLog{Entries: make([]HAREntry, len(chrome.Log.Entries))}
		for i, ce := range chrome.Log.Entries {
			var body string
			if ce.Request.PostData != nil {
				body = ce.Request.PostData.Text
			}
			out.Entries[i] = HAREntry{
				Request: HARRequest{
					Method:  ce.Request.Method,
					URL:     ce.Request.URL,
					Headers: ce.Request.Headers,
					Body:    body,
				},
				Response: ce.Response,
			}
		}
		return out, nil
	}

	var har HARLog
	if err := json.Unmarshal(data, &har); err != nil {
		return nil, fmt.Errorf("parse HAR JSON: %w", err)
	}
	return &har, nil
}

// OnlyHost drops entries for other hosts, such as CDN or analytics traffic
// captured alongside the portal.
func (h *HARLog) OnlyHost(host string) *HARLog {
	out := &HARLog{}
	for _, e := range h.Entries {
		u, err := url.Parse(e.Request.URL)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Hostname(), host) {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

func SaveHAR(path string, har *HARLog) error {
	data, err := json.MarshalIndent(har, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal HAR: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write HAR file: %w", err)
	}
	return nil
}

// MustLoadHAR loads a HAR file and fails the test if it cannot be loaded.
func MustLoadHAR(t *testing.T, path string) *HARLog {
	t.Helper()

	har, err := LoadHAR(path)
	if err != nil {
		t.Fatalf("failed to load HAR file %s: %v", path, err)
	}
	return har
}
