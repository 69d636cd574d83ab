package main

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
)

type results struct {
	CallsDetail *report.DownloadResult
	Campaigns   []report.DownloadResult
}

type fileJSON struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	CompletedAt time.Time `json:"completed_at"`
}

type resultsJSON struct {
	CallsDetail *fileJSON  `json:"calls_detail,omitempty"`
	Campaigns   []fileJSON `json:"campaigns,omitempty"`
}

func toFileJSON(r report.DownloadResult) fileJSON {
	return fileJSON{Path: r.Path, Size: r.Size, CompletedAt: r.CompletedAt}
}

// print writes one path per line, or a single JSON document with --json.
func (a *app) print(r results) error {
	if a.jsonOut {
		var doc resultsJSON
		if r.CallsDetail != nil {
			f := toFileJSON(*r.CallsDetail)
			doc.CallsDetail = &f
		}
		for _, c := range r.Campaigns {
			doc.Campaigns = append(doc.Campaigns, toFileJSON(c))
		}
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	if r.CallsDetail != nil {
		if _, err := fmt.Fprintln(a.out, r.CallsDetail.Path); err != nil {
			return err
		}
	}
	for _, c := range r.Campaigns {
		if _, err := fmt.Fprintln(a.out, c.Path); err != nil {
			return err
		}
	}
	return nil
}
