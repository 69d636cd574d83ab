// Package report defines the contracts shared by portal report scrapers: the
// session configuration, results, and the typed failures callers inspect.
package report

import (
	"context"
	"time"
)

type Scraper interface {
	// Login authenticates against the portal in the current browser session.
	Login(ctx context.Context) error
	// DownloadCallsDetail exports the calls-detail report for a single day and
	// stores it as outputName in the output directory.
	DownloadCallsDetail(ctx context.Context, day time.Time, outputName string) (*DownloadResult, error)
	// DownloadCampaigns exports one CSV per campaign name found in the portal's
	// campaign tables. A partial list is not an error.
	DownloadCampaigns(ctx context.Context, names []string) ([]DownloadResult, error)
	Close() error
}

type PortalCode string

const (
	PortalVirfon PortalCode = "VIRFON"
)

type Kind string

const (
	KindCallsDetail Kind = "calls_detail"
	KindCampaigns   Kind = "campaigns"
)
