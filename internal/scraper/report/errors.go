package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/memorialtech/virfon-scraper/internal/scraper/browser"
	"github.com/memorialtech/virfon-scraper/internal/scraper/download"
)

var (
	ErrSessionStart       = errors.New("browser session could not start")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoCampaignMatch    = errors.New("no campaign row matched")

	ErrReadyTimeout        = browser.ErrReadyTimeout
	ErrNetworkQuietTimeout = browser.ErrNetworkQuietTimeout
	ErrElementNotFound     = browser.ErrElementNotFound
	ErrDateNotConverged    = browser.ErrDateNotConverged
	ErrDownloadTimeout     = download.ErrDownloadTimeout
)

// ScraperError provides detailed error context
type ScraperError struct {
	Portal    PortalCode
	Operation string
	// State is the flow state the failure happened in, if any.
	State   string
	Cause   error
	Details string
	// Artifacts lists debug captures written for this failure.
	Artifacts []string
}

func (e *ScraperError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Portal, e.Operation)
	if e.State != "" {
		fmt.Fprintf(&b, " (%s)", e.State)
	}
	fmt.Fprintf(&b, " failed: %v", e.Cause)
	if e.Details != "" {
		fmt.Fprintf(&b, " - %s", e.Details)
	}
	return b.String()
}

func (e *ScraperError) Unwrap() error {
	return e.Cause
}

// Reason names the taxonomy class of err for logs and exit reporting.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionStart):
		return "SessionStartError"
	case errors.Is(err, ErrInvalidCredentials):
		return "InvalidCredentials"
	case errors.Is(err, ErrReadyTimeout):
		return "ReadyTimeout"
	case errors.Is(err, ErrNetworkQuietTimeout):
		return "NetworkQuietTimeout"
	case errors.Is(err, ErrElementNotFound):
		return "ElementNotFound"
	case errors.Is(err, ErrDateNotConverged):
		return "DateNotConverged"
	case errors.Is(err, ErrDownloadTimeout):
		return "DownloadTimeout"
	case errors.Is(err, ErrNoCampaignMatch):
		return "NoCampaignMatch"
	default:
		return "Unknown"
	}
}
