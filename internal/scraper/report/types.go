package report

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/memorialtech/virfon-scraper/internal/scraper/download"
)

type Credentials struct {
	User     string
	Password string
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{User: %q, Password: <redacted>}", c.User)
}

// SessionConfig is fixed for the lifetime of one browser session.
type SessionConfig struct {
	BaseURL     string
	DownloadDir string
	// OutputDir receives promoted files. Defaults to DownloadDir.
	OutputDir   string
	Credentials Credentials

	ScriptTimeout   time.Duration
	PageLoadTimeout time.Duration
	DownloadTimeout time.Duration

	// DebugDir receives screenshots and markup captured on failure. Defaults
	// to DefaultDebugDirName under DownloadDir.
	DebugDir string
}

const (
	DefaultScriptTimeout   = 180 * time.Second
	DefaultPageLoadTimeout = 120 * time.Second
	DefaultDownloadTimeout = 150 * time.Second

	DefaultDebugDirName = "debug"
)

// WithDefaults fills zero durations and the output and debug directories.
func (c SessionConfig) WithDefaults() SessionConfig {
	if c.ScriptTimeout <= 0 {
		c.ScriptTimeout = DefaultScriptTimeout
	}
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = DefaultPageLoadTimeout
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = DefaultDownloadTimeout
	}
	if c.OutputDir == "" {
		c.OutputDir = c.DownloadDir
	}
	if c.DebugDir == "" && c.DownloadDir != "" {
		c.DebugDir = filepath.Join(c.DownloadDir, DefaultDebugDirName)
	}
	return c
}

func (c SessionConfig) Validate() error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	if c.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q is not an absolute URL", c.BaseURL))
	}
	if !filepath.IsAbs(c.DownloadDir) {
		errs = append(errs, fmt.Errorf("download dir %q must be absolute", c.DownloadDir))
	}
	if c.OutputDir != "" && !filepath.IsAbs(c.OutputDir) {
		errs = append(errs, fmt.Errorf("output dir %q must be absolute", c.OutputDir))
	}
	return errors.Join(errs...)
}

// DownloadResult is a completed, size-stable file on local disk.
type DownloadResult = download.Result
