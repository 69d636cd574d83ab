// Package virfon drives the Virfon contact-center portal to export its
// calls-detail and campaign reports.
package virfon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memorialtech/virfon-scraper/internal/scraper/browser"
	"github.com/memorialtech/virfon-scraper/internal/scraper/download"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
)

// Idle windows for network-quiet waits, as the portal needs them.
const (
	defaultIdle      = 1200 * time.Millisecond
	callsDetailIdle  = 1500 * time.Millisecond
	defaultStepLimit = 45 * time.Second
	defaultGrace     = 10 * time.Second

	// loginCheckTimeout bounds one read of the page while waiting for the
	// login outcome.
	loginCheckTimeout = 2 * time.Second
)

// Scraper owns one browser process and its download partition. It is not
// safe for concurrent use: the protocol connection accepts one command
// sequence at a time.
type Scraper struct {
	ID  string
	cfg report.SessionConfig
	opt options

	launcher  *launcher.Launcher
	browser   *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	partition *download.Partition

	resolver *browser.Resolver
	sync     *browser.Sync
	dates    *browser.DateDriver
	watcher  *download.Watcher

	// obtained holds the partition files already reported this session.
	obtained download.Snapshot
	loggedIn bool
	closed   bool
}

var _ report.Scraper = (*Scraper)(nil)

type options struct {
	hijacker      func(*rod.Hijack)
	stepTimeout   time.Duration
	logger        *zap.Logger
	bin           string
	headless      bool
	humanTyping   bool
	ignoreTLS     bool
	teardownGrace time.Duration
}

type Option func(*options)

// WithHijacker routes every browser request through h, e.g. a HAR replayer.
func WithHijacker(h func(*rod.Hijack)) Option {
	return func(o *options) { o.hijacker = h }
}

// WithTimeout bounds each individual step: resolving a control, waiting
// for it to become clickable.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.stepTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBrowserBin uses a specific Chromium binary instead of the one the
// launcher finds or downloads.
func WithBrowserBin(path string) Option {
	return func(o *options) { o.bin = path }
}

func WithHeadless(enabled bool) Option {
	return func(o *options) { o.headless = enabled }
}

// WithIgnoreTLSErrors accepts the portal's self-signed certificate. It is
// on by default.
func WithIgnoreTLSErrors(enabled bool) Option {
	return func(o *options) { o.ignoreTLS = enabled }
}

// WithHumanTyping types credentials key by key with short pauses.
func WithHumanTyping(enabled bool) Option {
	return func(o *options) { o.humanTyping = enabled }
}

// WithTeardownGrace bounds the graceful browser shutdown before the process
// is killed.
func WithTeardownGrace(d time.Duration) Option {
	return func(o *options) { o.teardownGrace = d }
}

// New launches a browser configured for the portal: headless, downloads
// allowed into a private partition of cfg.DownloadDir, certificate errors
// ignored. Failures to start are reported as report.ErrSessionStart and are
// not retried.
func New(cfg report.SessionConfig, opts ...Option) (*Scraper, error) {
	o := options{
		stepTimeout:   defaultStepLimit,
		logger:        zap.NewNop(),
		headless:      true,
		ignoreTLS:     true,
		teardownGrace: defaultGrace,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	s := &Scraper{
		ID:       uuid.NewString(),
		cfg:      cfg,
		opt:      o,
		obtained: download.Snapshot{},
	}
	s.opt.logger = o.logger.With(zap.String("portal", string(report.PortalVirfon)), zap.String("session", s.ID))

	if err := s.start(); err != nil {
		s.teardown()
		return nil, s.wrap("StartSession", "", fmt.Errorf("%w: %w", report.ErrSessionStart, err), nil)
	}

	s.resolver = browser.NewResolver()
	s.sync = browser.NewSync(cfg.ScriptTimeout)
	s.dates = browser.NewDateDriver(s.resolver, s.sync)
	s.watcher = download.NewWatcher(s.partition.Dir, ".csv", s.opt.logger)

	s.opt.logger.Info("browser session started", zap.String("download_dir", s.partition.Dir))
	return s, nil
}

func (s *Scraper) start() error {
	if err := os.MkdirAll(s.cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	part, err := download.NewPartition(s.cfg.DownloadDir)
	if err != nil {
		return err
	}
	s.partition = part

	l := launcher.New().
		Headless(s.opt.headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("window-size", "1920,1080")
	if s.opt.ignoreTLS {
		l = l.Set("ignore-certificate-errors")
	}
	if s.opt.bin != "" {
		l = l.Bin(s.opt.bin)
	}
	s.launcher = l

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	s.browser = b

	if s.opt.ignoreTLS {
		if err := b.IgnoreCertErrors(true); err != nil {
			return fmt.Errorf("ignore cert errors: %w", err)
		}
	}

	err = proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath:  s.partition.Dir,
		EventsEnabled: true,
	}.Call(b)
	if err != nil {
		return fmt.Errorf("set download behavior: %w", err)
	}

	if s.opt.hijacker != nil {
		s.router = b.HijackRequests()
		if err := s.router.Add("*", "", s.opt.hijacker); err != nil {
			return fmt.Errorf("install hijacker: %w", err)
		}
		go s.router.Run()
	}

	page, err := stealth.Page(b)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if _, err := page.EvalOnNewDocument(browser.NetmonBootstrapScript()); err != nil {
		return fmt.Errorf("install network monitor: %w", err)
	}
	s.page = page

	return nil
}

// Close tears the session down. It is safe to call more than once.
func (s *Scraper) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.teardown()
	s.opt.logger.Info("browser session closed")
	return nil
}

// teardown closes the browser gracefully within the grace period and kills
// the process otherwise. It does not use any caller context, so it still
// runs after cancellation.
func (s *Scraper) teardown() {
	log := s.opt.logger

	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			log.Debug("stop hijack router", zap.Error(err))
		}
	}

	if s.browser != nil {
		done := make(chan error, 1)
		go func() { done <- s.browser.Close() }()

		select {
		case err := <-done:
			if err != nil {
				log.Warn("graceful browser close failed, killing", zap.Error(err))
				s.kill()
			}
		case <-time.After(s.opt.teardownGrace):
			log.Warn("browser did not close in time, killing", zap.Duration("grace", s.opt.teardownGrace))
			s.kill()
		}
	} else {
		s.kill()
	}

	if s.launcher != nil && s.launcher.PID() != 0 {
		cleaned := make(chan struct{})
		go func() {
			s.launcher.Cleanup()
			close(cleaned)
		}()
		select {
		case <-cleaned:
		case <-time.After(s.opt.teardownGrace):
			log.Warn("browser profile cleanup timed out")
		}
	}

	if s.partition != nil {
		if err := s.partition.Remove(); err != nil {
			log.Warn("download partition left in place", zap.String("dir", s.partition.Dir), zap.Error(err))
		}
	}
}

func (s *Scraper) kill() {
	if s.launcher != nil && s.launcher.PID() != 0 {
		s.launcher.Kill()
	}
}

// WithSession runs fn with a fresh session and always tears the session
// down afterwards, including when ctx is cancelled.
func WithSession(ctx context.Context, cfg report.SessionConfig, fn func(ctx context.Context, s *Scraper) error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	return fn(ctx, s)
}

// wrap attaches portal context to err. Cancellation of the caller's context
// is returned as is.
func (s *Scraper) wrap(op, state string, err error, artifacts []string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *report.ScraperError
	if errors.As(err, &se) {
		return err
	}
	return &report.ScraperError{
		Portal:    report.PortalVirfon,
		Operation: op,
		State:     state,
		Cause:     err,
		Artifacts: artifacts,
	}
}

// capture writes debug artifacts for the current page when a debug
// directory is configured.
func (s *Scraper) capture(tag string) []string {
	if s.cfg.DebugDir == "" || s.page == nil {
		return nil
	}
	c, err := browser.CaptureDebug(s.page, s.cfg.DebugDir, tag)
	if err != nil {
		s.opt.logger.Warn("debug capture incomplete", zap.String("tag", tag), zap.Error(err))
	}
	if paths := c.Paths(); len(paths) > 0 {
		s.opt.logger.Info("debug capture written", zap.Strings("paths", paths))
		return paths
	}
	return nil
}

// DownloadDir is this session's private download partition.
func (s *Scraper) DownloadDir() string { return s.partition.Dir }
