package virfon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/memorialtech/virfon-scraper/internal/scraper/browser"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
)

// Login clears stored cookies and cache, submits the configured credentials
// and checks the portal's error region. A rejected login is
// report.ErrInvalidCredentials and is never retried.
func (s *Scraper) Login(ctx context.Context) error {
	if err := s.login(ctx); err != nil {
		return s.wrap("Login", "", err, s.capture("login_failed"))
	}
	return nil
}

func (s *Scraper) login(ctx context.Context) error {
	log := s.opt.logger
	page := s.page.Context(ctx)

	if err := (proto.NetworkClearBrowserCookies{}).Call(page); err != nil {
		log.Warn("clear cookies failed", zap.Error(err))
	}
	if err := (proto.NetworkClearBrowserCache{}).Call(page); err != nil {
		log.Warn("clear cache failed", zap.Error(err))
	}
	s.loggedIn = false

	if err := s.navigate(ctx, s.cfg.BaseURL, defaultIdle); err != nil {
		return err
	}

	user, err := s.resolver.ResolveIn(ctx, page, LocUserInput, s.opt.stepTimeout)
	if err != nil {
		return fmt.Errorf("user input: %w", err)
	}
	if err := browser.ClearAndType(ctx, user.Element, s.cfg.Credentials.User, s.opt.humanTyping); err != nil {
		return fmt.Errorf("type user: %w", err)
	}

	pass, err := s.resolver.ResolveIn(ctx, page, LocPasswordInput, s.opt.stepTimeout)
	if err != nil {
		return fmt.Errorf("password input: %w", err)
	}
	if err := browser.ClearAndType(ctx, pass.Element, s.cfg.Credentials.Password, s.opt.humanTyping); err != nil {
		return fmt.Errorf("type password: %w", err)
	}

	submit, err := s.resolver.ResolveIn(ctx, page, LocSubmitLogin, s.opt.stepTimeout)
	if err != nil {
		return fmt.Errorf("submit control: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageLoadTimeout)
	defer cancel()
	waitNav := s.page.Context(navCtx).WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := browser.ClickJS(submit.Element); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	info, err := s.awaitLoginOutcome(ctx, waitNav)
	if err != nil {
		return err
	}
	if info == nil {
		if err := s.sync.WaitReadyAndQuiet(ctx, page, defaultIdle, s.cfg.PageLoadTimeout); err != nil {
			return err
		}
		html, _, err := browser.InlineFrames(page)
		if err != nil {
			return fmt.Errorf("read login result: %w", err)
		}
		if info, err = DetectLoginError(html); err != nil {
			return err
		}
	}
	if info != nil {
		return fmt.Errorf("%w: %w", report.ErrInvalidCredentials, info)
	}

	s.loggedIn = true
	log.Info("logged in", zap.String("user", s.cfg.Credentials.User))
	return nil
}

// awaitLoginOutcome returns once the submit has navigated or the error region
// has been rendered in place, whichever comes first. A nil info means the
// navigation finished (or its wait expired) without an in-place error.
func (s *Scraper) awaitLoginOutcome(ctx context.Context, waitNav func()) (*LoginErrorInfo, error) {
	navDone := make(chan struct{})
	go func() {
		waitNav()
		close(navDone)
	}()

	tick := time.NewTicker(browser.DefaultPollInterval)
	defer tick.Stop()
	for {
		select {
		case <-navDone:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tick.C:
			checkCtx, cancel := context.WithTimeout(ctx, loginCheckTimeout)
			html, _, err := browser.InlineFrames(s.page.Context(checkCtx))
			cancel()
			if err != nil {
				// Mid-navigation; the next tick or navDone decides.
				continue
			}
			if info, _ := DetectLoginError(html); info != nil {
				return info, nil
			}
		}
	}
}

// ensureLoggedIn logs in unless this session already did.
func (s *Scraper) ensureLoggedIn(ctx context.Context) error {
	if s.loggedIn {
		return nil
	}
	return s.login(ctx)
}

// navigate loads url in the top-level page and waits for the document and
// its background calls to settle.
func (s *Scraper) navigate(ctx context.Context, url string, idle time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	if err := s.page.Context(navCtx).Navigate(url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if navCtx.Err() != nil {
			return fmt.Errorf("%w: navigation to %s exceeded %s", browser.ErrReadyTimeout, url, s.cfg.PageLoadTimeout)
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.opt.logger.Debug("navigated", zap.String("url", url))

	return s.sync.WaitReadyAndQuiet(ctx, s.page, idle, s.cfg.PageLoadTimeout)
}

// menuURL addresses a portal menu page.
func (s *Scraper) menuURL(menu string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/index.php?menu=" + menu
}
