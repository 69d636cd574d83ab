package virfon

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/memorialtech/virfon-scraper/internal/scraper/download"
)

// abortedByDownload is the navigation error Chromium reports when a
// navigation turns into a file download.
const abortedByDownload = "net::ERR_ABORTED"

// ResolveHref resolves a possibly relative link against the portal base URL.
func ResolveHref(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}

// snapshot lists the partition's current files plus everything this session
// already obtained, for use as the watcher's exclusion set.
func (s *Scraper) snapshot() (download.Snapshot, error) {
	snap, err := download.TakeSnapshot(s.partition.Dir, s.watcher.Ext)
	if err != nil {
		return nil, err
	}
	for name := range s.obtained {
		snap.Add(name)
	}
	return snap, nil
}

// await waits for the download triggered after before was taken and records
// it as obtained.
func (s *Scraper) await(ctx context.Context, before download.Snapshot) (download.Result, error) {
	res, err := s.watcher.AwaitNewFile(ctx, before, s.cfg.DownloadTimeout)
	if err != nil {
		return res, err
	}
	s.obtained.Add(res.Path)
	s.opt.logger.Info("download complete", zap.String("path", res.Path), zap.Int64("bytes", res.Size))
	return res, nil
}

// fetchHref downloads a link by opening it in a separate tab, so the page
// holding the results table keeps its document and frames.
func (s *Scraper) fetchHref(ctx context.Context, href string) (download.Result, error) {
	abs, err := ResolveHref(s.cfg.BaseURL, href)
	if err != nil {
		return download.Result{}, err
	}

	before, err := s.snapshot()
	if err != nil {
		return download.Result{}, err
	}

	tab, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return download.Result{}, fmt.Errorf("open download tab: %w", err)
	}
	defer func() {
		if err := tab.Close(); err != nil {
			s.opt.logger.Debug("close download tab", zap.Error(err))
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	s.opt.logger.Debug("following download link", zap.String("url", abs))
	if err := tab.Context(navCtx).Navigate(abs); err != nil && !isDownloadAbort(err) {
		if ctx.Err() != nil {
			return download.Result{}, ctx.Err()
		}
		return download.Result{}, fmt.Errorf("open %s: %w", abs, err)
	}

	return s.await(ctx, before)
}

func isDownloadAbort(err error) bool {
	var navErr *rod.NavigationError
	return errors.As(err, &navErr) && navErr.Reason == abortedByDownload
}
