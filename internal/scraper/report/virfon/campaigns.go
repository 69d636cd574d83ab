package virfon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/memorialtech/virfon-scraper/internal/scraper/browser"
	"github.com/memorialtech/virfon-scraper/internal/scraper/download"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
)

// MaxCampaignPages bounds pagination per section, even when a "next" control
// is always present.
const MaxCampaignPages = 20

// CampaignSections are searched in order; later sections only for targets
// still unsatisfied.
var CampaignSections = []string{MenuCampaignIn, MenuCampaignOut}

// CampaignDownload is one satisfied target.
type CampaignDownload struct {
	download.Result
	Target  string
	Section string
	RowName string
}

// pager walks the pages of one campaign table.
type pager interface {
	// Rows parses the rows currently rendered.
	Rows(ctx context.Context) ([]CampaignRow, error)
	// Next advances one page and reports whether a next-page control existed.
	Next(ctx context.Context) (bool, error)
}

type fetchFunc func(ctx context.Context, row CampaignRow) (download.Result, error)

// campaignCrawl keeps per-target bookkeeping across sections.
type campaignCrawl struct {
	targets Targets
	done    map[string]bool
	// tried holds every CSV href requested this session.
	tried   map[string]bool
	results []CampaignDownload

	lastRows []CampaignRow
	log      *zap.Logger
}

func newCampaignCrawl(targets Targets, log *zap.Logger) *campaignCrawl {
	return &campaignCrawl{
		targets: targets,
		done:    make(map[string]bool),
		tried:   make(map[string]bool),
		log:     log,
	}
}

func (c *campaignCrawl) pending() Targets { return c.targets.Without(c.done) }

// scanPages reads at most maxPages pages of one section, downloading each
// matching row for a still-unsatisfied target. A failed row download is
// logged and the next candidate is tried.
func (c *campaignCrawl) scanPages(ctx context.Context, section string, p pager, maxPages int, fetch fetchFunc) error {
	for page := 1; ; page++ {
		if len(c.pending()) == 0 {
			return nil
		}

		rows, err := p.Rows(ctx)
		if err != nil {
			return fmt.Errorf("read %s page %d: %w", section, page, err)
		}
		c.lastRows = rows
		c.log.Debug("campaign page", zap.String("section", section), zap.Int("page", page), zap.Int("rows", len(rows)))

		for _, row := range rows {
			target, ok := c.pending().Match(row.NormalizedName)
			if !ok {
				continue
			}
			if row.Href == "" {
				c.log.Debug("matching row has no CSV link", zap.String("row", row.RawName))
				continue
			}
			if c.tried[row.Href] {
				continue
			}
			c.tried[row.Href] = true

			res, err := fetch(ctx, row)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warn("campaign row download failed",
					zap.String("row", row.RawName), zap.String("target", target.Label), zap.Error(err))
				continue
			}

			c.done[target.Label] = true
			c.results = append(c.results, CampaignDownload{
				Result:  res,
				Target:  target.Label,
				Section: section,
				RowName: row.RawName,
			})
			c.log.Info("campaign target satisfied",
				zap.String("target", target.Label), zap.String("section", section), zap.String("path", res.Path))
		}

		if len(c.pending()) == 0 {
			return nil
		}
		if page >= maxPages {
			c.log.Warn("campaign page ceiling reached", zap.String("section", section), zap.Int("pages", maxPages))
			return nil
		}
		more, err := p.Next(ctx)
		if err != nil {
			return fmt.Errorf("advance %s past page %d: %w", section, page, err)
		}
		if !more {
			return nil
		}
	}
}

// DownloadCampaigns satisfies the Scraper interface; see CrawlCampaigns.
func (s *Scraper) DownloadCampaigns(ctx context.Context, names []string) ([]report.DownloadResult, error) {
	found, err := s.CrawlCampaigns(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make([]report.DownloadResult, len(found))
	for i, f := range found {
		out[i] = f.Result
	}
	return out, nil
}

// CrawlCampaigns downloads one CSV per campaign name, searching the incoming
// campaigns and then, for names still missing, the outgoing ones. Finding
// only some names is not an error; finding none is report.ErrNoCampaignMatch.
// Files are promoted into the output directory under the portal's names.
func (s *Scraper) CrawlCampaigns(ctx context.Context, names []string) ([]CampaignDownload, error) {
	targets := NewTargets(names)
	if len(targets) == 0 {
		return nil, s.wrap("DownloadCampaigns", "", errors.New("no campaign names given"), nil)
	}
	log := s.opt.logger.With(zap.String("flow", string(report.KindCampaigns)), zap.Strings("targets", targets.Labels()))

	if err := s.ensureLoggedIn(ctx); err != nil {
		return nil, s.wrap("DownloadCampaigns", "LoggingIn", err, s.capture("campaigns_login"))
	}

	crawl := newCampaignCrawl(targets, log)
	fetch := func(ctx context.Context, row CampaignRow) (download.Result, error) {
		res, err := s.fetchHref(ctx, row.Href)
		if err != nil {
			return res, err
		}
		promoted, err := s.partition.PromoteTo(res, s.cfg.OutputDir, "")
		if err != nil {
			log.Warn("move to output dir failed, keeping download path", zap.String("path", res.Path), zap.Error(err))
			return res, nil
		}
		return promoted, nil
	}

	for _, section := range CampaignSections {
		if len(crawl.pending()) == 0 {
			break
		}
		log.Info("searching campaign section", zap.String("section", section), zap.Strings("pending", crawl.pending().Labels()))

		p, err := s.openCampaignSection(ctx, section)
		if err == nil {
			err = crawl.scanPages(ctx, section, p, MaxCampaignPages, fetch)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(crawl.results) > 0 {
				log.Warn("campaign section failed, keeping partial results", zap.String("section", section), zap.Error(err))
				break
			}
			return nil, s.wrap("DownloadCampaigns", section, err, s.capture("campaigns_"+section))
		}
	}

	if len(crawl.results) == 0 {
		url := ""
		if info, err := s.page.Info(); err == nil {
			url = info.URL
		}
		sample := RowNames(crawl.lastRows, 30)
		log.Error("no campaign matched", zap.String("url", url), zap.Strings("visible_rows", sample))
		return nil, &report.ScraperError{
			Portal:    report.PortalVirfon,
			Operation: "DownloadCampaigns",
			Cause:     report.ErrNoCampaignMatch,
			Details:   fmt.Sprintf("url=%s targets=[%s] visible rows=[%s]", url, strings.Join(targets.Labels(), ", "), strings.Join(sample, ", ")),
			Artifacts: s.capture("campaigns_no_match"),
		}
	}

	if missing := crawl.pending(); len(missing) > 0 {
		log.Warn("some campaigns not found", zap.Strings("missing", missing.Labels()))
	}
	return crawl.results, nil
}

// openCampaignSection loads a campaign menu, locates the frame holding the
// results table and returns to its first page when a control for that
// exists.
func (s *Scraper) openCampaignSection(ctx context.Context, section string) (*tablePager, error) {
	if err := s.navigate(ctx, s.menuURL(section), defaultIdle); err != nil {
		return nil, err
	}

	p := &tablePager{s: s, frame: browser.MainDocument}
	m, err := s.resolver.ResolveFirst(ctx, s.page, CampaignTableProbes, s.opt.stepTimeout/9)
	switch {
	case err == nil:
		p.frame = m.Context
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		s.opt.logger.Warn("campaign table not located, reading main document", zap.String("section", section), zap.Error(err))
	}

	if err := p.First(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.opt.logger.Warn("could not return to first page", zap.String("section", section), zap.Error(err))
	}
	return p, nil
}

// tablePager reads the campaign table from its frame. The frame is entered
// again for every read, so no handle outlives a page render.
type tablePager struct {
	s     *Scraper
	frame browser.FrameContext
}

func (p *tablePager) enter() (*rod.Page, error) {
	return browser.Enter(p.s.page, p.frame)
}

func (p *tablePager) Rows(ctx context.Context) ([]CampaignRow, error) {
	frame, err := p.enter()
	if err != nil {
		return nil, err
	}
	html, err := frame.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("read table markup: %w", err)
	}
	return ParseCampaignRows(html)
}

func (p *tablePager) Next(ctx context.Context) (bool, error) {
	return p.follow(ctx, NextPageChain)
}

// First is best effort: a missing control is not an error.
func (p *tablePager) First(ctx context.Context) error {
	_, err := p.follow(ctx, FirstPageChain)
	return err
}

// follow clicks the first control of chain present in the table frame and
// waits for the table to settle.
func (p *tablePager) follow(ctx context.Context, chain browser.Chain) (bool, error) {
	s := p.s
	frame, err := p.enter()
	if err != nil {
		return false, err
	}
	frame = frame.Context(ctx)

	for _, loc := range chain {
		el, found, err := loc.Find(frame)
		if err != nil || !found {
			continue
		}
		if err := s.click(ctx, el); err != nil {
			return false, err
		}
		return true, s.sync.WaitReadyAndQuiet(ctx, s.page, defaultIdle, s.cfg.PageLoadTimeout)
	}
	return false, nil
}
