package virfon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/memorialtech/virfon-scraper/internal/scraper/browser"
	"github.com/memorialtech/virfon-scraper/internal/scraper/download"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
)

// DefaultCallsDetailName is the file name downstream jobs expect.
const DefaultCallsDetailName = "SIT_LZ_CALLDETAIL.csv"

// CallsDetailState is a step of the calls-detail export.
type CallsDetailState int

const (
	StateLoggingIn CallsDetailState = iota
	StateNavigated
	StateFilterPanelOpen
	StateDatesSet
	StateFiltered
	StateExportTriggered
	StateDownloaded
	StateFailed
)

func (s CallsDetailState) String() string {
	switch s {
	case StateLoggingIn:
		return "LoggingIn"
	case StateNavigated:
		return "Navigated"
	case StateFilterPanelOpen:
		return "FilterPanelOpen"
	case StateDatesSet:
		return "DatesSet"
	case StateFiltered:
		return "Filtered"
	case StateExportTriggered:
		return "ExportTriggered"
	case StateDownloaded:
		return "Downloaded"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("CallsDetailState(%d)", int(s))
	}
}

// callsDetailRun carries one export through its states. Frame handles are
// never kept between steps; each step resolves what it needs again.
type callsDetailRun struct {
	s     *Scraper
	day   string
	state CallsDetailState

	before download.Snapshot
	result download.Result
}

type transition struct {
	to CallsDetailState
	fn func(context.Context) error
}

// DownloadCallsDetail exports the calls-detail report filtered to day and
// stores it as outputName (DefaultCallsDetailName when empty) in the output
// directory. The flow does not retry whole steps; a failure carries the
// state it happened in and any debug captures.
func (s *Scraper) DownloadCallsDetail(ctx context.Context, day time.Time, outputName string) (*report.DownloadResult, error) {
	if outputName == "" {
		outputName = DefaultCallsDetailName
	}
	r := &callsDetailRun{s: s, day: FormatPortalDate(day), state: StateLoggingIn}
	log := s.opt.logger.With(zap.String("flow", string(report.KindCallsDetail)), zap.String("day", r.day))

	steps := []transition{
		{StateNavigated, s.ensureLoggedIn},
		{StateFilterPanelOpen, r.openFilterPanel},
		{StateDatesSet, r.setDates},
		{StateFiltered, r.applyFilter},
		{StateExportTriggered, r.triggerExport},
		{StateDownloaded, r.awaitDownload},
	}

	log.Info("calls detail export started", zap.Stringer("state", r.state))
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			failedIn := r.state
			r.state = StateFailed
			log.Error("calls detail export failed", zap.Stringer("in", failedIn), zap.Error(err))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, s.wrap("DownloadCallsDetail", failedIn.String(), err, s.capture("calls_detail_"+failedIn.String()))
		}
		log.Info("calls detail transition", zap.Stringer("from", r.state), zap.Stringer("to", step.to))
		r.state = step.to
	}

	res, err := s.partition.PromoteTo(r.result, s.cfg.OutputDir, outputName)
	if err != nil {
		log.Warn("rename to output name failed, keeping download path", zap.String("path", res.Path), zap.Error(err))
	}
	return &res, nil
}

// openFilterPanel loads the report page and opens its filter panel.
func (r *callsDetailRun) openFilterPanel(ctx context.Context) error {
	s := r.s
	if err := s.navigate(ctx, s.menuURL(MenuCallsDetail), callsDetailIdle); err != nil {
		return err
	}
	return s.clickIn(ctx, LocFilterToggle)
}

// setDates sets both bounds to the report day.
func (r *callsDetailRun) setDates(ctx context.Context) error {
	s := r.s
	start, err := s.resolver.ResolveFirst(ctx, s.page, StartDateChain, s.opt.stepTimeout/3)
	if err != nil {
		return fmt.Errorf("start date input: %w", err)
	}
	end, err := s.resolver.ResolveFirst(ctx, s.page, EndDateChain, s.opt.stepTimeout/3)
	if err != nil {
		return fmt.Errorf("end date input: %w", err)
	}
	return s.dates.SetRange(ctx, s.page, start, end, r.day, r.day)
}

// applyFilter submits the filter and waits for the table to reload.
func (r *callsDetailRun) applyFilter(ctx context.Context) error {
	s := r.s
	if err := s.clickIn(ctx, LocFilterButton); err != nil {
		return err
	}
	return s.sync.WaitNetworkQuiet(ctx, s.page, callsDetailIdle, s.cfg.PageLoadTimeout)
}

// triggerExport opens the download menu and follows the CSV export link,
// preferring its href over a click.
func (r *callsDetailRun) triggerExport(ctx context.Context) error {
	s := r.s
	before, err := s.snapshot()
	if err != nil {
		return err
	}
	r.before = before

	if err := s.clickIn(ctx, LocDownloadMenu); err != nil {
		return err
	}

	link, href, err := s.exportLink(ctx)
	if err != nil {
		return err
	}
	if href != "" {
		abs, err := ResolveHref(s.cfg.BaseURL, href)
		if err != nil {
			return err
		}
		return s.openDownload(ctx, abs)
	}
	s.opt.logger.Debug("export link has no href, clicking it")
	return s.click(ctx, link.Element)
}

func (r *callsDetailRun) awaitDownload(ctx context.Context) error {
	res, err := r.s.await(ctx, r.before)
	if err != nil {
		return err
	}
	r.result = res
	return nil
}

// exportLink finds the CSV export anchor: the parent anchor of the CSV icon,
// or any link mentioning CSV. href is empty when the anchor exposes none.
func (s *Scraper) exportLink(ctx context.Context) (*browser.Match, string, error) {
	icon, err := s.resolver.ResolveIn(ctx, s.page, LocCSVExport, s.opt.stepTimeout/3)
	if err == nil {
		found, anchor, aerr := icon.Element.HasX("./parent::a")
		if aerr == nil && found {
			if href, _ := anchor.Attribute("href"); href != nil && *href != "" {
				return icon, *href, nil
			}
		}
		return icon, "", nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	link, err := s.resolver.ResolveIn(ctx, s.page, LocCSVFallback, s.opt.stepTimeout/3)
	if err != nil {
		return nil, "", fmt.Errorf("CSV export link: %w", err)
	}
	if href, _ := link.Element.Attribute("href"); href != nil && *href != "" {
		return link, *href, nil
	}
	return link, "", nil
}

// openDownload navigates the top-level page to a download URL. Chromium
// aborts the navigation once it becomes a download and keeps the document.
func (s *Scraper) openDownload(ctx context.Context, abs string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	s.opt.logger.Debug("following export link", zap.String("url", abs))
	if err := s.page.Context(navCtx).Navigate(abs); err != nil && !isDownloadAbort(err) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("open %s: %w", abs, err)
	}
	return nil
}

// clickIn resolves loc in whichever frame holds it, waits until it is
// clickable there and clicks it.
func (s *Scraper) clickIn(ctx context.Context, loc browser.Locator) error {
	m, err := s.resolver.ResolveIn(ctx, s.page, loc, s.opt.stepTimeout)
	if err != nil {
		return err
	}
	el, err := s.sync.WaitClickable(ctx, m.Frame, loc, s.opt.stepTimeout)
	if err != nil {
		return err
	}
	return s.click(ctx, el)
}

// click restarts the network idle window and clicks el, so a following
// settle wait covers whatever the click starts.
func (s *Scraper) click(ctx context.Context, el *rod.Element) error {
	if err := s.sync.MarkActivity(ctx, s.page); err != nil {
		s.opt.logger.Debug("mark network activity", zap.Error(err))
	}
	return browser.ClickJS(el)
}
