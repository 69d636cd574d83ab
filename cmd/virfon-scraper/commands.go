package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report/virfon"
)

func newCallsDetailCmd(a *app) *cobra.Command {
	var (
		date   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "calls-detail",
		Short: "Download the calls-detail report for one day.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := a.reportDay(date)
			if err != nil {
				return err
			}
			if output == "" {
				output = a.cfg.Download.OutputFileName
			}
			res, err := a.callsDetail(cmd.Context(), day, output)
			if err != nil {
				return err
			}
			return a.print(results{CallsDetail: res})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", `report day as YYYY-MM-DD or "02 Jan 2006" (default: today minus report.day_offset)`)
	cmd.Flags().StringVarP(&output, "output", "o", "", "file name for the report (default: download.output_file_name)")
	return cmd
}

func newCampaignsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaigns [name...]",
		Short: "Download one CSV per named campaign.",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = a.cfg.Report.CampaignNames
			}
			if len(names) == 0 {
				return errors.New("no campaign names given and report.campaign_names is empty")
			}
			res, err := a.campaigns(cmd.Context(), names)
			if err != nil {
				return err
			}
			return a.print(results{Campaigns: res})
		},
	}
	return cmd
}

// newRunCmd runs both flows concurrently, each in its own browser session
// and download partition. One flow failing does not stop the other.
func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Download the calls-detail report and the configured campaigns.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			day := virfon.ReportDay(a.now(), a.cfg.Report.DayOffset)

			// Each flow writes only its own result field and error slot. The
			// group has no shared context, so a failure never cancels the
			// other flow; Wait reports only the first error, the slots keep
			// both.
			var (
				out  results
				errs [2]error
				g    errgroup.Group
			)
			g.Go(func() error {
				res, err := a.callsDetail(ctx, day, a.cfg.Download.OutputFileName)
				if err != nil {
					errs[0] = fmt.Errorf("%s: %w", report.KindCallsDetail, err)
					return errs[0]
				}
				out.CallsDetail = res
				return nil
			})
			if names := a.cfg.Report.CampaignNames; len(names) > 0 {
				g.Go(func() error {
					res, err := a.campaigns(ctx, names)
					if err != nil {
						errs[1] = fmt.Errorf("%s: %w", report.KindCampaigns, err)
						return errs[1]
					}
					out.Campaigns = res
					return nil
				})
			} else {
				a.log.Info("no campaign names configured, skipping campaigns")
			}
			waitErr := g.Wait()

			if err := a.print(out); err != nil {
				return err
			}
			if waitErr != nil {
				return errors.Join(errs[:]...)
			}
			return nil
		},
	}
}

func (a *app) callsDetail(ctx context.Context, day time.Time, output string) (*report.DownloadResult, error) {
	var res *report.DownloadResult
	err := a.sessions(ctx, a.cfg, func(ctx context.Context, s report.Scraper) error {
		var err error
		res, err = s.DownloadCallsDetail(ctx, day, output)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("calls-detail report saved",
		zap.String("day", virfon.FormatPortalDate(day)),
		zap.String("path", res.Path))
	return res, nil
}

func (a *app) campaigns(ctx context.Context, names []string) ([]report.DownloadResult, error) {
	var res []report.DownloadResult
	err := a.sessions(ctx, a.cfg, func(ctx context.Context, s report.Scraper) error {
		var err error
		res, err = s.DownloadCampaigns(ctx, names)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("campaign reports saved", zap.Int("found", len(res)), zap.Int("requested", len(names)))
	return res, nil
}

// reportDay parses the --date flag, defaulting to the configured offset.
func (a *app) reportDay(date string) (time.Time, error) {
	if date == "" {
		return virfon.ReportDay(a.now(), a.cfg.Report.DayOffset), nil
	}
	if day, err := time.ParseInLocation("2006-01-02", date, time.Local); err == nil {
		return day, nil
	}
	day, err := virfon.ParsePortalDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD or %q", date, virfon.PortalDateLayout)
	}
	return day, nil
}
