package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/memorialtech/virfon-scraper/internal/config"
	"github.com/memorialtech/virfon-scraper/internal/observability"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report/virfon"
)

// sessionFunc runs fn against a fresh portal session and tears it down.
type sessionFunc func(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, s report.Scraper) error) error

// app carries what the commands share once the config is loaded.
type app struct {
	cfgFile  string
	jsonOut  bool
	cfg      *config.Config
	log      *zap.Logger
	out      io.Writer
	now      func() time.Time
	sessions sessionFunc
}

func newApp(out io.Writer) *app {
	return &app{
		out:      out,
		now:      time.Now,
		sessions: virfonSession,
	}
}

func virfonSession(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, s report.Scraper) error) error {
	opts := []virfon.Option{
		virfon.WithLogger(observability.GetLogger()),
		virfon.WithHeadless(cfg.Browser.Headless),
		virfon.WithIgnoreTLSErrors(cfg.Browser.IgnoreTLSErrors),
		virfon.WithHumanTyping(cfg.Browser.HumanizeTyping),
		virfon.WithTimeout(cfg.Browser.StepTimeout),
		virfon.WithTeardownGrace(cfg.Browser.TeardownGrace),
	}
	if cfg.Browser.Bin != "" {
		opts = append(opts, virfon.WithBrowserBin(cfg.Browser.Bin))
	}
	return virfon.WithSession(ctx, cfg.SessionConfig(), func(ctx context.Context, s *virfon.Scraper) error {
		return fn(ctx, s)
	}, opts...)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "virfon-scraper",
		Short:         "Export Virfon portal reports as CSV files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg != nil {
				if a.log == nil {
					a.log = observability.GetLogger()
				}
				return nil
			}
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "virfon-scraper"})
				return err
			}
			a.cfg = cfg
			observability.InitializeLogger(cfg.Logger)
			a.log = observability.GetLogger()
			a.log.Debug("configuration loaded",
				zap.String("base_url", cfg.Portal.BaseURL),
				zap.String("download_dir", cfg.Download.Dir))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newCallsDetailCmd(a),
		newCampaignsCmd(a),
		newRunCmd(a),
	)
	return root
}

// execute runs the CLI and maps failures to exit code 1 with the failure
// class logged.
func execute(ctx context.Context, args []string) int {
	return executeApp(ctx, newApp(os.Stdout), args)
}

func executeApp(ctx context.Context, a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.out)

	err := root.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return 0
	}

	log := a.log
	if log == nil {
		log = observability.GetLogger()
	}
	fields := []zap.Field{zap.Error(err), zap.String("reason", failureReason(err))}
	var se *report.ScraperError
	if errors.As(err, &se) && len(se.Artifacts) > 0 {
		fields = append(fields, zap.Strings("artifacts", se.Artifacts))
	}
	log.Error("command failed", fields...)
	fmt.Fprintln(root.ErrOrStderr(), "error:", err)
	return 1
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Deadline"
	default:
		return report.Reason(err)
	}
}
