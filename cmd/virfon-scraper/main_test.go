package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/memorialtech/virfon-scraper/internal/config"
	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
)

// fakeScraper records calls and returns canned results.
type fakeScraper struct {
	mu          sync.Mutex
	days        []time.Time
	outputs     []string
	names       [][]string
	callsErr    error
	campaignErr error
	closed      bool
}

func (f *fakeScraper) Login(ctx context.Context) error { return nil }

func (f *fakeScraper) DownloadCallsDetail(ctx context.Context, day time.Time, outputName string) (*report.DownloadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = append(f.days, day)
	f.outputs = append(f.outputs, outputName)
	if f.callsErr != nil {
		return nil, f.callsErr
	}
	return &report.DownloadResult{Path: "/data/" + outputName, Size: 42}, nil
}

func (f *fakeScraper) DownloadCampaigns(ctx context.Context, names []string) ([]report.DownloadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, names)
	if f.campaignErr != nil {
		return nil, f.campaignErr
	}
	var out []report.DownloadResult
	for _, n := range names {
		out = append(out, report.DownloadResult{Path: "/data/" + n + ".csv", Size: 7})
	}
	return out, nil
}

func (f *fakeScraper) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testApp(t *testing.T, fake *fakeScraper) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a := newApp(out)
	a.log = zaptest.NewLogger(t)
	a.now = func() time.Time { return time.Date(2025, time.October, 9, 8, 30, 0, 0, time.UTC) }
	a.cfg = &config.Config{
		Portal:   config.PortalConfig{BaseURL: "https://virfon.example/"},
		Download: config.DownloadConfig{Dir: "/data", OutputFileName: "SIT_LZ_CALLDETAIL.csv"},
		Report:   config.ReportConfig{DayOffset: 1, CampaignNames: []string{"Generali", "Generali Alt"}},
	}
	a.sessions = func(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, s report.Scraper) error) error {
		defer fake.Close()
		return fn(ctx, fake)
	}
	return a, out
}

func TestCallsDetail_DefaultDay(t *testing.T) {
	fake := &fakeScraper{}
	a, out := testApp(t, fake)

	code := executeApp(context.Background(), a, []string{"calls-detail"})

	require.Equal(t, 0, code)
	require.Len(t, fake.days, 1)
	assert.Equal(t, "2025-10-08", fake.days[0].Format("2006-01-02"))
	assert.Equal(t, []string{"SIT_LZ_CALLDETAIL.csv"}, fake.outputs)
	assert.Equal(t, "/data/SIT_LZ_CALLDETAIL.csv\n", out.String())
	assert.True(t, fake.closed)
}

func TestCallsDetail_DateAndOutputFlags(t *testing.T) {
	tests := []struct {
		name string
		date string
	}{
		{"iso date", "2025-10-01"},
		{"portal date", "01 Oct 2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeScraper{}
			a, _ := testApp(t, fake)

			code := executeApp(context.Background(), a, []string{"calls-detail", "--date", tt.date, "-o", "custom.csv"})

			require.Equal(t, 0, code)
			require.Len(t, fake.days, 1)
			assert.Equal(t, "01 Oct 2025", fake.days[0].Format("02 Jan 2006"))
			assert.Equal(t, []string{"custom.csv"}, fake.outputs)
		})
	}
}

func TestCallsDetail_InvalidDate(t *testing.T) {
	fake := &fakeScraper{}
	a, _ := testApp(t, fake)

	code := executeApp(context.Background(), a, []string{"calls-detail", "--date", "yesterday"})

	assert.Equal(t, 1, code)
	assert.Empty(t, fake.days)
}

func TestCampaigns_ArgsOverrideConfig(t *testing.T) {
	fake := &fakeScraper{}
	a, out := testApp(t, fake)

	code := executeApp(context.Background(), a, []string{"campaigns", "Rimac"})

	require.Equal(t, 0, code)
	assert.Equal(t, [][]string{{"Rimac"}}, fake.names)
	assert.Equal(t, "/data/Rimac.csv\n", out.String())
}

func TestCampaigns_JSONOutput(t *testing.T) {
	fake := &fakeScraper{}
	a, out := testApp(t, fake)

	code := executeApp(context.Background(), a, []string{"campaigns", "--json"})

	require.Equal(t, 0, code)
	var doc resultsJSON
	require.NoError(t, jsoniter.Unmarshal(out.Bytes(), &doc))
	assert.Nil(t, doc.CallsDetail)
	require.Len(t, doc.Campaigns, 2)
	assert.Equal(t, "/data/Generali.csv", doc.Campaigns[0].Path)
	assert.Equal(t, int64(7), doc.Campaigns[0].Size)
}

func TestCampaigns_NoMatchFails(t *testing.T) {
	fake := &fakeScraper{campaignErr: &report.ScraperError{
		Portal:    report.PortalVirfon,
		Operation: "DownloadCampaigns",
		Cause:     report.ErrNoCampaignMatch,
	}}
	a, out := testApp(t, fake)

	code := executeApp(context.Background(), a, []string{"campaigns"})

	assert.Equal(t, 1, code)
	assert.Empty(t, out.String())
}

func TestRun_BothFlows(t *testing.T) {
	fake := &fakeScraper{}
	a, out := testApp(t, fake)

	code := executeApp(context.Background(), a, []string{"run"})

	require.Equal(t, 0, code)
	assert.Len(t, fake.days, 1)
	assert.Len(t, fake.names, 1)
	assert.Contains(t, out.String(), "/data/SIT_LZ_CALLDETAIL.csv")
	assert.Contains(t, out.String(), "/data/Generali Alt.csv")
}

func TestRun_OneFlowFailingKeepsTheOther(t *testing.T) {
	fake := &fakeScraper{callsErr: fmt.Errorf("export: %w", report.ErrDownloadTimeout)}
	a, out := testApp(t, fake)

	code := executeApp(context.Background(), a, []string{"run", "--json"})

	assert.Equal(t, 1, code)
	var doc resultsJSON
	require.NoError(t, jsoniter.Unmarshal(out.Bytes(), &doc))
	assert.Nil(t, doc.CallsDetail)
	assert.Len(t, doc.Campaigns, 2)
}

func TestRun_BothFlowsFailingReportsBoth(t *testing.T) {
	fake := &fakeScraper{
		callsErr:    fmt.Errorf("export: %w", report.ErrDownloadTimeout),
		campaignErr: &report.ScraperError{Portal: report.PortalVirfon, Operation: "DownloadCampaigns", Cause: report.ErrNoCampaignMatch},
	}
	a, _ := testApp(t, fake)

	root := newRootCmd(a)
	root.SetArgs([]string{"run"})
	root.SetOut(a.out)
	err := root.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrDownloadTimeout)
	assert.ErrorIs(t, err, report.ErrNoCampaignMatch)
	assert.Contains(t, err.Error(), string(report.KindCallsDetail))
	assert.Contains(t, err.Error(), string(report.KindCampaigns))
	assert.Len(t, fake.days, 1, "calls detail still ran")
	assert.Len(t, fake.names, 1, "campaigns still ran")
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "Cancelled", failureReason(context.Canceled))
	assert.Equal(t, "Deadline", failureReason(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
	assert.Equal(t, "NoCampaignMatch", failureReason(&report.ScraperError{Cause: report.ErrNoCampaignMatch}))
	assert.Equal(t, "InvalidCredentials", failureReason(fmt.Errorf("login: %w", report.ErrInvalidCredentials)))
}

func TestRoot_LoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("portal:\n  base_url: https://virfon.example/\ndownload:\n  dir: %s\nreport:\n  campaign_names: [Generali]\n", dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	fake := &fakeScraper{}
	a, out := testApp(t, fake)
	a.cfg = nil

	code := executeApp(context.Background(), a, []string{"campaigns", "--config", path})

	require.Equal(t, 0, code)
	require.NotNil(t, a.cfg)
	assert.Equal(t, dir, a.cfg.Download.Dir)
	assert.Equal(t, "/data/Generali.csv\n", out.String())
}

func TestRoot_InvalidConfigFails(t *testing.T) {
	fake := &fakeScraper{}
	a, _ := testApp(t, fake)
	a.cfg = nil

	code := executeApp(context.Background(), a, []string{"campaigns", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	assert.Equal(t, 1, code)
	assert.Empty(t, fake.names)
}
