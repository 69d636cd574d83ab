package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
portal:
  base_url: https://virfon.example/
  user: ${ENV:VIRFON_TEST_USER|agent}
  password: ${ENV:VIRFON_TEST_PASS}
download:
  dir: ./downloads
  timeout: 90s
report:
  day_offset: 2
  campaign_names:
    - Generali
    - ${ENV:VIRFON_TEST_EXTRA|Generali Alt}
logger:
  level: debug
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// -- Defaults --

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("portal.base_url", "https://virfon.example/")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.IgnoreTLSErrors)
	assert.Equal(t, 180*time.Second, cfg.Browser.ScriptTimeout)
	assert.Equal(t, 120*time.Second, cfg.Browser.PageLoadTimeout)
	assert.Equal(t, 150*time.Second, cfg.Download.Timeout)
	assert.Equal(t, "SIT_LZ_CALLDETAIL.csv", cfg.Download.OutputFileName)
	assert.Equal(t, 1, cfg.Report.DayOffset)
	assert.Equal(t, "virfon-scraper", cfg.Logger.ServiceName)
	assert.True(t, filepath.IsAbs(cfg.Download.Dir))
	assert.Equal(t, filepath.Join(cfg.Download.Dir, "debug"), cfg.Download.DebugDir)
}

func TestLoad_DebugDirDefaultsUnderDownloadDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VIRFON_PORTAL_BASE_URL", "https://virfon.example/")
	t.Setenv("VIRFON_DOWNLOAD_DIR", dir)

	cfg, err := Load("")
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.NotEmpty(t, sc.DebugDir)
	assert.Equal(t, filepath.Join(dir, "debug"), sc.DebugDir)
}

func TestLoad_DebugDirExplicit(t *testing.T) {
	t.Setenv("VIRFON_PORTAL_BASE_URL", "https://virfon.example/")
	t.Setenv("VIRFON_DOWNLOAD_DIR", t.TempDir())
	t.Setenv("VIRFON_DOWNLOAD_DEBUG_DIR", "/srv/virfon/debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/virfon/debug", cfg.SessionConfig().DebugDir)
}

// -- Loading --

func TestLoad_FileWithPlaceholders(t *testing.T) {
	t.Setenv("VIRFON_TEST_PASS", "s3cret")
	path := writeConfig(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://virfon.example/", cfg.Portal.BaseURL)
	assert.Equal(t, "agent", cfg.Portal.User, "unset variable falls back to the default")
	assert.Equal(t, "s3cret", cfg.Portal.Password)
	assert.Equal(t, 90*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 2, cfg.Report.DayOffset)
	assert.Equal(t, []string{"Generali", "Generali Alt"}, cfg.Report.CampaignNames)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("VIRFON_PORTAL_BASE_URL", "https://other.example/")
	t.Setenv("VIRFON_BROWSER_HEADLESS", "false")
	t.Setenv("VIRFON_REPORT_DAY_OFFSET", "0")
	path := writeConfig(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://other.example/", cfg.Portal.BaseURL)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 0, cfg.Report.DayOffset)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

// -- Validation --

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Portal:   PortalConfig{BaseURL: "https://virfon.example/"},
			Browser:  BrowserConfig{ScriptTimeout: time.Second, PageLoadTimeout: time.Second, StepTimeout: time.Second},
			Download: DownloadConfig{Dir: "downloads", Timeout: time.Second, OutputFileName: "out.csv"},
		}
	}

	t.Run("valid config makes dirs absolute", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())
		assert.True(t, filepath.IsAbs(cfg.Download.Dir))
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty base url", func(c *Config) { c.Portal.BaseURL = "" }, "portal.base_url is required"},
		{"relative base url", func(c *Config) { c.Portal.BaseURL = "virfon.example" }, "not an absolute URL"},
		{"empty download dir", func(c *Config) { c.Download.Dir = "" }, "download.dir is required"},
		{"negative offset", func(c *Config) { c.Report.DayOffset = -1 }, "report.day_offset must not be negative"},
		{"zero timeout", func(c *Config) { c.Download.Timeout = 0 }, "download.timeout must be positive"},
		{"output name with path", func(c *Config) { c.Download.OutputFileName = "../x.csv" }, "bare file name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := Config{
		Portal:   PortalConfig{BaseURL: "https://virfon.example/", User: "agent", Password: "pw"},
		Browser:  BrowserConfig{ScriptTimeout: 3 * time.Second, PageLoadTimeout: 4 * time.Second},
		Download: DownloadConfig{Dir: "/data/virfon", Timeout: 5 * time.Second, DebugDir: "/data/debug"},
	}

	sc := cfg.SessionConfig()

	assert.Equal(t, "https://virfon.example/", sc.BaseURL)
	assert.Equal(t, "/data/virfon", sc.DownloadDir)
	assert.Equal(t, "/data/virfon", sc.OutputDir)
	assert.Equal(t, "agent", sc.Credentials.User)
	assert.Equal(t, "pw", sc.Credentials.Password)
	assert.Equal(t, 5*time.Second, sc.DownloadTimeout)
	assert.Equal(t, "/data/debug", sc.DebugDir)
	require.NoError(t, sc.Validate())
}
