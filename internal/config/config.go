// Package config loads the scraper's settings from a YAML file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/memorialtech/virfon-scraper/internal/scraper/report"
)

// EnvPrefix namespaces environment overrides: portal.base_url is read from
// VIRFON_PORTAL_BASE_URL.
const EnvPrefix = "VIRFON"

type Config struct {
	Portal   PortalConfig   `mapstructure:"portal" yaml:"portal"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
}

type PortalConfig struct {
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
}

type BrowserConfig struct {
	// Bin is a Chromium binary; empty lets the launcher find or fetch one.
	Bin             string        `mapstructure:"bin" yaml:"bin"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ScriptTimeout   time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	StepTimeout     time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	HumanizeTyping  bool          `mapstructure:"humanize_typing" yaml:"humanize_typing"`
	TeardownGrace   time.Duration `mapstructure:"teardown_grace" yaml:"teardown_grace"`
}

type DownloadConfig struct {
	Dir            string        `mapstructure:"dir" yaml:"dir"`
	OutputFileName string        `mapstructure:"output_file_name" yaml:"output_file_name"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DebugDir       string        `mapstructure:"debug_dir" yaml:"debug_dir"`
}

type ReportConfig struct {
	// DayOffset is how many days before today the calls-detail report covers.
	DayOffset     int      `mapstructure:"day_offset" yaml:"day_offset"`
	CampaignNames []string `mapstructure:"campaign_names" yaml:"campaign_names"`
}

// LoggerConfig holds the logging settings. An empty LogFile disables the
// rotated file output.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color per level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// SetDefaults registers every key so environment overrides apply even when
// the config file omits it.
func SetDefaults(v *viper.Viper) {
	// -- Portal --
	v.SetDefault("portal.base_url", "")
	v.SetDefault("portal.user", "")
	v.SetDefault("portal.password", "")

	// -- Browser --
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", true)
	v.SetDefault("browser.script_timeout", "180s")
	v.SetDefault("browser.page_load_timeout", "120s")
	v.SetDefault("browser.step_timeout", "45s")
	v.SetDefault("browser.humanize_typing", false)
	v.SetDefault("browser.teardown_grace", "10s")

	// -- Download --
	v.SetDefault("download.dir", "./downloads")
	v.SetDefault("download.output_file_name", "SIT_LZ_CALLDETAIL.csv")
	v.SetDefault("download.timeout", "150s")
	v.SetDefault("download.debug_dir", "")

	// -- Report --
	v.SetDefault("report.day_offset", 1)
	v.SetDefault("report.campaign_names", []string{})

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "virfon-scraper")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")
}

// NewViper returns a viper instance with defaults and environment binding
// in place. A non-empty path is read as the config file.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads .env (if present), the config file at path and the
// environment, then validates the result.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper expands ${ENV:VAR|default} placeholders in every
// string value and unmarshals the result.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	for _, key := range v.AllKeys() {
		switch val := v.Get(key).(type) {
		case string:
			if strings.Contains(val, "${") {
				v.Set(key, ExpandEnv(val))
			}
		case []any:
			expanded := make([]string, len(val))
			for i, item := range val {
				expanded[i] = ExpandEnv(fmt.Sprint(item))
			}
			v.Set(key, expanded)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and makes the directories absolute.
func (c *Config) Validate() error {
	var errs []error

	if c.Portal.BaseURL == "" {
		errs = append(errs, errors.New("portal.base_url is required"))
	} else if u, err := url.Parse(c.Portal.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("portal.base_url %q is not an absolute URL", c.Portal.BaseURL))
	}

	if c.Download.Dir == "" {
		errs = append(errs, errors.New("download.dir is required"))
	} else if abs, err := filepath.Abs(c.Download.Dir); err != nil {
		errs = append(errs, fmt.Errorf("download.dir: %w", err))
	} else {
		c.Download.Dir = abs
	}
	if c.Download.DebugDir == "" && filepath.IsAbs(c.Download.Dir) {
		c.Download.DebugDir = filepath.Join(c.Download.Dir, report.DefaultDebugDirName)
	} else if c.Download.DebugDir != "" {
		if abs, err := filepath.Abs(c.Download.DebugDir); err == nil {
			c.Download.DebugDir = abs
		}
	}
	if strings.ContainsAny(c.Download.OutputFileName, `/\`) {
		errs = append(errs, fmt.Errorf("download.output_file_name %q must be a bare file name", c.Download.OutputFileName))
	}

	if c.Report.DayOffset < 0 {
		errs = append(errs, fmt.Errorf("report.day_offset must not be negative, got %d", c.Report.DayOffset))
	}
	for key, d := range map[string]time.Duration{
		"browser.script_timeout":    c.Browser.ScriptTimeout,
		"browser.page_load_timeout": c.Browser.PageLoadTimeout,
		"browser.step_timeout":      c.Browser.StepTimeout,
		"download.timeout":          c.Download.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}

	return errors.Join(errs...)
}

// SessionConfig derives the settings a browser session is started with.
func (c *Config) SessionConfig() report.SessionConfig {
	return report.SessionConfig{
		BaseURL:     c.Portal.BaseURL,
		DownloadDir: c.Download.Dir,
		OutputDir:   c.Download.Dir,
		Credentials: report.Credentials{
			User:     c.Portal.User,
			Password: c.Portal.Password,
		},
		ScriptTimeout:   c.Browser.ScriptTimeout,
		PageLoadTimeout: c.Browser.PageLoadTimeout,
		DownloadTimeout: c.Download.Timeout,
		DebugDir:        c.Download.DebugDir,
	}
}
