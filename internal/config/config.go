package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/storage"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/usage"
)

// Config holds all Bandwidth Guardian configuration.
type Config struct {
	Provider   ProviderConfig   `mapstructure:"provider"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`

	dir string
}

// ProviderConfig identifies the account whose transfer counters are read.
type ProviderConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AccountID string        `mapstructure:"account_id"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects the baseline store.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ThresholdsConfig holds per-window limits as byte strings such as "1GiB".
type ThresholdsConfig struct {
	Hourly string `mapstructure:"hourly"`
	Daily  string `mapstructure:"daily"`
	Weekly string `mapstructure:"weekly"`
}

// ScheduleConfig defines job recurrences and dispatch policy.
type ScheduleConfig struct {
	Hourly          string        `mapstructure:"hourly"`
	Daily           string        `mapstructure:"daily"`
	Weekly          string        `mapstructure:"weekly"`
	Report          string        `mapstructure:"report"`
	MisfireGrace    time.Duration `mapstructure:"misfire_grace"`
	MaxWorkers      int           `mapstructure:"max_workers"`
	Coalesce        bool          `mapstructure:"coalesce"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AlertsConfig defines alerting integrations.
type AlertsConfig struct {
	Email   EmailConfig   `mapstructure:"email"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

// EmailConfig defines SMTP settings.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
	TLS      string `mapstructure:"tls"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// RetryConfig bounds per-notifier delivery attempts.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// ServerConfig defines the status HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps keys to the plain variable names older deployments export.
var legacyEnv = map[string]string{
	"provider.account_id":   "API_ID",
	"provider.api_key":      "API_KEY",
	"alerts.email.username": "EMAIL_USER",
	"alerts.email.password": "EMAIL_PASSWORD",
	"alerts.email.host":     "EMAIL_HOST",
	"alerts.email.to":       "RECEIVE_EMAIL",
}

// envOnly lists keys without defaults. Viper's AutomaticEnv only resolves keys
// it already knows, so these are bound explicitly.
var envOnly = []string{
	"storage.path",
	"alerts.email.enabled",
	"alerts.email.from",
	"alerts.slack.enabled",
	"alerts.slack.webhook_url",
	"alerts.webhook.enabled",
	"alerts.webhook.url",
	"alerts.webhook.secret",
	"server.enabled",
}

func envName(key string) string {
	return "BWG_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("find home directory: %w", err)
	}
	dir := filepath.Join(home, ".bwg")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	v.SetDefault("provider.base_url", usage.DefaultBaseURL)
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("storage.backend", storage.BackendSQLite)
	v.SetDefault("thresholds.hourly", "1GiB")
	v.SetDefault("thresholds.daily", "10GiB")
	v.SetDefault("thresholds.weekly", "80GiB")
	v.SetDefault("schedule.hourly", "@every 1h")
	v.SetDefault("schedule.daily", "@every 24h0m30s")
	v.SetDefault("schedule.weekly", "@every 168h0m20s")
	v.SetDefault("schedule.report", "@every 168h0m50s")
	v.SetDefault("schedule.misfire_grace", "60s")
	v.SetDefault("schedule.max_workers", 20)
	v.SetDefault("schedule.coalesce", true)
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("schedule.shutdown_timeout", "30s")
	v.SetDefault("alerts.email.port", 465)
	v.SetDefault("alerts.email.tls", "ssl")
	v.SetDefault("alerts.slack.channel", "#bandwidth")
	v.SetDefault("alerts.retry.attempts", 3)
	v.SetDefault("alerts.retry.backoff", "3s")
	v.SetDefault("server.listen", ":9464")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("BWG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}
	for _, key := range envOnly {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", envName(key), err)
		}
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.dir = dir

	// Deployments configured only through EMAIL_* variables expect mail.
	if !v.IsSet("alerts.email.enabled") && cfg.Alerts.Email.Host != "" {
		cfg.Alerts.Email.Enabled = true
	}

	return &cfg, nil
}

// Dir is the per-user state directory (~/.bwg).
func (c *Config) Dir() string {
	return c.dir
}

// StoragePath returns the configured store location or the backend default.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return storage.DefaultPath(c.Storage.Backend, c.dir)
}

// ThresholdTable parses the per-window limits.
func (c *Config) ThresholdTable() (model.ThresholdTable, error) {
	raw := map[model.WindowType]string{
		model.WindowHourly: c.Thresholds.Hourly,
		model.WindowDaily:  c.Thresholds.Daily,
		model.WindowWeekly: c.Thresholds.Weekly,
	}

	table := make(model.ThresholdTable, len(raw))
	for window, s := range raw {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return nil, fmt.Errorf("parse %s threshold %q: %w", window, s, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%s threshold must be positive", window)
		}
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("%s threshold %q is out of range", window, s)
		}
		table[window] = int64(n)
	}
	return table, nil
}

// Validate reports every setting that would prevent monitoring from working.
func (c *Config) Validate() error {
	var errs []error

	if c.Provider.AccountID == "" {
		errs = append(errs, errors.New("provider.account_id is required (or API_ID)"))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, errors.New("provider.api_key is required (or API_KEY)"))
	}

	switch c.Storage.Backend {
	case storage.BackendSQLite, storage.BackendBolt, storage.BackendFile:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of sqlite, bolt, file", c.Storage.Backend))
	}

	if _, err := c.ThresholdTable(); err != nil {
		errs = append(errs, err)
	}

	if c.Schedule.MaxWorkers < 1 {
		errs = append(errs, errors.New("schedule.max_workers must be at least 1"))
	}
	if c.Schedule.MisfireGrace < 0 {
		errs = append(errs, errors.New("schedule.misfire_grace must not be negative"))
	}

	if e := c.Alerts.Email; e.Enabled {
		if e.Host == "" {
			errs = append(errs, errors.New("alerts.email.host is required when email is enabled"))
		}
		if e.To == "" {
			errs = append(errs, errors.New("alerts.email.to is required when email is enabled"))
		}
	}
	if c.Alerts.Slack.Enabled && c.Alerts.Slack.WebhookURL == "" {
		errs = append(errs, errors.New("alerts.slack.webhook_url is required when slack is enabled"))
	}
	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		errs = append(errs, errors.New("alerts.webhook.url is required when webhook is enabled"))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not json or text", c.Logging.Format))
	}

	return errors.Join(errs...)
}
