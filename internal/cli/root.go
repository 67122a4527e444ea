package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/bandwidth-guardian/internal/config"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/storage"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/usage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bwg",
	Short: "Bandwidth Guardian - transfer usage monitoring and alerting",
	Long: `Bandwidth Guardian polls a hosting provider for the account's cumulative
data transfer, tracks how much was used in the last hour, day and week, and
sends an alert when a window exceeds its threshold. A weekly usage report is
sent regardless of thresholds.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.bwg/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// loadValidConfig loads the configuration and rejects incomplete settings.
func loadValidConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStorage opens the configured baseline store.
func initStorage(cfg *config.Config) (*storage.Baselines, error) {
	path := cfg.StoragePath()
	kv, err := storage.Open(cfg.Storage.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", cfg.Storage.Backend, path, err)
	}
	return storage.NewBaselines(kv), nil
}

// initAccount creates the provider client for the configured account.
func initAccount(cfg *config.Config) (*usage.Account, error) {
	if cfg.Provider.AccountID == "" || cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("provider.account_id and provider.api_key are required (or API_ID and API_KEY)")
	}
	client := usage.NewClient(cfg.Provider.BaseURL, cfg.Provider.Timeout)
	return usage.NewAccount(client, cfg.Provider.AccountID, cfg.Provider.APIKey), nil
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if e := cfg.Alerts.Email; e.Enabled && e.Host != "" {
		notifiers = append(notifiers, alerts.NewEmailNotifier(alerts.EmailConfig{
			Host:     e.Host,
			Port:     e.Port,
			Username: e.Username,
			Password: e.Password,
			TLS:      e.TLS,
		}))
	}

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// initDispatcher wraps the configured notifiers in the retry policy.
func initDispatcher(cfg *config.Config, logger *slog.Logger) *alerts.Dispatcher {
	policy := alerts.RetryPolicy{
		Attempts: cfg.Alerts.Retry.Attempts,
		Backoff:  cfg.Alerts.Retry.Backoff,
	}
	return alerts.NewDispatcher(initNotifiers(cfg), policy, logger)
}

// envelope addresses outgoing messages. The SMTP username doubles as the
// sender when no explicit from address is set.
func envelope(cfg *config.Config) alerts.Envelope {
	from := cfg.Alerts.Email.From
	if from == "" {
		from = cfg.Alerts.Email.Username
	}
	return alerts.Envelope{From: from, To: cfg.Alerts.Email.To}
}

// monitorDeps bundles the wired monitoring components.
type monitorDeps struct {
	baselines *storage.Baselines
	evaluator *monitor.Evaluator
	reporter  *monitor.Reporter
	account   *usage.Account
}

// initMonitor creates a fully wired evaluator and reporter. metrics may be nil.
func initMonitor(cfg *config.Config, logger *slog.Logger, metrics *monitor.Metrics) (*monitorDeps, error) {
	thresholds, err := cfg.ThresholdTable()
	if err != nil {
		return nil, err
	}

	account, err := initAccount(cfg)
	if err != nil {
		return nil, err
	}

	baselines, err := initStorage(cfg)
	if err != nil {
		return nil, err
	}

	dispatcher := initDispatcher(cfg, logger)
	env := envelope(cfg)

	return &monitorDeps{
		baselines: baselines,
		evaluator: monitor.NewEvaluator(account, baselines, dispatcher, thresholds, env, metrics, logger),
		reporter:  monitor.NewReporter(account, dispatcher, env, metrics, logger),
		account:   account,
	}, nil
}
