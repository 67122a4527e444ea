package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/bandwidth-guardian/internal/config"
	"github.com/ogulcanaydogan/bandwidth-guardian/internal/server"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/scheduler"
)

const reportJob = "usage-report"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring scheduler",
	Long: `Run the hourly, daily and weekly threshold checks and the weekly usage
report on their schedules until interrupted. With server.enabled or --listen,
a status server exposes /healthz, /api/v1 and /metrics.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("listen", "", "Status server address (overrides server.listen and enables the server)")
}

func checkJob(w model.WindowType) string {
	return "check-" + string(w)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Enabled = true
		cfg.Server.Listen = listen
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitor.NewMetrics(registry)

	deps, err := initMonitor(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer deps.baselines.Close()

	sched, err := buildScheduler(cfg, deps, metrics, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	errCh := make(chan error, 1)
	var srv *http.Server
	if cfg.Server.Enabled {
		api := server.NewServer(deps.baselines, sched, registry, logger)
		srv = &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("status server started", "listen", cfg.Server.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	logger.Info("guardian running",
		"account", cfg.Provider.AccountID,
		"storage", cfg.Storage.Backend,
		"jobs", len(sched.Jobs()),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		runErr = fmt.Errorf("status server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Schedule.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown", "error", err)
		}
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown", "error", err)
	}
	return runErr
}

// buildScheduler registers the three window checks and the usage report.
func buildScheduler(cfg *config.Config, deps *monitorDeps, metrics *monitor.Metrics, logger *slog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.Options{
		MaxWorkers: cfg.Schedule.MaxWorkers,
		Observer:   metrics.ObserveJob,
	}, logger)

	policy := scheduler.Policy{
		MaxInstances: 1,
		Coalesce:     cfg.Schedule.Coalesce,
		MisfireGrace: cfg.Schedule.MisfireGrace,
		RunOnStart:   cfg.Schedule.RunOnStart,
	}

	specs := map[model.WindowType]string{
		model.WindowHourly: cfg.Schedule.Hourly,
		model.WindowDaily:  cfg.Schedule.Daily,
		model.WindowWeekly: cfg.Schedule.Weekly,
	}
	for _, w := range model.Windows {
		err := sched.Add(checkJob(w), specs[w], policy, func(ctx context.Context) error {
			_, err := deps.evaluator.Evaluate(ctx, w)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	err := sched.Add(reportJob, cfg.Schedule.Report, policy, func(ctx context.Context) error {
		_, err := deps.reporter.Report(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}
