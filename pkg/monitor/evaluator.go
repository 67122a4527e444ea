package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/storage"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/units"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/usage"
)

// SnapshotSource yields the current usage counters.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*model.UsageSnapshot, error)
}

// BaselineStore persists one baseline per window.
type BaselineStore interface {
	GetBaseline(ctx context.Context, window model.WindowType) (int64, bool, error)
	SetBaseline(ctx context.Context, window model.WindowType, value int64) error
}

// Deliverer sends a message on a best-effort basis.
type Deliverer interface {
	Deliver(ctx context.Context, msg alerts.Message) bool
}

// Result describes one window evaluation.
type Result struct {
	Window      model.WindowType     `json:"window" yaml:"window"`
	Snapshot    *model.UsageSnapshot `json:"snapshot" yaml:"snapshot"`
	Baseline    int64                `json:"baseline" yaml:"baseline"`
	HasBaseline bool                 `json:"has_baseline" yaml:"has_baseline"`
	Delta       int64                `json:"delta" yaml:"delta"`
	Threshold   int64                `json:"threshold" yaml:"threshold"`
	Alerted     bool                 `json:"alerted" yaml:"alerted"`
	Delivered   bool                 `json:"delivered" yaml:"delivered"`
}

// Evaluator compares cumulative usage against per-window baselines and alerts
// when a window's delta exceeds its threshold.
type Evaluator struct {
	source     SnapshotSource
	store      BaselineStore
	notifier   Deliverer
	thresholds model.ThresholdTable
	envelope   alerts.Envelope
	metrics    *Metrics
	logger     *slog.Logger
}

// NewEvaluator creates an evaluator. metrics may be nil.
func NewEvaluator(source SnapshotSource, store BaselineStore, notifier Deliverer, thresholds model.ThresholdTable,
	envelope alerts.Envelope, metrics *Metrics, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		source:     source,
		store:      store,
		notifier:   notifier,
		thresholds: thresholds,
		envelope:   envelope,
		metrics:    metrics,
		logger:     logger,
	}
}

// Evaluate runs one cycle for window: fetch, compare, alert if needed, and
// record the new baseline. A fetch failure leaves the baseline untouched.
// Notification failures never prevent the baseline write.
func (e *Evaluator) Evaluate(ctx context.Context, window model.WindowType) (*Result, error) {
	res, err := e.compare(ctx, window)
	if err != nil {
		e.metrics.observeEvaluation(string(window), errorKind(err))
		return nil, err
	}

	e.metrics.observeSnapshot(res.Snapshot.UsedBytes, res.Snapshot.PlanBytes)
	if !res.HasBaseline {
		e.logger.Info("no baseline yet, recording current usage", "window", window, "used", res.Snapshot.UsedBytes)
	} else {
		e.metrics.observeDelta(string(window), res.Delta)
	}

	if res.Alerted {
		e.logger.Warn("window threshold exceeded",
			"window", window,
			"delta", res.Delta,
			"threshold", res.Threshold,
		)
		msg := e.alertMessage(res)
		res.Delivered = e.notifier.Deliver(ctx, msg)
		e.metrics.observeAlert(string(window), res.Delivered)
	}

	if err := e.store.SetBaseline(ctx, window, res.Snapshot.UsedBytes); err != nil {
		e.metrics.observeEvaluation(string(window), "store_error")
		return res, fmt.Errorf("update %s baseline: %w", window, err)
	}

	e.metrics.observeEvaluation(string(window), "ok")
	e.logger.Info("window evaluated",
		"window", window,
		"used", res.Snapshot.UsedBytes,
		"baseline", res.Baseline,
		"has_baseline", res.HasBaseline,
		"delta", res.Delta,
		"threshold", res.Threshold,
		"alerted", res.Alerted,
	)
	return res, nil
}

// Preview computes what Evaluate would decide without notifying or writing.
func (e *Evaluator) Preview(ctx context.Context, window model.WindowType) (*Result, error) {
	return e.compare(ctx, window)
}

func (e *Evaluator) compare(ctx context.Context, window model.WindowType) (*Result, error) {
	threshold, ok := e.thresholds[window]
	if !ok {
		return nil, fmt.Errorf("no threshold configured for window %q", window)
	}

	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", window, err)
	}

	baseline, hasBaseline, err := e.store.GetBaseline(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", window, err)
	}

	res := &Result{
		Window:      window,
		Snapshot:    snap,
		Baseline:    baseline,
		HasBaseline: hasBaseline,
		Threshold:   threshold,
	}
	if !hasBaseline {
		return res, nil
	}

	// A provider counter reset makes the delta negative; that never alerts.
	res.Delta = snap.UsedBytes - baseline
	res.Alerted = res.Delta > threshold
	return res, nil
}

func (e *Evaluator) alertMessage(res *Result) alerts.Message {
	subject := fmt.Sprintf("Transfer usage warning: %s limit exceeded", res.Window)
	body := fmt.Sprintf(
		"Used %s in the past %s (limit %s).\n\nTotal this cycle: %s of %s (%.1f%%).",
		units.Bytes(res.Delta), res.Window.Label(), units.Bytes(res.Threshold),
		res.Snapshot.UsedDisplay, units.Bytes(res.Snapshot.PlanBytes), res.Snapshot.UsedPct(),
	)

	msg := e.envelope.Compose(alerts.KindUsageAlert, subject, body)
	msg.Window = string(res.Window)
	return msg
}

func errorKind(err error) string {
	var fetchErr *usage.FetchError
	var storeErr *storage.StoreError
	switch {
	case errors.As(err, &fetchErr):
		return "fetch_error"
	case errors.As(err, &storeErr):
		return "store_error"
	default:
		return "error"
	}
}
