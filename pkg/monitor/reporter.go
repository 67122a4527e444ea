package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/units"
)

// Reporter sends the periodic usage summary. It never reads or writes
// baselines.
type Reporter struct {
	source   SnapshotSource
	notifier Deliverer
	envelope alerts.Envelope
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewReporter creates a reporter. metrics may be nil.
func NewReporter(source SnapshotSource, notifier Deliverer, envelope alerts.Envelope, metrics *Metrics, logger *slog.Logger) *Reporter {
	return &Reporter{
		source:   source,
		notifier: notifier,
		envelope: envelope,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Report fetches the current usage and sends it unconditionally.
func (r *Reporter) Report(ctx context.Context) (*model.UsageSnapshot, error) {
	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("usage report: %w", err)
	}
	r.metrics.observeSnapshot(snap.UsedBytes, snap.PlanBytes)

	msg := r.envelope.Compose(alerts.KindUsageReport, "Transfer usage report", FormatReport(snap, r.now()))
	delivered := r.notifier.Deliver(ctx, msg)

	r.logger.Info("usage report",
		"used", snap.UsedDisplay,
		"used_bytes", snap.UsedBytes,
		"plan_bytes", snap.PlanBytes,
		"delivered", delivered,
	)
	return snap, nil
}

// FormatReport renders snap as the plain-text report body.
func FormatReport(snap *model.UsageSnapshot, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Used: %s\n", snap.UsedDisplay)
	fmt.Fprintf(&b, "Plan: %s (%.1f%% used)\n", units.Bytes(snap.PlanBytes), snap.UsedPct())
	fmt.Fprintf(&b, "Remaining: %s\n", units.Bytes(snap.RemainingBytes()))
	fmt.Fprintf(&b, "Raw counter: %s bytes\n", humanize.Comma(snap.UsedBytes))
	if snap.ResetAt > 0 {
		reset := snap.ResetTime()
		fmt.Fprintf(&b, "Counter resets %s (%s)\n", humanize.RelTime(reset, now, "ago", "from now"), reset.Format(time.RFC3339))
	}
	return b.String()
}
