package monitor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_SendsUnconditionally(t *testing.T) {
	src := &fakeSource{used: 5 << 30, plan: 1 << 40}
	n := &recorder{succeed: true}
	r := monitor.NewReporter(src, n, envelope, nil, quietLogger())

	for i := 0; i < 2; i++ {
		snap, err := r.Report(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(5<<30), snap.UsedBytes)
	}

	require.Len(t, n.sent, 2)
	assert.Equal(t, alerts.KindUsageReport, n.sent[0].Kind)
	assert.Contains(t, n.sent[0].Body, "Used: 5.000 GB")
	assert.Equal(t, "ops@example.com", n.sent[0].Recipient)
}

func TestReporter_FetchFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	n := &recorder{succeed: true}

	_, err := monitor.NewReporter(src, n, envelope, nil, quietLogger()).Report(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage report")
	assert.Empty(t, n.sent)
}

func TestReporter_DeliveryFailureIsNotAnError(t *testing.T) {
	src := &fakeSource{used: 1 << 20}
	_, err := monitor.NewReporter(src, &recorder{succeed: false}, envelope, nil, quietLogger()).Report(context.Background())
	assert.NoError(t, err)
}

func TestFormatReport(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	snap := &model.UsageSnapshot{
		PlanBytes:   1 << 40,
		UsedBytes:   5 << 30,
		UsedDisplay: "5.000 GB",
		ResetAt:     now.Add(72 * time.Hour).Unix(),
	}

	body := monitor.FormatReport(snap, now)
	assert.Contains(t, body, "Used: 5.000 GB")
	assert.Contains(t, body, "Plan: 1.000 TB (0.5% used)")
	assert.Contains(t, body, "Remaining: 1019.000 GB")
	assert.Contains(t, body, "Raw counter: 5,368,709,120 bytes")
	assert.Contains(t, body, "3 days from now")
}

func TestFormatReport_NoResetDate(t *testing.T) {
	body := monitor.FormatReport(&model.UsageSnapshot{UsedDisplay: "0 B"}, time.Now())
	assert.NotContains(t, body, "resets")
}
