package model_test

import (
	"testing"
	"time"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindowType(t *testing.T) {
	tests := []struct {
		in   string
		want model.WindowType
	}{
		{"hourly", model.WindowHourly},
		{"Hour", model.WindowHourly},
		{"daily", model.WindowDaily},
		{" day ", model.WindowDaily},
		{"WEEKLY", model.WindowWeekly},
		{"w", model.WindowWeekly},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := model.ParseWindowType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := model.ParseWindowType("monthly")
	assert.Error(t, err)
}

func TestWindowType_Interval(t *testing.T) {
	assert.Equal(t, time.Hour, model.WindowHourly.Interval())
	assert.Equal(t, 24*time.Hour, model.WindowDaily.Interval())
	assert.Equal(t, 7*24*time.Hour, model.WindowWeekly.Interval())
	assert.Zero(t, model.WindowType("yearly").Interval())
}

func TestWindowType_BaselineKeysDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, w := range model.Windows {
		key := w.BaselineKey()
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
	assert.Equal(t, "baseline:hourly", model.WindowHourly.BaselineKey())
}

func TestDefaultThresholds(t *testing.T) {
	th := model.DefaultThresholds()
	assert.Equal(t, int64(1<<30), th[model.WindowHourly])
	assert.Equal(t, int64(10<<30), th[model.WindowDaily])
	assert.Equal(t, int64(80<<30), th[model.WindowWeekly])
}

func TestUsageSnapshot_Derived(t *testing.T) {
	s := &model.UsageSnapshot{PlanBytes: 1000, UsedBytes: 250, ResetAt: 1700000000}
	assert.Equal(t, int64(750), s.RemainingBytes())
	assert.InDelta(t, 25.0, s.UsedPct(), 0.001)
	assert.Equal(t, int64(1700000000), s.ResetTime().Unix())

	over := &model.UsageSnapshot{PlanBytes: 100, UsedBytes: 150}
	assert.Zero(t, over.RemainingBytes())

	empty := &model.UsageSnapshot{}
	assert.Zero(t, empty.UsedPct())
}
