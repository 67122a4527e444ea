package model

import (
	"fmt"
	"strings"
	"time"
)

// UsageSnapshot is a single reading of the provider's transfer counters.
type UsageSnapshot struct {
	PlanBytes   int64     `json:"plan_bytes" yaml:"plan_bytes"`
	UsedBytes   int64     `json:"used_bytes" yaml:"used_bytes"`
	ResetAt     int64     `json:"reset_at" yaml:"reset_at"`
	UsedDisplay string    `json:"used_display" yaml:"used_display"`
	FetchedAt   time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// RemainingBytes returns the unused part of the plan, never negative.
func (s *UsageSnapshot) RemainingBytes() int64 {
	return max(s.PlanBytes-s.UsedBytes, 0)
}

// UsedPct returns consumption as a percentage of the plan.
func (s *UsageSnapshot) UsedPct() float64 {
	if s.PlanBytes <= 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.PlanBytes) * 100
}

// ResetTime returns the next counter reset as a time.
func (s *UsageSnapshot) ResetTime() time.Time {
	return time.Unix(s.ResetAt, 0).UTC()
}

// WindowType defines the period a usage delta is measured over.
type WindowType string

const (
	WindowHourly WindowType = "hourly"
	WindowDaily  WindowType = "daily"
	WindowWeekly WindowType = "weekly"
)

// Windows lists every window type in evaluation order.
var Windows = []WindowType{WindowHourly, WindowDaily, WindowWeekly}

// ParseWindowType converts a name such as "hourly" or "Day" into a WindowType.
func ParseWindowType(s string) (WindowType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hourly", "hour", "h":
		return WindowHourly, nil
	case "daily", "day", "d":
		return WindowDaily, nil
	case "weekly", "week", "w":
		return WindowWeekly, nil
	default:
		return "", fmt.Errorf("unknown window %q (want hourly, daily or weekly)", s)
	}
}

// Interval is the recurrence of the window's check.
func (w WindowType) Interval() time.Duration {
	switch w {
	case WindowHourly:
		return time.Hour
	case WindowDaily:
		return 24 * time.Hour
	case WindowWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Label is the human name of the window length, used in messages.
func (w WindowType) Label() string {
	switch w {
	case WindowHourly:
		return "hour"
	case WindowDaily:
		return "day"
	case WindowWeekly:
		return "week"
	default:
		return string(w)
	}
}

// BaselineKey is the storage key holding the window's baseline.
func (w WindowType) BaselineKey() string {
	return "baseline:" + string(w)
}

// ThresholdTable maps each window to the maximum byte delta allowed within it.
type ThresholdTable map[WindowType]int64

// DefaultThresholds returns 1 GiB per hour, 10 GiB per day and 80 GiB per week.
func DefaultThresholds() ThresholdTable {
	return ThresholdTable{
		WindowHourly: 1 << 30,
		WindowDaily:  10 << 30,
		WindowWeekly: 80 << 30,
	}
}

// Baseline is the stored cumulative usage for one window.
type Baseline struct {
	Window WindowType `json:"window" yaml:"window"`
	Value  int64      `json:"value" yaml:"value"`
	Set    bool       `json:"set" yaml:"set"`
}
