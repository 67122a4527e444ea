package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func onStart() scheduler.Policy {
	p := scheduler.DefaultPolicy()
	p.RunOnStart = true
	return p
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) observe(job, event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, job+":"+event)
}

func (l *eventLog) has(e string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.events {
		if got == e {
			return true
		}
	}
	return false
}

func jobInfo(s *scheduler.Scheduler, name string) scheduler.JobInfo {
	for _, j := range s.Jobs() {
		if j.Name == name {
			return j
		}
	}
	return scheduler.JobInfo{}
}

func stop(t *testing.T, s *scheduler.Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestDefaultPolicy(t *testing.T) {
	p := scheduler.DefaultPolicy()
	assert.Equal(t, 1, p.MaxInstances)
	assert.True(t, p.Coalesce)
	assert.Equal(t, 60*time.Second, p.MisfireGrace)
	assert.False(t, p.RunOnStart)
}

func TestAdd_Validation(t *testing.T) {
	s := scheduler.New(scheduler.Options{}, quietLogger())

	require.NoError(t, s.Add("check-hourly", "@every 1h", scheduler.DefaultPolicy(), nil))

	err := s.Add("check-hourly", "@every 1h", scheduler.DefaultPolicy(), nil)
	assert.ErrorIs(t, err, scheduler.ErrDuplicateJob)

	err = s.Add("bad", "every hour", scheduler.DefaultPolicy(), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestStart_RunOnStart(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(scheduler.Options{}, quietLogger())
	require.NoError(t, s.Add("usage-report", "@every 168h", onStart(), func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start(context.Background())
	defer stop(t, s)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	info := jobInfo(s, "usage-report")
	assert.Equal(t, "@every 168h", info.Spec)
	assert.True(t, info.Next.After(time.Now().Add(167*time.Hour)))
}

func TestTrigger_OverlapRunsOnce(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	events := &eventLog{}
	s := scheduler.New(scheduler.Options{Observer: events.observe}, quietLogger())
	require.NoError(t, s.Add("check-hourly", "@every 1h", onStart(), func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}))

	s.Start(context.Background())
	defer stop(t, s)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	err := s.Trigger("check-hourly")
	assert.ErrorIs(t, err, scheduler.ErrJobRunning)
	assert.True(t, events.has("check-hourly:skipped_running"))
	assert.Equal(t, 1, jobInfo(s, "check-hourly").Skipped)

	close(release)
	require.Eventually(t, func() bool { return jobInfo(s, "check-hourly").Running == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	require.NoError(t, s.Trigger("check-hourly"))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestTrigger_Errors(t *testing.T) {
	s := scheduler.New(scheduler.Options{}, quietLogger())
	require.NoError(t, s.Add("check-daily", "@every 24h", scheduler.DefaultPolicy(), func(context.Context) error { return nil }))

	err := s.Trigger("check-daily")
	assert.Error(t, err, "not started")

	s.Start(context.Background())
	defer stop(t, s)

	err = s.Trigger("nope")
	assert.ErrorIs(t, err, scheduler.ErrUnknownJob)
}

func TestScheduledRun(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(scheduler.Options{}, quietLogger())
	require.NoError(t, s.Add("tick", "@every 1s", scheduler.DefaultPolicy(), func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start(context.Background())
	defer stop(t, s)

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	assert.False(t, jobInfo(s, "tick").Prev.IsZero())
}

func TestJobFailureAndPanicAreRecorded(t *testing.T) {
	events := &eventLog{}
	s := scheduler.New(scheduler.Options{Observer: events.observe}, quietLogger())
	require.NoError(t, s.Add("fails", "@every 1h", onStart(), func(context.Context) error {
		return errors.New("provider unreachable")
	}))
	require.NoError(t, s.Add("panics", "@every 1h", onStart(), func(context.Context) error {
		panic("nil snapshot")
	}))

	s.Start(context.Background())
	defer stop(t, s)

	require.Eventually(t, func() bool {
		return events.has("fails:error") && events.has("panics:panic")
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "provider unreachable", jobInfo(s, "fails").LastError)
	assert.Equal(t, 1, jobInfo(s, "panics").Failures)
	assert.Contains(t, jobInfo(s, "panics").LastError, "nil snapshot")
}

func TestWorkerPoolBound(t *testing.T) {
	var current, peak atomic.Int32
	work := func(context.Context) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	s := scheduler.New(scheduler.Options{MaxWorkers: 1}, quietLogger())
	require.NoError(t, s.Add("a", "@every 1h", onStart(), work))
	require.NoError(t, s.Add("b", "@every 1h", onStart(), work))

	s.Start(context.Background())
	defer stop(t, s)

	require.Eventually(t, func() bool {
		return jobInfo(s, "a").Runs == 1 && jobInfo(s, "b").Runs == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), peak.Load())
}

func TestStop_WaitsForInFlight(t *testing.T) {
	var finished atomic.Bool
	var ctxErr atomic.Value
	started := make(chan struct{})

	s := scheduler.New(scheduler.Options{}, quietLogger())
	require.NoError(t, s.Add("slow", "@every 1h", onStart(), func(ctx context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		if ctx.Err() != nil {
			ctxErr.Store(ctx.Err())
		}
		finished.Store(true)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-started
	cancel()

	stop(t, s)
	assert.True(t, finished.Load())
	assert.Nil(t, ctxErr.Load())
}

func TestStart_CancelledContextRejectsTriggers(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(scheduler.Options{}, quietLogger())
	require.NoError(t, s.Add("check-hourly", "@every 1h", scheduler.DefaultPolicy(), func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return s.Trigger("check-hourly") != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorContains(t, s.Trigger("check-hourly"), "not running")

	stop(t, s)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestStop_Timeout(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := scheduler.New(scheduler.Options{}, quietLogger())
	require.NoError(t, s.Add("stuck", "@every 1h", onStart(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	s.Start(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)

	assert.NoError(t, s.Stop(context.Background()), "second stop is a no-op")
}
