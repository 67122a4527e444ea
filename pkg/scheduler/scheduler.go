package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job events reported to an Observer.
const (
	EventRun            = "run"
	EventError          = "error"
	EventPanic          = "panic"
	EventSkippedRunning = "skipped_running"
	EventSkippedMisfire = "skipped_misfire"
)

// maxCatchUp bounds how many missed ticks a non-coalescing job replays.
const maxCatchUp = 1000

// maxWait caps how long the loop sleeps between wall clock checks. Timers run
// on the monotonic clock, which stops while the host is suspended.
const maxWait = time.Minute

var (
	// ErrUnknownJob is returned when a job name is not registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned by Trigger when the job is at its instance limit.
	ErrJobRunning = errors.New("job already running")
	// ErrDuplicateJob is returned by Add for a name that is already taken.
	ErrDuplicateJob = errors.New("job already registered")
)

// JobFunc is the work performed by a job.
type JobFunc func(ctx context.Context) error

// Observer receives one callback per job event. It may be called with the
// scheduler's lock held and must not call back into the Scheduler.
type Observer func(job, event string)

// Policy controls how a job's firings are dispatched.
type Policy struct {
	// MaxInstances is the number of concurrent runs allowed. A firing that
	// finds the job at its limit is dropped.
	MaxInstances int
	// Coalesce collapses several missed ticks into a single run.
	Coalesce bool
	// MisfireGrace is how late a run may start before it is skipped.
	MisfireGrace time.Duration
	// RunOnStart fires the job once as soon as the scheduler starts.
	RunOnStart bool
}

// DefaultPolicy allows one instance, coalesces and tolerates 60s of lateness.
func DefaultPolicy() Policy {
	return Policy{
		MaxInstances: 1,
		Coalesce:     true,
		MisfireGrace: 60 * time.Second,
	}
}

// Options configures a Scheduler.
type Options struct {
	// MaxWorkers bounds concurrent job executions across all jobs.
	MaxWorkers int
	Observer   Observer
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// JobInfo is a point-in-time view of a registered job.
type JobInfo struct {
	Name      string    `json:"name" yaml:"name"`
	Spec      string    `json:"spec" yaml:"spec"`
	Next      time.Time `json:"next" yaml:"next"`
	Prev      time.Time `json:"prev,omitempty" yaml:"prev,omitempty"`
	Running   int       `json:"running" yaml:"running"`
	Runs      int       `json:"runs" yaml:"runs"`
	Skipped   int       `json:"skipped" yaml:"skipped"`
	Failures  int       `json:"failures" yaml:"failures"`
	LastError string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

type job struct {
	name     string
	spec     string
	schedule cron.Schedule
	policy   Policy
	run      JobFunc

	next     time.Time
	prev     time.Time
	active   int
	runs     int
	skipped  int
	failures int
	lastErr  error
}

type firing struct {
	job       *job
	scheduled time.Time
}

// Scheduler runs named jobs on cron schedules over a bounded worker pool.
type Scheduler struct {
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	slots    chan struct{}

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	jobCtx  context.Context
	loop    chan struct{}
	wake    chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(opts Options, logger *slog.Logger) *Scheduler {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 20
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	// Run times are compared on the wall clock.
	return &Scheduler{
		logger:   logger.With("component", "scheduler"),
		observer: opts.Observer,
		now:      func() time.Time { return clock().Round(0) },
		slots:    make(chan struct{}, opts.MaxWorkers),
		jobs:     make(map[string]*job),
		wake:     make(chan struct{}, 1),
	}
}

// Add registers a job. spec is any expression accepted by cron.ParseStandard,
// including descriptors such as "@every 1h" and "@daily".
func (s *Scheduler) Add(name, spec string, policy Policy, fn JobFunc) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	if policy.MaxInstances < 1 {
		policy.MaxInstances = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("add %s: %w", name, ErrDuplicateJob)
	}
	j := &job{name: name, spec: spec, schedule: schedule, policy: policy, run: fn}
	if s.running {
		j.next = schedule.Next(s.now())
		s.poke()
	}
	s.jobs[name] = j
	s.order = append(s.order, name)
	return nil
}

// Start begins dispatching. Cancelling ctx stops the dispatch loop and
// further triggers; Stop must still be called to wait for in-flight runs.
// Jobs see ctx's values but not its cancellation, so a started run is never
// aborted.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.jobCtx = context.WithoutCancel(ctx)
	s.loop = make(chan struct{})
	s.running = true

	now := s.now()
	for _, name := range s.order {
		j := s.jobs[name]
		j.next = j.schedule.Next(now)
		if j.policy.RunOnStart {
			s.dispatchLocked(j, now, now)
		}
	}

	go s.run(s.ctx, s.loop)

	s.logger.Info("scheduler started", "jobs", len(s.jobs), "workers", cap(s.slots))
}

// Stop halts dispatching and waits for in-flight runs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	loop := s.loop
	if loop == nil {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.loop = nil
	s.cancel()
	s.mu.Unlock()

	<-loop

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stopped with jobs still running", "error", ctx.Err())
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// Trigger runs a job immediately, subject to its instance limit.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("trigger %s: %w", name, ErrUnknownJob)
	}
	if !s.running {
		return fmt.Errorf("trigger %s: scheduler not running", name)
	}
	now := s.now()
	if !s.dispatchLocked(j, now, now) {
		return fmt.Errorf("trigger %s: %w", name, ErrJobRunning)
	}
	return nil
}

// Jobs returns the registered jobs in registration order.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.order))
	for _, name := range s.order {
		j := s.jobs[name]
		info := JobInfo{
			Name:     j.name,
			Spec:     j.spec,
			Next:     j.next,
			Prev:     j.prev,
			Running:  j.active,
			Runs:     j.runs,
			Skipped:  j.skipped,
			Failures: j.failures,
		}
		if j.lastErr != nil {
			info.LastError = j.lastErr.Error()
		}
		out = append(out, info)
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, loop chan struct{}) {
	defer close(loop)

	for {
		s.mu.Lock()
		if ctx.Err() != nil {
			s.exitLocked(loop)
			s.mu.Unlock()
			return
		}
		now := s.now()
		for _, f := range s.collectDue(now) {
			s.dispatchLocked(f.job, f.scheduled, now)
		}
		wait := s.untilNext(now)
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.mu.Lock()
			s.exitLocked(loop)
			s.mu.Unlock()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// exitLocked marks the scheduler stopped if loop is still the current one.
func (s *Scheduler) exitLocked(loop chan struct{}) {
	if s.loop == loop {
		s.running = false
	}
}

// collectDue advances every job past now and returns the firings to
// dispatch, oldest first. Callers hold s.mu.
func (s *Scheduler) collectDue(now time.Time) []firing {
	var due []firing
	for _, name := range s.order {
		j := s.jobs[name]
		if j.next.IsZero() || j.next.After(now) {
			continue
		}

		if j.policy.Coalesce {
			// Run once for the most recent missed tick.
			last := j.next
			n := j.schedule.Next(last)
			for i := 0; i < maxCatchUp && !n.After(now); i++ {
				last, n = n, j.schedule.Next(n)
			}
			if !n.After(now) {
				last = now
			}
			due = append(due, firing{job: j, scheduled: last})
			j.next = j.schedule.Next(now)
			continue
		}

		for i := 0; i < maxCatchUp && !j.next.After(now); i++ {
			due = append(due, firing{job: j, scheduled: j.next})
			j.next = j.schedule.Next(j.next)
		}
		if !j.next.After(now) {
			j.next = j.schedule.Next(now)
		}
	}
	sort.SliceStable(due, func(a, b int) bool { return due[a].scheduled.Before(due[b].scheduled) })
	return due
}

func (s *Scheduler) untilNext(now time.Time) time.Duration {
	var earliest time.Time
	for _, j := range s.jobs {
		if j.next.IsZero() {
			continue
		}
		if earliest.IsZero() || j.next.Before(earliest) {
			earliest = j.next
		}
	}
	if earliest.IsZero() {
		return maxWait
	}
	return min(max(earliest.Sub(now), 0), maxWait)
}

// dispatchLocked starts one run of j unless the misfire or instance policy
// forbids it. It reports whether the run was started. Callers hold s.mu.
func (s *Scheduler) dispatchLocked(j *job, scheduled, now time.Time) bool {
	if late := now.Sub(scheduled); late > j.policy.MisfireGrace {
		j.skipped++
		s.logger.Warn("run time missed, skipping",
			"job", j.name,
			"scheduled", scheduled,
			"late", late.String(),
		)
		s.emit(j.name, EventSkippedMisfire)
		return false
	}
	if j.active >= j.policy.MaxInstances {
		j.skipped++
		s.logger.Warn("maximum running instances reached, skipping",
			"job", j.name,
			"max_instances", j.policy.MaxInstances,
		)
		s.emit(j.name, EventSkippedRunning)
		return false
	}

	j.active++
	s.wg.Add(1)
	go s.execute(s.ctx, s.jobCtx, j, scheduled)
	return true
}

func (s *Scheduler) execute(loopCtx, jobCtx context.Context, j *job, scheduled time.Time) {
	defer s.wg.Done()

	select {
	case s.slots <- struct{}{}:
	case <-loopCtx.Done():
		// Stopped before a worker freed up; the run never started.
		s.mu.Lock()
		j.active--
		s.mu.Unlock()
		return
	}
	defer func() { <-s.slots }()

	// Waiting for a worker counts against the grace period.
	if late := s.now().Sub(scheduled); late > j.policy.MisfireGrace {
		s.mu.Lock()
		j.active--
		j.skipped++
		s.mu.Unlock()
		s.logger.Warn("run time missed waiting for a worker, skipping", "job", j.name, "late", late.String())
		s.emit(j.name, EventSkippedMisfire)
		return
	}

	s.logger.Debug("running job", "job", j.name, "scheduled", scheduled)
	started := s.now()
	panicked, err := s.safeRun(jobCtx, j)
	s.finish(j, started, panicked, err)
}

func (s *Scheduler) safeRun(ctx context.Context, j *job) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("job panicked: %v", r)
			s.logger.Error("job panicked", "job", j.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return false, j.run(ctx)
}

func (s *Scheduler) finish(j *job, started time.Time, panicked bool, err error) {
	s.mu.Lock()
	j.active--
	j.prev = started
	j.runs++
	j.lastErr = err
	if err != nil {
		j.failures++
	}
	s.mu.Unlock()

	switch {
	case panicked:
		s.emit(j.name, EventPanic)
	case err != nil:
		s.logger.Error("job failed", "job", j.name, "error", err)
		s.emit(j.name, EventError)
	default:
		s.logger.Debug("job completed", "job", j.name, "duration", s.now().Sub(started).String())
		s.emit(j.name, EventRun)
	}
}

func (s *Scheduler) emit(name, event string) {
	if s.observer != nil {
		s.observer(name, event)
	}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
