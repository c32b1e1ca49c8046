// Package scheduler owns timing and concurrency of the background jobs.
// Each job is mutually exclusive with itself but free to overlap with
// the others; cancellation on Stop is cooperative, letting in-flight
// work finish its current row.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	errwrap "github.com/pkg/errors"
	"go.uber.org/zap"
)

// JobFunc is one background job cycle. It reports how many items it
// processed; errors are recorded, never fatal.
type JobFunc func(ctx context.Context) (processed int, err error)

// JobStatus is one job's snapshot for the status surface.
type JobStatus struct {
	Name                string    `json:"name"`
	LastRun             time.Time `json:"last_run"`
	NextRun             time.Time `json:"next_run"`
	LastError           string    `json:"last_error,omitempty"`
	ItemsProcessedTotal int64     `json:"items_processed_total"`
	Runs                int64     `json:"runs"`
}

// Status is the full scheduler snapshot.
type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

type jobState struct {
	lastRun        time.Time
	lastError      string
	itemsProcessed int64
	runs           int64
}

// Scheduler wraps a gocron scheduler with per-job bookkeeping. It is an
// explicit instance owned by the composition root and passed by
// reference; there is no package-level singleton.
type Scheduler struct {
	gs     gocron.Scheduler
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	jobs    map[string]gocron.Job
	order   []string
	states  map[string]*jobState
	running bool
}

func New(logger *zap.Logger) (*Scheduler, error) {
	funcName := "scheduler.New"

	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gs:     gs,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]gocron.Job),
		states: make(map[string]*jobState),
	}, nil
}

// Register adds a named job. Singleton mode with reschedule keeps a job
// from overlapping itself while other jobs run freely; every job also
// fires once immediately at Start for fast feedback.
func (s *Scheduler) Register(name string, interval time.Duration, fn JobFunc) error {
	funcName := "Scheduler.Register"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return errwrap.Errorf("%s: job %q already registered", funcName, name)
	}

	job, err := s.gs.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.runJob(name, fn) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return errwrap.Wrap(err, funcName)
	}

	s.jobs[name] = job
	s.order = append(s.order, name)
	s.states[name] = &jobState{}
	return nil
}

func (s *Scheduler) runJob(name string, fn JobFunc) {
	start := time.Now()
	processed, err := fn(s.ctx)

	s.mu.Lock()
	state := s.states[name]
	state.lastRun = start
	state.runs++
	state.itemsProcessed += int64(processed)
	if err != nil {
		state.lastError = err.Error()
	} else {
		state.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("job cycle failed",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Info("job cycle complete",
		zap.String("job", name),
		zap.Int("processed", processed),
		zap.Duration("elapsed", time.Since(start)))
}

// Start begins the schedule; every registered job runs once right away.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.gs.Start()
	s.running = true
}

// Stop shuts the schedule down gracefully: in-flight jobs finish their
// current work before the timers halt, then the shared context is
// cancelled for anything still polling it.
func (s *Scheduler) Stop() error {
	funcName := "Scheduler.Stop"

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if err := s.gs.Shutdown(); err != nil {
		s.cancel()
		return errwrap.Wrap(err, funcName)
	}
	s.cancel()
	return nil
}

// TriggerNow runs a named job once outside its schedule. Per-job mutual
// exclusion still applies: a trigger while the job runs is rescheduled,
// not stacked.
func (s *Scheduler) TriggerNow(name string) error {
	funcName := "Scheduler.TriggerNow"

	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return errwrap.Errorf("%s: unknown job %q", funcName, name)
	}
	if err := job.RunNow(); err != nil {
		return errwrap.Wrap(err, funcName)
	}
	return nil
}

// JobNames lists registered jobs in registration order.
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Status reports the scheduler state and per-job snapshots.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{Running: s.running}
	for _, name := range s.order {
		state := s.states[name]
		js := JobStatus{
			Name:                name,
			LastRun:             state.lastRun,
			LastError:           state.lastError,
			ItemsProcessedTotal: state.itemsProcessed,
			Runs:                state.runs,
		}
		if next, err := s.jobs[name].NextRun(); err == nil {
			js.NextRun = next
		}
		status.Jobs = append(status.Jobs, js)
	}
	return status
}
