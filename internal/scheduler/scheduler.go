// Package scheduler polls dataset coordinators and per-lake sensors at their
// own intervals. Dataset jobs are re-registered whenever a coordinator's
// interval changes (membership, backoff or Retry-After).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/dataset"
	"github.com/lox/laketemp/internal/logutil"
	"github.com/lox/laketemp/internal/sensor"
)

// DefaultRunTimeout bounds one run of a job.
const DefaultRunTimeout = time.Minute

type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	job      *gocron.Job
}

type Scheduler struct {
	cron       *gocron.Scheduler
	logger     zerolog.Logger
	runTimeout time.Duration

	initial sync.WaitGroup

	mu      sync.Mutex
	tasks   map[string]*task
	order   []string
	ctx     context.Context
	started bool
}

func New(logger zerolog.Logger) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	return &Scheduler{
		cron:       cron,
		logger:     logutil.Component(logger, "scheduler"),
		runTimeout: DefaultRunTimeout,
		tasks:      map[string]*task{},
		ctx:        context.Background(),
	}
}

// AddSensor polls a per-lake sensor every interval.
func (s *Scheduler) AddSensor(sn *sensor.Sensor, interval time.Duration) {
	name := "lake." + sn.EntityID()
	s.add(name, interval, func(ctx context.Context) {
		if err := sn.Update(ctx); err != nil {
			s.logger.Warn().Err(err).Str("entity_id", sn.EntityID()).Msg("lake update failed")
		}
	})
}

// AddDataset polls c and then refreshes the sensors that read from it. The
// job follows c's interval.
func (s *Scheduler) AddDataset(c *dataset.Coordinator, sensors []*sensor.Sensor) {
	name := "dataset." + c.ID()
	s.add(name, c.Interval(), func(ctx context.Context) {
		res := c.Refresh(ctx)
		s.logger.Debug().
			Str("dataset", c.ID()).
			Str("result", res.Outcome.String()).
			Int("lakes", len(res.Readings)).
			Dur("next", c.Interval()).
			Msg("dataset refreshed")
		for _, sn := range sensors {
			// Missing lakes are already logged by the coordinator.
			_ = sn.Update(ctx)
		}
	})
	c.OnIntervalChange(func(d time.Duration) {
		s.reschedule(name, d)
	})
}

func (s *Scheduler) add(name string, interval time.Duration, run func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		s.order = append(s.order, name)
	}
	t := &task{name: name, interval: interval, run: run}
	s.tasks[name] = t
	if s.started {
		s.scheduleLocked(t)
	}
}

// Interval returns the interval a job is currently scheduled at.
func (s *Scheduler) Interval(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return 0, false
	}
	return t.interval, true
}

// RunOnce runs every job once, concurrently, and waits for them.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.order))
	for _, name := range s.order {
		tasks = append(tasks, s.tasks[name])
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t *task) {
			defer wg.Done()
			s.invoke(ctx, t)
		}(t)
	}
	wg.Wait()
}

// Start runs every job once and then schedules them. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.started = true
	for _, name := range s.order {
		s.scheduleLocked(s.tasks[name])
	}
	s.mu.Unlock()

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.RunOnce(ctx)
	}()
	s.cron.StartAsync()
	s.logger.Info().Int("jobs", len(s.order)).Msg("scheduler started")
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
}

// Stop halts scheduling and waits for the initial run started by Start.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.initial.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) reschedule(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok || t.interval == d {
		return
	}
	t.interval = d
	if !s.started {
		return
	}
	s.scheduleLocked(t)
	s.logger.Info().Str("job", name).Dur("interval", d).Msg("rescheduled")
}

func (s *Scheduler) scheduleLocked(t *task) {
	if t.job != nil {
		s.cron.RemoveByReference(t.job)
		t.job = nil
	}
	interval := t.interval
	if interval < time.Second {
		interval = time.Second
	}
	job, err := s.cron.Every(interval).WaitForSchedule().Do(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.invoke(ctx, t)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("job", t.name).Msg("failed to schedule job")
		return
	}
	t.job = job
}

func (s *Scheduler) invoke(ctx context.Context, t *task) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()
	op := logutil.StartOp(s.logger, "run_job", map[string]any{"job": t.name})
	t.run(ctx)
	_ = op.Done(nil)
}
