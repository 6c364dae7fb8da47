// Package scheduler dispatches periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wasteline/backend/internal/infrastructure/logger"
)

// Job is a unit of periodic work
type Job interface {
	Name() string
	Execute(ctx context.Context) error
}

// Config holds scheduler configuration
type Config struct {
	// JobTimeout bounds a single execution; 0 means no limit
	JobTimeout time.Duration
	Location   *time.Location
}

// JobInfo describes a registered job
type JobInfo struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Running bool      `json:"running"`
	Next    time.Time `json:"next"`
	Prev    time.Time `json:"prev"`
}

type registeredJob struct {
	job     Job
	spec    string
	entryID cron.EntryID
	running atomic.Bool
}

// CronScheduler runs registered jobs on their cron schedules. A job never
// overlaps itself, whether fired by cron or by Trigger.
type CronScheduler struct {
	config Config
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.RWMutex
	jobs    map[string]*registeredJob
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewCronScheduler creates a scheduler. Schedules accept the standard five
// field syntax plus descriptors such as "@every 1m".
func NewCronScheduler(config Config, base *zap.Logger) *CronScheduler {
	if base == nil {
		base = zap.NewNop()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	log := base.Named("scheduler")
	cronLogger := newCronLogger(log)

	return &CronScheduler{
		config: config,
		logger: log,
		jobs:   make(map[string]*registeredJob),
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
}

// Register adds job under spec. Jobs may be registered before or after Start.
func (s *CronScheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	rj := &registeredJob{job: job, spec: spec}
	id, err := s.cron.AddFunc(spec, func() { s.fire(rj) })
	if err != nil {
		return fmt.Errorf("schedule %s with %q: %w", name, spec, err)
	}
	rj.entryID = id
	s.jobs[name] = rj

	s.logger.Info("Job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start begins dispatching. ctx is the parent of every job execution.
func (s *CronScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop halts dispatching and waits for running jobs until ctx is done,
// after which their contexts are cancelled.
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cronDone := s.cron.Stop().Done()
	done := make(chan struct{})
	go func() {
		<-cronDone
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		cancel()
		s.logger.Warn("Scheduler stop timed out, running jobs cancelled")
		return ctx.Err()
	}
}

// Trigger runs the named job now and waits for it to finish
func (s *CronScheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	rj, ok := s.jobs[name]
	started := s.started
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if !started {
		return ErrSchedulerNotRunning
	}
	if !rj.running.CompareAndSwap(false, true) {
		return ErrJobAlreadyRunning
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer rj.running.Store(false)

	return s.execute(ctx, rj, "manual")
}

// Jobs lists the registered jobs sorted by name
func (s *CronScheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, rj := range s.jobs {
		entry := s.cron.Entry(rj.entryID)
		infos = append(infos, JobInfo{
			Name:    name,
			Spec:    rj.spec,
			Running: rj.running.Load(),
			Next:    entry.Next,
			Prev:    entry.Prev,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (s *CronScheduler) fire(rj *registeredJob) {
	s.mu.RLock()
	parent := s.ctx
	s.mu.RUnlock()
	if parent == nil {
		return
	}
	if !rj.running.CompareAndSwap(false, true) {
		s.logger.Debug("Skipping tick, job still running", zap.String("job", rj.job.Name()))
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer rj.running.Store(false)

	_ = s.execute(parent, rj, "cron")
}

func (s *CronScheduler) execute(parent context.Context, rj *registeredJob, trigger string) error {
	ctx := parent
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.config.JobTimeout)
		defer cancel()
	}
	log := logger.For(ctx, s.logger).With(zap.String("job", rj.job.Name()), zap.String("trigger", trigger))

	start := time.Now()
	err := rj.job.Execute(ctx)
	if err != nil {
		log.Error("Job failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return err
	}
	log.Debug("Job completed", zap.Duration("duration", time.Since(start)))
	return nil
}
