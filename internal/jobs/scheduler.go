package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"statwise/internal/metrics"
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs on cron schedules. At most one job executes
// at a time; a run that fires while another is in progress is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    map[string]Job

	mu        sync.Mutex
	isRunning bool

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool
}

func NewScheduler(logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]Job),
	}
}

// Register schedules job with a cron expression or descriptor such as
// "@every 1m".
func (s *Scheduler) Register(spec string, job Job) error {
	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	if _, err := s.cron.AddFunc(spec, func() { s.executeJobSafely(job) }); err != nil {
		return fmt.Errorf("schedule %s with %q: %w", job.Name(), spec, err)
	}
	s.jobs[job.Name()] = job
	s.logger.Info("Registered background job", slog.String("job", job.Name()), slog.String("schedule", spec))
	return nil
}

// executeJobSafely runs a job only if no other job is currently executing.
// It reports whether the job ran.
func (s *Scheduler) executeJobSafely(job Job) (ran bool) {
	name := job.Name()

	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", name))
		s.processingMutex.Unlock()
		return false
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	started := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", name),
				slog.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
		s.metrics.JobRun(name, err)

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	ran = true
	if err = job.Run(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", name), slog.Any("error", err))
		return ran
	}
	s.logger.Debug("Job finished", slog.String("job", name), slog.Duration("took", time.Since(started)))
	return ran
}

// Trigger runs a registered job immediately, subject to the same single
// execution guard as scheduled runs.
func (s *Scheduler) Trigger(name string) (bool, error) {
	job, ok := s.jobs[name]
	if !ok {
		return false, fmt.Errorf("unknown job %s", name)
	}
	return s.executeJobSafely(job), nil
}

// Start begins all background jobs
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("Background jobs started", slog.Int("jobs", len(s.jobs)))
}

// Stop cancels running jobs and waits up to timeout for them to return.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.logger.Info("Stopping background jobs...")

	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		s.logger.Info("Background jobs stopped")
	case <-time.After(timeout):
		s.logger.Warn("Timeout waiting for background jobs to finish")
	}
	s.isRunning = false
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
