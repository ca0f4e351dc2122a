package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"aviary/internal/log"
)

// Job is a task the Scheduler runs on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job once at start and then on its interval until
// stopped. Job errors are logged and never stop the loop.
type Scheduler struct {
	jobs   []Job
	clock  clockwork.Clock
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(clock clockwork.Clock, logger *log.Logger, jobs ...Job) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentWorker})
	}
	return &Scheduler{jobs: jobs, clock: clock, logger: logger}
}

// Start begins the job loops. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	for _, j := range s.jobs {
		if j.Interval <= 0 {
			return fmt.Errorf("job %q has no interval", j.Name)
		}
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	stop, done := s.stopCh, s.doneCh
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runLoop(ctx, j, stop)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	s.logger.InfoContext(ctx, "Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop signals every loop and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context, j Job, stop <-chan struct{}) {
	ticker := s.clock.NewTicker(j.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, j)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	start := s.clock.Now()
	if err := j.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Scheduled job failed", "job", j.Name, log.FieldError, err)
		return
	}
	s.logger.DebugContext(ctx, "Scheduled job completed", "job", j.Name, "duration", s.clock.Since(start))
}
