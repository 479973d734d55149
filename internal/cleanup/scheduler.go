package cleanup

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/report"
)

// Job is a recurring engine run.
type Job struct {
	Name          string
	Instance      string
	Engine        string // EngineCleanup or EngineReset
	Schedule      string // cron expression or descriptor such as @daily
	Simulation    bool
	DaysThreshold int
	Groups        []string
	Reset         ResetOptions
}

// Runner is the part of Service the scheduler needs.
type Runner interface {
	Cleanup(ctx context.Context, instance string, opts Options) (*report.Report, error)
	Reset(ctx context.Context, instance string, opts ResetOptions) (*report.Report, error)
}

// Scheduler triggers jobs on their cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	runner  Runner
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(runner Runner, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		parser:  parser,
		runner:  runner,
		logger:  log,
		entries: make(map[string]cron.EntryID),
	}
}

// ValidateJob checks a job without scheduling it.
func (s *Scheduler) ValidateJob(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Instance == "" {
		return fmt.Errorf("job %s: instance is required", job.Name)
	}
	if job.Engine != EngineCleanup && job.Engine != EngineReset {
		return fmt.Errorf("job %s: unknown engine %q", job.Name, job.Engine)
	}
	if job.Engine == EngineCleanup {
		if err := ValidateGroups(job.Groups); err != nil {
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
	}
	if _, err := s.parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("job %s: invalid cron expression: %w", job.Name, err)
	}
	return nil
}

// AddJob registers job. Names must be unique.
func (s *Scheduler) AddJob(job Job) error {
	if err := s.ValidateJob(job); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("job %s already scheduled", job.Name)
	}

	id, err := s.cron.AddFunc(job.Schedule, func() { s.execute(job) })
	if err != nil {
		return fmt.Errorf("job %s: invalid cron expression: %w", job.Name, err)
	}
	s.entries[job.Name] = id

	s.logger.Info("cleanup job scheduled",
		logger.Field{Key: "job", Value: job.Name},
		logger.Field{Key: "instance", Value: job.Instance},
		logger.Field{Key: "engine", Value: job.Engine},
		logger.Field{Key: "schedule", Value: job.Schedule})
	return nil
}

// Jobs returns the scheduled job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Start begins firing jobs until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()

	s.logger.Info("cleanup scheduler started", logger.Field{Key: "jobs", Value: len(s.entries)})
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("cleanup scheduler stopped")
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, job Job) (*report.Report, error) {
	if err := s.ValidateJob(job); err != nil {
		return nil, err
	}
	return s.dispatch(ctx, job)
}

func (s *Scheduler) execute(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	s.logger.Info("scheduled run started", logger.Field{Key: "job", Value: job.Name})
	rep, err := s.dispatch(ctx, job)
	if err != nil {
		s.logger.Error("scheduled run failed", err, logger.Field{Key: "job", Value: job.Name})
		return
	}
	s.logger.Info("scheduled run finished",
		logger.Field{Key: "job", Value: job.Name},
		logger.Field{Key: "success", Value: rep.Success},
		logger.Field{Key: "total", Value: rep.Total()})
}

func (s *Scheduler) dispatch(ctx context.Context, job Job) (*report.Report, error) {
	switch job.Engine {
	case EngineReset:
		opts := job.Reset
		opts.Simulation = job.Simulation
		return s.runner.Reset(ctx, job.Instance, opts)
	default:
		return s.runner.Cleanup(ctx, job.Instance, Options{
			Simulation:    job.Simulation,
			DaysThreshold: job.DaysThreshold,
			Groups:        job.Groups,
		})
	}
}
