package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/report"
)

// ErrBusy is returned when a run for the same instance is in progress.
var ErrBusy = errors.New("a run for this instance is already in progress")

// Notifier receives finished reports.
type Notifier interface {
	Notify(ctx context.Context, rep *report.Report) error
}

// InstanceLocks serializes runs per instance.
type InstanceLocks struct {
	mu     sync.Mutex
	active map[string]bool
}

func NewInstanceLocks() *InstanceLocks {
	return &InstanceLocks{active: make(map[string]bool)}
}

// TryLock claims instance. The returned func releases it.
func (l *InstanceLocks) TryLock(instance string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active[instance] {
		return nil, false
	}
	l.active[instance] = true
	return func() {
		l.mu.Lock()
		delete(l.active, instance)
		l.mu.Unlock()
	}, true
}

// ServiceConfig controls what happens with finished reports.
type ServiceConfig struct {
	ReportDir    string
	ReportFormat string
}

// Service runs engines for the scheduler and the HTTP trigger: one run per
// instance at a time, reports saved and forwarded to the notifier.
type Service struct {
	cleaner  *Cleaner
	resetter *Resetter
	locks    *InstanceLocks
	notifier Notifier
	config   ServiceConfig
	logger   *logger.Logger
}

func NewService(cleaner *Cleaner, resetter *Resetter, config ServiceConfig, notifier Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		cleaner:  cleaner,
		resetter: resetter,
		locks:    NewInstanceLocks(),
		notifier: notifier,
		config:   config,
		logger:   log,
	}
}

// Cleanup runs the shallow engine.
func (s *Service) Cleanup(ctx context.Context, instance string, opts Options) (*report.Report, error) {
	return s.exclusive(ctx, instance, func() (*report.Report, error) {
		return s.cleaner.Run(ctx, instance, opts)
	})
}

// Reset runs the deep engine.
func (s *Service) Reset(ctx context.Context, instance string, opts ResetOptions) (*report.Report, error) {
	return s.exclusive(ctx, instance, func() (*report.Report, error) {
		return s.resetter.Run(ctx, instance, opts)
	})
}

func (s *Service) exclusive(ctx context.Context, instance string, run func() (*report.Report, error)) (*report.Report, error) {
	unlock, ok := s.locks.TryLock(instance)
	if !ok {
		return nil, fmt.Errorf("instance %q: %w", instance, ErrBusy)
	}
	defer unlock()

	rep, err := run()
	if rep == nil {
		return nil, err
	}

	if s.config.ReportDir != "" {
		path, saveErr := rep.Save(s.config.ReportDir, s.config.ReportFormat)
		if saveErr != nil {
			s.logger.Error("failed to save report", saveErr, logger.Field{Key: "instance", Value: instance})
		} else {
			s.logger.Info("report saved", logger.Field{Key: "path", Value: path})
		}
	}

	if s.notifier != nil {
		if notifyErr := s.notifier.Notify(ctx, rep); notifyErr != nil {
			s.logger.Warn("failed to send report notification",
				logger.Field{Key: "instance", Value: instance},
				logger.Field{Key: "error", Value: notifyErr.Error()})
		}
	}

	return rep, err
}
