// Package cleanup implements the shallow cleanup engine (Cleaner), the deep
// reset engine (Resetter) and a cron scheduler that runs them. Both engines
// share one step runner: locate the candidates, then simulate or act, then
// record a detail in the report.
package cleanup

import (
	"context"
	"time"

	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/metrics"
	"github.com/aatumaykin/odoosweep/internal/odoo"
	"github.com/aatumaykin/odoosweep/internal/report"
)

// Engine names used in reports, metrics and schedules.
const (
	EngineCleanup = "cleanup"
	EngineReset   = "reset"
)

// ClientSource hands out authenticated clients by instance name.
// *odoo.Registry implements it.
type ClientSource interface {
	Client(ctx context.Context, name string) (*odoo.Client, error)
}

// Option configures an engine.
type Option func(*base)

func WithLogger(log *logger.Logger) Option {
	return func(b *base) {
		if log != nil {
			b.logger = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// WithClock sets the time source for thresholds and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

type base struct {
	source  ClientSource
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func newBase(source ClientSource, opts []Option) base {
	b := base{source: source, logger: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// begin creates the report and obtains the client. On failure the report
// is already finalized and marked unsuccessful.
func (b *base) begin(ctx context.Context, engine, instance string, simulation bool, totalKey string) (*runner, *report.Report, error) {
	rep := report.New(engine, instance, simulation, report.WithClock(b.now))
	log := b.logger.ForInstance(instance).With(logger.Field{Key: "engine", Value: engine}, logger.Field{Key: "run_id", Value: rep.RunID})

	client, err := b.source.Client(ctx, instance)
	if err != nil {
		log.ErrorCtx(ctx, "failed to obtain authenticated client", err)
		rep.Abort(err)
		b.finish(rep, totalKey, log)
		return nil, rep, err
	}

	log.InfoCtx(ctx, "run started", logger.Field{Key: "simulation", Value: simulation})
	return &runner{engine: engine, client: client, report: rep, logger: log, metrics: b.metrics}, rep, nil
}

func (b *base) finish(rep *report.Report, totalKey string, log *logger.Logger) {
	rep.Finalize(totalKey)
	b.metrics.RecordRun(rep.Instance, rep.Engine, rep.Success, time.Duration(rep.DurationMs)*time.Millisecond)

	log.Info("run finished",
		logger.Field{Key: "success", Value: rep.Success},
		logger.Field{Key: "simulation", Value: rep.Simulation},
		logger.Field{Key: totalKey, Value: rep.Total()},
		logger.Field{Key: "warnings", Value: len(rep.Warnings)},
		logger.Field{Key: "errors", Value: len(rep.Errors)},
		logger.Field{Key: "duration_ms", Value: rep.DurationMs})
}
