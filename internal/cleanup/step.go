package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/aatumaykin/odoosweep/internal/filter"
	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/metrics"
	"github.com/aatumaykin/odoosweep/internal/odoo"
	"github.com/aatumaykin/odoosweep/internal/report"
)

// Action is what a step does with the records it locates.
type Action string

const (
	ActionDelete  Action = "delete"
	ActionArchive Action = "archive"
	ActionCount   Action = "count"
)

const dryRunPrefix = "[DRY RUN] "

// LocateFunc replaces the default filter search of a step.
type LocateFunc func(ctx context.Context, client *odoo.Client) ([]int64, error)

// Policy is one statically defined locate and act step.
type Policy struct {
	Operation  string
	Collection string
	Filter     filter.Predicate
	Action     Action
	Label      string
	SummaryKey string

	// BestEffort steps report failures as warnings.
	BestEffort bool
	// After lists collections that must be processed before this one.
	After  []string
	Locate LocateFunc
}

// runner executes policies against one client and records the outcome.
type runner struct {
	engine  string
	client  *odoo.Client
	report  *report.Report
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// abortError stops a run: the session is gone or the run was cancelled, and
// every later step would fail the same way.
type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

func isAuthFailure(err *odoo.OpError) bool {
	return err != nil && (err.Code == odoo.CodeAuthFailed || err.Code == odoo.CodeAuthError)
}

// run performs Locate, Decide, Simulate-or-Act and Record for p. It returns
// an error only when authentication was lost or ctx is done.
func (r *runner) run(ctx context.Context, p Policy) (report.Detail, error) {
	if err := ctx.Err(); err != nil {
		return report.Detail{}, &abortError{err: err}
	}

	detail := report.Detail{Operation: p.Operation, Collection: p.Collection, Status: report.StatusSuccess}

	ids, opErr := r.locate(ctx, p)
	if opErr != nil {
		detail.Status = r.failureStatus(p)
		detail.Narrative = fmt.Sprintf("failed to locate %s: %s", p.Label, opErr.Message)
		r.record(p, detail)
		if isAuthFailure(opErr) {
			return detail, &abortError{err: opErr}
		}
		return detail, nil
	}

	detail.AffectedCount = len(ids)

	switch {
	case len(ids) == 0:
		detail.Narrative = fmt.Sprintf("no %s found", p.Label)
	case p.Action == ActionCount:
		detail.Narrative = fmt.Sprintf("found %d %s (retained)", len(ids), p.Label)
	case r.report.Simulation:
		detail.Narrative = dryRunPrefix + fmt.Sprintf("would %s %d %s", verb(p.Action), len(ids), p.Label)
	default:
		if opErr := r.act(ctx, p, ids); opErr != nil {
			detail.Status = r.failureStatus(p)
			detail.Narrative = fmt.Sprintf("failed to %s %d %s: %s", verb(p.Action), len(ids), p.Label, opErr.Message)
			r.record(p, detail)
			if isAuthFailure(opErr) {
				return detail, &abortError{err: opErr}
			}
			return detail, nil
		}
		detail.Narrative = fmt.Sprintf("%s %d %s", pastTense(p.Action), len(ids), p.Label)
	}

	r.record(p, detail)
	return detail, nil
}

func (r *runner) locate(ctx context.Context, p Policy) ([]int64, *odoo.OpError) {
	if p.Locate != nil {
		ids, err := p.Locate(ctx, r.client)
		if err != nil {
			var opErr *odoo.OpError
			if errors.As(err, &opErr) {
				return nil, opErr
			}
			return nil, &odoo.OpError{Code: odoo.CodeSearchError, Message: err.Error(), Cause: err}
		}
		return ids, nil
	}

	env := r.client.Search(ctx, p.Collection, p.Filter, odoo.Options{})
	if !env.OK() {
		return nil, env.Err
	}
	return env.Data, nil
}

func (r *runner) act(ctx context.Context, p Policy, ids []int64) *odoo.OpError {
	switch p.Action {
	case ActionArchive:
		return r.client.Update(ctx, p.Collection, ids, map[string]any{"active": false}, nil).Err
	default:
		return r.client.Delete(ctx, p.Collection, ids, nil).Err
	}
}

func (r *runner) failureStatus(p Policy) report.Status {
	if p.BestEffort {
		return report.StatusWarning
	}
	return report.StatusError
}

func (r *runner) record(p Policy, d report.Detail) {
	if p.Action == ActionCount {
		r.report.AddCount(d, p.SummaryKey)
	} else {
		r.report.Add(d, p.SummaryKey)
	}
	r.metrics.RecordStep(r.report.Instance, r.engine, p.Collection, string(d.Status), r.report.Simulation, d.AffectedCount)

	fields := []logger.Field{
		{Key: "operation", Value: p.Operation},
		{Key: "collection", Value: p.Collection},
		{Key: "affected", Value: d.AffectedCount},
		{Key: "simulation", Value: r.report.Simulation},
	}
	switch d.Status {
	case report.StatusError:
		r.logger.Warn("cleanup step failed: "+d.Narrative, fields...)
	case report.StatusWarning:
		r.logger.Warn("cleanup step incomplete: "+d.Narrative, fields...)
	default:
		r.logger.Info(d.Narrative, fields...)
	}
}

func verb(a Action) string {
	switch a {
	case ActionArchive:
		return "archive"
	case ActionCount:
		return "count"
	}
	return "delete"
}

func pastTense(a Action) string {
	switch a {
	case ActionArchive:
		return "archived"
	case ActionCount:
		return "counted"
	}
	return "deleted"
}
