package cleanup

import (
	"context"
	"fmt"
	"strings"

	"github.com/aatumaykin/odoosweep/internal/report"
)

// TotalProcessedKey is the summary total of the shallow engine.
const TotalProcessedKey = "totalRecordsProcessed"

// FlagCacheCleared is set when every cache was cleared.
const FlagCacheCleared = "cacheCleared"

// Options select what a shallow cleanup run does.
type Options struct {
	Simulation    bool
	DaysThreshold int
	// Groups restricts the run to these policy groups; empty means all.
	Groups []string
}

// Cleaner runs the shallow cleanup policies.
type Cleaner struct {
	base
}

func NewCleaner(source ClientSource, opts ...Option) *Cleaner {
	return &Cleaner{base: newBase(source, opts)}
}

// Run executes the selected policies against instance. The report is always
// returned; the error is non-nil only when no authenticated client could be
// obtained or the session was lost mid-run.
func (c *Cleaner) Run(ctx context.Context, instance string, opts Options) (*report.Report, error) {
	if err := ValidateGroups(opts.Groups); err != nil {
		rep := report.New(EngineCleanup, instance, opts.Simulation, report.WithClock(c.now))
		rep.Abort(err)
		return rep.Finalize(TotalProcessedKey), err
	}

	r, rep, err := c.begin(ctx, EngineCleanup, instance, opts.Simulation, TotalProcessedKey)
	if err != nil {
		return rep, err
	}

	selected := selectedGroups(opts.Groups)
	var runErr error
	for _, p := range ShallowPolicies(c.now(), opts.DaysThreshold) {
		if !selected[p.Operation] {
			continue
		}
		if _, err := r.run(ctx, p); err != nil {
			rep.Abort(err)
			runErr = err
			break
		}
	}

	if runErr == nil && selected[GroupClearCaches] {
		c.clearCaches(ctx, r)
	}

	c.finish(rep, TotalProcessedKey, r.logger)
	return rep, runErr
}

// clearCaches is best effort and never runs in simulation.
func (c *Cleaner) clearCaches(ctx context.Context, r *runner) {
	rep := r.report
	step := Policy{Operation: GroupClearCaches, Collection: cacheTargets[0].Model}
	if rep.Simulation {
		rep.SetFlag(FlagCacheCleared, false)
		r.record(step, report.Detail{
			Operation:  GroupClearCaches,
			Collection: step.Collection,
			Narrative:  dryRunPrefix + "server caches left untouched",
			Status:     report.StatusSuccess,
		})
		return
	}

	var failures []string
	for _, target := range cacheTargets {
		env := r.client.Execute(ctx, target.Model, target.Method, []any{}, nil)
		if !env.OK() {
			failures = append(failures, fmt.Sprintf("%s.%s: %s", target.Model, target.Method, env.Err.Message))
		}
	}

	detail := report.Detail{
		Operation:  GroupClearCaches,
		Collection: step.Collection,
		Narrative:  "server caches cleared",
		Status:     report.StatusSuccess,
	}
	if len(failures) > 0 {
		detail.Status = report.StatusWarning
		detail.Narrative = "failed to clear caches: " + strings.Join(failures, "; ")
	}
	rep.SetFlag(FlagCacheCleared, len(failures) == 0)
	r.record(step, detail)
}

func selectedGroups(groups []string) map[string]bool {
	if len(groups) == 0 {
		groups = Groups()
	}
	out := make(map[string]bool, len(groups))
	for _, g := range groups {
		out[g] = true
	}
	return out
}
