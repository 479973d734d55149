// Package report aggregates the outcome of a cleanup run: per-step details,
// summary counters, warnings and errors. A Report is built by one run and is
// not safe for concurrent mutation.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status of a single cleanup step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Detail records what one step did, or would have done in simulation.
type Detail struct {
	Operation     string `json:"operation" yaml:"operation"`
	Collection    string `json:"collection" yaml:"collection"`
	AffectedCount int    `json:"affectedCount" yaml:"affectedCount"`
	Narrative     string `json:"narrative" yaml:"narrative"`
	Status        Status `json:"status" yaml:"status"`
}

// Report is the structured result of a cleanup or reset run.
type Report struct {
	RunID               string          `json:"runId" yaml:"runId"`
	Engine              string          `json:"engine" yaml:"engine"`
	Instance            string          `json:"instance" yaml:"instance"`
	Success             bool            `json:"success" yaml:"success"`
	Timestamp           time.Time       `json:"timestamp" yaml:"timestamp"`
	DurationMs          int64           `json:"durationMs" yaml:"durationMs"`
	Simulation          bool            `json:"simulation" yaml:"simulation"`
	Summary             map[string]int  `json:"summary" yaml:"summary"`
	Flags               map[string]bool `json:"flags,omitempty" yaml:"flags,omitempty"`
	Details             []Detail        `json:"details" yaml:"details"`
	Warnings            []string        `json:"warnings" yaml:"warnings"`
	Errors              []string        `json:"errors" yaml:"errors"`
	DefaultDataRetained []string        `json:"defaultDataRetained,omitempty" yaml:"defaultDataRetained,omitempty"`

	totalKey string
	countKey map[string]bool
	now      func() time.Time
	start    time.Time
}

// Option configures a new Report.
type Option func(*Report)

// WithClock sets the time source used for Timestamp and DurationMs.
func WithClock(now func() time.Time) Option {
	return func(r *Report) { r.now = now }
}

// New starts a report. The simulation flag cannot change afterwards.
func New(engine, instance string, simulation bool, opts ...Option) *Report {
	r := &Report{
		RunID:      uuid.NewString(),
		Engine:     engine,
		Instance:   instance,
		Success:    true,
		Simulation: simulation,
		Summary:    make(map[string]int),
		Details:    []Detail{},
		Warnings:   []string{},
		Errors:     []string{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start = r.now()
	r.Timestamp = r.start.UTC()
	return r
}

// Add appends d. Only successful steps add their count to summaryKey;
// warning and error narratives are copied to Warnings and Errors.
func (r *Report) Add(d Detail, summaryKey string) {
	r.Details = append(r.Details, d)

	switch d.Status {
	case StatusError:
		r.Errors = append(r.Errors, d.Narrative)
	case StatusWarning:
		r.Warnings = append(r.Warnings, d.Narrative)
	}

	if summaryKey == "" {
		return
	}
	if d.Status == StatusSuccess {
		r.Summary[summaryKey] += d.AffectedCount
	} else if _, ok := r.Summary[summaryKey]; !ok {
		r.Summary[summaryKey] = 0
	}
}

// AddCount is Add for steps that only count records. Their summary key is
// reported but left out of the total.
func (r *Report) AddCount(d Detail, summaryKey string) {
	r.Add(d, summaryKey)
	if summaryKey == "" {
		return
	}
	if r.countKey == nil {
		r.countKey = make(map[string]bool)
	}
	r.countKey[summaryKey] = true
}

// InTotal reports whether key contributes to the total.
func (r *Report) InTotal(key string) bool {
	return key != r.totalKey && !r.countKey[key]
}

// Warn records a run-level warning that belongs to no single step.
func (r *Report) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Fail records a run-level error. Only Abort marks the run unsuccessful.
func (r *Report) Fail(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Abort records err and marks the run as failed.
func (r *Report) Abort(err error) {
	r.Success = false
	r.Errors = append(r.Errors, err.Error())
}

// SetFlag records a boolean outcome such as cache clearing.
func (r *Report) SetFlag(name string, value bool) {
	if r.Flags == nil {
		r.Flags = make(map[string]bool)
	}
	r.Flags[name] = value
}

// Retained appends a line to DefaultDataRetained.
func (r *Report) Retained(line string) {
	r.DefaultDataRetained = append(r.DefaultDataRetained, line)
}

// Finalize stores the sum of the other summary values, except count-only
// keys, under totalKey and stamps the duration. It may be called more than once.
func (r *Report) Finalize(totalKey string) *Report {
	r.totalKey = totalKey
	total := 0
	for key, n := range r.Summary {
		if r.InTotal(key) {
			total += n
		}
	}
	r.Summary[totalKey] = total
	r.DurationMs = r.now().Sub(r.start).Milliseconds()
	return r
}

// Total returns the finalized total, or 0 before Finalize.
func (r *Report) Total() int {
	if r.totalKey == "" {
		return 0
	}
	return r.Summary[r.totalKey]
}

// TotalKey returns the key chosen by Finalize.
func (r *Report) TotalKey() string {
	return r.totalKey
}

// SummaryKeys returns summary keys sorted, with the total key last.
func (r *Report) SummaryKeys() []string {
	keys := make([]string, 0, len(r.Summary))
	for key := range r.Summary {
		if key != r.totalKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if _, ok := r.Summary[r.totalKey]; ok && r.totalKey != "" {
		keys = append(keys, r.totalKey)
	}
	return keys
}

// HasErrors reports whether any step or run-level error was recorded.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}
