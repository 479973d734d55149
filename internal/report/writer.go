package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by Save.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const fileTimeLayout = "20060102T150405Z"

// FileName returns <engine>-<instance>-<timestamp>.<ext>.
func (r *Report) FileName(format string) string {
	ext := format
	if ext == "" {
		ext = FormatJSON
	}
	return fmt.Sprintf("%s-%s-%s.%s", r.Engine, r.Instance, r.Timestamp.UTC().Format(fileTimeLayout), ext)
}

// Marshal encodes the report in format.
func (r *Report) Marshal(format string) ([]byte, error) {
	switch format {
	case "", FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		return yaml.Marshal(r)
	default:
		return nil, fmt.Errorf("unsupported report format %q (want json or yaml)", format)
	}
}

// Save writes the report into dir and returns the file path.
func (r *Report) Save(dir, format string) (string, error) {
	data, err := r.Marshal(format)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, r.FileName(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// WriteText prints a human readable summary.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	mode := "LIVE"
	if r.Simulation {
		mode = "DRY RUN"
	}
	status := "completed"
	if !r.Success {
		status = "FAILED"
	}

	fmt.Fprintf(&b, "%s on %s: %s (%s, %dms)\n", r.Engine, r.Instance, status, mode, r.DurationMs)
	fmt.Fprintf(&b, "run %s at %s\n", r.RunID, r.Timestamp.Format("2006-01-02 15:04:05 UTC"))

	if len(r.Summary) > 0 {
		b.WriteString("\nSummary:\n")
		for _, key := range r.SummaryKeys() {
			fmt.Fprintf(&b, "  %-28s %d\n", key, r.Summary[key])
		}
	}
	for _, name := range sortedFlags(r.Flags) {
		fmt.Fprintf(&b, "  %-28s %t\n", name, r.Flags[name])
	}

	if len(r.Details) > 0 {
		b.WriteString("\nSteps:\n")
		for _, d := range r.Details {
			fmt.Fprintf(&b, "  [%-7s] %-24s %-22s %5d  %s\n", d.Status, d.Operation, d.Collection, d.AffectedCount, d.Narrative)
		}
	}

	writeList(&b, "Retained", r.DefaultDataRetained)
	writeList(&b, "Warnings", r.Warnings)
	writeList(&b, "Errors", r.Errors)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

func sortedFlags(flags map[string]bool) []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
