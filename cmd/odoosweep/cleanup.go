package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aatumaykin/odoosweep/internal/cleanup"
	"github.com/aatumaykin/odoosweep/internal/constants"
	"github.com/aatumaykin/odoosweep/internal/report"
)

var (
	cleanupAll    bool
	cleanupLive   bool
	cleanupDays   int
	cleanupGroups []string
	outputFormat  string
)

// cleanupCmd runs the shallow cleanup engine
var cleanupCmd = &cobra.Command{
	Use:   "cleanup [instance...]",
	Short: "Remove test data, stale drafts, orphans and old logs",
	Long: `Run the shallow cleanup policies against one or more instances.

Runs are simulated unless --live is given: the report then lists what
would be removed without changing anything.

Policy groups: remove_test_data, archive_inactive, cleanup_drafts,
remove_orphans, cleanup_logs, cleanup_attachments, clear_caches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cleanup.ValidateGroups(cleanupGroups); err != nil {
			return err
		}
		if err := checkOutputFormat(); err != nil {
			return err
		}

		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.instances(args, cleanupAll)
		if err != nil {
			return err
		}

		opts := a.cfg.CleanupOptions(!cleanupLive)
		if cleanupDays > 0 {
			opts.DaysThreshold = cleanupDays
		}
		opts.Groups = cleanupGroups

		return runAll(cmd, names, func(ctx context.Context, name string) (*report.Report, error) {
			if cleanupLive {
				fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgLiveRunWarning, name)
			}
			return a.service.Cleanup(ctx, name, opts)
		})
	},
}

func checkOutputFormat() error {
	switch outputFormat {
	case "text", report.FormatJSON, report.FormatYAML:
		return nil
	}
	return fmt.Errorf("invalid --output %q (expected: text, json, yaml)", outputFormat)
}

// runAll runs one engine invocation per instance concurrently and prints
// every report in instance order.
func runAll(cmd *cobra.Command, names []string, run func(ctx context.Context, name string) (*report.Report, error)) error {
	reports := make([]*report.Report, len(names))
	errs := make([]error, len(names))

	g, ctx := errgroup.WithContext(cmd.Context())
	for i, name := range names {
		g.Go(func() error {
			reports[i], errs[i] = run(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	out := cmd.OutOrStdout()
	failed := 0
	for i, name := range names {
		if reports[i] != nil {
			if err := printReport(out, reports[i]); err != nil {
				return err
			}
		}
		switch {
		case errs[i] != nil:
			fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgRunFailed, name, errs[i])
			failed++
		case reports[i].HasErrors():
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d run(s) failed or reported errors", failed, len(names))
	}
	return nil
}

func printReport(w io.Writer, rep *report.Report) error {
	if outputFormat == "text" {
		return rep.WriteText(w)
	}
	data, err := rep.Marshal(outputFormat)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "run against every configured instance")
	cleanupCmd.Flags().BoolVar(&cleanupLive, "live", false, "apply changes instead of simulating")
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "age threshold in days (default cleanup.days_threshold)")
	cleanupCmd.Flags().StringSliceVarP(&cleanupGroups, "group", "g", nil, "run only these policy groups")
	cleanupCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "report output: text, json or yaml")
}
