package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/odoosweep/internal/constants"
	"github.com/aatumaykin/odoosweep/internal/report"
)

var (
	resetLive                bool
	resetYes                 bool
	resetDropCompanyDefaults bool
	resetDropUserAccounts    bool
	resetDropMenus           bool
	resetDropGroups          bool
)

// resetCmd runs the deep cleanup engine
var resetCmd = &cobra.Command{
	Use:   "reset <instance>",
	Short: "Reset an instance to its minimal default state",
	Long: `Remove business data phase by phase (partners, sales, invoicing,
purchasing, inventory, CRM, projects, calendar, HR, logs) while keeping the
default company, the administrator and the configuration skeleton.

Runs are simulated unless --live is given. A live reset asks for the
instance name unless --yes is set. Take a database backup first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutputFormat(); err != nil {
			return err
		}

		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.instances(args, false)
		if err != nil {
			return err
		}
		instance := names[0]

		opts := a.cfg.ResetOptions(!resetLive)
		if resetDropCompanyDefaults {
			opts.KeepCompanyDefaults = false
		}
		if resetDropUserAccounts {
			opts.KeepUserAccounts = false
		}
		if resetDropMenus {
			opts.KeepMenus = false
		}
		if resetDropGroups {
			opts.KeepGroups = false
		}

		if resetLive {
			fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgLiveRunWarning, instance)
			if !resetYes {
				if err := confirm(cmd, instance); err != nil {
					return err
				}
			}
		}

		return runAll(cmd, names, func(ctx context.Context, name string) (*report.Report, error) {
			return a.service.Reset(ctx, name, opts)
		})
	},
}

// confirm requires the operator to type the instance name.
func confirm(cmd *cobra.Command, instance string) error {
	fmt.Fprintf(cmd.ErrOrStderr(), constants.MsgResetConfirmPrompt, instance)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("%s: %w", constants.MsgResetAborted, err)
	}
	if strings.TrimSpace(line) != instance {
		return errors.New(constants.MsgResetAborted)
	}
	return nil
}

func init() {
	resetCmd.Flags().BoolVar(&resetLive, "live", false, "apply changes instead of simulating")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt for a live reset")
	resetCmd.Flags().BoolVar(&resetDropCompanyDefaults, "drop-company-defaults", false, "also remove protected default partners")
	resetCmd.Flags().BoolVar(&resetDropUserAccounts, "drop-user-accounts", false, "also remove employees linked to user accounts")
	resetCmd.Flags().BoolVar(&resetDropMenus, "drop-menus", false, "request menu removal (menus are always retained; a warning is reported)")
	resetCmd.Flags().BoolVar(&resetDropGroups, "drop-groups", false, "request group removal (groups are always retained; a warning is reported)")
	resetCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "report output: text, json or yaml")
}
