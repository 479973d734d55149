package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/odoosweep/internal/constants"
)

var pingAll bool

// pingCmd authenticates against instances and prints the session details
var pingCmd = &cobra.Command{
	Use:   "ping [instance...]",
	Short: "Check connectivity and credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.instances(args, pingAll || len(args) == 0)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, name := range names {
			start := time.Now()
			client, err := a.registry.Client(cmd.Context(), name)
			if err != nil {
				fmt.Fprintf(out, constants.MsgPingFailed, name, err)
				failed++
				continue
			}
			conn, _ := client.Connection()
			fmt.Fprintf(out, constants.MsgPingOK, name, conn.UID, conn.ServerVersion, time.Since(start).Milliseconds())
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d instance(s) unreachable", failed, len(names))
		}
		return nil
	},
}

func init() {
	pingCmd.Flags().BoolVar(&pingAll, "all", false, "ping every configured instance (default when no instance is given)")
}
