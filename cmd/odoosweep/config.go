package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/odoosweep/internal/config"
	"github.com/aatumaykin/odoosweep/internal/constants"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Load the configuration (file or ODOO_* environment) and report every problem found.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			fmt.Fprintf(out, constants.MsgConfigLoadError, err)
			return err
		}

		if errs := cfg.Validate(); len(errs) > 0 {
			fmt.Fprint(out, constants.MsgConfigInvalid)
			for _, e := range errs {
				fmt.Fprintf(out, "  - %v\n", e)
			}
			return fmt.Errorf("%d configuration error(s)", len(errs))
		}

		fmt.Fprintf(out, constants.MsgConfigValid, len(cfg.Instances))
		return nil
	},
}

// configShowCmd prints the effective configuration with secrets masked
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		masked := *cfg
		masked.Instances = make(map[string]config.InstanceConfig, len(cfg.Instances))
		for name, inst := range cfg.Instances {
			masked.Instances[name] = config.MaskInstance(inst)
		}
		if masked.Notify.Telegram.Token != "" {
			masked.Notify.Telegram.Token = "***"
		}

		return toml.NewEncoder(cmd.OutOrStdout()).Encode(masked)
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
