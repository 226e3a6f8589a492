package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tixwatch/internal/app"
	"tixwatch/internal/monitor"
)

// validateCmd validates a config file without connecting to anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a tixwatch configuration file without starting the bot.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  tixwatch validate -c config.json
  tixwatch validate --config /etc/tixwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	cad, err := app.Cadence(cfg)
	if err != nil {
		return err
	}

	rendered := 0
	for _, t := range monitor.TargetsFromConfig(cfg.Targets) {
		if t.Render {
			rendered++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Platform:  %s\n", cfg.PlatformName())
	fmt.Fprintf(out, "  Channel:   %d\n", int64(cfg.ChannelID))
	fmt.Fprintf(out, "  Cadence:   %s\n", cad.String())
	fmt.Fprintf(out, "  Delay:     %s\n", cfg.Delay())
	fmt.Fprintf(out, "  Targets:   %d (%d rendered)\n", len(cfg.Targets), rendered)
	return nil
}
