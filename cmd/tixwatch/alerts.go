package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tixwatch/internal/app"
	"tixwatch/internal/storage"
	logx "tixwatch/pkg/logx"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent alerts from the audit log",
	Long: `Print the most recent alerts recorded in the configured storage.

Storage must be enabled in the config (driver file, sqlite or postgres).

Example:
  tixwatch alerts -c config.json --limit 20`,
	RunE: runAlerts,
}

func init() {
	rootCmd.AddCommand(alertsCmd)

	alertsCmd.Flags().StringP("config", "c", "./config.json", "path to config file")
	alertsCmd.Flags().IntP("limit", "n", 20, "maximum number of alerts to print")
}

func runAlerts(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	recs, err := app.RecentAlerts(cmd.Context(), cfg, limit, logx.NewConsole("warn"))
	if errors.Is(err, storage.ErrDisabled) {
		return fmt.Errorf("storage is not configured; set storage.driver in %s", cfgPath)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No alerts recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tNAME\tSEATS\tDELIVERED\tURL")
	for _, r := range recs {
		delivered := "yes"
		if !r.Delivered {
			delivered = "no: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.At.Local().Format(time.DateTime), r.Name, r.Seats, delivered, r.URL)
	}
	return tw.Flush()
}
