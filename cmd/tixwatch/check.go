package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tixwatch/internal/app"
	"tixwatch/internal/monitor"
	logx "tixwatch/pkg/logx"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one round and print availability",
	Long: `Check every configured target once and print what was found.

No chat connection is made and no alerts are sent. The target_check_delay
still applies between targets.

Example:
  tixwatch check -c config.json
  tixwatch check -c config.json --log-level debug`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("config", "c", "./config.json", "path to config file")
	checkCmd.Flags().String("log-level", "warn", "log level for the check run")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := app.CheckOnce(ctx, cfg, logx.NewConsole(level))
	if err != nil {
		return err
	}
	printReport(cmd, rep)
	return nil
}

func printReport(cmd *cobra.Command, rep monitor.RoundReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Round %s: %d/%d targets available (took %s)\n",
		rep.ID, rep.Available(), len(rep.Targets), rep.Took.Round(time.Millisecond))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tNAME\tURL\tDETAIL")
	for _, t := range rep.Targets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", targetStatus(t), t.Name, t.URL, targetDetail(t))
	}
	_ = tw.Flush()
}

func targetStatus(t monitor.TargetReport) string {
	switch {
	case t.Err != nil:
		return "ERROR"
	case !t.Matched:
		return "NO MATCH"
	case t.Available:
		return "AVAILABLE"
	default:
		return "SOLD OUT"
	}
}

func targetDetail(t monitor.TargetReport) string {
	if t.Err != nil {
		return t.Err.Error()
	}
	parts := make([]string, 0, len(t.Seats))
	for _, s := range t.Seats {
		parts = append(parts, fmt.Sprintf("%s %s 剩餘 %s", s.Area, s.Price, s.Remaining.String()))
	}
	return strings.Join(parts, "; ")
}
