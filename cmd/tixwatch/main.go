// Package main is the entry point for the tixwatch CLI.
//
// Usage:
//
//	tixwatch run -c config.json              # Start monitoring and post alerts
//	tixwatch check -c config.json            # Run one round, print availability
//	tixwatch validate -c config.json         # Validate configuration
//	tixwatch alerts -c config.json --limit 20  # Show recent alerts from storage
//	tixwatch version                         # Show version info
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tixwatch/internal/config"
	"tixwatch/internal/transport"
	logx "tixwatch/pkg/logx"
)

// Set at build time via -ldflags "-X main.version=1.0.0".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tixwatch",
	Short: "TicketPlus seat availability monitor",
	Long: `tixwatch polls TicketPlus event pages and API endpoints and posts an alert
to a Discord channel (or Telegram chat) whenever seats become available.

Quick start:
  1. Create a config file (config.json)
  2. Run: tixwatch validate -c config.json
  3. Run: tixwatch run -c config.json

Example config:
  {
    "discord_token": "...",
    "channel_id": 123456789012345678,
    "check_interval": 60,
    "targets": [
      {"url": "https://apis.ticketplus.com.tw/config/api/v1/get?...", "name": "My Show",
       "sale_url": "https://ticketplus.com.tw/activity/..."}
    ]
  }`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tixwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// fatal reports whether err should be logged at critical level.
func fatal(err error) bool {
	return errors.Is(err, config.ErrInvalid) || errors.Is(err, transport.ErrAuth)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if fatal(err) {
			logx.NewConsole("info").Critical("startup failed", logx.Err(err))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
