// Package commands implements the imtcpctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the admin API client, shared by every subcommand.
	httpClient *http.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's admin HTTP address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for imtcpctl.
var rootCmd = &cobra.Command{
	Use:   "imtcpctl",
	Short: "CLI client for the imtcpd syslog ingest daemon",
	Long:  "imtcpctl queries the imtcpd admin HTTP API to inspect rulesets and sessions.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		httpClient = &http.Client{Timeout: 5 * time.Second}
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8443",
		"imtcpd admin API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(rulesetCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func adminURL(path string) string {
	return "http://" + serverAddr + path
}
