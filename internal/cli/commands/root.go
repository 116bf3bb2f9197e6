// Package commands implements the radiogate CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "radiogate",
	Short: "Store-and-forward message relay for half-duplex radio links",
	Long: `Radiogate bridges a low-bandwidth radio data link with TCP socket
tunnels and internet email. It supervises one worker per active radio
session, periodically re-routes queued messages to reachable stations
under a per-port fairness rule, and gates the email bridge with ordered
access-control rules.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"radiogate.yaml", "path to the configuration file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
