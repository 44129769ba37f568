package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "selector",
	Short: "Host/path-based upstream selection engine",
	Long: `selector resolves an inbound request's host and matching rules to a
weighted list of upstream servers.

Quick start:
  selector serve --config selector.yaml`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "selector.yaml", "config file path")
}
