package main

import (
	"fmt"
	"os"

	"github.com/artpar/selector/bootstrap"
	"github.com/artpar/selector/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
	watchMode string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the selector service",
	Long: `Start the selector admin/observability service.

The server will:
  - Load router configuration from selector.yaml (or --config)
  - Connect each router's configured Dynamic backend, if any
  - Serve /debug/routers and /debug/match for introspection
  - Serve /metrics for Prometheus scraping

Examples:
  selector serve
  selector serve --config /etc/selector/config.yaml
  selector serve --watch-mode=shared
  selector serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "watch the config file and reload static router settings on change")
	serveCmd.Flags().StringVar(&watchMode, "watch-mode", string(bootstrap.WatchModePerRouter),
		"dynamic backend watch concurrency: per-router or shared")
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Println("No configuration found.")
		fmt.Printf("Specify a config file with --config (default %s)\n", cfgFile)
		return nil
	}

	opts := bootstrap.Options{WatchMode: bootstrap.WatchMode(watchMode)}

	var app *bootstrap.App
	var err error
	if hotReload {
		app, err = bootstrap.NewWithHotReload(cfgFile, opts)
	} else {
		cfg, loadErr := config.Load(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		app, err = bootstrap.New(cfg, opts)
	}
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	return app.Run()
}
