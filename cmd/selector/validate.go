package main

import (
	"fmt"
	"os"

	"github.com/artpar/selector/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the selector configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present on every router
  - Each router's dynamic backend (if any) is fully configured

Examples:
  selector validate
  selector validate --config /etc/selector/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config syntax valid\n", checkMark)

	fmt.Printf("  %s Routers configured: %d\n", checkMark, len(cfg.Routers))
	for _, r := range cfg.Routers {
		status := "enabled"
		if r.Disabled {
			status = "disabled"
		}
		backend := "static"
		if r.Dynamic != nil {
			backend = r.Dynamic.Backend
		}
		fmt.Printf("      - %s (%s, hosts=%v, dynamic=%s)\n", r.Name, status, r.Hosts, backend)
	}

	if cfg.Admin.Enabled {
		fmt.Printf("  %s Admin server: %s\n", checkMark, cfg.Admin.Addr)
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
