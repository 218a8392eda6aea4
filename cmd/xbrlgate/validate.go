package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/artpar/xbrlgate/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the xbrlgate configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Stores and ledger are reachable (optional)

Examples:
  xbrlgate validate
  xbrlgate validate --check-stores --config /etc/xbrlgate/config.yaml`,
	RunE: runValidate,
}

var validateCheckStores bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckStores, "check-stores", false, "open and ping the database and ledger")
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
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	tiers, _ := cfg.TierLimits()
	fmt.Printf("  %s Database: %s, ledger: %s\n", checkMark, cfg.Database.Driver, cfg.Ledger.Backend)
	fmt.Printf("  %s Tier overrides: %d\n", checkMark, len(tiers))
	if cfg.Admin.TokenHash == "" {
		fmt.Printf("  %s Admin API disabled (admin.token_hash not set)\n", crossMark)
	} else {
		fmt.Printf("  %s Admin API enabled\n", checkMark)
	}

	if validateCheckStores {
		if err := checkStores(); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkStores() error {
	a, err := openApp()
	if err != nil {
		fmt.Printf("  %s Stores open\n", crossMark)
		return err
	}
	defer a.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	checks := a.Checks()
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed bool
	for _, name := range names {
		if err := checks[name].Ping(ctx); err != nil {
			fmt.Printf("  %s %s reachable: %v\n", crossMark, name, err)
			failed = true
			continue
		}
		fmt.Printf("  %s %s reachable\n", checkMark, name)
	}
	if failed {
		return fmt.Errorf("store check failed")
	}
	return nil
}
