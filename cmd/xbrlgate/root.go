package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/artpar/xbrlgate/bootstrap"
	"github.com/artpar/xbrlgate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xbrlgate",
	Short: "API key authentication and rate limiting for the XBRL API",
	Long: `xbrlgate authenticates XBRL API requests by API key, enforces hourly,
daily and monthly limits per tier, and records usage.

Quick start:
  xbrlgate admin hash-token   # Hash an admin token for admin.token_hash
  xbrlgate serve              # Start the server

Management:
  xbrlgate keys               # Manage API keys
  xbrlgate usage              # Inspect recorded usage
  xbrlgate validate           # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "xbrlgate.yaml", "config file path")
}

// loadHolder loads the config file when present, otherwise XBRLGATE_* variables.
func loadHolder() (*config.Holder, error) {
	if _, err := os.Stat(cfgFile); err == nil {
		return config.NewHolder(cfgFile, zerolog.Nop())
	}
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, err
	}
	return config.NewStaticHolder(cfg, zerolog.Nop()), nil
}

// openApp builds the services without the HTTP server, for management commands.
func openApp() (*bootstrap.App, error) {
	holder, err := loadHolder()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	cfg := holder.Get()
	// Management output goes to stdout; keep logs quiet on stderr
	cfg.Logging.Level = "warn"
	cfg.Logging.File = ""
	a, err := bootstrap.New(holder, bootstrap.Options{
		Version:    version,
		Output:     os.Stderr,
		SkipServer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing: %w", err)
	}
	return a, nil
}

func confirm(message string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("? %s [y/N]: ", message)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}
