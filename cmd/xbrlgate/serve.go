package main

import (
	"fmt"
	"os"

	"github.com/artpar/xbrlgate/bootstrap"
	"github.com/artpar/xbrlgate/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the xbrlgate server.

The server will:
  - Load configuration from xbrlgate.yaml (or --config)
  - Or load configuration from XBRLGATE_* environment variables
  - Open the key store and the rate limit ledger
  - Authenticate /api/v1 requests and enforce tier limits
  - Record usage in the background

Environment variables (for Docker deployments):
  XBRLGATE_AUTH_PEPPER       - HMAC pepper for key hashing (required, or KEY_PEPPER)
  XBRLGATE_DATABASE_DRIVER   - sqlite, postgres or memory
  XBRLGATE_DATABASE_DSN      - Database path or URL (default: xbrlgate.db)
  XBRLGATE_LEDGER_BACKEND    - memory, redis, sqlite or postgres
  XBRLGATE_REDIS_ADDR        - Redis address for the redis ledger
  XBRLGATE_SERVER_PORT       - Server port (default: 8080)
  XBRLGATE_LOG_LEVEL         - Log level: debug, info, warn, error
  XBRLGATE_ADMIN_TOKEN_HASH  - bcrypt hash of the admin token

Examples:
  xbrlgate serve
  xbrlgate serve --config /etc/xbrlgate/config.yaml
  xbrlgate serve --hot-reload=false

  # Docker (env vars only):
  XBRLGATE_AUTH_PEPPER=... XBRLGATE_DATABASE_DRIVER=postgres xbrlgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload tiers and log level when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s with at least auth.pepper\n", cfgFile)
		fmt.Println("Option 2: Set XBRLGATE_AUTH_PEPPER (or KEY_PEPPER)")
		return nil
	}

	holder, err := loadHolder()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if !hasConfigFile {
		fmt.Println("Running with environment variables (no config file)")
	}

	app, err := bootstrap.New(holder, bootstrap.Options{Version: version})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	if hasConfigFile {
		holder.SetLogger(app.Logger.With().Str("component", "config").Logger())
		if hotReload {
			if err := holder.WatchFile(); err != nil {
				app.Logger.Warn().Err(err).Msg("config file watch disabled")
			}
		}
		holder.WatchSignals()
	}

	// Run (blocks until shutdown)
	return app.Run()
}

