package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/artpar/xbrlgate/app"
	"github.com/artpar/xbrlgate/domain/key"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Manage xbrlgate API keys.

Each owner may hold a limited number of active keys. The plaintext of a
key is printed once at creation and cannot be recovered.

Examples:
  xbrlgate keys list
  xbrlgate keys list --owner=user_123
  xbrlgate keys create --owner=user_123 --tier=pro
  xbrlgate keys revoke 5f0c...
  xbrlgate keys reset-limits 5f0c...`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runKeysList,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var keysResetCmd = &cobra.Command{
	Use:   "reset-limits <key-id>",
	Short: "Clear the rate limit counters of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysReset,
}

var (
	keyOwnerID   string
	keyName      string
	keyTier      string
	keyExpiresIn string
	keyYes       bool
)

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)
	keysCmd.AddCommand(keysResetCmd)

	keysListCmd.Flags().StringVar(&keyOwnerID, "owner", "", "filter by owner ID")
	keysCreateCmd.Flags().StringVar(&keyOwnerID, "owner", "", "owner ID (required)")
	keysCreateCmd.Flags().StringVar(&keyName, "name", "", "key name (optional)")
	keysCreateCmd.Flags().StringVar(&keyTier, "tier", "free", "tier: free, basic, pro or enterprise")
	keysCreateCmd.Flags().StringVar(&keyExpiresIn, "expires-in", "", `lifetime such as 720h, or "never" (default from config)`)
	keysCreateCmd.MarkFlagRequired("owner")
	keysRevokeCmd.Flags().BoolVarP(&keyYes, "yes", "y", false, "skip confirmation")
}

func runKeysList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	keys, err := a.Keys.List(context.Background(), keyOwnerID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(keys) == 0 {
		if keyOwnerID != "" {
			fmt.Printf("No keys found for owner %s.\n", keyOwnerID)
		} else {
			fmt.Println("No API keys found.")
		}
		fmt.Println()
		fmt.Println("Create a key with: xbrlgate keys create --owner=<owner-id>")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPREFIX\tOWNER\tTIER\tSTATUS\tEXPIRES\tLAST USED")
	fmt.Fprintln(w, "--\t------\t-----\t----\t------\t-------\t---------")

	for _, k := range keys {
		status := string(k.Status)
		if k.Status == key.StatusActive && !key.IsActive(k, now) {
			status = string(key.StatusExpired)
		}
		fmt.Fprintf(w, "%s\t%s...\t%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.Prefix, k.OwnerID, k.Tier, status, formatTime(k.ExpiresAt), formatTime(k.LastUsed))
	}

	return w.Flush()
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	params := app.IssueParams{OwnerID: keyOwnerID, Name: keyName, Tier: keyTier}
	switch keyExpiresIn {
	case "":
	case "never":
		params.ExpiresIn = -1
	default:
		d, err := time.ParseDuration(keyExpiresIn)
		if err != nil || d <= 0 {
			return fmt.Errorf("--expires-in must be a positive duration or \"never\"")
		}
		params.ExpiresIn = d
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	plaintext, k, err := a.Keys.Issue(context.Background(), params)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	fmt.Printf("%s Created %s API key for owner %s\n", checkMark, k.Tier, k.OwnerID)
	fmt.Println()
	fmt.Println("API Key (save this, shown once):")
	fmt.Printf("  %s\n", plaintext)
	fmt.Println()
	fmt.Printf("Key ID:  %s\n", k.ID)
	fmt.Printf("Expires: %s\n", formatTime(k.ExpiresAt))
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	keyID := args[0]

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ctx := context.Background()
	k, err := a.Keys.Get(ctx, keyID)
	if err != nil {
		return fmt.Errorf("key not found: %s", keyID)
	}
	if k.Status == key.StatusRevoked {
		fmt.Printf("Key %s is already revoked.\n", keyID)
		return nil
	}

	if !keyYes && !confirm(fmt.Sprintf("Revoke key %s (%s...)?", keyID, k.Prefix)) {
		fmt.Println("Aborted.")
		return nil
	}

	if err := a.Keys.Revoke(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	fmt.Printf("%s Revoked key: %s\n", checkMark, keyID)
	return nil
}

func runKeysReset(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if err := a.Keys.ResetLimits(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to reset limits: %w", err)
	}
	fmt.Printf("%s Reset rate limits of key: %s\n", checkMark, args[0])
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
