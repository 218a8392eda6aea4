package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/artpar/xbrlgate/adapters/hasher"
	"github.com/artpar/xbrlgate/adapters/random"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin API helpers",
}

var adminHashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Hash an admin token for admin.token_hash",
	Long: `Print the bcrypt hash of an admin token.

Without an argument the token is read from stdin. With --generate a random
token is created and printed along with its hash.

Examples:
  xbrlgate admin hash-token --generate
  echo -n "$TOKEN" | xbrlgate admin hash-token`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdminHashToken,
}

var (
	adminGenerate bool
	adminCost     int
)

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminHashTokenCmd)

	adminHashTokenCmd.Flags().BoolVar(&adminGenerate, "generate", false, "generate a random token")
	adminHashTokenCmd.Flags().IntVar(&adminCost, "cost", 12, "bcrypt cost")
}

func runAdminHashToken(cmd *cobra.Command, args []string) error {
	var token string
	switch {
	case adminGenerate:
		t, err := random.Real{}.String(40)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		token = t
	case len(args) == 1:
		token = args[0]
	default:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if len(token) < 16 {
		return fmt.Errorf("admin token must be at least 16 characters")
	}

	hash, err := hasher.NewBcrypt(adminCost).Hash(token)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	if adminGenerate {
		fmt.Println("Admin token (save this, shown once):")
		fmt.Printf("  %s\n\n", token)
	}
	fmt.Println("Add to your config:")
	fmt.Println("  admin:")
	fmt.Printf("    token_hash: %q\n", string(hash))
	return nil
}
