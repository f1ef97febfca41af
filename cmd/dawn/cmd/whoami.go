package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Resolve the identity behind the configured session cookie",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	account, err := newAccount(cfg, newServiceLogger(cfg))
	if err != nil {
		return err
	}
	defer account.Close()

	ident, err := account.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	if jsonOutput() {
		return json.NewEncoder(os.Stdout).Encode(ident)
	}

	fmt.Printf("ID:           %d\n", ident.ID)
	fmt.Printf("Name:         %s\n", ident.Name)
	fmt.Printf("Display name: %s\n", ident.DisplayName)
	return nil
}
