package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory [user-id]",
	Short: "List a user's collectible inventory (own inventory by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInventory,
}

func init() {
	rootCmd.AddCommand(inventoryCmd)
}

func runInventory(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
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

	userID := ident.ID
	if len(args) == 1 {
		userID, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing user id %q: %w", args[0], err)
		}
	}

	assets, err := account.GetInventory(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetching inventory: %w", err)
	}

	if jsonOutput() {
		return json.NewEncoder(os.Stdout).Encode(assets)
	}

	fmt.Printf("%d collectibles for user %d\n", len(assets), userID)
	for _, a := range assets {
		name := a.Name()
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %-12d %s\n", a.AssetID, name)
	}
	return nil
}
