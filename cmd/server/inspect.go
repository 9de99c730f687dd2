package main

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/nero-labs/internal/config"
	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/ashureev/nero-labs/internal/ledger"
	"github.com/ashureev/nero-labs/internal/store"
	"github.com/spf13/cobra"
)

var (
	inspectDB     string
	inspectPrefix string
	inspectRaw    bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <address>",
	Short: "Print the stored wallet snapshot of an address",
	Long:  `Reads the persisted state of a wallet ("guest" for the guest key) and prints it as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectDB, "db", "", "SQLite database path (default: DB_PATH)")
	inspectCmd.Flags().StringVar(&inspectPrefix, "prefix", store.DefaultPrefix, "Storage key prefix")
	inspectCmd.Flags().BoolVar(&inspectRaw, "raw", false, "Print the payload as stored, without normalizing")
}

func runInspect(cmd *cobra.Command, args []string) error {
	dbPath := inspectDB
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		dbPath = cfg.DBPath
	}

	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	address := args[0]
	if address == "guest" {
		address = ""
	}
	key := store.StorageKey(inspectPrefix, address)

	payload, err := repo.GetState(cmd.Context(), key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	out := cmd.OutOrStdout()
	if payload == nil {
		fmt.Fprintf(out, "no stored state for %s\n", key)
		return nil
	}
	if inspectRaw {
		fmt.Fprintln(out, string(payload))
		return nil
	}

	var state domain.UserState
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	pretty, err := json.MarshalIndent(ledger.Normalize(state), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	fmt.Fprintf(out, "%s\n%s\n", key, pretty)
	return nil
}
