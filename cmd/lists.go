package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"trenchwatch/mesh/internal/store"
)

// The blacklist and whitelist commands are structurally identical; both are
// generated from one builder parameterized by list kind.

func init() {
	rootCmd.AddCommand(newListCommand(store.Blacklist, "blacklist",
		"Manage the curated blacklist of known scam actors"))
	rootCmd.AddCommand(newListCommand(store.Whitelist, "whitelist",
		"Manage the curated whitelist of verified actors"))
}

func newListCommand(list store.ListKind, use, short string) *cobra.Command {
	var (
		addType    string
		filterType string
		removeType string
		level      string
		mints      []string
		wallets    []string
		listJSON   bool
	)

	cmd := &cobra.Command{Use: use, Short: short}

	addCmd := &cobra.Command{
		Use:   "add <identifier>",
		Short: fmt.Sprintf("Add or reactivate a %s entry", list),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := OpenDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			kind, err := parseEntryType(addType)
			if err != nil {
				return err
			}
			entry := store.ListEntry{
				EntryType:        kind,
				Identifier:       args[0],
				LinkedTokenMints: mints,
				LinkedWallets:    wallets,
				Level:            level,
				CreatedAt:        time.Now().UnixMilli(),
			}
			if err := db.AddListEntry(cmd.Context(), list, entry); err != nil {
				return err
			}
			fmt.Printf("  Added %s %s to the %s.\n", kind, store.NormalizeID(kind, args[0]), list)
			return nil
		},
	}
	addCmd.Flags().StringVar(&addType, "type", string(store.KindXAccount), "Entry type: wallet, x_account, token, telegram_account, pumpfun_account")
	addCmd.Flags().StringVar(&level, "level", "high", "Risk level (blacklist) or trust level (whitelist)")
	addCmd.Flags().StringSliceVar(&mints, "mints", nil, "Linked token mint addresses")
	addCmd.Flags().StringSliceVar(&wallets, "wallets", nil, "Linked wallet addresses")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List active %s entries", list),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := OpenDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			var kind store.EntityKind
			if filterType != "" {
				kind, err = parseEntryType(filterType)
				if err != nil {
					return err
				}
			}
			entries, err := db.ActiveListEntries(cmd.Context(), list, kind)
			if err != nil {
				return err
			}

			if listJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Printf("  No active %s entries.\n", list)
				return nil
			}
			for _, e := range entries {
				fmt.Printf("  %-17s %s  level=%s\n", e.EntryType, e.Identifier, e.Level)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&filterType, "type", "", "Filter by entry type")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	removeCmd := &cobra.Command{
		Use:   "remove <identifier>",
		Short: fmt.Sprintf("Deactivate a %s entry", list),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := OpenDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			kind, err := parseEntryType(removeType)
			if err != nil {
				return err
			}
			removed, err := db.DeactivateListEntry(cmd.Context(), list, kind, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no active %s entry for %s %s", list, kind, args[0])
			}
			fmt.Printf("  Deactivated %s %s.\n", kind, store.NormalizeID(kind, args[0]))
			return nil
		},
	}
	removeCmd.Flags().StringVar(&removeType, "type", string(store.KindXAccount), "Entry type of the identifier")

	cmd.AddCommand(addCmd, listCmd, removeCmd)
	return cmd
}

func parseEntryType(s string) (store.EntityKind, error) {
	kind := store.EntityKind(s)
	switch kind {
	case store.KindWallet, store.KindXAccount, store.KindToken,
		store.KindTelegramAccount, store.KindPumpfunAccount:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown entry type %q", s)
	}
}
