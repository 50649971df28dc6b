package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"trenchwatch/mesh/internal/mesh"
	"trenchwatch/mesh/internal/store"
	"trenchwatch/mesh/internal/teams"
)

var teamsJSON bool

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List active teams",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		active, err := db.ActiveTeams(cmd.Context())
		if err != nil {
			return err
		}

		if teamsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(active)
		}

		if len(active) == 0 {
			fmt.Println("  No active teams.")
			return nil
		}
		fmt.Printf("\n  ACTIVE TEAMS (%d)\n", len(active))
		fmt.Println("  ────────────────────────────────────────")
		for _, t := range active {
			fmt.Printf("  %s  risk=%s  wallets=%d accounts=%d tokens=%d rugged=%d\n",
				truncID(t.ID), t.RiskLevel,
				len(t.MemberWallets), len(t.MemberTwitterAccounts),
				t.TokensCreated, t.TokensRugged)
			if len(t.LinkedXCommunities) > 0 {
				fmt.Printf("    communities: %s\n", strings.Join(t.LinkedXCommunities, ", "))
			}
		}
		fmt.Println()
		return nil
	},
}

var teamsClusterCmd = &cobra.Command{
	Use:   "cluster <identifier>...",
	Short: "Run a clustering pass from explicit seed identifiers",
	Long: `Cluster unions the seed identifiers with every related identifier it can
reach through co-moderation, shared token links, and existing team membership.
Seeds are wallet addresses or @handles; prefix with kind: to be explicit,
e.g. wallet:9xQe... or x_account:somedev.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		seeds := make([]teams.Identifier, 0, len(args))
		for _, arg := range args {
			id, err := parseSeed(arg)
			if err != nil {
				return err
			}
			seeds = append(seeds, id)
		}

		clusterer := teams.NewClusterer(db, logger)
		team, err := clusterer.Cluster(cmd.Context(), seeds)
		if err != nil {
			return err
		}
		if team == nil {
			fmt.Println("  No cluster formed: the seeds connect to nothing else.")
			return nil
		}

		if teamsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(team)
		}
		fmt.Printf("  Team %s  risk=%s\n", team.ID, team.RiskLevel)
		fmt.Printf("    wallets:  %s\n", strings.Join(team.MemberWallets, ", "))
		fmt.Printf("    accounts: %s\n", strings.Join(team.MemberTwitterAccounts, ", "))
		if len(team.LinkedTokenMints) > 0 {
			fmt.Printf("    tokens:   %s\n", strings.Join(team.LinkedTokenMints, ", "))
		}
		return nil
	},
}

func init() {
	teamsCmd.PersistentFlags().BoolVar(&teamsJSON, "json", false, "Output as JSON")
	teamsCmd.AddCommand(teamsClusterCmd)
	rootCmd.AddCommand(teamsCmd)
}

// parseSeed turns a CLI argument into a typed identifier. Explicit kind: prefix
// wins; otherwise base58 addresses are wallets and anything else is a handle.
func parseSeed(arg string) (teams.Identifier, error) {
	if kind, id, ok := strings.Cut(arg, ":"); ok {
		switch store.EntityKind(kind) {
		case store.KindWallet, store.KindXAccount, store.KindToken:
			return teams.Ident(store.EntityKind(kind), id), nil
		default:
			return teams.Identifier{}, fmt.Errorf("unsupported seed kind %q", kind)
		}
	}
	if mesh.ValidAddress(arg) {
		return teams.Ident(store.KindWallet, arg), nil
	}
	return teams.Ident(store.KindXAccount, arg), nil
}

func truncID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
