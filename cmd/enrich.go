package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trenchwatch/mesh/internal/mesh"
)

var (
	enrichToken   string
	enrichWallet  string
	enrichForce   bool
	enrichMaxAge  time.Duration
	enrichNoTeams bool
	enrichJSON    bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <ref>...",
	Short: "Enrich community or account references into the mesh",
	Long: `Enrich fetches each reference (community URL, community id, account URL,
or @handle), validates existence, and writes the derived entities and edges.
Multiple references run sequentially under the external-call rate limit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		enricher, err := buildEnricher(db)
		if err != nil {
			return err
		}
		defer enricher.Close()

		opts := mesh.Options{
			MaxAge:         enrichMaxAge,
			Force:          enrichForce,
			LinkedToken:    enrichToken,
			LinkedWallet:   enrichWallet,
			SkipClustering: enrichNoTeams,
		}

		results, failures := enricher.EnrichBatch(cmd.Context(), args, opts)

		if enrichJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				printResult(r)
			}
		}

		if len(failures) > 0 {
			refs := make([]string, 0, len(failures))
			for ref := range failures {
				refs = append(refs, ref)
			}
			return fmt.Errorf("%d of %d references failed: %s",
				len(failures), len(args), strings.Join(refs, ", "))
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichToken, "token", "", "Mint address to link to the reference")
	enrichCmd.Flags().StringVar(&enrichWallet, "wallet", "", "Wallet address to link to the reference")
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "Re-scrape even if recently checked")
	enrichCmd.Flags().DurationVar(&enrichMaxAge, "max-age", 24*time.Hour, "Skip references checked within this window")
	enrichCmd.Flags().BoolVar(&enrichNoTeams, "no-teams", false, "Skip the team clustering pass")
	enrichCmd.Flags().BoolVar(&enrichJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(enrichCmd)
}

func printResult(r *mesh.Result) {
	if r.Skipped {
		fmt.Printf("  %s %s: skipped (%s)\n", r.KindName, r.ID, r.VerdictName)
		return
	}
	switch r.Kind {
	case mesh.RefCommunity:
		fmt.Printf("  community %s: %s  members=%d admins=%d mods=%d edges+%d\n",
			r.ID, r.VerdictName, r.MemberCount, r.AdminCount, r.ModeratorCount, r.EdgesCreated)
	default:
		fmt.Printf("  account %s: edges+%d\n", r.ID, r.EdgesCreated)
	}
	if r.Flagged {
		fmt.Println("    FLAGGED: staff matches active blacklist")
	}
	if r.AlertSent {
		fmt.Println("    deletion alert delivered")
	}
	if r.TeamID != "" {
		fmt.Printf("    team: %s\n", r.TeamID)
	}
	if r.Degraded {
		fmt.Println("    degraded: member fetch failed, existence judged from web check")
	}
}
