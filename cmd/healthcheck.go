package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trenchwatch/mesh/internal/mesh"
)

var (
	healthLimit  int
	healthMaxAge time.Duration
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Re-check existence of communities whose last check is stale",
	Long: `Healthcheck pages through communities whose last existence check is
older than --max-age, oldest first, and runs the enrichment pipeline on each.
Deleted communities with an undelivered deletion alert are included so the
notification is retried. A failing community is logged and the run continues.`,
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

		due, err := db.CommunitiesDueForCheck(cmd.Context(), healthLimit, healthMaxAge)
		if err != nil {
			return fmt.Errorf("listing communities due for check: %w", err)
		}
		if len(due) == 0 {
			fmt.Println("  No communities due for an existence check.")
			return nil
		}

		refs := make([]string, len(due))
		for i, c := range due {
			refs[i] = c.ID
		}

		opts := mesh.Options{MaxAge: healthMaxAge, SkipClustering: true}
		results, failures := enricher.EnrichBatch(cmd.Context(), refs, opts)

		deleted, suspected, alerts := 0, 0, 0
		for _, r := range results {
			switch r.VerdictName {
			case "deleted":
				deleted++
			case "suspected":
				suspected++
			}
			if r.AlertSent {
				alerts++
			}
		}
		fmt.Printf("  Checked %d communities: %d deleted, %d suspected, %d alerts sent, %d errors\n",
			len(results), deleted, suspected, alerts, len(failures))
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().IntVar(&healthLimit, "limit", 50, "Maximum communities to check in one run")
	healthcheckCmd.Flags().DurationVar(&healthMaxAge, "max-age", 24*time.Hour, "Only check communities last checked before this window")
	rootCmd.AddCommand(healthcheckCmd)
}
