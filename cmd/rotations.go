package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"trenchwatch/mesh/internal/rotation"
)

var (
	rotationsMin         int
	rotationsTop         int
	rotationsAdminWeight int
	rotationsCoModWeight int
	rotationsJSON        bool
)

var rotationsCmd = &cobra.Command{
	Use:   "rotations",
	Short: "Detect accounts staffing multiple communities",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		detector := rotation.New(db, logger)
		patterns, err := detector.Detect(cmd.Context(), rotation.Options{
			MinCommunities: rotationsMin,
			Limit:          rotationsTop,
			AdminWeight:    rotationsAdminWeight,
			CoModWeight:    rotationsCoModWeight,
		})
		if err != nil {
			return err
		}

		if rotationsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(patterns)
		}

		if len(patterns) == 0 {
			fmt.Println("  No rotation patterns found.")
			return nil
		}
		fmt.Printf("\n  ROTATION PATTERNS (%d)\n", len(patterns))
		fmt.Println("  ────────────────────────────────────────")
		for _, p := range patterns {
			fmt.Printf("  @%s  risk=%d  admin of %d, mod of %d\n",
				p.Account, p.RiskScore, len(p.AdminOf), len(p.ModOf))
			if len(p.CoModerators) > 0 {
				fmt.Printf("    co-mods: %s\n", strings.Join(p.CoModerators, ", "))
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rotationsCmd.Flags().IntVar(&rotationsMin, "min", 2, "Minimum distinct communities staffed")
	rotationsCmd.Flags().IntVar(&rotationsTop, "top", 50, "Maximum patterns to report")
	rotationsCmd.Flags().IntVar(&rotationsAdminWeight, "admin-weight", 15, "Risk points per staffed community")
	rotationsCmd.Flags().IntVar(&rotationsCoModWeight, "comod-weight", 5, "Risk points per co-moderator")
	rotationsCmd.Flags().BoolVar(&rotationsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(rotationsCmd)
}
