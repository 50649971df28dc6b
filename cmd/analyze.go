package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"trenchwatch/mesh/internal/graph"
	"trenchwatch/mesh/internal/store"
)

var (
	analyzeJSON         bool
	analyzeTopN         int
	analyzeHubThreshold int
)

// meshReport is the aggregate view of the mesh printed by analyze.
type meshReport struct {
	EdgesByRelation    map[store.Relation]int `json:"edges_by_relation"`
	CommunitiesByState map[string]int         `json:"communities_by_state"`
	FlaggedCommunities int                    `json:"flagged_communities"`
	ActiveTeams        []store.Team           `json:"active_teams"`
	BlacklistEntries   int                    `json:"blacklist_entries"`
	WhitelistEntries   int                    `json:"whitelist_entries"`
	Topology           *graph.TopologyReport  `json:"topology"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Show mesh-wide statistics: edges, communities, teams, lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		report := meshReport{}

		if report.EdgesByRelation, err = db.CountEdgesByRelation(ctx); err != nil {
			return fmt.Errorf("counting edges: %w", err)
		}
		if report.CommunitiesByState, err = db.CommunityStatusCounts(ctx); err != nil {
			return fmt.Errorf("counting communities: %w", err)
		}
		if report.FlaggedCommunities, err = db.FlaggedCommunityCount(ctx); err != nil {
			return err
		}
		if report.ActiveTeams, err = db.ActiveTeams(ctx); err != nil {
			return err
		}
		black, err := db.ActiveListEntries(ctx, store.Blacklist, "")
		if err != nil {
			return err
		}
		white, err := db.ActiveListEntries(ctx, store.Whitelist, "")
		if err != nil {
			return err
		}
		report.BlacklistEntries = len(black)
		report.WhitelistEntries = len(white)

		snap, err := graph.SnapshotFromStore(ctx, db)
		if err != nil {
			return fmt.Errorf("loading graph: %w", err)
		}
		report.Topology = graph.ComputeTopology(snap, analyzeHubThreshold, analyzeTopN)

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		printReport(report)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output as JSON")
	analyzeCmd.Flags().IntVar(&analyzeTopN, "top-n", 10, "Number of hub entities to show")
	analyzeCmd.Flags().IntVar(&analyzeHubThreshold, "hub-threshold", 5, "Minimum degree to consider an entity a hub")
	rootCmd.AddCommand(analyzeCmd)
}

func printReport(r meshReport) {
	fmt.Println("\n  EDGES")
	fmt.Println("  ────────────────────────────────────────")
	total := 0
	for _, rel := range sortedRelations(r.EdgesByRelation) {
		n := r.EdgesByRelation[rel]
		total += n
		fmt.Printf("  %-15s %5d\n", rel, n)
	}
	fmt.Printf("  %-15s %5d\n", "total", total)

	fmt.Println("\n  COMMUNITIES")
	fmt.Println("  ────────────────────────────────────────")
	for _, status := range []string{store.StatusPending, store.StatusActive, store.StatusSuspected, store.StatusDeleted} {
		if n := r.CommunitiesByState[status]; n > 0 {
			fmt.Printf("  %-10s %5d\n", status, n)
		}
	}
	if r.FlaggedCommunities > 0 {
		fmt.Printf("  %-10s %5d\n", "flagged", r.FlaggedCommunities)
	}

	fmt.Println("\n  TEAMS")
	fmt.Println("  ────────────────────────────────────────")
	if len(r.ActiveTeams) == 0 {
		fmt.Println("  none")
	}
	for _, t := range r.ActiveTeams {
		fmt.Printf("  %s  risk=%-6s  members=%d  tokens=%d  rugged=%d\n",
			truncID(t.ID), t.RiskLevel,
			len(t.MemberWallets)+len(t.MemberTwitterAccounts),
			t.TokensCreated, t.TokensRugged)
	}

	if tp := r.Topology; tp != nil && tp.TotalNodes > 0 {
		fmt.Println("\n  TOPOLOGY")
		fmt.Println("  ────────────────────────────────────────")
		fmt.Printf("  Entities: %d  Components: %d  Largest: %d\n",
			tp.TotalNodes, tp.NumComponents, tp.LargestComponent)
		for _, hub := range tp.Hubs {
			fmt.Printf("    %s %s  degree=%d\n", hub.Entity.Kind, hub.Entity.ID, hub.Degree)
		}
	}

	fmt.Printf("\n  Lists: %d blacklist, %d whitelist entries\n\n",
		r.BlacklistEntries, r.WhitelistEntries)
}

func sortedRelations(m map[store.Relation]int) []store.Relation {
	rels := make([]store.Relation, 0, len(m))
	for rel := range m {
		rels = append(rels, rel)
	}
	sort.Slice(rels, func(i, j int) bool {
		return strings.Compare(string(rels[i]), string(rels[j])) < 0
	})
	return rels
}
