// Package rotation finds accounts that staff multiple communities, a
// heuristic signal of a serial operator moving between token launches.
package rotation

import (
	"context"
	"log/slog"
	"sort"

	"trenchwatch/mesh/internal/store"
)

// Options controls the detection pass. The weights are tuned policy values;
// zero is a valid weight (it removes that term from the score), so only a
// negative weight falls back to the default.
type Options struct {
	MinCommunities int
	Limit          int
	AdminWeight    int
	CoModWeight    int
}

// DefaultOptions returns the production-tuned detection parameters.
func DefaultOptions() Options {
	return Options{
		MinCommunities: 2,
		Limit:          50,
		AdminWeight:    15,
		CoModWeight:    5,
	}
}

// Pattern is one detected rotation: an account staffing MinCommunities or
// more distinct communities.
type Pattern struct {
	Account      string   `json:"account"`
	AdminOf      []string `json:"admin_of"`
	ModOf        []string `json:"mod_of"`
	CoModerators []string `json:"co_moderators"`
	RiskScore    int      `json:"risk_score"`
}

// Detector runs read-only rotation queries against the edge store.
type Detector struct {
	db  *store.DB
	log *slog.Logger
}

// New builds a detector.
func New(db *store.DB, log *slog.Logger) *Detector {
	return &Detector{db: db, log: log}
}

// Detect recomputes rotation patterns on demand. The admin/mod scan is pushed
// to the store's indexed query layer; only staffing edges are materialized,
// never the full edge set.
func (d *Detector) Detect(ctx context.Context, opts Options) ([]Pattern, error) {
	if opts.MinCommunities <= 0 {
		opts.MinCommunities = DefaultOptions().MinCommunities
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultOptions().Limit
	}
	if opts.AdminWeight < 0 {
		opts.AdminWeight = DefaultOptions().AdminWeight
	}
	if opts.CoModWeight < 0 {
		opts.CoModWeight = DefaultOptions().CoModWeight
	}

	adminOf, err := d.staffingByAccount(ctx, store.RelAdminOf)
	if err != nil {
		return nil, err
	}
	modOf, err := d.staffingByAccount(ctx, store.RelModOf)
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]bool, len(adminOf)+len(modOf))
	for acct := range adminOf {
		accounts[acct] = true
	}
	for acct := range modOf {
		accounts[acct] = true
	}

	var patterns []Pattern
	for acct := range accounts {
		admin := setToSorted(adminOf[acct])
		mod := setToSorted(modOf[acct])
		if len(admin)+len(mod) < opts.MinCommunities {
			continue
		}

		coMods, err := d.coModerators(ctx, acct)
		if err != nil {
			return nil, err
		}

		score := opts.AdminWeight*(len(admin)+len(mod)) + opts.CoModWeight*len(coMods)
		if score > 100 {
			score = 100
		}
		patterns = append(patterns, Pattern{
			Account:      acct,
			AdminOf:      admin,
			ModOf:        mod,
			CoModerators: coMods,
			RiskScore:    score,
		})
	}

	// Descending by risk, ties broken by account for deterministic output.
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].RiskScore != patterns[j].RiskScore {
			return patterns[i].RiskScore > patterns[j].RiskScore
		}
		return patterns[i].Account < patterns[j].Account
	})
	if len(patterns) > opts.Limit {
		patterns = patterns[:opts.Limit]
	}

	d.log.Debug("rotation pass complete",
		"accounts_scanned", len(accounts), "patterns", len(patterns))
	return patterns, nil
}

// staffingByAccount groups staffing edges by account into community sets.
func (d *Detector) staffingByAccount(ctx context.Context, rel store.Relation) (map[string]map[string]bool, error) {
	edges, err := d.db.QueryEdges(ctx, store.EdgeFilter{
		SourceKind: store.KindXAccount,
		Relation:   rel,
		TargetKind: store.KindXCommunity,
	})
	if err != nil {
		return nil, err
	}
	byAccount := make(map[string]map[string]bool)
	for _, e := range edges {
		set := byAccount[e.SourceID]
		if set == nil {
			set = make(map[string]bool)
			byAccount[e.SourceID] = set
		}
		set[e.TargetID] = true
	}
	return byAccount, nil
}

// coModerators returns the accounts sharing a co_mod edge with acct.
// co_mod edges are stored once in canonical order, so both directions count.
func (d *Detector) coModerators(ctx context.Context, acct string) ([]string, error) {
	edges, err := d.db.EdgesTouching(ctx, store.KindXAccount, acct, store.RelCoMod)
	if err != nil {
		return nil, err
	}
	partners := make(map[string]bool)
	for _, e := range edges {
		if e.SourceID != acct {
			partners[e.SourceID] = true
		}
		if e.TargetID != acct {
			partners[e.TargetID] = true
		}
	}
	return setToSorted(partners), nil
}

func setToSorted(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
