// Package teams groups wallets and social handles into persisted team
// aggregates by transitive closure over shared staffing and token links.
package teams

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"trenchwatch/mesh/internal/store"
)

// Identifier is one union-find node: a wallet address or social handle.
type Identifier struct {
	Kind store.EntityKind
	ID   string
}

// Ident builds a normalized identifier.
func Ident(kind store.EntityKind, id string) Identifier {
	return Identifier{Kind: kind, ID: store.NormalizeID(kind, id)}
}

// Key returns the union-find key for the identifier.
func (i Identifier) Key() string {
	return string(i.Kind) + ":" + i.ID
}

func parseKey(key string) Identifier {
	kind, id, _ := strings.Cut(key, ":")
	return Identifier{Kind: store.EntityKind(kind), ID: id}
}

// Clusterer runs find-or-create-and-merge clustering passes over the mesh.
type Clusterer struct {
	db  *store.DB
	log *slog.Logger
}

// NewClusterer builds a clusterer.
func NewClusterer(db *store.DB, log *slog.Logger) *Clusterer {
	return &Clusterer{db: db, log: log}
}

// Cluster expands the seed identifiers through co-moderation edges, shared
// token links and existing team membership, unions the result, and persists
// the component as a team when it reaches two or more identifiers. Touching an
// existing team merges into it (set union, never duplication); overlapping
// teams collapse into the oldest one. Returns nil when no component of size
// >=2 contains a seed.
func (c *Clusterer) Cluster(ctx context.Context, seeds []Identifier) (*store.Team, error) {
	members := make(map[string]Identifier)
	for _, s := range seeds {
		s = Ident(s.Kind, s.ID)
		if s.ID == "" {
			continue
		}
		if s.Kind == store.KindWallet || s.Kind == store.KindXAccount {
			members[s.Key()] = s
		}
	}
	if len(members) == 0 {
		return nil, nil
	}

	uf := newUnionFind()
	for key := range members {
		uf.add(key)
	}

	// Rule 1: co-staffing. Accounts sharing a co_mod edge belong together.
	for key, id := range copyMembers(members) {
		if id.Kind != store.KindXAccount {
			continue
		}
		edges, err := c.db.EdgesTouching(ctx, store.KindXAccount, id.ID, store.RelCoMod)
		if err != nil {
			return nil, fmt.Errorf("expanding co_mod for %s: %w", id.ID, err)
		}
		for _, e := range edges {
			partner := Ident(store.KindXAccount, e.SourceID)
			if partner.ID == id.ID {
				partner = Ident(store.KindXAccount, e.TargetID)
			}
			members[partner.Key()] = partner
			uf.union(key, partner.Key())
		}
	}

	// Rule 2: shared token links. Identifiers linked to the same mint are
	// unioned, and the mint's other linked identifiers join the pass.
	tokensByMember := make(map[string][]string)
	for key, id := range copyMembers(members) {
		mints, err := c.linkedTokens(ctx, id)
		if err != nil {
			return nil, err
		}
		tokensByMember[key] = mints
		for _, mint := range mints {
			linked, err := c.tokenLinkedIdentifiers(ctx, mint)
			if err != nil {
				return nil, err
			}
			for _, other := range linked {
				members[other.Key()] = other
				uf.union(key, other.Key())
				tokensByMember[other.Key()] = append(tokensByMember[other.Key()], mint)
			}
		}
	}

	// Rule 3: existing team membership.
	wallets, handles := splitByKind(members)
	touching, err := c.db.TeamsTouchingIdentifiers(ctx, wallets, handles)
	if err != nil {
		return nil, fmt.Errorf("finding touching teams: %w", err)
	}
	for i := range touching {
		teamIdents := teamIdentifiers(&touching[i])
		if len(teamIdents) == 0 {
			continue
		}
		for j, id := range teamIdents {
			members[id.Key()] = id
			if j > 0 {
				uf.union(teamIdents[0].Key(), id.Key())
			}
		}
		// The team's own members bridge to the gathered set through the
		// shared identifier that matched it.
		for key := range members {
			if identifierInTeam(parseKey(key), &touching[i]) {
				uf.union(key, teamIdents[0].Key())
			}
		}
	}

	// The component containing the first usable seed is the cluster.
	var seedKey string
	for _, s := range seeds {
		s = Ident(s.Kind, s.ID)
		if _, ok := members[s.Key()]; ok {
			seedKey = s.Key()
			break
		}
	}
	if seedKey == "" || uf.componentSize(seedKey) < 2 {
		return nil, nil
	}

	component := make([]Identifier, 0)
	for _, key := range uf.componentOf(seedKey) {
		component = append(component, parseKey(key))
	}

	team, retired := pickTeam(touching, component)
	if err := c.populateTeam(ctx, team, component, tokensByMember); err != nil {
		return nil, err
	}
	if err := c.db.SaveTeam(ctx, team); err != nil {
		return nil, err
	}
	for _, old := range retired {
		if err := c.db.DeactivateTeam(ctx, old); err != nil {
			return nil, err
		}
	}

	c.log.Info("clustering pass complete",
		"team", team.ID, "members", len(component), "risk", team.RiskLevel)
	return team, nil
}

// linkedTokens returns mints the identifier is linked to: directly by edge,
// or through a community it staffs (accounts) or is a linked wallet of.
func (c *Clusterer) linkedTokens(ctx context.Context, id Identifier) ([]string, error) {
	mints := make(map[string]bool)
	direct, err := c.db.QueryEdges(ctx, store.EdgeFilter{
		SourceKind: id.Kind, SourceID: id.ID, TargetKind: store.KindToken,
	})
	if err != nil {
		return nil, err
	}
	for _, e := range direct {
		mints[e.TargetID] = true
	}

	communities, err := c.communitiesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, comm := range communities {
		tokenEdges, err := c.db.QueryEdges(ctx, store.EdgeFilter{
			SourceKind: store.KindXCommunity, SourceID: comm, Relation: store.RelCommunityFor,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range tokenEdges {
			mints[e.TargetID] = true
		}
	}
	return sortedKeys(mints), nil
}

// communitiesOf returns communities the identifier is attached to: staffed
// communities for accounts, wallet-linked communities for wallets.
func (c *Clusterer) communitiesOf(ctx context.Context, id Identifier) ([]string, error) {
	set := make(map[string]bool)
	switch id.Kind {
	case store.KindXAccount:
		staffing, err := c.db.QueryEdges(ctx, store.EdgeFilter{
			SourceKind: store.KindXAccount, SourceID: id.ID, TargetKind: store.KindXCommunity,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range staffing {
			if e.Relation == store.RelAdminOf || e.Relation == store.RelModOf {
				set[e.TargetID] = true
			}
		}
	case store.KindWallet:
		links, err := c.db.QueryEdges(ctx, store.EdgeFilter{
			SourceKind: store.KindXCommunity, Relation: store.RelLinkedWallet,
			TargetKind: store.KindWallet, TargetID: id.ID,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range links {
			set[e.SourceID] = true
		}
	}
	return sortedKeys(set), nil
}

// tokenLinkedIdentifiers returns wallets and accounts linked to a mint,
// directly or through the communities launched for it.
func (c *Clusterer) tokenLinkedIdentifiers(ctx context.Context, mint string) ([]Identifier, error) {
	var ids []Identifier
	direct, err := c.db.QueryEdges(ctx, store.EdgeFilter{
		TargetKind: store.KindToken, TargetID: mint,
	})
	if err != nil {
		return nil, err
	}
	var communities []string
	for _, e := range direct {
		switch e.SourceKind {
		case store.KindWallet, store.KindXAccount:
			ids = append(ids, Identifier{Kind: e.SourceKind, ID: e.SourceID})
		case store.KindXCommunity:
			if e.Relation == store.RelCommunityFor {
				communities = append(communities, e.SourceID)
			}
		}
	}

	for _, comm := range communities {
		staff, err := c.db.QueryEdges(ctx, store.EdgeFilter{
			TargetKind: store.KindXCommunity, TargetID: comm,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range staff {
			if e.SourceKind == store.KindXAccount &&
				(e.Relation == store.RelAdminOf || e.Relation == store.RelModOf) {
				ids = append(ids, Identifier{Kind: store.KindXAccount, ID: e.SourceID})
			}
		}
		wallets, err := c.db.QueryEdges(ctx, store.EdgeFilter{
			SourceKind: store.KindXCommunity, SourceID: comm, Relation: store.RelLinkedWallet,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range wallets {
			if e.TargetKind == store.KindWallet {
				ids = append(ids, Identifier{Kind: store.KindWallet, ID: e.TargetID})
			}
		}
	}
	return ids, nil
}

// populateTeam rebuilds the team's member arrays from the component, unioning
// with whatever the team already holds, and recomputes rollups and risk.
func (c *Clusterer) populateTeam(ctx context.Context, team *store.Team, component []Identifier, tokensByMember map[string][]string) error {
	mints := make(map[string]bool)
	for _, m := range team.LinkedTokenMints {
		mints[m] = true
	}
	communities := make(map[string]bool)
	for _, cm := range team.LinkedXCommunities {
		communities[cm] = true
	}
	admins := make(map[string]bool)
	for _, a := range team.AdminUsernames {
		admins[a] = true
	}
	mods := make(map[string]bool)
	for _, m := range team.ModeratorUsernames {
		mods[m] = true
	}

	for _, id := range component {
		switch id.Kind {
		case store.KindWallet:
			team.MemberWallets = unionInto(team.MemberWallets, id.ID)
		case store.KindXAccount:
			team.MemberTwitterAccounts = unionInto(team.MemberTwitterAccounts, id.ID)
			staffing, err := c.db.QueryEdges(ctx, store.EdgeFilter{
				SourceKind: store.KindXAccount, SourceID: id.ID, TargetKind: store.KindXCommunity,
			})
			if err != nil {
				return err
			}
			for _, e := range staffing {
				switch e.Relation {
				case store.RelAdminOf:
					admins[id.ID] = true
					communities[e.TargetID] = true
				case store.RelModOf:
					mods[id.ID] = true
					communities[e.TargetID] = true
				}
			}
		}
		for _, m := range tokensByMember[id.Key()] {
			mints[m] = true
		}
	}

	team.AdminUsernames = sortedKeys(admins)
	team.ModeratorUsernames = sortedKeys(mods)
	team.LinkedTokenMints = sortedKeys(mints)
	team.LinkedXCommunities = sortedKeys(communities)
	sort.Strings(team.MemberWallets)
	sort.Strings(team.MemberTwitterAccounts)

	if len(team.LinkedTokenMints) > team.TokensCreated {
		team.TokensCreated = len(team.LinkedTokenMints)
	}
	rugged, err := c.ruggedCount(ctx, team.LinkedTokenMints)
	if err != nil {
		return err
	}
	if rugged > team.TokensRugged {
		team.TokensRugged = rugged
	}
	team.RiskLevel = RiskLevel(team.TokensCreated, team.TokensRugged)
	team.IsActive = true
	return nil
}

// ruggedCount counts linked mints present on the active token blacklist.
func (c *Clusterer) ruggedCount(ctx context.Context, mints []string) (int, error) {
	entries, err := c.db.ActiveListEntries(ctx, store.Blacklist, store.KindToken)
	if err != nil {
		return 0, err
	}
	bad := make(map[string]bool, len(entries))
	for _, e := range entries {
		bad[e.Identifier] = true
	}
	n := 0
	for _, m := range mints {
		if bad[m] {
			n++
		}
	}
	return n, nil
}

// RiskLevel derives a team risk level from its token track record.
func RiskLevel(created, rugged int) string {
	switch {
	case rugged >= 1:
		return store.RiskHigh
	case created >= 3:
		return store.RiskMedium
	default:
		return store.RiskLow
	}
}

// pickTeam chooses the merge target: the oldest touching team, or a fresh
// team when none touch the component. Other touching teams are retired.
func pickTeam(touching []store.Team, component []Identifier) (*store.Team, []string) {
	var candidates []store.Team
	for _, t := range touching {
		for _, id := range component {
			if identifierInTeam(id, &t) {
				candidates = append(candidates, t)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return &store.Team{IsActive: true}, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt < candidates[j].CreatedAt
	})
	target := candidates[0]
	var retired []string
	for _, t := range candidates[1:] {
		target.MemberWallets = unionStringsAll(target.MemberWallets, t.MemberWallets)
		target.MemberTwitterAccounts = unionStringsAll(target.MemberTwitterAccounts, t.MemberTwitterAccounts)
		target.AdminUsernames = unionStringsAll(target.AdminUsernames, t.AdminUsernames)
		target.ModeratorUsernames = unionStringsAll(target.ModeratorUsernames, t.ModeratorUsernames)
		target.LinkedTokenMints = unionStringsAll(target.LinkedTokenMints, t.LinkedTokenMints)
		target.LinkedXCommunities = unionStringsAll(target.LinkedXCommunities, t.LinkedXCommunities)
		if t.TokensCreated > target.TokensCreated {
			target.TokensCreated = t.TokensCreated
		}
		if t.TokensRugged > target.TokensRugged {
			target.TokensRugged = t.TokensRugged
		}
		retired = append(retired, t.ID)
	}
	return &target, retired
}

func teamIdentifiers(t *store.Team) []Identifier {
	var ids []Identifier
	for _, w := range t.MemberWallets {
		ids = append(ids, Ident(store.KindWallet, w))
	}
	for _, h := range t.MemberTwitterAccounts {
		ids = append(ids, Ident(store.KindXAccount, h))
	}
	return ids
}

func identifierInTeam(id Identifier, t *store.Team) bool {
	switch id.Kind {
	case store.KindWallet:
		for _, w := range t.MemberWallets {
			if w == id.ID {
				return true
			}
		}
	case store.KindXAccount:
		for _, h := range t.MemberTwitterAccounts {
			if store.NormalizeID(store.KindXAccount, h) == id.ID {
				return true
			}
		}
	}
	return false
}

func copyMembers(m map[string]Identifier) map[string]Identifier {
	out := make(map[string]Identifier, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func splitByKind(members map[string]Identifier) (wallets, handles []string) {
	for _, id := range members {
		switch id.Kind {
		case store.KindWallet:
			wallets = append(wallets, id.ID)
		case store.KindXAccount:
			handles = append(handles, id.ID)
		}
	}
	return wallets, handles
}

func unionInto(list []string, item string) []string {
	for _, s := range list {
		if s == item {
			return list
		}
	}
	return append(list, item)
}

func unionStringsAll(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
