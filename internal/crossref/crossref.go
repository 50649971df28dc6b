// Package crossref joins mesh identifiers against the curated blacklist and
// whitelist stores.
package crossref

import (
	"context"

	"trenchwatch/mesh/internal/store"
)

// CrossReferencer reads both curated lists and reports membership flags.
type CrossReferencer struct {
	db *store.DB
}

// New builds a cross-referencer over the given store.
func New(db *store.DB) *CrossReferencer {
	return &CrossReferencer{db: db}
}

// CrossReference intersects identifiers with active entries of the matching
// entry type. Handle kinds match case-insensitively; address kinds match
// exactly (addresses are case-sensitive on-chain). Results preserve the input
// order and drop duplicates.
func (c *CrossReferencer) CrossReference(ctx context.Context, identifiers []string, kind store.EntityKind) (blacklisted, whitelisted []string, err error) {
	blackSet, err := c.activeSet(ctx, store.Blacklist, kind)
	if err != nil {
		return nil, nil, err
	}
	whiteSet, err := c.activeSet(ctx, store.Whitelist, kind)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		norm := store.NormalizeID(kind, id)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		if blackSet[norm] {
			blacklisted = append(blacklisted, norm)
		}
		if whiteSet[norm] {
			whitelisted = append(whitelisted, norm)
		}
	}
	return blacklisted, whitelisted, nil
}

// AnyBlacklisted reports whether at least one identifier is on the blacklist.
func (c *CrossReferencer) AnyBlacklisted(ctx context.Context, identifiers []string, kind store.EntityKind) (bool, error) {
	black, _, err := c.CrossReference(ctx, identifiers, kind)
	if err != nil {
		return false, err
	}
	return len(black) > 0, nil
}

func (c *CrossReferencer) activeSet(ctx context.Context, list store.ListKind, kind store.EntityKind) (map[string]bool, error) {
	entries, err := c.db.ActiveListEntries(ctx, list, kind)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		// Entries are normalized at write time; normalize again to be safe
		// against rows imported from elsewhere.
		set[store.NormalizeID(kind, e.Identifier)] = true
	}
	return set, nil
}
