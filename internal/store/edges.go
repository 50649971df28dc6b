package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const edgeColumns = `id, source_kind, source_id, relation, target_kind, target_id,
	       confidence, discovered_via, metadata, first_seen_at`

// scanEdge scans a row into an Edge. The row must have all 10 columns in standard order.
func scanEdge(scanner interface{ Scan(dest ...any) error }) (Edge, error) {
	var e Edge
	err := scanner.Scan(
		&e.ID, &e.SourceKind, &e.SourceID, &e.Relation, &e.TargetKind,
		&e.TargetID, &e.Confidence, &e.DiscoveredVia, &e.Metadata, &e.FirstSeenAt,
	)
	return e, err
}

// UpsertEdge records a relationship fact. Identifiers are normalized before
// writing. Re-discovery of the same fact is a no-op unless it carries strictly
// higher confidence, in which case confidence, discovered_via and metadata are
// updated in place; first_seen_at never changes. Returns true when a new edge
// row was created.
//
// Concurrent upserts racing on the same natural key converge on one row via
// the UNIQUE constraint; the loser's insert degrades to the conditional update.
func (d *DB) UpsertEdge(ctx context.Context, e Edge) (bool, error) {
	e.SourceID = NormalizeID(e.SourceKind, e.SourceID)
	e.TargetID = NormalizeID(e.TargetKind, e.TargetID)
	if e.SourceID == "" || e.TargetID == "" {
		return false, fmt.Errorf("edge %s: empty identifier", e.Relation)
	}
	if e.Confidence < 0 {
		e.Confidence = 0
	}
	if e.Confidence > 100 {
		e.Confidence = 100
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.FirstSeenAt == 0 {
		e.FirstSeenAt = time.Now().UnixMilli()
	}

	res, err := d.conn.ExecContext(ctx, `
		INSERT INTO edges (`+edgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_kind, source_id, target_kind, target_id, relation) DO NOTHING
	`, e.ID, e.SourceKind, e.SourceID, e.Relation, e.TargetKind, e.TargetID,
		e.Confidence, e.DiscoveredVia, e.Metadata, e.FirstSeenAt)
	if err != nil {
		return false, fmt.Errorf("inserting edge: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return true, nil
	}

	// Existing row: only a strictly higher confidence may overwrite it.
	_, err = d.conn.ExecContext(ctx, `
		UPDATE edges SET confidence = ?, discovered_via = ?, metadata = ?
		WHERE source_kind = ? AND source_id = ? AND target_kind = ? AND target_id = ?
		  AND relation = ? AND confidence < ?
	`, e.Confidence, e.DiscoveredVia, e.Metadata,
		e.SourceKind, e.SourceID, e.TargetKind, e.TargetID, e.Relation, e.Confidence)
	if err != nil {
		return false, fmt.Errorf("updating edge: %w", err)
	}
	return false, nil
}

// EdgeFilter selects edges by any subset of the natural key fields.
// Zero-valued fields are not constrained.
type EdgeFilter struct {
	SourceKind EntityKind
	SourceID   string
	Relation   Relation
	TargetKind EntityKind
	TargetID   string
}

func (f EdgeFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.SourceKind != "" {
		clauses = append(clauses, "source_kind = ?")
		args = append(args, f.SourceKind)
	}
	if f.SourceID != "" {
		clauses = append(clauses, "source_id = ?")
		args = append(args, NormalizeID(f.SourceKind, f.SourceID))
	}
	if f.Relation != "" {
		clauses = append(clauses, "relation = ?")
		args = append(args, f.Relation)
	}
	if f.TargetKind != "" {
		clauses = append(clauses, "target_kind = ?")
		args = append(args, f.TargetKind)
	}
	if f.TargetID != "" {
		clauses = append(clauses, "target_id = ?")
		args = append(args, NormalizeID(f.TargetKind, f.TargetID))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryEdges returns edges matching the filter. The (source_kind, source_id,
// relation) and (target_kind, target_id, relation) indexes serve the common
// caller shapes, so cost scales with matching edges rather than table size.
func (d *DB) QueryEdges(ctx context.Context, f EdgeFilter) ([]Edge, error) {
	where, args := f.where()
	rows, err := d.conn.QueryContext(ctx, "SELECT "+edgeColumns+" FROM edges"+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesTouching returns edges of the given relation where (kind, id) appears
// as either endpoint. Used for symmetric relations such as co_mod, which are
// stored once in canonical order.
func (d *DB) EdgesTouching(ctx context.Context, kind EntityKind, id string, rel Relation) ([]Edge, error) {
	id = NormalizeID(kind, id)
	rows, err := d.conn.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM edges
		WHERE relation = ? AND ((source_kind = ? AND source_id = ?) OR (target_kind = ? AND target_id = ?))
	`, rel, kind, id, kind, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// CountEdges returns the number of edges matching the filter.
func (d *DB) CountEdges(ctx context.Context, f EdgeFilter) (int, error) {
	where, args := f.where()
	var n int
	err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges"+where, args...).Scan(&n)
	return n, err
}

// CountEdgesByRelation returns edge counts grouped by relation.
func (d *DB) CountEdgesByRelation(ctx context.Context) (map[Relation]int, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT relation, COUNT(*) FROM edges GROUP BY relation")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Relation]int)
	for rows.Next() {
		var rel Relation
		var n int
		if err := rows.Scan(&rel, &n); err != nil {
			return nil, err
		}
		counts[rel] = n
	}
	return counts, rows.Err()
}
