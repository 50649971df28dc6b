package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const communityColumns = `id, name, member_count, admin_usernames, moderator_usernames,
	       linked_token_mints, linked_wallets, scrape_status, failed_scrape_count,
	       is_flagged, is_deleted, deleted_detected_at, deletion_alert_sent,
	       last_existence_check_at`

// scanCommunity scans a row into a Community. The row must have all 14 columns
// in standard order.
func scanCommunity(scanner interface{ Scan(dest ...any) error }) (Community, error) {
	var c Community
	var admins, mods, mints, wallets string
	err := scanner.Scan(
		&c.ID, &c.Name, &c.MemberCount, &admins, &mods,
		&mints, &wallets, &c.ScrapeStatus, &c.FailedScrapeCount,
		&c.IsFlagged, &c.IsDeleted, &c.DeletedDetectedAt, &c.DeletionAlertSent,
		&c.LastExistenceCheckAt,
	)
	if err != nil {
		return c, err
	}
	c.AdminUsernames = decodeList(admins)
	c.ModeratorUsernames = decodeList(mods)
	c.LinkedTokenMints = decodeList(mints)
	c.LinkedWallets = decodeList(wallets)
	return c, nil
}

// GetCommunity returns a community by id, or ErrNotFound.
func (d *DB) GetCommunity(ctx context.Context, id string) (*Community, error) {
	row := d.conn.QueryRowContext(ctx,
		"SELECT "+communityColumns+" FROM communities WHERE id = ?", id)
	c, err := scanCommunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// EnsureCommunity creates a pending community row if one does not exist yet.
func (d *DB) EnsureCommunity(ctx context.Context, id string) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO communities (id, scrape_status) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, StatusPending)
	return err
}

// RecordScrapeResult overwrites the scrape-derived fields after a successful
// member-list fetch and resets the failure counter. Linked token mints and
// wallets are unioned with existing values, never dropped.
func (d *DB) RecordScrapeResult(ctx context.Context, c *Community) error {
	now := time.Now().UnixMilli()
	existing, err := d.GetCommunity(ctx, c.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	mints := c.LinkedTokenMints
	wallets := c.LinkedWallets
	if existing != nil {
		mints = unionStrings(existing.LinkedTokenMints, mints)
		wallets = unionStrings(existing.LinkedWallets, wallets)
	}
	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO communities (id, name, member_count, admin_usernames, moderator_usernames,
			linked_token_mints, linked_wallets, scrape_status, failed_scrape_count,
			last_existence_check_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			member_count = excluded.member_count,
			admin_usernames = excluded.admin_usernames,
			moderator_usernames = excluded.moderator_usernames,
			linked_token_mints = excluded.linked_token_mints,
			linked_wallets = excluded.linked_wallets,
			scrape_status = excluded.scrape_status,
			failed_scrape_count = 0,
			last_existence_check_at = excluded.last_existence_check_at
		WHERE communities.is_deleted = 0
	`, c.ID, c.Name, c.MemberCount, encodeList(c.AdminUsernames), encodeList(c.ModeratorUsernames),
		encodeList(mints), encodeList(wallets), StatusActive, now)
	if err != nil {
		return fmt.Errorf("recording scrape result: %w", err)
	}
	return nil
}

// UpdateExistence sets the liveness fields after a check that did not confirm
// deletion. Deleted communities are terminal and left untouched.
func (d *DB) UpdateExistence(ctx context.Context, id, status string, failCount int) error {
	_, err := d.conn.ExecContext(ctx, `
		UPDATE communities
		SET scrape_status = ?, failed_scrape_count = ?, last_existence_check_at = ?
		WHERE id = ? AND is_deleted = 0
	`, status, failCount, time.Now().UnixMilli(), id)
	return err
}

// MarkDeleted transitions a community to the terminal deleted state. Returns
// true if this call performed the transition, false if it was already deleted.
func (d *DB) MarkDeleted(ctx context.Context, id string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := d.conn.ExecContext(ctx, `
		UPDATE communities
		SET scrape_status = ?, is_deleted = 1, deleted_detected_at = ?, last_existence_check_at = ?
		WHERE id = ? AND is_deleted = 0
	`, StatusDeleted, now, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkAlertSent sets the sticky deletion_alert_sent flag. The flag only ever
// transitions false to true; the return value reports whether this call won
// the transition, so racing batch runs cannot both claim the alert.
func (d *DB) MarkAlertSent(ctx context.Context, id string) (bool, error) {
	res, err := d.conn.ExecContext(ctx, `
		UPDATE communities SET deletion_alert_sent = 1
		WHERE id = ? AND deletion_alert_sent = 0
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetFlagged records the blacklist cross-reference verdict for a community.
func (d *DB) SetFlagged(ctx context.Context, id string, flagged bool) error {
	_, err := d.conn.ExecContext(ctx,
		"UPDATE communities SET is_flagged = ? WHERE id = ?", flagged, id)
	return err
}

// CommunitiesDueForCheck returns up to limit communities whose last existence
// check is older than maxAge, oldest first. Never-checked communities sort
// first. Deleted communities are skipped once their alert has been delivered;
// a deleted community with an undelivered alert stays due so the next run can
// retry the notification.
func (d *DB) CommunitiesDueForCheck(ctx context.Context, limit int, maxAge time.Duration) ([]Community, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	rows, err := d.conn.QueryContext(ctx, `
		SELECT `+communityColumns+` FROM communities
		WHERE (is_deleted = 0 AND (last_existence_check_at IS NULL OR last_existence_check_at < ?))
		   OR (is_deleted = 1 AND deletion_alert_sent = 0)
		ORDER BY last_existence_check_at ASC NULLS FIRST
		LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var communities []Community
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, err
		}
		communities = append(communities, c)
	}
	return communities, rows.Err()
}

// CommunityStatusCounts returns community counts grouped by scrape status.
func (d *DB) CommunityStatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT scrape_status, COUNT(*) FROM communities GROUP BY scrape_status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// FlaggedCommunityCount returns the number of non-deleted flagged communities.
func (d *DB) FlaggedCommunityCount(ctx context.Context) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM communities WHERE is_flagged = 1 AND is_deleted = 0").Scan(&n)
	return n, err
}

// unionStrings merges b into a preserving order and dropping duplicates.
func unionStrings(a, b []string) []string {
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
