package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const teamColumns = `team_id, member_wallets, member_twitter_accounts, admin_usernames,
	       moderator_usernames, linked_token_mints, linked_x_communities,
	       tokens_created, tokens_rugged, risk_level, is_active, created_at, updated_at`

func scanTeam(scanner interface{ Scan(dest ...any) error }) (Team, error) {
	var t Team
	var wallets, twitter, admins, mods, mints, communities string
	err := scanner.Scan(
		&t.ID, &wallets, &twitter, &admins,
		&mods, &mints, &communities,
		&t.TokensCreated, &t.TokensRugged, &t.RiskLevel, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	t.MemberWallets = decodeList(wallets)
	t.MemberTwitterAccounts = decodeList(twitter)
	t.AdminUsernames = decodeList(admins)
	t.ModeratorUsernames = decodeList(mods)
	t.LinkedTokenMints = decodeList(mints)
	t.LinkedXCommunities = decodeList(communities)
	return t, nil
}

// GetTeam returns a team by id, or ErrNotFound.
func (d *DB) GetTeam(ctx context.Context, id string) (*Team, error) {
	row := d.conn.QueryRowContext(ctx, "SELECT "+teamColumns+" FROM teams WHERE team_id = ?", id)
	t, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ActiveTeams returns all active teams.
func (d *DB) ActiveTeams(ctx context.Context) ([]Team, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT "+teamColumns+" FROM teams WHERE is_active = 1 ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// SaveTeam inserts or fully replaces a team row. New teams get a UUID.
func (d *DB) SaveTeam(ctx context.Context, t *Team) error {
	now := time.Now().UnixMilli()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO teams (`+teamColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET
			member_wallets = excluded.member_wallets,
			member_twitter_accounts = excluded.member_twitter_accounts,
			admin_usernames = excluded.admin_usernames,
			moderator_usernames = excluded.moderator_usernames,
			linked_token_mints = excluded.linked_token_mints,
			linked_x_communities = excluded.linked_x_communities,
			tokens_created = excluded.tokens_created,
			tokens_rugged = excluded.tokens_rugged,
			risk_level = excluded.risk_level,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, t.ID, encodeList(t.MemberWallets), encodeList(t.MemberTwitterAccounts),
		encodeList(t.AdminUsernames), encodeList(t.ModeratorUsernames),
		encodeList(t.LinkedTokenMints), encodeList(t.LinkedXCommunities),
		t.TokensCreated, t.TokensRugged, t.RiskLevel, t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving team %s: %w", t.ID, err)
	}
	return nil
}

// DeactivateTeam marks a team inactive. Teams are never deleted.
func (d *DB) DeactivateTeam(ctx context.Context, id string) error {
	_, err := d.conn.ExecContext(ctx, "UPDATE teams SET is_active = 0, updated_at = ? WHERE team_id = ?",
		time.Now().UnixMilli(), id)
	return err
}

// TeamsTouchingIdentifiers returns active teams whose member arrays contain any
// of the given wallet addresses or twitter handles. Team counts are small, so
// the filter runs over the loaded set rather than pushing JSON matching into SQL.
func (d *DB) TeamsTouchingIdentifiers(ctx context.Context, wallets, handles []string) ([]Team, error) {
	teams, err := d.ActiveTeams(ctx)
	if err != nil {
		return nil, err
	}

	walletSet := make(map[string]bool, len(wallets))
	for _, w := range wallets {
		walletSet[w] = true
	}
	handleSet := make(map[string]bool, len(handles))
	for _, h := range handles {
		handleSet[NormalizeID(KindXAccount, h)] = true
	}

	var matched []Team
	for _, t := range teams {
		if teamTouches(&t, walletSet, handleSet) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

func teamTouches(t *Team, wallets, handles map[string]bool) bool {
	for _, w := range t.MemberWallets {
		if wallets[w] {
			return true
		}
	}
	for _, lists := range [][]string{t.MemberTwitterAccounts, t.AdminUsernames, t.ModeratorUsernames} {
		for _, h := range lists {
			if handles[NormalizeID(KindXAccount, h)] {
				return true
			}
		}
	}
	return false
}
