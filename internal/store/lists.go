package store

import (
	"context"
	"fmt"
	"time"
)

func tableFor(list ListKind) (string, error) {
	switch list {
	case Blacklist:
		return "blacklist_entries", nil
	case Whitelist:
		return "whitelist_entries", nil
	default:
		return "", fmt.Errorf("unknown list kind %q", list)
	}
}

const listColumns = `id, entry_type, identifier, linked_token_mints, linked_wallets,
	       linked_twitter, linked_telegram, linked_pumpfun_accounts, level, is_active, created_at`

func scanListEntry(scanner interface{ Scan(dest ...any) error }) (ListEntry, error) {
	var e ListEntry
	var mints, wallets, twitter, telegram, pumpfun string
	err := scanner.Scan(
		&e.ID, &e.EntryType, &e.Identifier, &mints, &wallets,
		&twitter, &telegram, &pumpfun, &e.Level, &e.IsActive, &e.CreatedAt,
	)
	if err != nil {
		return e, err
	}
	e.LinkedTokenMints = decodeList(mints)
	e.LinkedWallets = decodeList(wallets)
	e.LinkedTwitter = decodeList(twitter)
	e.LinkedTelegram = decodeList(telegram)
	e.LinkedPumpfunAccounts = decodeList(pumpfun)
	return e, nil
}

// AddListEntry inserts or reactivates a curated entry. The identifier is
// normalized per its entry type before storage.
func (d *DB) AddListEntry(ctx context.Context, list ListKind, e ListEntry) error {
	table, err := tableFor(list)
	if err != nil {
		return err
	}
	e.Identifier = NormalizeID(e.EntryType, e.Identifier)
	if e.Identifier == "" {
		return fmt.Errorf("empty identifier for %s entry", list)
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO `+table+` (entry_type, identifier, linked_token_mints, linked_wallets,
			linked_twitter, linked_telegram, linked_pumpfun_accounts, level, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(entry_type, identifier) DO UPDATE SET
			linked_token_mints = excluded.linked_token_mints,
			linked_wallets = excluded.linked_wallets,
			linked_twitter = excluded.linked_twitter,
			linked_telegram = excluded.linked_telegram,
			linked_pumpfun_accounts = excluded.linked_pumpfun_accounts,
			level = excluded.level,
			is_active = 1
	`, e.EntryType, e.Identifier, encodeList(e.LinkedTokenMints), encodeList(e.LinkedWallets),
		encodeList(e.LinkedTwitter), encodeList(e.LinkedTelegram), encodeList(e.LinkedPumpfunAccounts),
		e.Level, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("adding %s entry: %w", list, err)
	}
	return nil
}

// ActiveListEntries returns active entries of the given type. An empty
// entryType returns all active entries.
func (d *DB) ActiveListEntries(ctx context.Context, list ListKind, entryType EntityKind) ([]ListEntry, error) {
	table, err := tableFor(list)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + listColumns + " FROM " + table + " WHERE is_active = 1"
	var args []any
	if entryType != "" {
		query += " AND entry_type = ?"
		args = append(args, entryType)
	}
	rows, err := d.conn.QueryContext(ctx, query+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ListEntry
	for rows.Next() {
		e, err := scanListEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeactivateListEntry retires an entry without deleting it. Returns true if a
// row was deactivated.
func (d *DB) DeactivateListEntry(ctx context.Context, list ListKind, entryType EntityKind, identifier string) (bool, error) {
	table, err := tableFor(list)
	if err != nil {
		return false, err
	}
	res, err := d.conn.ExecContext(ctx,
		"UPDATE "+table+" SET is_active = 0 WHERE entry_type = ? AND identifier = ? AND is_active = 1",
		entryType, NormalizeID(entryType, identifier))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
