package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mit-bot/internal/models"
)

const userColumns = `id, platform_id, username, first_name, last_name, created_at, updated_at`

// UpsertUser registers a user or refreshes their handle and names.
func (d *DB) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	now := d.now()
	_, err := d.ExecContext(ctx, `
        INSERT INTO users (platform_id, username, first_name, last_name, created_at, updated_at)
        VALUES (?,?,?,?,?,?)
        ON CONFLICT(platform_id) DO UPDATE SET
            username=excluded.username,
            first_name=excluded.first_name,
            last_name=excluded.last_name,
            updated_at=excluded.updated_at
    `, u.PlatformID, emptyToNull(u.Username), emptyToNull(u.FirstName), emptyToNull(u.LastName), now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", u.PlatformID, err)
	}

	saved, err := d.GetUserByPlatformID(ctx, u.PlatformID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("upsert user %d: row vanished", u.PlatformID)
	}
	return saved, nil
}

func (d *DB) GetUserByPlatformID(ctx context.Context, platformID int64) (*models.User, error) {
	row := d.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE platform_id=?`, platformID)
	return scanUser(row)
}

// GetUserByUsername resolves a handle (case-insensitive, without "@").
// The most recently updated row wins if a handle moved between accounts.
func (d *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := d.QueryRowContext(ctx, `
        SELECT `+userColumns+` FROM users
        WHERE username = ? COLLATE NOCASE
        ORDER BY updated_at DESC LIMIT 1`, username)
	return scanUser(row)
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u                     models.User
		username, first, last sql.NullString
		createdAt, updatedAt  string
	)
	err := row.Scan(&u.ID, &u.PlatformID, &username, &first, &last, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.FirstName = first.String
	u.LastName = last.String
	if u.CreatedAt, err = parseTS(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func emptyToNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
