package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/knowit/knowit/internal/credentials"
	"github.com/knowit/knowit/internal/domain"
)

// The DB doubles as the persistent credentials.Store. The token pair
// is written and cleared inside a single transaction, so no reader
// can observe an access token from one pair next to a refresh token
// from another.

var _ credentials.Store = (*DB)(nil)

// AccessToken returns the stored access token, or "" when absent.
func (db *DB) AccessToken(ctx context.Context) (string, error) {
	return db.credentialValue(ctx, credentials.KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when absent.
func (db *DB) RefreshToken(ctx context.Context) (string, error) {
	return db.credentialValue(ctx, credentials.KeyRefreshToken)
}

// TokenPair reads the whole pair in one transaction. It returns nil
// when either token is missing.
func (db *DB) TokenPair(ctx context.Context) (*domain.TokenPair, error) {
	tx, err := db.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin credential read: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	access, refresh := values[credentials.KeyAccessToken], values[credentials.KeyRefreshToken]
	if access == "" || refresh == "" {
		return nil, nil
	}
	expiresIn, _ := strconv.Atoi(values[credentials.KeyExpiresIn])
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        values[credentials.KeyTokenType],
		ExpiresInSeconds: expiresIn,
	}, nil
}

// SaveTokenPair persists the pair atomically, replacing any previous pair.
func (db *DB) SaveTokenPair(ctx context.Context, pair domain.TokenPair) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin token write: %w", err)
	}
	defer tx.Rollback()

	entries := map[string]string{
		credentials.KeyAccessToken:  pair.AccessToken,
		credentials.KeyRefreshToken: pair.RefreshToken,
		credentials.KeyTokenType:    pair.TokenType,
		credentials.KeyExpiresIn:    strconv.Itoa(pair.ExpiresInSeconds),
	}
	for key, value := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("failed to write credential %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token pair: %w", err)
	}
	return nil
}

// ClearTokens deletes the whole pair atomically. The cached user
// profile is left alone; logout removes it separately.
func (db *DB) ClearTokens(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM credentials WHERE key IN (?, ?, ?, ?)
	`,
		credentials.KeyAccessToken,
		credentials.KeyRefreshToken,
		credentials.KeyTokenType,
		credentials.KeyExpiresIn,
	)
	if err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// CachedUser returns the encoded cached user profile, or "" when absent.
func (db *DB) CachedUser(ctx context.Context) (string, error) {
	return db.credentialValue(ctx, credentials.KeyCachedUser)
}

// SaveCachedUser stores the encoded user profile.
func (db *DB) SaveCachedUser(ctx context.Context, encoded string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO credentials (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, credentials.KeyCachedUser, encoded)
	if err != nil {
		return fmt.Errorf("failed to save cached user: %w", err)
	}
	return nil
}

// DeleteCachedUser removes the cached user profile.
func (db *DB) DeleteCachedUser(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, credentials.KeyCachedUser)
	if err != nil {
		return fmt.Errorf("failed to delete cached user: %w", err)
	}
	return nil
}

func (db *DB) credentialValue(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credential %s: %w", key, err)
	}
	return value, nil
}
