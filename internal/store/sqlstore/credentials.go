package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptodash/internal/model"
)

// SaveCredentials inserts or replaces the credentials stored under c.Name.
// Key and secret are stored as given; callers encrypt them first.
func (s *Store) SaveCredentials(ctx context.Context, c model.Credentials) error {
	c.UpdatedAt = time.Now().UTC()
	q := s.db.Rebind(`INSERT INTO api_credentials (name, api_key, api_secret, testnet, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			testnet = excluded.testnet,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, c.Name, c.APIKey, c.APISecret, c.Testnet, c.IsActive, c.UpdatedAt); err != nil {
		return fmt.Errorf("sqlstore: save credentials: %w", err)
	}
	return nil
}

// GetCredentials returns the active credentials stored under name, or
// nil, nil when there are none.
func (s *Store) GetCredentials(ctx context.Context, name string) (*model.Credentials, error) {
	var c model.Credentials
	q := s.db.Rebind(`SELECT name, api_key, api_secret, testnet, is_active, updated_at
		FROM api_credentials WHERE name = ? AND is_active = ?`)
	err := s.db.GetContext(ctx, &c, q, name, true)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get credentials: %w", err)
	}
	return &c, nil
}

// DeleteCredentials removes the credentials stored under name. Deleting
// nothing is not an error.
func (s *Store) DeleteCredentials(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM api_credentials WHERE name = ?`), name); err != nil {
		return fmt.Errorf("sqlstore: delete credentials: %w", err)
	}
	return nil
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
