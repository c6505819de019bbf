package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"cryptodash/internal/ids"
	"cryptodash/internal/model"
)

const txColumns = `id, symbol, side, amount, price, total, is_paper, order_id, status, created_at`

// InsertTransaction appends a ledger row. Empty id and creation time are
// filled in.
func (s *Store) InsertTransaction(ctx context.Context, tx model.Transaction) error {
	return insertTransaction(ctx, s.db, &tx)
}

func insertTransaction(ctx context.Context, ext sqlx.ExtContext, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = ids.ULID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	q := ext.Rebind(`INSERT INTO transactions (` + txColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := ext.ExecContext(ctx, q,
		tx.ID, tx.Symbol, tx.Side, tx.Amount, tx.Price, tx.Total, tx.IsPaper, tx.OrderID, tx.Status, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: insert transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the newest limit ledger rows.
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	txs := []model.Transaction{}
	q := s.db.Rebind(`SELECT ` + txColumns + ` FROM transactions ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &txs, q, limit); err != nil {
		return nil, fmt.Errorf("sqlstore: list transactions: %w", err)
	}
	return txs, nil
}

// GetBalances returns every paper balance keyed by asset.
func (s *Store) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var rows []struct {
		Asset  string `db:"asset"`
		Amount string `db:"amount"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT asset, amount FROM paper_balances ORDER BY asset`); err != nil {
		return nil, fmt.Errorf("sqlstore: get balances: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		d, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: balance %s: %w", r.Asset, err)
		}
		out[r.Asset] = d
	}
	return out, nil
}

// EnsureBalance seeds asset with amount unless a balance already exists.
func (s *Store) EnsureBalance(ctx context.Context, asset string, amount decimal.Decimal) error {
	q := s.db.Rebind(`INSERT INTO paper_balances (asset, amount) VALUES (?, ?) ON CONFLICT (asset) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, q, asset, amount.String()); err != nil {
		return fmt.Errorf("sqlstore: seed balance %s: %w", asset, err)
	}
	return nil
}

// AdjustBalances atomically applies balance deltas and records tx. If any
// balance would go negative nothing is written and ErrInsufficientBalance
// is returned.
func (s *Store) AdjustBalances(ctx context.Context, deltas map[string]decimal.Decimal, tx model.Transaction) (model.Transaction, error) {
	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return tx, fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer dbtx.Rollback()

	for asset, delta := range deltas {
		var raw string
		err := dbtx.GetContext(ctx, &raw, dbtx.Rebind(`SELECT amount FROM paper_balances WHERE asset = ?`), asset)
		current := decimal.Zero
		switch {
		case err == nil:
			if current, err = decimal.NewFromString(raw); err != nil {
				return tx, fmt.Errorf("sqlstore: balance %s: %w", asset, err)
			}
		case isNoRows(err):
		default:
			return tx, fmt.Errorf("sqlstore: read balance %s: %w", asset, err)
		}

		next := current.Add(delta)
		if next.IsNegative() {
			return tx, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, asset, current, delta.Neg())
		}
		q := dbtx.Rebind(`INSERT INTO paper_balances (asset, amount) VALUES (?, ?)
			ON CONFLICT (asset) DO UPDATE SET amount = excluded.amount`)
		if _, err := dbtx.ExecContext(ctx, q, asset, next.String()); err != nil {
			return tx, fmt.Errorf("sqlstore: write balance %s: %w", asset, err)
		}
	}

	if err := insertTransaction(ctx, dbtx, &tx); err != nil {
		return tx, err
	}
	if err := dbtx.Commit(); err != nil {
		return tx, fmt.Errorf("sqlstore: commit: %w", err)
	}
	return tx, nil
}

// ResetBalances replaces every paper balance with the given set.
func (s *Store) ResetBalances(ctx context.Context, balances map[string]decimal.Decimal) error {
	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx, `DELETE FROM paper_balances`); err != nil {
		return fmt.Errorf("sqlstore: clear balances: %w", err)
	}
	for asset, amount := range balances {
		q := dbtx.Rebind(`INSERT INTO paper_balances (asset, amount) VALUES (?, ?)`)
		if _, err := dbtx.ExecContext(ctx, q, asset, amount.String()); err != nil {
			return fmt.Errorf("sqlstore: write balance %s: %w", asset, err)
		}
	}
	return dbtx.Commit()
}
