package sqlstore

import (
	"context"
	"fmt"
	"time"

	"cryptodash/internal/ids"
	"cryptodash/internal/model"
)

const alertColumns = `id, symbol, target_price, condition, message, is_active, triggered, triggered_at, created_at`

// CreateAlert inserts an active alert, assigning its id and creation time.
func (s *Store) CreateAlert(ctx context.Context, a model.PriceAlert) (model.PriceAlert, error) {
	a.ID = ids.UUID()
	a.IsActive = true
	a.Triggered = false
	a.TriggeredAt = nil
	a.CreatedAt = time.Now().UTC()

	q := s.db.Rebind(`INSERT INTO price_alerts (` + alertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.Symbol, a.TargetPrice, a.Condition, a.Message, a.IsActive, a.Triggered, a.TriggeredAt, a.CreatedAt)
	if err != nil {
		return model.PriceAlert{}, fmt.Errorf("sqlstore: create alert: %w", err)
	}
	return a, nil
}

// ListActiveAlerts returns untriggered alerts, newest first.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]model.PriceAlert, error) {
	alerts := []model.PriceAlert{}
	q := s.db.Rebind(`SELECT ` + alertColumns + ` FROM price_alerts WHERE is_active = ? ORDER BY created_at DESC`)
	if err := s.db.SelectContext(ctx, &alerts, q, true); err != nil {
		return nil, fmt.Errorf("sqlstore: list alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlert removes an alert. ErrNotFound if no such id.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM price_alerts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete alert: %w", err)
	}
	return expectOne(res.RowsAffected())
}

// MarkTriggered flags an alert as fired and deactivates it.
func (s *Store) MarkTriggered(ctx context.Context, id string) error {
	q := s.db.Rebind(`UPDATE price_alerts SET triggered = ?, is_active = ?, triggered_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, true, false, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlstore: mark alert triggered: %w", err)
	}
	return expectOne(res.RowsAffected())
}

func expectOne(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
