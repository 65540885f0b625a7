package store

import (
	"context"
	"database/sql"
	"errors"

	"backoffice-svc/models"
	"backoffice-svc/reconciler"

	"go.uber.org/zap"
)

// PostgresStore runs the reconciliation unit of work. The whole thing is
// one transaction: the processed-events insert, the row locks and the
// double status update commit together or not at all.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Reconcile(ctx context.Context, eventID, paymentID, orderID string, apply reconciler.ApplyFunc) (reconciler.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reconciler.Outcome{}, &reconciler.PersistenceError{Err: err}
	}
	defer tx.Rollback()

	// The event id is the durable idempotency key. A conflict means some
	// earlier delivery of this event already committed, so there is
	// nothing left to do.
	if eventID != "" {
		result, err := tx.ExecContext(ctx,
			"INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING",
			eventID,
		)
		if err != nil {
			return reconciler.Outcome{}, &reconciler.PersistenceError{Err: err}
		}
		inserted, err := result.RowsAffected()
		if err != nil {
			return reconciler.Outcome{}, &reconciler.PersistenceError{Err: err}
		}
		if inserted == 0 {
			s.logger.Info("Provider event already processed",
				zap.String("event_id", eventID),
				zap.String("payment_id", paymentID),
			)
			return reconciler.Outcome{Duplicate: true}, nil
		}
	}

	// Row locks serialize concurrent deliveries for the same pair: the
	// second worker blocks here and then sees the first one's statuses.
	var payment models.Payment
	err = tx.QueryRowContext(ctx,
		"SELECT id, order_id, amount, status, provider_ref, created_at, updated_at FROM payments WHERE id = $1 FOR UPDATE",
		paymentID,
	).Scan(&payment.ID, &payment.OrderID, &payment.Amount, &payment.Status, &payment.ProviderRef, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reconciler.Outcome{}, &reconciler.NotFoundError{Entity: "payment", ID: paymentID}
		}
		return reconciler.Outcome{}, &reconciler.PersistenceError{Err: err}
	}

	var order models.Order
	err = tx.QueryRowContext(ctx,
		"SELECT id, status, total_price, created_at, updated_at FROM orders WHERE id = $1 FOR UPDATE",
		orderID,
	).Scan(&order.ID, &order.Status, &order.TotalPrice, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reconciler.Outcome{}, &reconciler.NotFoundError{Entity: "order", ID: orderID}
		}
		return reconciler.Outcome{}, &reconciler.PersistenceError{Err: err}
	}

	changed, err := apply(&payment, &order)
	if err != nil {
		return reconciler.Outcome{}, err
	}

	if changed {
		if _, err := tx.ExecContext(ctx,
			"UPDATE payments SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
			payment.Status, payment.ID,
		); err != nil {
			return reconciler.Outcome{}, &reconciler.PersistenceError{Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
			order.Status, order.ID,
		); err != nil {
			return reconciler.Outcome{}, &reconciler.PersistenceError{Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return reconciler.Outcome{}, &reconciler.PersistenceError{Err: err}
	}

	return reconciler.Outcome{
		Applied: changed,
		Payment: payment,
		Order:   order,
	}, nil
}
