// Package recorder journals completed tenders to the kiosk's local sqlite
// database. Recording is best-effort from the payment machine's point of
// view; the journal exists for reconciliation, not for control flow.
package recorder

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	apppay "github.com/snapbooth/kiosk/internal/application/payment"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL,
	method       TEXT NOT NULL,
	amount       TEXT NOT NULL,
	external_ref TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_order ON transactions(order_id);
`

type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the journal at path and ensures the
// schema exists.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared", path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// sqlite allows one writer; serialize through the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Record(ctx context.Context, tx apppay.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, order_id, method, amount, external_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.OrderID, string(tx.Method), tx.Amount.StringFixed(2), tx.ExternalRef, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// ListByOrder returns the journaled legs for one order, oldest first. Used
// by reconciliation tooling and tests.
func (s *SQLite) ListByOrder(ctx context.Context, orderID string) ([]apppay.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, method, amount, external_ref, created_at
		 FROM transactions WHERE order_id = ? ORDER BY created_at`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []apppay.Transaction
	for rows.Next() {
		var (
			tx     apppay.Transaction
			method string
			amount string
		)
		if err := rows.Scan(&tx.ID, &tx.OrderID, &method, &amount, &tx.ExternalRef, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Method = methodFrom(method)
		if tx.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
