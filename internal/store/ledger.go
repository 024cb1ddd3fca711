package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fintrack/apiserver/internal/db"
	"github.com/shopspring/decimal"
)

// Ledger owns account balance arithmetic. Every adjustment runs inside a
// transaction supplied by the caller so the balance change commits or
// rolls back together with whatever caused it.
type Ledger struct {
	db *db.DB
}

func NewLedger(conn *db.DB) *Ledger {
	return &Ledger{db: conn}
}

// ApplyDelta adds delta to the balance of the account owned by userID and
// returns the new balance. It returns ErrNotFound when no such account
// exists for that user.
//
// On Postgres the increment is a single UPDATE evaluated by the server, so
// concurrent postings cannot lose each other's writes. SQLite transactions
// are opened IMMEDIATE (see db.SQLiteDSN), which makes the database write
// lock the serialization point for the read-modify-write below.
func (l *Ledger) ApplyDelta(ctx context.Context, tx *sql.Tx, accountID, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	if l.db.IsSQLite() {
		return l.applyDeltaLocked(ctx, tx, accountID, userID, delta)
	}

	query := l.db.Rebind(`
		UPDATE accounts
		SET balance = balance + ?
		WHERE id = ? AND user_id = ?
		RETURNING balance`)
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, query, delta, accountID, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, ErrNotFound
		}
		return decimal.Decimal{}, err
	}
	return balance, nil
}

func (l *Ledger) applyDeltaLocked(ctx context.Context, tx *sql.Tx, accountID, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var current decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = ? AND user_id = ?`,
		accountID, userID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, ErrNotFound
		}
		return decimal.Decimal{}, err
	}

	balance := current.Add(delta)
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`,
		balance, accountID,
	); err != nil {
		return decimal.Decimal{}, err
	}
	return balance, nil
}
