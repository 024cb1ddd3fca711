package store

import (
	"context"
	"fmt"

	"github.com/fintrack/apiserver/internal/db"
	"github.com/fintrack/apiserver/types"
	"github.com/shopspring/decimal"
)

// TransactionRepository handles persistence for transactions.
type TransactionRepository struct {
	db     *db.DB
	ledger *Ledger
}

func NewTransactionRepository(conn *db.DB, ledger *Ledger) *TransactionRepository {
	return &TransactionRepository{db: conn, ledger: ledger}
}

const transactionColumns = `t.id, t.account_id, t.user_id, t.type, t.category, t.amount, t.description, t.created_at`

func scanTransaction(row interface{ Scan(...any) error }, extra ...any) (types.Transaction, error) {
	var txn types.Transaction
	dest := append([]any{
		&txn.ID,
		&txn.AccountID,
		&txn.UserID,
		&txn.Type,
		&txn.Category,
		&txn.Amount,
		&txn.Description,
		&txn.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return types.Transaction{}, err
	}
	txn.CreatedAt = txn.CreatedAt.UTC()
	return txn, nil
}

// Post records txn and applies delta to its account as one unit of work.
// Either both the balance change and the transaction row become visible,
// or neither does. It returns the stored transaction and the new balance.
func (r *TransactionRepository) Post(ctx context.Context, txn types.Transaction, delta decimal.Decimal) (types.Transaction, decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Transaction{}, decimal.Decimal{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := r.ledger.ApplyDelta(ctx, tx, txn.AccountID, txn.UserID, delta)
	if err != nil {
		return types.Transaction{}, decimal.Decimal{}, err
	}

	query := r.db.Rebind(`
		INSERT INTO transactions (account_id, user_id, type, category, amount, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	if err := tx.QueryRowContext(
		ctx,
		query,
		txn.AccountID,
		txn.UserID,
		txn.Type,
		txn.Category,
		txn.Amount,
		txn.Description,
		txn.CreatedAt,
	).Scan(&txn.ID); err != nil {
		return types.Transaction{}, decimal.Decimal{}, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.Transaction{}, decimal.Decimal{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return txn, balance, nil
}

// ListByUser returns the user's transactions, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64) ([]types.Transaction, error) {
	query := r.db.Rebind(`
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.user_id = ?
		ORDER BY t.created_at DESC, t.id DESC`)
	return r.list(ctx, query, userID)
}

// ListByAccount returns the transactions of one account, oldest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID, userID int64) ([]types.Transaction, error) {
	query := r.db.Rebind(`
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.account_id = ? AND t.user_id = ?
		ORDER BY t.created_at, t.id`)
	return r.list(ctx, query, accountID, userID)
}

// ListAll returns every transaction with its owner's email, newest first.
func (r *TransactionRepository) ListAll(ctx context.Context) ([]types.AdminTransaction, error) {
	const query = `
		SELECT ` + transactionColumns + `, u.email
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		ORDER BY t.created_at DESC, t.id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.AdminTransaction, 0)
	for rows.Next() {
		var email string
		txn, err := scanTransaction(rows, &email)
		if err != nil {
			return nil, err
		}
		items = append(items, types.AdminTransaction{Transaction: txn, OwnerEmail: email})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]types.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
