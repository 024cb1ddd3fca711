package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fintrack/apiserver/internal/db"
	"github.com/fintrack/apiserver/types"
	"github.com/shopspring/decimal"
)

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *db.DB
}

func NewAccountRepository(conn *db.DB) *AccountRepository {
	return &AccountRepository{db: conn}
}

const accountColumns = `a.id, a.user_id, a.name, a.type, a.balance, a.created_at`

func scanAccount(row interface{ Scan(...any) error }, extra ...any) (types.Account, error) {
	var account types.Account
	dest := append([]any{
		&account.ID,
		&account.UserID,
		&account.Name,
		&account.Type,
		&account.Balance,
		&account.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return types.Account{}, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	account.CreatedAt = time.Now().UTC()

	query := r.db.Rebind(`
		INSERT INTO accounts (user_id, name, type, balance, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.UserID,
		account.Name,
		account.Type,
		account.Balance,
		account.CreatedAt,
	).Scan(&account.ID); err != nil {
		return types.Account{}, err
	}
	return account, nil
}

// GetForUser returns the account only when userID owns it. A foreign
// account is reported exactly like a missing one.
func (r *AccountRepository) GetForUser(ctx context.Context, id, userID int64) (types.Account, error) {
	query := r.db.Rebind(`SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = ? AND a.user_id = ?`)
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID int64) ([]types.Account, error) {
	query := r.db.Rebind(`SELECT ` + accountColumns + ` FROM accounts a WHERE a.user_id = ? ORDER BY a.id`)
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]types.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListAll returns every account with its owner's email.
func (r *AccountRepository) ListAll(ctx context.Context) ([]types.AdminAccount, error) {
	const query = `
		SELECT ` + accountColumns + `, u.email
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]types.AdminAccount, 0)
	for rows.Next() {
		var email string
		account, err := scanAccount(rows, &email)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, types.AdminAccount{Account: account, OwnerEmail: email})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SetBalance overwrites an account balance. It bypasses the ledger and is
// reserved for administrative corrections.
func (r *AccountRepository) SetBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	query := r.db.Rebind(`UPDATE accounts SET balance = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, balance, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
