package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is one of the supported transaction types.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// Signed returns amount with the sign implied by the transaction type:
// positive for income, negative for expense.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == TransactionExpense {
		return amount.Neg()
	}
	return amount
}

// Transaction is an immutable ledger entry. Once created it is never
// updated or deleted.
type Transaction struct {
	// ID is the unique identifier of the transaction.
	ID int64 `json:"id" db:"id"`

	// AccountID identifies the account whose balance the transaction changed.
	AccountID int64 `json:"account_id" db:"account_id"`

	// UserID identifies the user who posted the transaction. It always
	// matches the owner of AccountID at posting time.
	UserID int64 `json:"user_id" db:"user_id"`

	// Type is either "income" or "expense".
	Type TransactionType `json:"type" db:"type"`

	// Category is a free-text label.
	Category string `json:"category" db:"category"`

	// Amount is always positive; the direction is carried by Type.
	Amount decimal.Decimal `json:"amount" db:"amount"`

	// Description is an optional free-text note.
	Description string `json:"description" db:"description"`

	// CreatedAt is the server-assigned UTC timestamp of the posting.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AdminTransaction is a transaction together with its owner's email.
type AdminTransaction struct {
	Transaction
	OwnerEmail string `json:"owner_email"`
}
