package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAccountType is used when an account is created without a type.
const DefaultAccountType = "checking"

// Account is a balance container owned by a single user.
type Account struct {
	// ID is the unique identifier of the account.
	ID int64 `json:"id" db:"id"`

	// UserID identifies the owning user.
	UserID int64 `json:"user_id" db:"user_id"`

	// Name is the display name chosen by the owner.
	Name string `json:"name" db:"name"`

	// Type is a free-form lowercase tag such as "checking" or "savings".
	Type string `json:"type" db:"type"`

	// Balance is the opening balance plus the signed sum of all
	// transactions posted against the account, unless an administrator
	// overrode it directly.
	Balance decimal.Decimal `json:"balance" db:"balance"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AdminAccount is an account together with its owner's email, as listed
// on the administrative endpoints.
type AdminAccount struct {
	Account
	OwnerEmail string `json:"owner_email"`
}
