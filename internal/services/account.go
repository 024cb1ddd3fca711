package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/fintrack/apiserver/types"
	"github.com/shopspring/decimal"
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account types.Account) (types.Account, error)
	GetForUser(ctx context.Context, id, userID int64) (types.Account, error)
	ListByUser(ctx context.Context, userID int64) ([]types.Account, error)
	ListAll(ctx context.Context) ([]types.AdminAccount, error)
	SetBalance(ctx context.Context, id int64, balance decimal.Decimal) error
}

// AccountService encapsulates account use-cases for their owners.
type AccountService struct {
	repo AccountRepository
}

func NewAccountService(repo AccountRepository) *AccountService {
	return &AccountService{repo: repo}
}

// Create opens an account for userID with the given opening balance.
// The type is trimmed and lowercased, defaulting to "checking".
func (s *AccountService) Create(ctx context.Context, userID int64, name, accountType string, openingBalance decimal.Decimal) (types.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Account{}, fmt.Errorf("%w: account name is required", ErrInvalidArgument)
	}
	accountType = strings.ToLower(strings.TrimSpace(accountType))
	if accountType == "" {
		accountType = types.DefaultAccountType
	}

	return s.repo.Create(ctx, types.Account{
		UserID:  userID,
		Name:    name,
		Type:    accountType,
		Balance: openingBalance,
	})
}

func (s *AccountService) ListMine(ctx context.Context, userID int64) ([]types.Account, error) {
	return s.repo.ListByUser(ctx, userID)
}
