package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
	"github.com/shopspring/decimal"
)

// AdminService exposes the cross-user views and overrides reserved for
// administrators. Callers are expected to have checked the role.
type AdminService struct {
	users        UserRepository
	accounts     AccountRepository
	transactions TransactionRepository
}

func NewAdminService(users UserRepository, accounts AccountRepository, transactions TransactionRepository) *AdminService {
	return &AdminService{users: users, accounts: accounts, transactions: transactions}
}

func (s *AdminService) ListUsers(ctx context.Context) ([]types.User, error) {
	return s.users.List(ctx)
}

func (s *AdminService) SetUserAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	if err := s.users.SetAdmin(ctx, userID, isAdmin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("user %w", ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *AdminService) ListAccounts(ctx context.Context) ([]types.AdminAccount, error) {
	return s.accounts.ListAll(ctx)
}

// SetAccountBalance overwrites a balance outside the ledger. The result
// may no longer equal the sum of the account's transactions.
func (s *AdminService) SetAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if err := s.accounts.SetBalance(ctx, accountID, balance); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errAccountNotFound
		}
		return err
	}
	return nil
}

func (s *AdminService) ListTransactions(ctx context.Context) ([]types.AdminTransaction, error) {
	return s.transactions.ListAll(ctx)
}
