package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
	"github.com/shopspring/decimal"
)

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Post(ctx context.Context, txn types.Transaction, delta decimal.Decimal) (types.Transaction, decimal.Decimal, error)
	ListByUser(ctx context.Context, userID int64) ([]types.Transaction, error)
	ListByAccount(ctx context.Context, accountID, userID int64) ([]types.Transaction, error)
	ListAll(ctx context.Context) ([]types.AdminTransaction, error)
}

// PostTransactionInput carries the caller-supplied fields of a posting.
type PostTransactionInput struct {
	AccountID   int64
	Type        string
	Category    string
	Amount      decimal.Decimal
	Description string
}

// TransactionService records transactions against the caller's accounts.
type TransactionService struct {
	accounts     AccountRepository
	transactions TransactionRepository
	events       EventPublisher
	now          func() time.Time
}

func NewTransactionService(accounts AccountRepository, transactions TransactionRepository, events EventPublisher) *TransactionService {
	return &TransactionService{
		accounts:     accounts,
		transactions: transactions,
		events:       events,
		now:          time.Now,
	}
}

var errAccountNotFound = fmt.Errorf("account %w", ErrNotFound)

// Post validates and records a transaction for userID, adjusting the
// account balance in the same database transaction. Checks run in order
// and stop at the first failure: account ownership (ErrNotFound, whether
// the account is missing or belongs to someone else), type
// (ErrInvalidArgument), then amount (ErrInvalidArgument).
func (s *TransactionService) Post(ctx context.Context, userID int64, in PostTransactionInput) (types.Transaction, error) {
	account, err := s.accounts.GetForUser(ctx, in.AccountID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Transaction{}, errAccountNotFound
		}
		return types.Transaction{}, fmt.Errorf("load account: %w", err)
	}

	kind := types.TransactionType(strings.ToLower(strings.TrimSpace(in.Type)))
	if !kind.Valid() {
		return types.Transaction{}, fmt.Errorf("%w: transaction type must be income or expense", ErrInvalidArgument)
	}

	if in.Amount.Sign() <= 0 {
		return types.Transaction{}, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidArgument)
	}

	txn := types.Transaction{
		AccountID:   account.ID,
		UserID:      userID,
		Type:        kind,
		Category:    strings.TrimSpace(in.Category),
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now().UTC(),
	}

	posted, balance, err := s.transactions.Post(ctx, txn, kind.Signed(in.Amount))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Transaction{}, errAccountNotFound
		}
		return types.Transaction{}, fmt.Errorf("post transaction: %w", err)
	}

	publishEvent(ctx, s.events, types.ChannelTransactionPosted, fmt.Sprintf("account-%d", posted.AccountID), types.TransactionPostedEvent{
		Transaction: posted,
		Balance:     balance.String(),
		OccurredAt:  posted.CreatedAt,
	})
	return posted, nil
}

// ListMine returns the caller's transactions, newest first.
func (s *TransactionService) ListMine(ctx context.Context, userID int64) ([]types.Transaction, error) {
	return s.transactions.ListByUser(ctx, userID)
}
