package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fintrack/apiserver/internal/storage"
	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
	"github.com/google/uuid"
)

// ObjectStore reads and writes objects in a bucket.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// StatementService exports account statements to object storage.
type StatementService struct {
	accounts     AccountRepository
	transactions TransactionRepository
	objects      ObjectStore
	now          func() time.Time
}

func NewStatementService(accounts AccountRepository, transactions TransactionRepository, objects ObjectStore) *StatementService {
	return &StatementService{
		accounts:     accounts,
		transactions: transactions,
		objects:      objects,
		now:          time.Now,
	}
}

var statementHeader = []string{"id", "created_at", "type", "category", "amount", "signed_amount", "description"}

// Export writes the account's transactions as CSV, oldest first, and
// uploads the file. The ownership rule matches posting: an account the
// caller does not own is ErrNotFound.
func (s *StatementService) Export(ctx context.Context, userID, accountID int64) (types.Statement, error) {
	account, err := s.accounts.GetForUser(ctx, accountID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Statement{}, errAccountNotFound
		}
		return types.Statement{}, fmt.Errorf("load account: %w", err)
	}

	items, err := s.transactions.ListByAccount(ctx, account.ID, userID)
	if err != nil {
		return types.Statement{}, fmt.Errorf("list transactions: %w", err)
	}

	data, err := renderStatement(items)
	if err != nil {
		return types.Statement{}, fmt.Errorf("render statement: %w", err)
	}

	id := uuid.NewString()
	key := statementKey(userID, account.ID, id)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "text/csv"); err != nil {
		return types.Statement{}, fmt.Errorf("upload statement: %w", err)
	}

	return types.Statement{
		ID:        id,
		AccountID: account.ID,
		Bucket:    s.objects.Bucket(),
		Key:       key,
		Rows:      len(items),
		CreatedAt: s.now().UTC(),
	}, nil
}

// Open returns a previously exported statement of one of the caller's
// accounts. Unknown statements and foreign accounts are ErrNotFound.
func (s *StatementService) Open(ctx context.Context, userID, accountID int64, statementID string) (io.ReadCloser, error) {
	parsed, err := uuid.Parse(statementID)
	if err != nil {
		return nil, fmt.Errorf("statement %w", ErrNotFound)
	}
	if _, err := s.accounts.GetForUser(ctx, accountID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	reader, err := s.objects.Get(ctx, statementKey(userID, accountID, parsed.String()))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("statement %w", ErrNotFound)
		}
		return nil, fmt.Errorf("open statement: %w", err)
	}
	return reader, nil
}

func statementKey(userID, accountID int64, statementID string) string {
	return fmt.Sprintf("statements/%d/%d/%s.csv", userID, accountID, statementID)
}

func renderStatement(items []types.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(statementHeader); err != nil {
		return nil, err
	}
	for _, txn := range items {
		record := []string{
			strconv.FormatInt(txn.ID, 10),
			txn.CreatedAt.UTC().Format(time.RFC3339),
			string(txn.Type),
			txn.Category,
			txn.Amount.String(),
			txn.Type.Signed(txn.Amount).String(),
			txn.Description,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
