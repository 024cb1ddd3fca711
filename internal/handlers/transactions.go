package handlers

import (
	"net/http"

	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// TransactionHandler provides HTTP handlers for posting and listing
// transactions.
type TransactionHandler struct {
	transactionService *services.TransactionService
}

func NewTransactionHandler(transactionService *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// TransactionRouter registers transaction routes on the given router.
func TransactionRouter(r chi.Router, transactionService *services.TransactionService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTransactionHandler(transactionService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListTransactions)
	r.Post("/", handler.CreateTransaction)
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := h.transactionService.ListMine(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []types.Transaction{}
	}

	writeJSON(w, http.StatusOK, TransactionListResponse{Items: items})
}

// CreateTransaction records an income or expense against one of the
// caller's accounts.
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txn, err := h.transactionService.Post(r.Context(), userID, services.PostTransactionInput{
		AccountID:   req.AccountID,
		Type:        req.Type,
		Category:    req.Category,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

type CreateTransactionRequest struct {
	AccountID   int64           `json:"account_id"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type TransactionListResponse struct {
	Items []types.Transaction `json:"items"`
}
