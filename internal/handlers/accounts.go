package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AccountHandler provides HTTP handlers for the caller's accounts.
type AccountHandler struct {
	accountService   *services.AccountService
	statementService *services.StatementService
}

// NewAccountHandler constructs an AccountHandler. statementService may be
// nil when no object storage is configured.
func NewAccountHandler(accountService *services.AccountService, statementService *services.StatementService) *AccountHandler {
	return &AccountHandler{
		accountService:   accountService,
		statementService: statementService,
	}
}

// AccountRouter registers account routes on the given router. All routes
// require authentication.
func AccountRouter(
	r chi.Router,
	accountService *services.AccountService,
	statementService *services.StatementService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewAccountHandler(accountService, statementService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListAccounts)
	r.Post("/", handler.CreateAccount)
	if statementService != nil {
		r.Post("/{accountID}/statements", handler.ExportStatement)
		r.Get("/{accountID}/statements/{statementID}", handler.DownloadStatement)
	}
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := h.accountService.ListMine(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []types.Account{}
	}

	writeJSON(w, http.StatusOK, AccountListResponse{Items: items})
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accountService.Create(r.Context(), userID, req.Name, req.Type, req.Balance)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// ExportStatement uploads a CSV statement of the account to object storage.
func (h *AccountHandler) ExportStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accountID, err := parseIDParam(r, "accountID", "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	statement, err := h.statementService.Export(r.Context(), userID, accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, statement)
}

// DownloadStatement streams a previously exported statement.
func (h *AccountHandler) DownloadStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accountID, err := parseIDParam(r, "accountID", "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, err := h.statementService.Open(r.Context(), userID, accountID, chi.URLParam(r, "statementID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("stream statement for account %d: %v", accountID, err)
	}
}

type CreateAccountRequest struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

type AccountListResponse struct {
	Items []types.Account `json:"items"`
}
