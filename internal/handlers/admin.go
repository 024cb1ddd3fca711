package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AdminHandler provides the administrator endpoints.
type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// AdminRouter registers admin routes. Every route requires a token with
// the admin role.
func AdminRouter(r chi.Router, adminService *services.AdminService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAdminHandler(adminService)

	r.Use(authMiddleware, RequireAdmin)
	r.Get("/users", handler.ListUsers)
	r.Patch("/users/{userID}/role", handler.SetUserRole)
	r.Get("/accounts", handler.ListAccounts)
	r.Patch("/accounts/{accountID}/balance", handler.SetAccountBalance)
	r.Get("/transactions", handler.ListTransactions)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.adminService.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []types.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SetUserRole grants or revokes the admin role. The change applies to
// tokens issued afterwards.
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "userID", "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SetRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	isAdmin, err := req.isAdmin()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.adminService.SetUserAdmin(r.Context(), userID, isAdmin); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	items, err := h.adminService.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []types.AdminAccount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandler) SetAccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseIDParam(r, "accountID", "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SetBalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Balance == nil {
		writeError(w, http.StatusBadRequest, "balance is required")
		return
	}

	if err := h.adminService.SetAccountBalance(r.Context(), accountID, *req.Balance); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	items, err := h.adminService.ListTransactions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []types.AdminTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SetRoleRequest carries either a role name ("Admin" or "User") or an
// isAdmin flag. When both are present they must agree.
type SetRoleRequest struct {
	Role    string `json:"role,omitempty"`
	IsAdmin *bool  `json:"isAdmin,omitempty"`
}

func (req SetRoleRequest) isAdmin() (bool, error) {
	role := strings.TrimSpace(req.Role)
	if role == "" {
		if req.IsAdmin == nil {
			return false, errors.New("role is required")
		}
		return *req.IsAdmin, nil
	}

	var isAdmin bool
	switch {
	case strings.EqualFold(role, types.RoleAdmin):
		isAdmin = true
	case strings.EqualFold(role, types.RoleUser):
	default:
		return false, errors.New("role must be Admin or User")
	}
	if req.IsAdmin != nil && *req.IsAdmin != isAdmin {
		return false, errors.New("role and isAdmin disagree")
	}
	return isAdmin, nil
}

type SetBalanceRequest struct {
	Balance *decimal.Decimal `json:"balance"`
}
