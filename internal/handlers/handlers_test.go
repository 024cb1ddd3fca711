package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fintrack/apiserver/config"
	"github.com/fintrack/apiserver/internal/auth"
	"github.com/fintrack/apiserver/internal/db"
	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/internal/storage"
	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/internal/testutil"
	"github.com/fintrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = config.JWTConfig{
	Secret:   "handlers-test-secret",
	Issuer:   "fintrack-test",
	Audience: "fintrack-test-clients",
	TTL:      8 * time.Hour,
}

type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Bucket() string { return "statements" }

type testAPI struct {
	t       *testing.T
	db      *db.DB
	router  http.Handler
	users   *services.UserService
	objects *memoryObjects
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	conn := testutil.NewSQLiteDB(t)

	userRepo := store.NewUserRepository(conn)
	accountRepo := store.NewAccountRepository(conn)
	txnRepo := store.NewTransactionRepository(conn, store.NewLedger(conn))
	tokens := auth.NewTokenService(testJWT)
	objects := &memoryObjects{objects: map[string][]byte{}}

	userService := services.NewUserService(userRepo, tokens, nil)
	authMiddleware := RequireAuth(tokens)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			AuthRouter(r, userService, authMiddleware)
		})
		r.Route("/accounts", func(r chi.Router) {
			AccountRouter(r, services.NewAccountService(accountRepo),
				services.NewStatementService(accountRepo, txnRepo, objects), authMiddleware)
		})
		r.Route("/transactions", func(r chi.Router) {
			TransactionRouter(r, services.NewTransactionService(accountRepo, txnRepo, nil), authMiddleware)
		})
		r.Route("/admin", func(r chi.Router) {
			AdminRouter(r, services.NewAdminService(userRepo, accountRepo, txnRepo), authMiddleware)
		})
	})

	return &testAPI{t: t, db: conn, router: router, users: userService, objects: objects}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) register(email string) AuthResponse {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/register", "", RegisterRequest{
		FullName: "Test User",
		Email:    email,
		Password: "pw123",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AuthResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (a *testAPI) adminToken() string {
	a.t.Helper()
	_, _, err := a.users.EnsureAdmin(context.Background(), "Root", "root@example.com", "rootpw")
	require.NoError(a.t, err)
	res, err := a.users.Login(context.Background(), "root@example.com", "rootpw")
	require.NoError(a.t, err)
	return res.Token
}

func (a *testAPI) openAccount(token, balance string) types.Account {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/accounts", token, map[string]any{"name": "Main", "balance": balance})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var account types.Account
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &account))
	return account
}

func (a *testAPI) balanceOf(token string, accountID int64) decimal.Decimal {
	a.t.Helper()
	rec := a.do(http.MethodGet, "/api/accounts", token, nil)
	require.Equal(a.t, http.StatusOK, rec.Code)
	var resp AccountListResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, account := range resp.Items {
		if account.ID == accountID {
			return account.Balance
		}
	}
	a.t.Fatalf("account %d not listed", accountID)
	return decimal.Zero
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)
	registered := api.register("alice@example.com")
	assert.NotEmpty(t, registered.Token)
	assert.NotContains(t, api.do(http.MethodGet, "/api/auth/me", registered.Token, nil).Body.String(), "password")
	longPassword := strings.Repeat("p", 100)

	tests := []struct {
		name           string
		path           string
		body           any
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Duplicate email",
			path:           "/api/auth/register",
			body:           RegisterRequest{FullName: "Alice", Email: "ALICE@example.com", Password: "x"},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "Missing fields",
			path:           "/api/auth/register",
			body:           RegisterRequest{Email: "new@example.com"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Password longer than 72 bytes",
			path:           "/api/auth/register",
			body:           RegisterRequest{FullName: "Long", Email: "long@example.com", Password: longPassword},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Login with long password",
			path:           "/api/auth/login",
			body:           LoginRequest{Email: "long@example.com", Password: longPassword},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Malformed body",
			path:           "/api/auth/register",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request",
		},
		{
			name:           "Login ignores email case",
			path:           "/api/auth/login",
			body:           LoginRequest{Email: "ALICE@EXAMPLE.COM", Password: "pw123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Wrong password",
			path:           "/api/auth/login",
			body:           LoginRequest{Email: "alice@example.com", Password: "wrong"},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "invalid credentials",
		},
		{
			name:           "Unknown email",
			path:           "/api/auth/login",
			body:           LoginRequest{Email: "bob@example.com", Password: "pw123"},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "invalid credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(http.MethodPost, tt.path, "", tt.body)
			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorMessage(t, rec))
			}
		})
	}
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	registered := api.register("me@example.com")

	rec := api.do(http.MethodGet, "/api/auth/me", registered.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user types.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, registered.User.ID, user.ID)
	assert.Equal(t, "me@example.com", user.Email)
}

func TestRequireAuth(t *testing.T) {
	tokens := auth.NewTokenService(testJWT)
	validToken, err := tokens.Issue(types.User{ID: 7, Email: "seven@example.com"})
	require.NoError(t, err)

	otherKey := testJWT
	otherKey.Secret = "another-secret"
	forgedToken, err := auth.NewTokenService(otherKey).Issue(types.User{ID: 7, Email: "seven@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{name: "Valid token", header: "Bearer " + validToken, expectedStatus: http.StatusOK},
		{name: "Lowercase scheme", header: "bearer " + validToken, expectedStatus: http.StatusOK},
		{name: "No header", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "Wrong scheme", header: "Basic " + validToken, expectedStatus: http.StatusUnauthorized},
		{name: "Empty token", header: "Bearer ", expectedStatus: http.StatusUnauthorized},
		{name: "Garbage", header: "Bearer invalid", expectedStatus: http.StatusUnauthorized},
		{name: "Wrong key", header: "Bearer " + forgedToken, expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				userID, err := userIDFromContext(r.Context())
				require.NoError(t, err)
				assert.Equal(t, int64(7), userID)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireAuth(tokens)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestPostTransactionScenario(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("poster@example.com").Token
	account := api.openAccount(token, "100.00")

	rec := api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"account_id": account.ID,
		"type":       "expense",
		"category":   "groceries",
		"amount":     "30.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var txn types.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txn))
	assert.NotZero(t, txn.ID)
	assert.Equal(t, types.TransactionExpense, txn.Type)
	assert.True(t, decimal.RequireFromString("70.00").Equal(api.balanceOf(token, account.ID)))

	rec = api.do(http.MethodPost, "/api/transactions", token, map[string]any{
		"account_id": account.ID,
		"type":       "Income",
		"amount":     15.50,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decimal.RequireFromString("85.50").Equal(api.balanceOf(token, account.ID)))

	rec = api.do(http.MethodGet, "/api/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list TransactionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, types.TransactionIncome, list.Items[0].Type)
}

func TestPostTransactionErrors(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := api.register("owner@example.com").Token
	otherToken := api.register("other@example.com").Token
	account := api.openAccount(ownerToken, "50")

	tests := []struct {
		name           string
		token          string
		body           any
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "No token",
			body:           map[string]any{"account_id": account.ID, "type": "income", "amount": "1"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Foreign account",
			token:          otherToken,
			body:           map[string]any{"account_id": account.ID, "type": "income", "amount": "1"},
			expectedStatus: http.StatusNotFound,
			expectedError:  "account not found",
		},
		{
			name:           "Missing account",
			token:          otherToken,
			body:           map[string]any{"account_id": account.ID + 100, "type": "income", "amount": "1"},
			expectedStatus: http.StatusNotFound,
			expectedError:  "account not found",
		},
		{
			name:           "Unknown type",
			token:          ownerToken,
			body:           map[string]any{"account_id": account.ID, "type": "transfer", "amount": "1"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Zero amount",
			token:          ownerToken,
			body:           map[string]any{"account_id": account.ID, "type": "income", "amount": "0"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Negative amount",
			token:          ownerToken,
			body:           map[string]any{"account_id": account.ID, "type": "expense", "amount": "-5"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Malformed amount",
			token:          ownerToken,
			body:           `{"account_id": 1, "type": "income", "amount": "ten"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(http.MethodPost, "/api/transactions", tt.token, tt.body)
			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorMessage(t, rec))
			}
		})
	}

	assert.True(t, decimal.RequireFromString("50").Equal(api.balanceOf(ownerToken, account.ID)))
}

func TestAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.register("user@example.com").Token
	account := api.openAccount(userToken, "10")
	adminToken := api.adminToken()

	rec := api.do(http.MethodGet, "/api/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, "/api/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodGet, "/api/admin/accounts", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"owner_email":"user@example.com"`)

	tests := []struct {
		name           string
		method         string
		path           string
		body           any
		expectedStatus int
	}{
		{name: "Set balance", method: http.MethodPatch, path: "/api/admin/accounts/1/balance", body: map[string]any{"balance": "123.45"}, expectedStatus: http.StatusNoContent},
		{name: "Set balance missing value", method: http.MethodPatch, path: "/api/admin/accounts/1/balance", body: map[string]any{}, expectedStatus: http.StatusBadRequest},
		{name: "Set balance unknown account", method: http.MethodPatch, path: "/api/admin/accounts/999/balance", body: map[string]any{"balance": "1"}, expectedStatus: http.StatusNotFound},
		{name: "Set balance bad id", method: http.MethodPatch, path: "/api/admin/accounts/abc/balance", body: map[string]any{"balance": "1"}, expectedStatus: http.StatusBadRequest},
		{name: "Invalid role", method: http.MethodPatch, path: "/api/admin/users/1/role", body: SetRoleRequest{Role: "owner"}, expectedStatus: http.StatusBadRequest},
		{name: "Unknown user", method: http.MethodPatch, path: "/api/admin/users/999/role", body: SetRoleRequest{Role: "Admin"}, expectedStatus: http.StatusNotFound},
		{name: "Grant with isAdmin flag", method: http.MethodPatch, path: "/api/admin/users/1/role", body: map[string]any{"isAdmin": true}, expectedStatus: http.StatusNoContent},
		{name: "Revoke with isAdmin flag", method: http.MethodPatch, path: "/api/admin/users/1/role", body: map[string]any{"isAdmin": false}, expectedStatus: http.StatusNoContent},
		{name: "Role and flag disagree", method: http.MethodPatch, path: "/api/admin/users/1/role", body: map[string]any{"role": "Admin", "isAdmin": false}, expectedStatus: http.StatusBadRequest},
		{name: "Role missing", method: http.MethodPatch, path: "/api/admin/users/1/role", body: map[string]any{}, expectedStatus: http.StatusBadRequest},
		{name: "List transactions", method: http.MethodGet, path: "/api/admin/transactions", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, adminToken, tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
		})
	}

	require.Equal(t, int64(1), account.ID)
	assert.True(t, decimal.RequireFromString("123.45").Equal(api.balanceOf(userToken, account.ID)))

	rec = api.do(http.MethodGet, "/api/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users struct {
		Items []types.User `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	var demoted *types.User
	for i := range users.Items {
		if users.Items[i].Email == "user@example.com" {
			demoted = &users.Items[i]
		}
	}
	require.NotNil(t, demoted)
	assert.False(t, demoted.IsAdmin)
}

func TestAdminPromotionAppliesToNewTokens(t *testing.T) {
	api := newTestAPI(t)
	registered := api.register("promoted@example.com")
	adminToken := api.adminToken()

	rec := api.do(http.MethodPatch, "/api/admin/users/"+jsonNumber(registered.User.ID)+"/role", adminToken, SetRoleRequest{Role: "admin"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/admin/users", registered.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "promoted@example.com", Password: "pw123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var fresh AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fresh))

	rec = api.do(http.MethodGet, "/api/admin/users", fresh.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportStatement(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := api.register("exporter@example.com").Token
	otherToken := api.register("snoop@example.com").Token
	account := api.openAccount(ownerToken, "0")

	rec := api.do(http.MethodPost, "/api/transactions", ownerToken, map[string]any{
		"account_id": account.ID, "type": "income", "category": "salary", "amount": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	path := "/api/accounts/" + jsonNumber(account.ID) + "/statements"
	rec = api.do(http.MethodPost, path, ownerToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var statement types.Statement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statement))
	assert.Equal(t, 1, statement.Rows)
	assert.Contains(t, api.objects.objects, statement.Key)

	rec = api.do(http.MethodPost, path, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, path+"/"+statement.ID, ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "salary,10,10")

	rec = api.do(http.MethodGet, path+"/"+statement.ID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, path+"/not-a-statement", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("broken@example.com").Token
	require.NoError(t, api.db.Close())

	rec := api.do(http.MethodGet, "/api/accounts", token, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", errorMessage(t, rec))
}

func jsonNumber(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}
