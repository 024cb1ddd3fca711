package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fintrack/apiserver/internal/auth"
	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error
}

// TokenIssuer mints access tokens for authenticated users.
type TokenIssuer interface {
	Issue(user types.User) (string, error)
}

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// UserService encapsulates registration, login and user lookups.
type UserService struct {
	repo   UserRepository
	tokens TokenIssuer
	events EventPublisher
}

func NewUserService(repo UserRepository, tokens TokenIssuer, events EventPublisher) *UserService {
	return &UserService{repo: repo, tokens: tokens, events: events}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a freshly hashed password and returns a
// token for it. A taken email yields ErrConflict.
func (s *UserService) Register(ctx context.Context, fullName, email, password string) (AuthResult, error) {
	fullName = strings.TrimSpace(fullName)
	email = NormalizeEmail(email)
	if fullName == "" || email == "" || password == "" {
		return AuthResult{}, fmt.Errorf("%w: full name, email and password are required", ErrInvalidArgument)
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return AuthResult{}, fmt.Errorf("%w: email already exists", ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("check user: %w", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return AuthResult{}, fmt.Errorf("%w: email already exists", ErrConflict)
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	publishEvent(ctx, s.events, types.ChannelUserRegistered, fmt.Sprintf("user-%d", user.ID), types.UserRegisteredEvent{
		UserID:     user.ID,
		Email:      user.Email,
		OccurredAt: time.Now().UTC(),
	})
	return AuthResult{Token: token, User: user}, nil
}

// dummyHash is compared against when the email is unknown so both login
// failure paths cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	hash, _ := auth.HashPassword("fintrack-dummy-password")
	return hash
})

// Login verifies credentials and returns a token. Unknown email and wrong
// password both yield auth.ErrUnauthenticated.
func (s *UserService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = NormalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			auth.VerifyPassword(dummyHash(), password)
			return AuthResult{}, auth.ErrUnauthenticated
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}

	if !auth.VerifyPassword(user.PasswordHash, password) {
		return AuthResult{}, auth.ErrUnauthenticated
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{Token: token, User: user}, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("user: %w", ErrNotFound)
	}
	return user, err
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

// EnsureAdmin creates an administrator with the given credentials, or
// grants admin rights to the existing user with that email. The password
// of an existing user is left untouched. It reports whether a new user
// was created.
func (s *UserService) EnsureAdmin(ctx context.Context, fullName, email, password string) (types.User, bool, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, false, fmt.Errorf("%w: admin email and password are required", ErrInvalidArgument)
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if !existing.IsAdmin {
			if err := s.repo.SetAdmin(ctx, existing.ID, true); err != nil {
				return types.User{}, false, fmt.Errorf("promote admin: %w", err)
			}
			existing.IsAdmin = true
		}
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, false, fmt.Errorf("check admin: %w", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, false, fmt.Errorf("hash password: %w", err)
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName = "System Admin"
	}
	user, err := s.repo.Create(ctx, types.User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: hashed,
		IsAdmin:      true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, false, fmt.Errorf("%w: email already exists", ErrConflict)
		}
		return types.User{}, false, fmt.Errorf("create admin: %w", err)
	}
	return user, true, nil
}

// SetAdminByEmail flips the admin flag of the user with the given email.
func (s *UserService) SetAdminByEmail(ctx context.Context, email string, isAdmin bool) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, fmt.Errorf("user: %w", ErrNotFound)
		}
		return types.User{}, err
	}
	if err := s.repo.SetAdmin(ctx, user.ID, isAdmin); err != nil {
		return types.User{}, err
	}
	user.IsAdmin = isAdmin
	return user, nil
}
