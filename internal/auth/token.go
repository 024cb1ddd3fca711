package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fintrack/apiserver/config"
	"github.com/fintrack/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a caller's identity cannot be
// established: a bad token, or credentials that do not match.
var ErrUnauthenticated = errors.New("unauthenticated")

const DefaultTokenTTL = 8 * time.Hour

// Claims are the assertions carried by an access token.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == types.RoleAdmin
}

// TokenService issues and verifies HS256 access tokens.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenService constructs a TokenService from config.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue mints a token for user that expires after the configured TTL.
func (s *TokenService) Issue(user types.User) (string, error) {
	now := s.now()
	claims := Claims{
		Email: user.Email,
		Name:  user.FullName,
		Role:  user.Role(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature, issuer, audience and expiry. Every failure is
// reported as ErrUnauthenticated.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// UserID extracts the user id from the subject claim.
func UserID(claims *Claims) (int64, error) {
	if claims == nil {
		return 0, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	return id, nil
}
