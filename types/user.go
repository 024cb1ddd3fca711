package types

import "time"

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// User represents a registered identity in the system.
// It contains credentials, the admin flag, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// FullName is the user's display or full name.
	FullName string `json:"full_name" db:"full_name"`

	// Email is the user's login, stored trimmed and lowercased.
	// It is unique across all users.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt digest of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsAdmin grants access to the administrative endpoints.
	IsAdmin bool `json:"is_admin" db:"is_admin"`

	// CreatedAt is the timestamp when the user registered.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Role returns the role claim carried in the user's tokens.
func (u User) Role() string {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}
