package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fintrack/apiserver/internal/db"
	"github.com/fintrack/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *db.DB
}

func NewUserRepository(conn *db.DB) *UserRepository {
	return &UserRepository{db: conn}
}

const userColumns = `id, full_name, email, password_hash, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// GetByEmail looks a user up by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Create inserts a user. A taken email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.CreatedAt = time.Now().UTC()

	query := r.db.Rebind(`
		INSERT INTO users (full_name, email, password_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.CreatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	query := r.db.Rebind(`UPDATE users SET is_admin = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, isAdmin, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
