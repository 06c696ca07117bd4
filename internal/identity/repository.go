package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storeadmin/storeadmin/internal/shared"
)

const uniqueViolation = "23505"

// Repository defines persistence operations for stored identities.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	const query = `SELECT id::text, email, password_hash,
		COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(phone, ''), created_at
		FROM auth_users WHERE lower(email) = lower($1)`
	var u User
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash,
		&u.Profile.FirstName, &u.Profile.LastName, &u.Profile.Phone, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("identity: find by email: %w", err)
	}
	return &u, nil
}

// Create inserts a user; ID and CreatedAt are filled from the database.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	const query = `INSERT INTO auth_users (email, password_hash, first_name, last_name, phone)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id::text, created_at`
	err := r.pool.QueryRow(ctx, query,
		user.Email, user.PasswordHash,
		user.Profile.FirstName, user.Profile.LastName, user.Profile.Phone,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrEmailTaken
		}
		return fmt.Errorf("identity: create user: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
