package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storeadmin/storeadmin/internal/shared"
)

// Repository is the account directory read by the gate and written on sign-in.
// Both getters only return active accounts.
type Repository interface {
	GetAdminAccountByID(ctx context.Context, id string) (*AdminAccount, error)
	GetCustomerAccountByAuthUserID(ctx context.Context, authUserID string) (*CustomerAccount, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// Provisioner holds the write operations used outside the request path.
type Provisioner interface {
	CreateAdminAccount(ctx context.Context, account *AdminAccount) error
	SetAdminActive(ctx context.Context, id string, active bool) error
	SetAdminPermission(ctx context.Context, id, permission string, granted bool) error
	CreateCustomerAccount(ctx context.Context, customer *CustomerAccount) error
}

// PGRepository implements Repository and Provisioner on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetAdminAccountByID fetches an active admin account.
func (r *PGRepository) GetAdminAccountByID(ctx context.Context, id string) (*AdminAccount, error) {
	const query = `SELECT id::text, email, role, COALESCE(permissions, '{}'::jsonb),
		COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(avatar_url, ''),
		is_active, last_login
		FROM admin_users WHERE id = $1 AND is_active = true`
	var a AdminAccount
	var role string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Email, &role, &a.Permissions,
		&a.FirstName, &a.LastName, &a.AvatarURL,
		&a.IsActive, &a.LastLogin,
	)
	if err != nil {
		return nil, notFound(err, "get admin account")
	}
	a.Role = Role(role)
	if a.Permissions == nil {
		a.Permissions = map[string]bool{}
	}
	return &a, nil
}

// GetCustomerAccountByAuthUserID fetches the active customer bound to an identity.
func (r *PGRepository) GetCustomerAccountByAuthUserID(ctx context.Context, authUserID string) (*CustomerAccount, error) {
	const query = `SELECT id::text, COALESCE(auth_user_id::text, ''), email,
		COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(phone, ''), COALESCE(avatar_url, ''),
		is_active, subscription_status
		FROM customers WHERE auth_user_id = $1 AND is_active = true`
	var c CustomerAccount
	var status string
	err := r.pool.QueryRow(ctx, query, authUserID).Scan(
		&c.ID, &c.AuthUserID, &c.Email,
		&c.FirstName, &c.LastName, &c.Phone, &c.AvatarURL,
		&c.IsActive, &status,
	)
	if err != nil {
		return nil, notFound(err, "get customer account")
	}
	c.SubscriptionStatus = SubscriptionStatus(status)
	return &c, nil
}

// UpdateLastLogin stamps the admin's last successful sign-in.
func (r *PGRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admin_users SET last_login = $2 WHERE id = $1`, id, at.UTC())
	return affected(tag, err, "update last login")
}

// CreateAdminAccount inserts an admin account for an existing identity.
func (r *PGRepository) CreateAdminAccount(ctx context.Context, account *AdminAccount) error {
	if !account.Role.Valid() {
		return fmt.Errorf("accounts: unknown role %q", account.Role)
	}
	perms := account.Permissions
	if perms == nil {
		perms = map[string]bool{}
	}
	const query = `INSERT INTO admin_users (id, email, role, permissions, first_name, last_name, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)`
	_, err := r.pool.Exec(ctx, query,
		account.ID, account.Email, string(account.Role), perms,
		account.FirstName, account.LastName, account.IsActive,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("accounts: admin %s already exists", account.ID)
		}
		return fmt.Errorf("accounts: create admin account: %w", err)
	}
	return nil
}

// SetAdminActive flips the active flag. Deactivation takes effect on the next request.
func (r *PGRepository) SetAdminActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admin_users SET is_active = $2 WHERE id = $1`, id, active)
	return affected(tag, err, "set admin active")
}

// SetAdminPermission grants or revokes a single named permission.
func (r *PGRepository) SetAdminPermission(ctx context.Context, id, permission string, granted bool) error {
	const query = `UPDATE admin_users
		SET permissions = jsonb_set(COALESCE(permissions, '{}'::jsonb), ARRAY[$2::text], to_jsonb($3::boolean))
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, permission, granted)
	return affected(tag, err, "set admin permission")
}

// CreateCustomerAccount inserts the customer record for a freshly signed-up identity.
func (r *PGRepository) CreateCustomerAccount(ctx context.Context, c *CustomerAccount) error {
	status := c.SubscriptionStatus
	if status == "" {
		status = SubscriptionFree
	}
	const query = `INSERT INTO customers (auth_user_id, email, first_name, last_name, phone, is_active, subscription_status)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		RETURNING id::text`
	err := r.pool.QueryRow(ctx, query,
		c.AuthUserID, c.Email, c.FirstName, c.LastName, c.Phone, c.IsActive, string(status),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("accounts: create customer account: %w", err)
	}
	c.SubscriptionStatus = status
	return nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return fmt.Errorf("accounts: %s: %w", op, err)
}

func affected(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return fmt.Errorf("accounts: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var (
	_ Repository  = (*PGRepository)(nil)
	_ Provisioner = (*PGRepository)(nil)
)
