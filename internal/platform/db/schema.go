package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the minimal layout the identity and account repositories read.
// Every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS auth_users (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		email text NOT NULL,
		password_hash text NOT NULL,
		first_name text,
		last_name text,
		phone text,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS auth_users_email_key ON auth_users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS admin_users (
		id uuid PRIMARY KEY REFERENCES auth_users (id) ON DELETE CASCADE,
		email text NOT NULL,
		role text NOT NULL CHECK (role IN ('super_admin', 'admin', 'manager', 'analyst')),
		permissions jsonb NOT NULL DEFAULT '{}'::jsonb,
		first_name text,
		last_name text,
		avatar_url text,
		is_active boolean NOT NULL DEFAULT true,
		last_login timestamptz,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		auth_user_id uuid UNIQUE REFERENCES auth_users (id) ON DELETE SET NULL,
		email text NOT NULL,
		first_name text,
		last_name text,
		phone text,
		avatar_url text,
		is_active boolean NOT NULL DEFAULT true,
		subscription_status text NOT NULL DEFAULT 'free'
			CHECK (subscription_status IN ('free', 'basic', 'premium', 'enterprise')),
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
}

// ApplySchema creates the tables when they are missing.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
