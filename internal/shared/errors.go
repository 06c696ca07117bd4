package shared

import "errors"

// Sentinels shared by the identity, account and HTTP layers. Wrap them with
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized means the principal is signed in but holds no active admin account.
	ErrUnauthorized = errors.New("unauthorized: admin access required")
	ErrEmailTaken   = errors.New("email already registered")

	ErrCSRFTokenMissing  = errors.New("csrf token missing")
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
