package accounts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/storeadmin/storeadmin/internal/shared"
)

// Lookup resolves principals to active accounts, failing closed: missing,
// inactive and unreachable all read as nil. Nothing is cached.
type Lookup struct {
	repo   Repository
	logger *slog.Logger
}

// NewLookup constructs a Lookup.
func NewLookup(repo Repository, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{repo: repo, logger: logger}
}

// LookupAdmin returns the active admin account for principalID, or nil.
func (l *Lookup) LookupAdmin(ctx context.Context, principalID string) *AdminAccount {
	if principalID == "" {
		return nil
	}
	account, err := l.repo.GetAdminAccountByID(ctx, principalID)
	if err != nil {
		l.logFailure("lookup admin", principalID, err)
		return nil
	}
	if account == nil || !account.IsActive {
		return nil
	}
	return account
}

// LookupCustomer returns the active customer account for principalID, or nil.
func (l *Lookup) LookupCustomer(ctx context.Context, principalID string) *CustomerAccount {
	if principalID == "" {
		return nil
	}
	customer, err := l.repo.GetCustomerAccountByAuthUserID(ctx, principalID)
	if err != nil {
		l.logFailure("lookup customer", principalID, err)
		return nil
	}
	if customer == nil || !customer.IsActive {
		return nil
	}
	return customer
}

func (l *Lookup) logFailure(msg, principalID string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		return
	}
	l.logger.Warn(msg, slog.String("principal_id", principalID), slog.Any("error", err))
}
