package gate

import (
	"context"

	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/identity"
)

type principalKey struct{}

type adminKey struct{}

// ContextWithPrincipal stores the resolved principal on ctx.
func ContextWithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal the gate resolved, if any.
func PrincipalFromContext(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalKey{}).(*identity.Principal)
	return p
}

// ContextWithAdmin stores the active admin account on ctx.
func ContextWithAdmin(ctx context.Context, account *accounts.AdminAccount) context.Context {
	if account == nil {
		return ctx
	}
	return context.WithValue(ctx, adminKey{}, account)
}

// AdminFromContext returns the admin account the gate loaded. It is only set
// for requests under the admin prefix.
func AdminFromContext(ctx context.Context) *accounts.AdminAccount {
	a, _ := ctx.Value(adminKey{}).(*accounts.AdminAccount)
	return a
}
