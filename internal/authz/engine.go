// Package authz decides whether an admin account may use a permission or an
// admin route. It performs no I/O.
//
// Routes missing from the RoutePermissions map are open to every active admin.
// This default-allow is intentional: unlisted admin sub-pages need no grant.
package authz

import "github.com/storeadmin/storeadmin/internal/accounts"

// HasPermission reports whether account holds permission. super_admin holds
// every permission; for other roles a missing key is false.
func HasPermission(account *accounts.AdminAccount, permission string) bool {
	if account == nil {
		return false
	}
	if account.Role == accounts.RoleSuperAdmin {
		return true
	}
	return account.Permissions[permission]
}

// Engine evaluates route access against a fixed RoutePermissions map.
type Engine struct {
	routes RoutePermissions
}

// NewEngine constructs an Engine. A nil map means no route requires anything.
func NewEngine(routes RoutePermissions) *Engine {
	if routes == nil {
		routes = RoutePermissions{}
	}
	return &Engine{routes: routes}
}

// CanAccessRoute reports whether account holds every permission route requires.
func (e *Engine) CanAccessRoute(account *accounts.AdminAccount, route string) bool {
	if account == nil {
		return false
	}
	for _, permission := range e.routes.Required(route) {
		if !HasPermission(account, permission) {
			return false
		}
	}
	return true
}
