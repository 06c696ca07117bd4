// Package gate intercepts every request, resolves who is calling and redirects
// callers that may not enter the admin area or the customer area.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/authz"
	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/observability"
)

var tracer = otel.Tracer("github.com/storeadmin/storeadmin/internal/gate")

// SessionResolver resolves request credentials to a principal. It never fails;
// a nil principal means unauthenticated.
type SessionResolver interface {
	GetCurrentUser(ctx context.Context, creds identity.Credentials) (*identity.Principal, *identity.Credentials)
}

// AccountLookup loads active admin accounts; nil means absent, inactive or
// unreachable.
type AccountLookup interface {
	LookupAdmin(ctx context.Context, principalID string) *accounts.AdminAccount
}

// Outcome is the result of evaluating one request.
type Outcome string

// Gate outcomes.
const (
	OutcomeAllow          Outcome = "allow"
	OutcomeAdminSignIn    Outcome = "admin_sign_in"
	OutcomeUnauthorized   Outcome = "unauthorized"
	OutcomeCustomerSignIn Outcome = "customer_sign_in"
)

// Config holds the protected prefixes and redirect destinations.
type Config struct {
	AdminPrefix        string
	ProtectedPrefixes  []string
	AdminSignInPath    string
	UnauthorizedPath   string
	CustomerSignInPath string
}

// DefaultConfig returns the standard layout of the console.
func DefaultConfig() Config {
	return Config{
		AdminPrefix:        "/admin",
		ProtectedPrefixes:  []string{"/dashboard", "/profile"},
		AdminSignInPath:    "/auth/admin-login",
		UnauthorizedPath:   "/auth/unauthorized",
		CustomerSignInPath: "/auth/login",
	}
}

// Decision is what the gate concluded for a single request.
type Decision struct {
	Outcome   Outcome
	Principal *identity.Principal
	Admin     *accounts.AdminAccount
	Refreshed *identity.Credentials
}

// Params groups the gate dependencies.
type Params struct {
	Config   Config
	Sessions SessionResolver
	Accounts AccountLookup
	Engine   *authz.Engine
	Cookies  identity.CookieJar
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Gate is the request interception layer.
type Gate struct {
	cfg      Config
	sessions SessionResolver
	accounts AccountLookup
	engine   *authz.Engine
	cookies  identity.CookieJar
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New constructs a Gate.
func New(p Params) *Gate {
	if p.Engine == nil {
		p.Engine = authz.NewEngine(authz.DefaultRoutePermissions())
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Config.AdminPrefix == "" {
		p.Config = DefaultConfig()
	}
	return &Gate{
		cfg:      p.Config,
		sessions: p.Sessions,
		accounts: p.Accounts,
		engine:   p.Engine,
		cookies:  p.Cookies,
		metrics:  p.Metrics,
		logger:   p.Logger,
	}
}

// Evaluate runs the decision for a request path. The first matching rule wins:
// admin area without principal, admin area without active admin account, then
// customer area without principal. Everything else is allowed.
func (g *Gate) Evaluate(ctx context.Context, path string, creds identity.Credentials) Decision {
	principal, refreshed := g.sessions.GetCurrentUser(ctx, creds)
	d := Decision{Outcome: OutcomeAllow, Principal: principal, Refreshed: refreshed}

	if underPrefix(path, g.cfg.AdminPrefix) {
		if principal == nil {
			d.Outcome = OutcomeAdminSignIn
			return d
		}
		admin := g.accounts.LookupAdmin(ctx, principal.ID)
		if admin == nil {
			d.Outcome = OutcomeUnauthorized
			return d
		}
		d.Admin = admin
		return d
	}

	if principal == nil {
		for _, prefix := range g.cfg.ProtectedPrefixes {
			if underPrefix(path, prefix) {
				d.Outcome = OutcomeCustomerSignIn
				return d
			}
		}
	}
	return d
}

// Middleware applies Evaluate to every request. Refreshed credentials are
// written back on every outcome, redirects included.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spanCtx, span := tracer.Start(r.Context(), "gate.evaluate")
		d := g.Evaluate(spanCtx, r.URL.Path, g.cookies.Read(r))
		span.SetAttributes(
			attribute.String("gate.outcome", string(d.Outcome)),
			attribute.Bool("gate.refreshed", d.Refreshed != nil),
		)
		span.End()
		if d.Refreshed != nil {
			g.cookies.Write(w, *d.Refreshed)
		}
		g.record(r, d.Outcome)
		if d.Outcome != OutcomeAllow {
			g.redirect(w, r, d.Outcome)
			return
		}

		ctx := ContextWithPrincipal(r.Context(), d.Principal)
		ctx = ContextWithAdmin(ctx, d.Admin)
		if d.Refreshed != nil {
			r = r.Clone(ctx)
			g.cookies.Apply(r, *d.Refreshed)
		} else {
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoute rejects admins lacking the permissions mapped to the request
// path. Paths missing from the route map are open to every active admin.
func (g *Gate) RequireRoute() func(http.Handler) http.Handler {
	return g.require(func(admin *accounts.AdminAccount, r *http.Request) bool {
		return g.engine.CanAccessRoute(admin, r.URL.Path)
	})
}

// RequirePermission rejects admins that do not hold every listed permission.
func (g *Gate) RequirePermission(permissions ...string) func(http.Handler) http.Handler {
	return g.require(func(admin *accounts.AdminAccount, _ *http.Request) bool {
		for _, permission := range permissions {
			if !authz.HasPermission(admin, permission) {
				return false
			}
		}
		return true
	})
}

func (g *Gate) require(allowed func(*accounts.AdminAccount, *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin := AdminFromContext(r.Context())
			if admin == nil {
				outcome := OutcomeUnauthorized
				if PrincipalFromContext(r.Context()) == nil {
					outcome = OutcomeAdminSignIn
				}
				g.record(r, outcome)
				g.redirect(w, r, outcome)
				return
			}
			if !allowed(admin, r) {
				g.record(r, OutcomeUnauthorized)
				g.redirect(w, r, OutcomeUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Target returns the redirect destination for a deny outcome.
func (c Config) Target(outcome Outcome) string {
	switch outcome {
	case OutcomeAdminSignIn:
		return c.AdminSignInPath
	case OutcomeCustomerSignIn:
		return c.CustomerSignInPath
	default:
		return c.UnauthorizedPath
	}
}

func (g *Gate) redirect(w http.ResponseWriter, r *http.Request, outcome Outcome) {
	target := *r.URL
	target.Scheme, target.Host, target.User = "", "", nil
	target.Path = g.cfg.Target(outcome)
	target.RawPath = ""
	target.Fragment = ""
	http.Redirect(w, r, target.RequestURI(), http.StatusSeeOther)
}

func (g *Gate) record(r *http.Request, outcome Outcome) {
	g.metrics.ObserveGateDecision(string(outcome))
	g.logger.Debug("gate decision",
		slog.String("path", r.URL.Path),
		slog.String("outcome", string(outcome)),
	)
}

// underPrefix matches prefix itself and anything below it, so "/admin" covers
// "/admin/orders" but not "/administrator" or "/admin-x". Unlike a plain string
// prefix test, sibling paths that only share leading characters stay public.
func underPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
