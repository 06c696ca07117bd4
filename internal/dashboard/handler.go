// Package dashboard serves the admin console shell and the customer area. It
// only reads the accounts the gate already resolved.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/authz"
	"github.com/storeadmin/storeadmin/internal/gate"
	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/platform/httpx"
	"github.com/storeadmin/storeadmin/internal/shared"
	"github.com/storeadmin/storeadmin/internal/view"
)

// CustomerLookup loads the active customer behind a principal.
type CustomerLookup interface {
	LookupCustomer(ctx context.Context, principalID string) *accounts.CustomerAccount
}

// Handler serves the dashboard pages.
type Handler struct {
	logger      *slog.Logger
	templates   *view.Engine
	csrfManager *shared.CSRFManager
	engine      *authz.Engine
	gate        *gate.Gate
	customers   CustomerLookup
	corsOrigins []string
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, engine *authz.Engine, g *gate.Gate, customers CustomerLookup, corsOrigins []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		templates:   templates,
		csrfManager: csrf,
		engine:      engine,
		gate:        g,
		customers:   customers,
		corsOrigins: corsOrigins,
	}
}

// MountAdmin registers the admin console under the router it is given. api is
// mounted under /api with CORS applied; it may be nil.
func (h *Handler) MountAdmin(r chi.Router, api func(chi.Router)) {
	r.Get("/", h.adminHome)
	r.With(h.gate.RequireRoute()).Get("/{section}", h.adminSection)
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", shared.CSRFHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Get("/me", h.me)
		if api != nil {
			api(r)
		}
	})
}

// MountCustomer registers the public home page and the customer area.
func (h *Handler) MountCustomer(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/dashboard", h.customerPage("My Dashboard"))
	r.Get("/profile", h.customerPage("My Profile"))
}

type adminPageData struct {
	Admin    *accounts.AdminAccount
	Sections []SectionLink
}

func (h *Handler) adminHome(w http.ResponseWriter, r *http.Request) {
	admin := gate.AdminFromContext(r.Context())
	h.render(w, r, http.StatusOK, "pages/admin_dashboard.html", "Dashboard", adminPageData{
		Admin:    admin,
		Sections: Sidebar(h.engine, admin),
	})
}

func (h *Handler) adminSection(w http.ResponseWriter, r *http.Request) {
	section, ok := FindSection(chi.URLParam(r, "section"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	admin := gate.AdminFromContext(r.Context())
	h.render(w, r, http.StatusOK, "pages/admin_section.html", section.Title, adminPageData{
		Admin:    admin,
		Sections: Sidebar(h.engine, admin),
	})
}

type meResponse struct {
	Admin         *accounts.AdminAccount `json:"admin"`
	RoleLabel     string                 `json:"role_label"`
	DisplayName   string                 `json:"display_name"`
	AllowedRoutes []string               `json:"allowed_routes"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	admin := gate.AdminFromContext(r.Context())
	if admin == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	allowed := make([]string, 0)
	for _, link := range Sidebar(h.engine, admin) {
		if link.Allowed {
			allowed = append(allowed, link.Href)
		}
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		Admin:         admin,
		RoleLabel:     admin.Role.Label(),
		DisplayName:   admin.DisplayName(),
		AllowedRoutes: allowed,
	})
}

type homePageData struct {
	SignedIn bool
	Email    string
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	data := homePageData{}
	if p := gate.PrincipalFromContext(r.Context()); p != nil {
		data.SignedIn = true
		data.Email = p.Email
	}
	h.render(w, r, http.StatusOK, "pages/home.html", "", data)
}

type customerPageData struct {
	Principal *identity.Principal
	Customer  *accounts.CustomerAccount
}

func (h *Handler) customerPage(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := gate.PrincipalFromContext(r.Context())
		if principal == nil {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		h.render(w, r, http.StatusOK, "pages/customer_dashboard.html", title, customerPageData{
			Principal: principal,
			Customer:  h.customers.LookupCustomer(r.Context(), principal.ID),
		})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   h.csrfManager.EnsureToken(w, r),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render", slog.String("template", name), slog.Any("error", err))
	}
}
