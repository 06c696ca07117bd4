package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/observability"
	"github.com/storeadmin/storeadmin/internal/shared"
	"github.com/storeadmin/storeadmin/internal/view"
)

const (
	adminHome    = "/admin"
	customerHome = "/dashboard"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	templates   *view.Engine
	csrfManager *shared.CSRFManager
	cookies     identity.CookieJar
	metrics     *observability.Metrics
	validator   *validator.Validate
	attempts    int
}

// NewHandler constructs a Handler. attemptsPerMinute bounds POSTs per client IP.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, cookies identity.CookieJar, metrics *observability.Metrics, attemptsPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if attemptsPerMinute <= 0 {
		attemptsPerMinute = 10
	}
	return &Handler{
		logger:      logger,
		service:     service,
		templates:   templates,
		csrfManager: csrf,
		cookies:     cookies,
		metrics:     metrics,
		validator:   shared.NewValidator(),
		attempts:    attemptsPerMinute,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limited := r.With(httprate.LimitByIP(h.attempts, time.Minute))

	r.Get("/admin-login", h.showAdminLogin)
	limited.Post("/admin-login", h.handleAdminLogin)
	r.Get("/login", h.showLogin)
	limited.Post("/login", h.handleLogin)
	r.Get("/signup", h.showSignUp)
	limited.Post("/signup", h.handleSignUp)
	r.Post("/logout", h.handleLogout)
	r.Get("/unauthorized", h.showUnauthorized)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type signUpForm struct {
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8,pwbytes"`
	FirstName string `validate:"max=100"`
	LastName  string `validate:"max=100"`
	Phone     string `validate:"omitempty,max=32"`
}

type formPageData struct {
	Form   any
	Errors map[string]string
}

func (h *Handler) showAdminLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/admin_login.html", "Admin Login", formPageData{Form: loginForm{}})
}

func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	form, errs := h.parseLogin(r)
	if len(errs) == 0 {
		_, creds, err := h.service.SignInAdmin(r.Context(), form.Email, form.Password)
		if err == nil {
			h.metrics.ObserveSignIn("admin", "ok")
			h.cookies.Write(w, *creds)
			http.Redirect(w, r, adminHome, http.StatusSeeOther)
			return
		}
		status, message := h.signInFailure("admin", err)
		errs["general"] = message
		h.render(w, r, status, "pages/admin_login.html", "Admin Login", formPageData{Form: loginForm{Email: form.Email}, Errors: errs})
		return
	}
	h.render(w, r, http.StatusBadRequest, "pages/admin_login.html", "Admin Login", formPageData{Form: loginForm{Email: form.Email}, Errors: errs})
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign In", formPageData{Form: loginForm{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	form, errs := h.parseLogin(r)
	if len(errs) == 0 {
		_, creds, err := h.service.SignInCustomer(r.Context(), form.Email, form.Password)
		if err == nil {
			h.metrics.ObserveSignIn("customer", "ok")
			h.cookies.Write(w, *creds)
			http.Redirect(w, r, customerHome, http.StatusSeeOther)
			return
		}
		status, message := h.signInFailure("customer", err)
		errs["general"] = message
		h.render(w, r, status, "pages/login.html", "Sign In", formPageData{Form: loginForm{Email: form.Email}, Errors: errs})
		return
	}
	h.render(w, r, http.StatusBadRequest, "pages/login.html", "Sign In", formPageData{Form: loginForm{Email: form.Email}, Errors: errs})
}

func (h *Handler) showSignUp(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/signup.html", "Create Account", formPageData{Form: signUpForm{}})
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := signUpForm{
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		Password:  r.PostFormValue("password"),
		FirstName: strings.TrimSpace(r.PostFormValue("first_name")),
		LastName:  strings.TrimSpace(r.PostFormValue("last_name")),
		Phone:     strings.TrimSpace(r.PostFormValue("phone")),
	}
	errs := h.validate(form)
	status := http.StatusBadRequest
	if len(errs) == 0 {
		_, creds, err := h.service.SignUpCustomer(r.Context(), SignUpInput{
			Email:     form.Email,
			Password:  form.Password,
			FirstName: form.FirstName,
			LastName:  form.LastName,
			Phone:     form.Phone,
		})
		switch {
		case err == nil:
			h.metrics.ObserveSignIn("signup", "ok")
			h.cookies.Write(w, *creds)
			http.Redirect(w, r, customerHome, http.StatusSeeOther)
			return
		case errors.Is(err, shared.ErrEmailTaken):
			h.metrics.ObserveSignIn("signup", "rejected")
			status = http.StatusConflict
			errs["Email"] = "An account with this email already exists"
		default:
			h.metrics.ObserveSignIn("signup", "error")
			h.logger.Error("sign up", slog.Any("error", err))
			status = http.StatusInternalServerError
			errs["general"] = "Sign-up is temporarily unavailable"
		}
	}
	form.Password = ""
	h.render(w, r, status, "pages/signup.html", "Create Account", formPageData{Form: form, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SignOut(r.Context(), h.cookies.Read(r)); err != nil {
		h.logger.Warn("sign out", slog.Any("error", err))
	}
	h.cookies.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) showUnauthorized(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, "pages/unauthorized.html", "Access Denied", nil)
}

func (h *Handler) parseLogin(r *http.Request) (loginForm, map[string]string) {
	if err := r.ParseForm(); err != nil {
		return loginForm{}, map[string]string{"general": "Malformed form submission"}
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	return form, h.validate(form)
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}
	return errs
}

// signInFailure maps a sign-in error to the status and inline message shown
// on the form.
func (h *Handler) signInFailure(area string, err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		h.metrics.ObserveSignIn(area, "invalid")
		return http.StatusBadRequest, "Invalid email or password"
	case errors.Is(err, shared.ErrUnauthorized):
		h.metrics.ObserveSignIn(area, "rejected")
		return http.StatusForbidden, "Unauthorized: admin access required"
	default:
		h.metrics.ObserveSignIn(area, "error")
		h.logger.Error("sign in", slog.String("area", area), slog.Any("error", err))
		return http.StatusInternalServerError, "Sign-in is temporarily unavailable"
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return "Must be at least " + fe.Param() + " characters"
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	case "pwbytes":
		return "Must be at most 72 bytes"
	default:
		return fe.Error()
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
