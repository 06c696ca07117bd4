package auth_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/auth"
	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/observability"
	"github.com/storeadmin/storeadmin/internal/shared"
	"github.com/storeadmin/storeadmin/internal/view"
)

var jar = identity.CookieJar{
	AccessName:  "sa_access",
	RefreshName: "sa_refresh",
	AccessTTL:   15 * time.Minute,
	RefreshTTL:  time.Hour,
}

func newRouter(t *testing.T, e *env, attempts int) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := auth.NewHandler(nil, e.service, templates, shared.NewCSRFManager("csrfsecret", false), jar, observability.NewMetrics(), attempts)
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func cookiesByName(res *http.Response) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range res.Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestAdminLoginPage(t *testing.T) {
	router := newRouter(t, newEnv(t), 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/auth/admin-login", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `name="csrf_token"`)
	assert.Contains(t, cookiesByName(res.Result()), shared.CSRFCookieName)
}

func TestAdminLoginInvalidCredentials(t *testing.T) {
	e := newEnv(t)
	e.users.add(t, "a1", "admin@shop.test", "s3cret-pass")
	e.dir.admins["a1"] = &accounts.AdminAccount{ID: "a1", Role: accounts.RoleAdmin, IsActive: true}
	router := newRouter(t, e, 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/admin-login", url.Values{"email": {"admin@shop.test"}, "password": {"wrongpass"}}))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
	assert.NotContains(t, cookiesByName(res.Result()), jar.AccessName)
}

func TestAdminLoginRejectsNonAdmin(t *testing.T) {
	e := newEnv(t)
	e.users.add(t, "c1", "customer@shop.test", "s3cret-pass")
	router := newRouter(t, e, 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/admin-login", url.Values{"email": {"customer@shop.test"}, "password": {"s3cret-pass"}}))

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "Unauthorized: admin access required")
	cookies := cookiesByName(res.Result())
	assert.NotContains(t, cookies, jar.AccessName)
	assert.NotContains(t, cookies, jar.RefreshName)
	assert.Zero(t, e.sessionCount())
}

func TestAdminLoginSuccess(t *testing.T) {
	e := newEnv(t)
	e.users.add(t, "a1", "admin@shop.test", "s3cret-pass")
	e.dir.admins["a1"] = &accounts.AdminAccount{ID: "a1", Role: accounts.RoleAdmin, IsActive: true}
	router := newRouter(t, e, 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/admin-login", url.Values{"email": {"admin@shop.test"}, "password": {"s3cret-pass"}}))

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin", res.Header().Get("Location"))
	cookies := cookiesByName(res.Result())
	require.Contains(t, cookies, jar.AccessName)
	require.Contains(t, cookies, jar.RefreshName)
	assert.True(t, cookies[jar.AccessName].HttpOnly)
}

func TestLoginValidation(t *testing.T) {
	router := newRouter(t, newEnv(t), 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/login", url.Values{"email": {"not-an-email"}}))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Enter a valid email address")
	assert.Contains(t, body, "This field is required")
	assert.Contains(t, body, `value="not-an-email"`)
}

func TestCustomerLoginRedirectsToDashboard(t *testing.T) {
	e := newEnv(t)
	e.users.add(t, "c1", "customer@shop.test", "s3cret-pass")
	router := newRouter(t, e, 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/login", url.Values{"email": {"customer@shop.test"}, "password": {"s3cret-pass"}}))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/dashboard", res.Header().Get("Location"))
}

func TestSignUpFlow(t *testing.T) {
	e := newEnv(t)
	router := newRouter(t, e, 100)
	form := url.Values{
		"email":      {"new@shop.test"},
		"password":   {"long-enough"},
		"first_name": {"Nia"},
	}

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/signup", form))
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/dashboard", res.Header().Get("Location"))
	assert.Len(t, e.mailer.sent, 1)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/signup", form))
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.Body.String(), "already exists")
	assert.NotContains(t, res.Body.String(), "long-enough", "password is never echoed back")
}

func TestSignUpShortPassword(t *testing.T) {
	router := newRouter(t, newEnv(t), 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/signup", url.Values{"email": {"x@shop.test"}, "password": {"short"}}))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Must be at least 8 characters")
}

func TestSignUpMultibytePasswordTooLong(t *testing.T) {
	e := newEnv(t)
	router := newRouter(t, e, 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/auth/signup", url.Values{"email": {"x@shop.test"}, "password": {strings.Repeat("ü", 40)}}))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Must be at most 72 bytes")
	assert.Zero(t, e.sessionCount())
}

func TestLogoutEndsSession(t *testing.T) {
	e := newEnv(t)
	e.users.add(t, "c1", "customer@shop.test", "s3cret-pass")
	router := newRouter(t, e, 100)

	login := httptest.NewRecorder()
	router.ServeHTTP(login, postForm("/auth/login", url.Values{"email": {"customer@shop.test"}, "password": {"s3cret-pass"}}))
	require.Equal(t, 1, e.sessionCount())

	req := postForm("/auth/logout", url.Values{})
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
	assert.Zero(t, e.sessionCount())
	assert.Equal(t, -1, cookiesByName(res.Result())[jar.AccessName].MaxAge)
}

func TestUnauthorizedPage(t *testing.T) {
	router := newRouter(t, newEnv(t), 100)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/auth/unauthorized", nil))

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "Access Denied")
}

func TestSignInIsRateLimited(t *testing.T) {
	router := newRouter(t, newEnv(t), 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		router.ServeHTTP(res, postForm("/auth/login", url.Values{"email": {"x@shop.test"}, "password": {"pw"}}))
		codes = append(codes, res.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}
