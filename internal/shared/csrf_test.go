package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenRoundTrip(t *testing.T) {
	m := NewCSRFManager("csrfsecret", false)

	getReq := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	res := httptest.NewRecorder()
	token := m.EnsureToken(res, getReq)
	require.NotEmpty(t, token)

	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CSRFCookieName, cookies[0].Name)

	// Same request reuses the nonce it was just given.
	assert.Equal(t, token, m.EnsureToken(httptest.NewRecorder(), getReq))

	postReq := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	postReq.AddCookie(cookies[0])
	assert.NoError(t, m.VerifyToken(postReq, token))
	assert.ErrorIs(t, m.VerifyToken(postReq, "forged"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(postReq, ""), ErrCSRFTokenMissing)
}

func TestCSRFVerifyWithoutCookie(t *testing.T) {
	m := NewCSRFManager("csrfsecret", false)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	assert.ErrorIs(t, m.VerifyToken(req, "anything"), ErrCSRFTokenMissing)
}

func TestCSRFTokenBoundToSecret(t *testing.T) {
	a := NewCSRFManager("one", false)
	b := NewCSRFManager("two", false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	token := a.EnsureToken(httptest.NewRecorder(), req)
	assert.ErrorIs(t, b.VerifyToken(req, token), ErrCSRFTokenMismatch)
}
