package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", "storeadmin", time.Minute)
	raw, err := issuer.Issue(Principal{ID: "u1", Email: "a@b.test"}, "sess-1")
	require.NoError(t, err)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Principal.ID)
	assert.Equal(t, "a@b.test", claims.Principal.Email)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestTokenIssuerExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer("secret", "storeadmin", time.Minute)
	issuer.now = func() time.Time { return now }

	raw, err := issuer.Issue(Principal{ID: "u1"}, "sess-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenIssuerRejectsForeignTokens(t *testing.T) {
	issuer := NewTokenIssuer("secret", "storeadmin", time.Minute)
	other := NewTokenIssuer("other-secret", "storeadmin", time.Minute)
	wrongIssuer := NewTokenIssuer("secret", "someone-else", time.Minute)

	raw, err := other.Issue(Principal{ID: "u1"}, "sess-1")
	require.NoError(t, err)
	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	raw, err = wrongIssuer.Issue(Principal{ID: "u1"}, "sess-1")
	require.NoError(t, err)
	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = issuer.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
