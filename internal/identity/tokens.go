package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for access tokens that fail verification.
var ErrTokenInvalid = errors.New("identity: access token invalid")

// ErrTokenExpired is returned for well-formed access tokens past their expiry.
var ErrTokenExpired = errors.New("identity: access token expired")

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	Principal Principal
	// SessionID names the refresh session the token was minted for.
	SessionID string
}

type accessClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies short-lived HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue mints an access token for the principal bound to a refresh session.
func (t *TokenIssuer) Issue(p Principal, sessionID string) (string, error) {
	now := t.now()
	claims := accessClaims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    t.issuer,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign access token: %w", err)
	}
	return signed, nil
}

// Parse verifies an access token and returns its claims.
func (t *TokenIssuer) Parse(raw string) (AccessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrTokenExpired
		}
		return AccessClaims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return AccessClaims{}, ErrTokenInvalid
	}
	return AccessClaims{
		Principal: Principal{ID: claims.Subject, Email: claims.Email},
		SessionID: claims.ID,
	}, nil
}
