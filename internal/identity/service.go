package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/storeadmin/storeadmin/internal/shared"
)

// Sessions is the refresh session backend used by Service.
type Sessions interface {
	NewToken() string
	Create(ctx context.Context, token string, p Principal) error
	Lookup(ctx context.Context, token string) (Session, error)
	Exists(ctx context.Context, token string) (bool, error)
	Replace(ctx context.Context, oldToken, newToken string, p Principal) error
	Delete(ctx context.Context, token string) error
}

// Service is the identity boundary: it signs principals in and out and resolves
// the principal behind a request's credentials.
type Service struct {
	users    Repository
	sessions Sessions
	tokens   *TokenIssuer
	logger   *slog.Logger
	refresh  singleflight.Group
}

type refreshResult struct {
	principal Principal
	creds     *Credentials
}

// NewService constructs a Service.
func NewService(users Repository, sessions Sessions, tokens *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, sessions: sessions, tokens: tokens, logger: logger}
}

// GetCurrentUser resolves the principal behind creds. It never fails: missing,
// invalid, expired or unverifiable credentials resolve to nil. When the access
// token has lapsed but the refresh session is live the session is rotated and the
// new credentials are returned alongside the principal; if rotation cannot be
// persisted the principal is still returned, without new credentials. A refresh
// token that was rotated moments ago resolves to its successor session, so
// parallel requests carrying the old cookie stay signed in.
func (s *Service) GetCurrentUser(ctx context.Context, creds Credentials) (*Principal, *Credentials) {
	if creds.AccessToken != "" {
		claims, err := s.tokens.Parse(creds.AccessToken)
		if err == nil {
			live, err := s.sessions.Exists(ctx, claims.SessionID)
			if err != nil {
				s.logger.Warn("identity session check", slog.Any("error", err))
				return nil, nil
			}
			if !live {
				return nil, nil
			}
			p := claims.Principal
			return &p, nil
		}
		if !errors.Is(err, ErrTokenExpired) {
			s.logger.Debug("identity access token rejected", slog.Any("error", err))
		}
	}
	if creds.RefreshToken == "" {
		return nil, nil
	}

	rotateCtx := context.WithoutCancel(ctx)
	v, err, _ := s.refresh.Do(creds.RefreshToken, func() (interface{}, error) {
		return s.rotate(rotateCtx, creds.RefreshToken)
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.logger.Warn("identity refresh session", slog.Any("error", err))
		}
		return nil, nil
	}
	res := v.(refreshResult)
	p := res.principal
	return &p, res.creds
}

func (s *Service) rotate(ctx context.Context, oldToken string) (refreshResult, error) {
	sess, err := s.sessions.Lookup(ctx, oldToken)
	if err != nil {
		return refreshResult{}, err
	}
	if sess.Successor != "" {
		return s.adopt(ctx, sess)
	}
	p := sess.Principal
	newToken := s.sessions.NewToken()
	access, err := s.tokens.Issue(p, newToken)
	if err != nil {
		s.logger.Warn("identity refresh issue token", slog.Any("error", err))
		return refreshResult{principal: p}, nil
	}
	if err := s.sessions.Replace(ctx, oldToken, newToken, p); err != nil {
		if errors.Is(err, ErrSessionRotated) {
			if winner, lerr := s.sessions.Lookup(ctx, oldToken); lerr == nil && winner.Successor != "" {
				return s.adopt(ctx, winner)
			}
			return refreshResult{principal: p}, nil
		}
		if errors.Is(err, ErrSessionNotFound) {
			return refreshResult{}, err
		}
		s.logger.Warn("identity refresh rotate", slog.Any("error", err))
		return refreshResult{principal: p}, nil
	}
	return refreshResult{principal: p, creds: &Credentials{AccessToken: access, RefreshToken: newToken}}, nil
}

// adopt hands out credentials for the session that replaced a rotated one.
func (s *Service) adopt(ctx context.Context, rotated Session) (refreshResult, error) {
	p := rotated.Principal
	live, err := s.sessions.Exists(ctx, rotated.Successor)
	if err != nil {
		return refreshResult{}, err
	}
	if !live {
		return refreshResult{}, ErrSessionNotFound
	}
	access, err := s.tokens.Issue(p, rotated.Successor)
	if err != nil {
		s.logger.Warn("identity refresh issue token", slog.Any("error", err))
		return refreshResult{principal: p}, nil
	}
	return refreshResult{principal: p, creds: &Credentials{AccessToken: access, RefreshToken: rotated.Successor}}, nil
}

// SignIn validates email/password credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Principal, *Credentials, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("identity: sign in: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, shared.ErrInvalidCredentials
	}
	p := user.Principal()
	creds, err := s.open(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	return &p, creds, nil
}

// SignUp registers a new identity and opens a session for it.
func (s *Service) SignUp(ctx context.Context, email, password string, profile Profile) (*Principal, *Credentials, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: hash password: %w", err)
	}
	user := &User{Email: normalizeEmail(email), PasswordHash: string(hash), Profile: profile}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}
	p := user.Principal()
	creds, err := s.open(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	return &p, creds, nil
}

// SignOut ends the session behind creds. Access tokens minted for it stop
// resolving immediately since resolution checks the session.
func (s *Service) SignOut(ctx context.Context, creds Credentials) error {
	token := creds.RefreshToken
	if token == "" && creds.AccessToken != "" {
		if claims, err := s.tokens.Parse(creds.AccessToken); err == nil {
			token = claims.SessionID
		}
	}
	if token == "" {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}

func (s *Service) open(ctx context.Context, p Principal) (*Credentials, error) {
	token := s.sessions.NewToken()
	access, err := s.tokens.Issue(p, token)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, token, p); err != nil {
		return nil, err
	}
	return &Credentials{AccessToken: access, RefreshToken: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
