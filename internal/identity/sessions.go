package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrSessionNotFound indicates the refresh session expired or was signed out.
	ErrSessionNotFound = errors.New("identity: session not found")
	// ErrSessionRotated indicates another request already rotated the session.
	ErrSessionRotated = errors.New("identity: session already rotated")
)

// DefaultReuseGrace is how long a rotated refresh token keeps resolving to its
// successor.
const DefaultReuseGrace = 10 * time.Second

// Session is a stored refresh session. Successor is set while a rotated session
// sits in its reuse grace and names the session that replaced it.
type Session struct {
	Principal Principal
	Successor string
}

// SessionStore keeps refresh sessions in Redis. The refresh token is the session ID.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	grace  time.Duration
}

type sessionPayload struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	Successor string    `json:"successor,omitempty"`
}

// NewSessionStore constructs a SessionStore with DefaultReuseGrace.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, grace: DefaultReuseGrace}
}

// WithReuseGrace sets how long a rotated token stays usable. Zero deletes it
// on rotation.
func (s *SessionStore) WithReuseGrace(d time.Duration) *SessionStore {
	s.grace = d
	return s
}

// NewToken generates a fresh refresh token.
func (s *SessionStore) NewToken() string {
	return uuid.NewString()
}

// Create persists a session for the principal under token.
func (s *SessionStore) Create(ctx context.Context, token string, p Principal) error {
	data, err := encodeSession(sessionPayload{UserID: p.ID, Email: p.Email})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("identity: create session: %w", err)
	}
	return nil
}

// Lookup returns the session stored under token.
func (s *SessionStore) Lookup(ctx context.Context, token string) (Session, error) {
	raw, err := s.client.Get(ctx, redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("identity: lookup session: %w", err)
	}
	stored, err := decodeSession(raw)
	if err != nil {
		return Session{}, err
	}
	return stored.session(), nil
}

// Exists reports whether the session is still live.
func (s *SessionStore) Exists(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("identity: session exists: %w", err)
	}
	return n > 0, nil
}

// Replace rotates oldToken to newToken. The old key is watched, so of two
// concurrent rotations only one commits; the other gets ErrSessionRotated. The
// old token then points at newToken for the reuse grace. On failure the old
// session is left untouched.
func (s *SessionStore) Replace(ctx context.Context, oldToken, newToken string, p Principal) error {
	data, err := encodeSession(sessionPayload{UserID: p.ID, Email: p.Email})
	if err != nil {
		return err
	}
	marker, err := encodeSession(sessionPayload{UserID: p.ID, Email: p.Email, Successor: newToken})
	if err != nil {
		return err
	}
	oldKey := redisKey(oldToken)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, oldKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrSessionNotFound
			}
			return err
		}
		current, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if current.Successor != "" {
			return ErrSessionRotated
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey(newToken), data, s.ttl)
			if s.grace > 0 {
				pipe.Set(ctx, oldKey, marker, s.grace)
			} else {
				pipe.Del(ctx, oldKey)
			}
			return nil
		})
		return err
	}, oldKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrSessionRotated
	case errors.Is(err, ErrSessionRotated), errors.Is(err, ErrSessionNotFound):
		return err
	default:
		return fmt.Errorf("identity: rotate session: %w", err)
	}
}

// Delete removes the session, and its successor when token was already rotated.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	keys := []string{redisKey(token)}
	if raw, err := s.client.Get(ctx, redisKey(token)).Bytes(); err == nil {
		if stored, err := decodeSession(raw); err == nil && stored.Successor != "" {
			keys = append(keys, redisKey(stored.Successor))
		}
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("identity: delete session: %w", err)
	}
	return nil
}

func (p sessionPayload) session() Session {
	return Session{Principal: Principal{ID: p.UserID, Email: p.Email}, Successor: p.Successor}
}

func encodeSession(p sessionPayload) ([]byte, error) {
	p.IssuedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("identity: encode session: %w", err)
	}
	return data, nil
}

func decodeSession(raw []byte) (sessionPayload, error) {
	var stored sessionPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return sessionPayload{}, fmt.Errorf("identity: decode session: %w", err)
	}
	return stored, nil
}

func redisKey(token string) string {
	return "session:" + token
}
