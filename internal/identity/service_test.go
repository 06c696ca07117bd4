package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/storeadmin/storeadmin/internal/shared"
)

type fakeUsers struct {
	byEmail map[string]*User
	err     error
	nextID  int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: make(map[string]*User)}
}

func (f *fakeUsers) add(t *testing.T, id, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	f.byEmail[email] = &User{ID: id, Email: email, PasswordHash: string(hash)}
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Create(ctx context.Context, user *User) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return shared.ErrEmailTaken
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	f.byEmail[user.Email] = user
	return nil
}

// failingReplace wraps a SessionStore and refuses to rotate.
type failingReplace struct {
	*SessionStore
}

func (f failingReplace) Replace(ctx context.Context, oldToken, newToken string, p Principal) error {
	return errors.New("redis: connection reset")
}

type fixture struct {
	mr      *miniredis.Miniredis
	users   *fakeUsers
	store   *SessionStore
	tokens  *TokenIssuer
	service *Service
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		mr:    mr,
		users: newFakeUsers(),
		store: NewSessionStore(client, 24*time.Hour),
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.tokens = NewTokenIssuer("test-secret", "storeadmin-test", 15*time.Minute)
	f.tokens.now = func() time.Time { return f.clock }
	f.service = NewService(f.users, f.store, f.tokens, nil)
	return f
}

func TestSignInOpensResolvableSession(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")

	p, creds, err := f.service.SignIn(context.Background(), "  Staff@Shop.test ", "correct-horse")
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "u1", p.ID)
	assert.True(t, f.mr.Exists("session:"+creds.RefreshToken))

	resolved, refreshed := f.service.GetCurrentUser(context.Background(), *creds)
	require.NotNil(t, resolved)
	assert.Equal(t, "u1", resolved.ID)
	assert.Equal(t, "staff@shop.test", resolved.Email)
	assert.Nil(t, refreshed)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")

	_, _, err := f.service.SignIn(context.Background(), "staff@shop.test", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = f.service.SignIn(context.Background(), "nobody@shop.test", "correct-horse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSignInBackendErrorIsNotCredentialRejection(t *testing.T) {
	f := newFixture(t)
	f.users.err = errors.New("connection refused")

	_, _, err := f.service.SignIn(context.Background(), "staff@shop.test", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestGetCurrentUserWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	p, refreshed := f.service.GetCurrentUser(context.Background(), Credentials{})
	assert.Nil(t, p)
	assert.Nil(t, refreshed)

	p, refreshed = f.service.GetCurrentUser(context.Background(), Credentials{AccessToken: "garbage", RefreshToken: "unknown"})
	assert.Nil(t, p)
	assert.Nil(t, refreshed)
}

func TestGetCurrentUserRotatesExpiredAccessToken(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")
	_, creds, err := f.service.SignIn(context.Background(), "staff@shop.test", "correct-horse")
	require.NoError(t, err)

	f.clock = f.clock.Add(20 * time.Minute)

	p, refreshed := f.service.GetCurrentUser(context.Background(), *creds)
	require.NotNil(t, p)
	require.NotNil(t, refreshed)
	assert.Equal(t, "u1", p.ID)
	assert.NotEqual(t, creds.RefreshToken, refreshed.RefreshToken)
	assert.True(t, f.mr.Exists("session:"+refreshed.RefreshToken))
	assert.Equal(t, DefaultReuseGrace, f.mr.TTL("session:"+creds.RefreshToken))

	again, more := f.service.GetCurrentUser(context.Background(), *refreshed)
	require.NotNil(t, again)
	assert.Nil(t, more)
}

func TestRotatedTokenResolvesToSuccessorDuringGrace(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")
	_, creds, err := f.service.SignIn(context.Background(), "staff@shop.test", "correct-horse")
	require.NoError(t, err)
	f.clock = f.clock.Add(20 * time.Minute)

	_, first := f.service.GetCurrentUser(context.Background(), *creds)
	require.NotNil(t, first)

	// A parallel request still carrying the old cookies.
	p, second := f.service.GetCurrentUser(context.Background(), *creds)
	require.NotNil(t, p)
	require.NotNil(t, second)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, first.RefreshToken, second.RefreshToken)

	resolved, _ := f.service.GetCurrentUser(context.Background(), Credentials{AccessToken: second.AccessToken})
	require.NotNil(t, resolved)

	f.mr.FastForward(DefaultReuseGrace + time.Second)
	p, late := f.service.GetCurrentUser(context.Background(), *creds)
	assert.Nil(t, p)
	assert.Nil(t, late)
}

func TestConcurrentRotationsConvergeOnOneSession(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")
	_, creds, err := f.service.SignIn(context.Background(), "staff@shop.test", "correct-horse")
	require.NoError(t, err)
	f.clock = f.clock.Add(20 * time.Minute)

	// A second process shares the store but not the in-process dedupe.
	other := NewService(f.users, f.store, f.tokens, nil)

	_, a := f.service.GetCurrentUser(context.Background(), *creds)
	_, b := other.GetCurrentUser(context.Background(), *creds)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.RefreshToken, b.RefreshToken)

	live := 0
	for _, key := range f.mr.Keys() {
		if f.mr.TTL(key) > DefaultReuseGrace {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestReplaceCommitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := Principal{ID: "u1", Email: "staff@shop.test"}
	require.NoError(t, f.store.Create(ctx, "old", p))

	require.NoError(t, f.store.Replace(ctx, "old", "new-a", p))
	assert.ErrorIs(t, f.store.Replace(ctx, "old", "new-b", p), ErrSessionRotated)
	assert.ErrorIs(t, f.store.Replace(ctx, "missing", "new-c", p), ErrSessionNotFound)

	assert.True(t, f.mr.Exists("session:new-a"))
	assert.False(t, f.mr.Exists("session:new-b"))
	assert.False(t, f.mr.Exists("session:new-c"))

	sess, err := f.store.Lookup(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "new-a", sess.Successor)
	assert.Equal(t, p, sess.Principal)
}

func TestReplaceWithoutGraceDropsOldToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := Principal{ID: "u1"}
	f.store.WithReuseGrace(0)
	require.NoError(t, f.store.Create(ctx, "old", p))

	require.NoError(t, f.store.Replace(ctx, "old", "new", p))
	assert.False(t, f.mr.Exists("session:old"))
	assert.True(t, f.mr.Exists("session:new"))
}

func TestDeleteRotatedTokenEndsSuccessor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := Principal{ID: "u1"}
	require.NoError(t, f.store.Create(ctx, "old", p))
	require.NoError(t, f.store.Replace(ctx, "old", "new", p))

	require.NoError(t, f.store.Delete(ctx, "old"))
	assert.False(t, f.mr.Exists("session:old"))
	assert.False(t, f.mr.Exists("session:new"))
}

func TestRefreshSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")
	_, creds, err := f.service.SignIn(context.Background(), "staff@shop.test", "correct-horse")
	require.NoError(t, err)
	f.clock = f.clock.Add(20 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, refreshed := f.service.GetCurrentUser(ctx, *creds)
	require.NotNil(t, p)
	assert.NotNil(t, refreshed)
}

func TestGetCurrentUserKeepsIdentityWhenRotationFails(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")
	_, creds, err := f.service.SignIn(context.Background(), "staff@shop.test", "correct-horse")
	require.NoError(t, err)

	degraded := NewService(f.users, failingReplace{f.store}, f.tokens, nil)
	f.clock = f.clock.Add(time.Hour)

	p, refreshed := degraded.GetCurrentUser(context.Background(), *creds)
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.ID)
	assert.Nil(t, refreshed)
	assert.True(t, f.mr.Exists("session:"+creds.RefreshToken))
}

func TestSignOutRevokesAccessTokenImmediately(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")
	_, creds, err := f.service.SignIn(context.Background(), "staff@shop.test", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, f.service.SignOut(context.Background(), Credentials{AccessToken: creds.AccessToken}))

	p, refreshed := f.service.GetCurrentUser(context.Background(), *creds)
	assert.Nil(t, p)
	assert.Nil(t, refreshed)
}

func TestGetCurrentUserFailsClosedWhenStoreDown(t *testing.T) {
	f := newFixture(t)
	f.users.add(t, "u1", "staff@shop.test", "correct-horse")
	_, creds, err := f.service.SignIn(context.Background(), "staff@shop.test", "correct-horse")
	require.NoError(t, err)

	f.mr.Close()

	p, refreshed := f.service.GetCurrentUser(context.Background(), *creds)
	assert.Nil(t, p)
	assert.Nil(t, refreshed)
}

func TestSignUpCreatesIdentity(t *testing.T) {
	f := newFixture(t)

	p, creds, err := f.service.SignUp(context.Background(), "New@Shop.test", "long-password", Profile{FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "new@shop.test", p.Email)
	require.NotNil(t, creds)

	_, _, err = f.service.SignUp(context.Background(), "new@shop.test", "long-password", Profile{})
	assert.ErrorIs(t, err, shared.ErrEmailTaken)

	_, _, err = f.service.SignIn(context.Background(), "new@shop.test", "long-password")
	assert.NoError(t, err)
}
