package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/shared"
)

type memUsers map[string]*identity.User

func (m memUsers) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	if u, ok := m[email]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (m memUsers) Create(_ context.Context, u *identity.User) error {
	u.ID = "id-" + u.Email
	m[u.Email] = u
	return nil
}

type memAccounts struct {
	admins map[string]*accounts.AdminAccount
}

func (m *memAccounts) CreateAdminAccount(_ context.Context, a *accounts.AdminAccount) error {
	m.admins[a.ID] = a
	return nil
}

func (m *memAccounts) SetAdminActive(_ context.Context, id string, active bool) error {
	a, ok := m.admins[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.IsActive = active
	return nil
}

func (m *memAccounts) SetAdminPermission(_ context.Context, id, perm string, granted bool) error {
	a, ok := m.admins[id]
	if !ok {
		return shared.ErrNotFound
	}
	if a.Permissions == nil {
		a.Permissions = map[string]bool{}
	}
	a.Permissions[perm] = granted
	return nil
}

func (m *memAccounts) CreateCustomerAccount(context.Context, *accounts.CustomerAccount) error {
	return nil
}

type stubQueue struct{ err error }

func (s stubQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.QueueInfo{Queue: queue, Size: 4, Pending: 3, Retry: 1}, nil
}

func run(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	root := New(deps)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newDeps() (Deps, memUsers, *memAccounts) {
	users := memUsers{}
	accts := &memAccounts{admins: map[string]*accounts.AdminAccount{}}
	return Deps{Users: users, Accounts: accts, Queue: stubQueue{}}, users, accts
}

func TestAdminCreateRegistersIdentity(t *testing.T) {
	deps, users, accts := newDeps()

	out, err := run(t, deps, "admin", "create",
		"--email", "Ops@Shop.test", "--password", "long-enough",
		"--role", "manager", "--permission", "manage_orders", "--permission", "view_analytics")
	require.NoError(t, err)

	user := users["ops@shop.test"]
	require.NotNil(t, user)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("long-enough")))

	admin := accts.admins[user.ID]
	require.NotNil(t, admin)
	assert.Equal(t, accounts.RoleManager, admin.Role)
	assert.True(t, admin.IsActive)
	assert.Equal(t, map[string]bool{"manage_orders": true, "view_analytics": true}, admin.Permissions)

	var printed accounts.AdminAccount
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	assert.Equal(t, user.ID, printed.ID)
}

func TestAdminCreateReusesIdentity(t *testing.T) {
	deps, users, accts := newDeps()
	users["ana@shop.test"] = &identity.User{ID: "u-7", Email: "ana@shop.test"}

	_, err := run(t, deps, "admin", "create", "--email", "ana@shop.test", "--role", "analyst")
	require.NoError(t, err)
	assert.Contains(t, accts.admins, "u-7")
	assert.Len(t, users, 1)
}

func TestAdminCreateRejectsBadInput(t *testing.T) {
	deps, _, accts := newDeps()

	_, err := run(t, deps, "admin", "create", "--email", "x@shop.test", "--password", "pw-long-enough", "--role", "owner")
	assert.ErrorContains(t, err, "unknown role")

	_, err = run(t, deps, "admin", "create", "--email", "not-an-email", "--password", "pw-long-enough")
	assert.ErrorContains(t, err, "invalid input")

	_, err = run(t, deps, "admin", "create", "--email", "new@shop.test")
	assert.ErrorContains(t, err, "--password is required")

	_, err = run(t, deps, "admin", "create", "--email", "new@shop.test", "--password", strings.Repeat("ü", 40))
	assert.ErrorContains(t, err, "invalid input")

	assert.Empty(t, accts.admins)
}

func TestAdminActivation(t *testing.T) {
	deps, _, accts := newDeps()
	accts.admins["a1"] = &accounts.AdminAccount{ID: "a1", Role: accounts.RoleAdmin, IsActive: true}

	out, err := run(t, deps, "admin", "deactivate", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1 deactivated\n", out)
	assert.False(t, accts.admins["a1"].IsActive)

	_, err = run(t, deps, "admin", "activate", "a1")
	require.NoError(t, err)
	assert.True(t, accts.admins["a1"].IsActive)

	_, err = run(t, deps, "admin", "activate", "ghost")
	assert.EqualError(t, err, "admin ghost not found")
}

func TestAdminGrantRevoke(t *testing.T) {
	deps, _, accts := newDeps()
	accts.admins["a1"] = &accounts.AdminAccount{ID: "a1", Role: accounts.RoleManager, IsActive: true}

	_, err := run(t, deps, "admin", "grant", "a1", "manage_users")
	require.NoError(t, err)
	assert.True(t, accts.admins["a1"].Permissions["manage_users"])

	out, err := run(t, deps, "admin", "revoke", "a1", "manage_users")
	require.NoError(t, err)
	assert.Equal(t, "a1 manage_users=false\n", out)
	assert.False(t, accts.admins["a1"].Permissions["manage_users"])
}

func TestJobsStats(t *testing.T) {
	deps, _, _ := newDeps()

	out, err := run(t, deps, "jobs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"pending": 3`)

	deps.Queue = stubQueue{err: errors.New("redis down")}
	_, err = run(t, deps, "jobs", "stats")
	assert.EqualError(t, err, "redis down")
}
