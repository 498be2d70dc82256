package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ostiary.org/internal/cluster"
	"ostiary.org/internal/store/mem"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestService builds a prepped service over in-memory store and cluster.
func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *cluster.Memory, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	cl := cluster.NewMemory()
	base := []ServiceOption{
		WithClock(clk.Now),
		WithHashSeed("front", "back"),
		WithStorageURL("http://storage.test/v1"),
		WithSuperAdminKey("chiefkey"),
		WithTokenLife(time.Hour),
		WithMaxTokenLife(2 * time.Hour),
	}
	svc, err := NewService(mem.New(), cl, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, svc.Prep(context.Background()))
	return svc, cl, clk
}

func seedAccount(t *testing.T, svc *Service, account, suffix string) {
	t.Helper()
	created, err := svc.CreateAccount(context.Background(), account, suffix)
	require.NoError(t, err)
	require.True(t, created)
}

func seedUser(t *testing.T, svc *Service, account, user, key string, admin, resellerAdmin bool) {
	t.Helper()
	_, err := svc.PutUser(context.Background(), PutUserRequest{
		Account:       account,
		User:          user,
		Key:           key,
		Admin:         admin,
		ResellerAdmin: resellerAdmin,
	})
	require.NoError(t, err)
}

func issueFor(t *testing.T, svc *Service, account, user string) Token {
	t.Helper()
	u, err := svc.GetUser(context.Background(), account, user)
	require.NoError(t, err)
	tok, err := svc.IssueToken(context.Background(), IssueRequest{Account: account, User: user, Groups: u.Groups})
	require.NoError(t, err)
	return tok
}

func TestNewServiceRequiresBackends(t *testing.T) {
	_, err := NewService(nil, cluster.NewMemory())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewService(mem.New(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestWithResellerPrefixRejectsEmpty(t *testing.T) {
	_, err := NewService(mem.New(), cluster.NewMemory(), WithResellerPrefix("  "))
	assert.ErrorIs(t, err, ErrInvalidInput)
}
