package cluster

import (
	"context"
	"sync"
)

type containerKey struct {
	accountID string
	container string
}

type containerACL struct {
	read  string
	write string
}

// Memory is an in-process Client for tests and single-node setups without a
// real storage cluster behind the gateway.
type Memory struct {
	mu       sync.Mutex
	tenants  map[string]struct{}
	acls     map[containerKey]containerACL
	notEmpty map[string]struct{}
	aclErr   error
}

// NewMemory returns an empty in-memory cluster.
func NewMemory() *Memory {
	return &Memory{
		tenants:  make(map[string]struct{}),
		acls:     make(map[containerKey]containerACL),
		notEmpty: make(map[string]struct{}),
	}
}

func (m *Memory) CreateTenant(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[accountID] = struct{}{}
	return nil
}

func (m *Memory) DeleteTenant(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notEmpty[accountID]; ok {
		return ErrNotEmpty
	}
	if _, ok := m.tenants[accountID]; !ok {
		return ErrNotFound
	}
	delete(m.tenants, accountID)
	return nil
}

func (m *Memory) ContainerACL(_ context.Context, accountID, container string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aclErr != nil {
		return "", "", m.aclErr
	}
	acl, ok := m.acls[containerKey{accountID, container}]
	if !ok {
		return "", "", nil
	}
	return acl.read, acl.write, nil
}

// HasTenant reports whether the storage account exists.
func (m *Memory) HasTenant(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tenants[accountID]
	return ok
}

// SetContainerACL sets the ACLs returned for a container.
func (m *Memory) SetContainerACL(accountID, container, read, write string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acls[containerKey{accountID, container}] = containerACL{read: read, write: write}
}

// MarkNotEmpty makes DeleteTenant fail with ErrNotEmpty for the account.
func (m *Memory) MarkNotEmpty(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notEmpty[accountID] = struct{}{}
}

// SetACLError makes every ContainerACL call fail with err.
func (m *Memory) SetACLError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aclErr = err
}
