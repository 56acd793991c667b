package accessctl

import (
	"context"
	"sort"
	"sync"
)

// ============================================================================
// STORE CONTRACTS
// ============================================================================

// ResourceStore is the catalog of protected resources.
type ResourceStore interface {
	// RegisterResource inserts or overwrites a definition by id.
	RegisterResource(ctx context.Context, def *ResourceDefinition) error
	// GetResource returns ErrResourceNotFound for unknown ids.
	GetResource(ctx context.Context, id string) (*ResourceDefinition, error)
	GetResources(ctx context.Context) ([]*ResourceDefinition, error)
}

// RoleStore persists roles. Stores enforce id uniqueness and existence only;
// system-role immutability and inheritance validation are Manager concerns so
// that template sync can write through to system role permission lists.
type RoleStore interface {
	// CreateRole returns ErrDuplicateRole when the id is taken.
	CreateRole(ctx context.Context, role *Role) error
	// GetRole returns ErrRoleNotFound for unknown ids.
	GetRole(ctx context.Context, id string) (*Role, error)
	GetRoles(ctx context.Context) ([]*Role, error)
	// UpdateRole replaces the stored role; ErrRoleNotFound when missing.
	UpdateRole(ctx context.Context, role *Role) error
	// DeleteRole returns ErrRoleNotFound when missing.
	DeleteRole(ctx context.Context, id string) error
}

// PolicyStore persists standalone allow/deny policies.
type PolicyStore interface {
	// CreatePolicy returns ErrDuplicatePolicy when the id is taken.
	CreatePolicy(ctx context.Context, policy *AccessPolicy) error
	// GetPolicy returns ErrPolicyNotFound for unknown ids.
	GetPolicy(ctx context.Context, id string) (*AccessPolicy, error)
	GetPolicies(ctx context.Context) ([]*AccessPolicy, error)
	UpdatePolicy(ctx context.Context, policy *AccessPolicy) error
	DeletePolicy(ctx context.Context, id string) error
}

// AuditStore is the append-only sink for access decisions. LogAccess must be
// safe for concurrent use; it is called from the audit worker goroutine.
type AuditStore interface {
	LogAccess(ctx context.Context, rec *AuditRecord) error
	GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error)
}

// ============================================================================
// IN-MEMORY STORES
// ============================================================================

// MemoryResourceStore keeps resource definitions in a map.
type MemoryResourceStore struct {
	mu        sync.RWMutex
	resources map[string]*ResourceDefinition
}

func NewMemoryResourceStore() *MemoryResourceStore {
	return &MemoryResourceStore{resources: make(map[string]*ResourceDefinition)}
}

func (s *MemoryResourceStore) RegisterResource(ctx context.Context, def *ResourceDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[def.ID] = def.Clone()
	return nil
}

func (s *MemoryResourceStore) GetResource(ctx context.Context, id string) (*ResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.resources[id]
	if !ok {
		return nil, ErrResourceNotFound
	}
	return def.Clone(), nil
}

func (s *MemoryResourceStore) GetResources(ctx context.Context) ([]*ResourceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ResourceDefinition, 0, len(s.resources))
	for _, def := range s.resources {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryRoleStore keeps roles in a map, handing out copies.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*Role)}
}

func (s *MemoryRoleStore) CreateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; ok {
		return ErrDuplicateRole
	}
	s.roles[role.ID] = role.Clone()
	return nil
}

func (s *MemoryRoleStore) GetRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role.Clone(), nil
}

func (s *MemoryRoleStore) GetRoles(ctx context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *MemoryRoleStore) UpdateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return ErrRoleNotFound
	}
	s.roles[role.ID] = role.Clone()
	return nil
}

func (s *MemoryRoleStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(s.roles, id)
	return nil
}

// MemoryPolicyStore keeps policies in a map, handing out copies.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*AccessPolicy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]*AccessPolicy)}
}

func (s *MemoryPolicyStore) CreatePolicy(ctx context.Context, policy *AccessPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[policy.ID]; ok {
		return ErrDuplicatePolicy
	}
	s.policies[policy.ID] = policy.Clone()
	return nil
}

func (s *MemoryPolicyStore) GetPolicy(ctx context.Context, id string) (*AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return policy.Clone(), nil
}

func (s *MemoryPolicyStore) GetPolicies(ctx context.Context) ([]*AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AccessPolicy, 0, len(s.policies))
	for _, policy := range s.policies {
		out = append(out, policy.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *MemoryPolicyStore) UpdatePolicy(ctx context.Context, policy *AccessPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[policy.ID]; !ok {
		return ErrPolicyNotFound
	}
	s.policies[policy.ID] = policy.Clone()
	return nil
}

func (s *MemoryPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return ErrPolicyNotFound
	}
	delete(s.policies, id)
	return nil
}

// MemoryAuditStore appends records to a slice. Suitable for tests and for
// single-process deployments that export the log elsewhere.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records []*AuditRecord
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{records: make([]*AuditRecord, 0, 64)}
}

func (s *MemoryAuditStore) LogAccess(ctx context.Context, rec *AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *rec
	s.records = append(s.records, &dup)
	return nil
}

func (s *MemoryAuditStore) GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	out := make([]*AuditRecord, 0, limit)
	// newest first
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.records[i]
		if !filter.matches(rec) {
			continue
		}
		dup := *rec
		out = append(out, &dup)
	}
	return out, nil
}

// Len reports the number of records held, for tests and stats.
func (s *MemoryAuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
