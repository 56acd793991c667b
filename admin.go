package accessctl

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ============================================================================
// ADMINISTRATIVE OPERATIONS
// ============================================================================
//
// Mutation errors propagate (duplicate, not found, immutable) so callers can
// map them to client errors. Every successful mutation flushes the decision
// cache.

// CreateRole adds a custom role after rejecting inheritance cycles.
func (m *Manager) CreateRole(ctx context.Context, role *Role) error {
	if role == nil || role.ID == "" {
		return fmt.Errorf("accessctl: role id is required")
	}
	if m.wouldCycle(ctx, role.ID, role.Inherits) {
		return fmt.Errorf("%w: %s", ErrInheritanceCycle, role.ID)
	}
	if err := m.roles.CreateRole(ctx, role); err != nil {
		return fmt.Errorf("create role %s: %w", role.ID, err)
	}
	m.InvalidateCache()
	m.logger.Info("role created", "role", role.ID, "name", role.Name, "system", role.IsSystem)
	return nil
}

// UpdateRole shallow-merges the update into an existing custom role. System
// roles reject updates.
func (m *Manager) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	role, err := m.roles.GetRole(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update role %s: %w", id, err)
	}
	if role.IsSystem {
		return nil, fmt.Errorf("%w: %s", ErrSystemRoleImmutable, id)
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.Permissions != nil {
		role.Permissions = ClonePermissions(*upd.Permissions)
	}
	if upd.Inherits != nil {
		role.Inherits = cloneStrings(*upd.Inherits)
		if m.wouldCycle(ctx, role.ID, role.Inherits) {
			return nil, fmt.Errorf("%w: %s", ErrInheritanceCycle, role.ID)
		}
	}
	if upd.Priority != nil {
		role.Priority = *upd.Priority
	}
	if upd.Metadata != nil {
		role.Metadata = cloneMetadata(upd.Metadata)
	}
	if err := m.roles.UpdateRole(ctx, role); err != nil {
		return nil, fmt.Errorf("update role %s: %w", id, err)
	}
	m.InvalidateCache()
	m.logger.Info("role updated", "role", id)
	return role, nil
}

// DeleteRole removes a custom role. System roles reject deletion.
func (m *Manager) DeleteRole(ctx context.Context, id string) error {
	role, err := m.roles.GetRole(ctx, id)
	if err != nil {
		return fmt.Errorf("delete role %s: %w", id, err)
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemRoleImmutable, id)
	}
	if err := m.roles.DeleteRole(ctx, id); err != nil {
		return fmt.Errorf("delete role %s: %w", id, err)
	}
	m.InvalidateCache()
	m.logger.Info("role deleted", "role", id)
	return nil
}

// GetRole returns one role by id.
func (m *Manager) GetRole(ctx context.Context, id string) (*Role, error) {
	return m.roles.GetRole(ctx, id)
}

// GetRoles returns every role, highest priority first.
func (m *Manager) GetRoles(ctx context.Context) ([]*Role, error) {
	return m.roles.GetRoles(ctx)
}

// GrantPermission appends a permission to a role's own list. Works on system
// roles too; only identity fields are immutable.
func (m *Manager) GrantPermission(ctx context.Context, roleID string, perm Permission) error {
	role, err := m.roles.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("grant permission on %s: %w", roleID, err)
	}
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	role.Permissions = append(role.Permissions, perm)
	if err := m.roles.UpdateRole(ctx, role); err != nil {
		return fmt.Errorf("grant permission on %s: %w", roleID, err)
	}
	m.InvalidateCache()
	m.logger.Info("permission granted", "role", roleID, "permission", perm.ID, "resource", perm.Resource)
	return nil
}

// RevokePermission filters a permission out of a role's own list. A missing
// permission id is a no-op, matching filter semantics.
func (m *Manager) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	role, err := m.roles.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("revoke permission on %s: %w", roleID, err)
	}
	kept := role.Permissions[:0]
	for _, p := range role.Permissions {
		if p.ID != permissionID {
			kept = append(kept, p)
		}
	}
	role.Permissions = kept
	if err := m.roles.UpdateRole(ctx, role); err != nil {
		return fmt.Errorf("revoke permission on %s: %w", roleID, err)
	}
	m.InvalidateCache()
	m.logger.Info("permission revoked", "role", roleID, "permission", permissionID)
	return nil
}

// wouldCycle reports whether following stored Inherits chains from the given
// parents ever reaches roleID.
func (m *Manager) wouldCycle(ctx context.Context, roleID string, inherits []string) bool {
	visited := make(map[string]bool)
	stack := append([]string(nil), inherits...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == roleID {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		parent, err := m.roles.GetRole(ctx, id)
		if err != nil {
			// parents may be created later; only stored chains can cycle
			continue
		}
		stack = append(stack, parent.Inherits...)
	}
	return false
}

// ValidatePolicy rejects structurally unusable policies before they reach a
// store.
func ValidatePolicy(p *AccessPolicy) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("accessctl: policy id is required")
	}
	if p.Effect != EffectAllow && p.Effect != EffectDeny {
		return fmt.Errorf("accessctl: policy %s effect must be allow or deny", p.ID)
	}
	if len(p.Principals) == 0 {
		return fmt.Errorf("accessctl: policy %s has no principals", p.ID)
	}
	if len(p.Resources) == 0 {
		return fmt.Errorf("accessctl: policy %s has no resources", p.ID)
	}
	if len(p.Actions) == 0 {
		return fmt.Errorf("accessctl: policy %s has no actions", p.ID)
	}
	return nil
}

// CreatePolicy adds a policy.
func (m *Manager) CreatePolicy(ctx context.Context, policy *AccessPolicy) error {
	if err := ValidatePolicy(policy); err != nil {
		return err
	}
	if err := m.policies.CreatePolicy(ctx, policy); err != nil {
		return fmt.Errorf("create policy %s: %w", policy.ID, err)
	}
	m.InvalidateCache()
	m.logger.Info("policy created", "policy", policy.ID, "effect", string(policy.Effect), "priority", policy.Priority)
	return nil
}

// UpdatePolicy shallow-merges the update into an existing policy.
func (m *Manager) UpdatePolicy(ctx context.Context, id string, upd PolicyUpdate) (*AccessPolicy, error) {
	policy, err := m.policies.GetPolicy(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update policy %s: %w", id, err)
	}
	if upd.Name != nil {
		policy.Name = *upd.Name
	}
	if upd.Description != nil {
		policy.Description = *upd.Description
	}
	if upd.Effect != nil {
		policy.Effect = *upd.Effect
	}
	if upd.Principals != nil {
		policy.Principals = cloneStrings(*upd.Principals)
	}
	if upd.Resources != nil {
		policy.Resources = cloneStrings(*upd.Resources)
	}
	if upd.Actions != nil {
		policy.Actions = cloneStrings(*upd.Actions)
	}
	if upd.Conditions != nil {
		policy.Conditions = CloneConditions(*upd.Conditions)
	}
	if upd.Priority != nil {
		policy.Priority = *upd.Priority
	}
	if upd.Enabled != nil {
		policy.Enabled = *upd.Enabled
	}
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}
	if err := m.policies.UpdatePolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("update policy %s: %w", id, err)
	}
	m.InvalidateCache()
	m.logger.Info("policy updated", "policy", id)
	return policy, nil
}

// EnablePolicy turns a policy on without touching its other fields.
func (m *Manager) EnablePolicy(ctx context.Context, id string) error {
	enabled := true
	_, err := m.UpdatePolicy(ctx, id, PolicyUpdate{Enabled: &enabled})
	return err
}

// DisablePolicy turns a policy off; disabled policies never match.
func (m *Manager) DisablePolicy(ctx context.Context, id string) error {
	enabled := false
	_, err := m.UpdatePolicy(ctx, id, PolicyUpdate{Enabled: &enabled})
	return err
}

// DeletePolicy removes a policy.
func (m *Manager) DeletePolicy(ctx context.Context, id string) error {
	if err := m.policies.DeletePolicy(ctx, id); err != nil {
		return fmt.Errorf("delete policy %s: %w", id, err)
	}
	m.InvalidateCache()
	m.logger.Info("policy deleted", "policy", id)
	return nil
}

// GetPolicy returns one policy by id.
func (m *Manager) GetPolicy(ctx context.Context, id string) (*AccessPolicy, error) {
	return m.policies.GetPolicy(ctx, id)
}

// GetPolicies returns every policy, highest priority first.
func (m *Manager) GetPolicies(ctx context.Context) ([]*AccessPolicy, error) {
	return m.policies.GetPolicies(ctx)
}

// RegisterResource inserts or overwrites a resource definition. Resource
// metadata does not feed decisions directly, so the cache stays warm.
func (m *Manager) RegisterResource(ctx context.Context, def *ResourceDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("accessctl: resource id is required")
	}
	if err := m.resources.RegisterResource(ctx, def); err != nil {
		return fmt.Errorf("register resource %s: %w", def.ID, err)
	}
	m.logger.Info("resource registered", "resource", def.ID, "type", string(def.Type))
	return nil
}

// GetResource returns one resource definition by id.
func (m *Manager) GetResource(ctx context.Context, id string) (*ResourceDefinition, error) {
	return m.resources.GetResource(ctx, id)
}

// GetResources returns the full resource catalog.
func (m *Manager) GetResources(ctx context.Context) ([]*ResourceDefinition, error) {
	return m.resources.GetResources(ctx)
}
