package accessctl

import (
	"context"
	"errors"
	"fmt"
)

// Platform-predefined role names. System roles keep their identity for the
// lifetime of the deployment; only their permission lists may change, and
// only through template sync or explicit permission grants.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleModerator  = "moderator"
	RoleAnalyst    = "analyst"
	RoleUser       = "user"
	RoleGuest      = "guest"
)

// SystemRoles returns fresh copies of the seven platform roles with their
// fixed permission sets and priorities.
func SystemRoles() []*Role {
	return []*Role{
		{
			ID:          RoleSuperadmin,
			Name:        RoleSuperadmin,
			Description: "Unrestricted platform access",
			Priority:    1000,
			IsSystem:    true,
			Permissions: []Permission{
				{ID: "superadmin-all", Resource: "*", Actions: []string{"*"}},
			},
		},
		{
			ID:          RoleAdmin,
			Name:        RoleAdmin,
			Description: "Full administration of users, content, and security",
			Priority:    900,
			IsSystem:    true,
			Permissions: []Permission{
				{ID: "admin-users", Resource: "users", Actions: []string{"*"}},
				{ID: "admin-content", Resource: "content", Actions: []string{"*"}},
				{ID: "admin-security", Resource: "security", Actions: []string{"*"}},
				{ID: "admin-settings", Resource: "settings", Actions: []string{"*"}},
				{ID: "admin-analytics", Resource: "analytics", Actions: []string{"read"}},
			},
		},
		{
			ID:          RoleManager,
			Name:        RoleManager,
			Description: "Manages content and the users on their own team",
			Priority:    500,
			IsSystem:    true,
			Permissions: []Permission{
				{
					ID:       "manager-users",
					Resource: "users",
					Actions:  []string{"read", "update"},
					Conditions: []AccessCondition{
						{Type: ConditionAttribute, Field: "team", Operator: OpEquals, Value: "managed"},
					},
					Description: "Team members only",
				},
				{ID: "manager-content", Resource: "content", Actions: []string{"read", "create", "update"}},
				{ID: "manager-analytics", Resource: "analytics", Actions: []string{"read"}},
			},
		},
		{
			ID:          RoleModerator,
			Name:        RoleModerator,
			Description: "Moderates user generated content",
			Priority:    400,
			IsSystem:    true,
			Permissions: []Permission{
				{ID: "moderator-content", Resource: "content", Actions: []string{"read", "update", "delete"}},
				{ID: "moderator-reports", Resource: "reports", Actions: []string{"read", "update"}},
			},
		},
		{
			ID:          RoleAnalyst,
			Name:        RoleAnalyst,
			Description: "Read-only analytics and reporting",
			Priority:    300,
			IsSystem:    true,
			Permissions: []Permission{
				{ID: "analyst-analytics", Resource: "analytics", Actions: []string{"read"}},
				{ID: "analyst-reports", Resource: "reports", Actions: []string{"read"}},
				{ID: "analyst-data", Resource: "data:*", Actions: []string{"read"}},
			},
		},
		{
			ID:          RoleUser,
			Name:        RoleUser,
			Description: "Standard account, limited to owned records",
			Priority:    100,
			IsSystem:    true,
			Permissions: []Permission{
				{
					ID:         "user-profile",
					Resource:   "profile",
					Actions:    []string{"read", "update"},
					Conditions: []AccessCondition{{Type: ConditionOwnership}},
				},
				{
					ID:         "user-content",
					Resource:   "content",
					Actions:    []string{"create", "read", "update", "delete"},
					Conditions: []AccessCondition{{Type: ConditionOwnership}},
				},
			},
		},
		{
			ID:          RoleGuest,
			Name:        RoleGuest,
			Description: "Unauthenticated visitor",
			Priority:    10,
			IsSystem:    true,
			Permissions: []Permission{
				{ID: "guest-content", Resource: "content", Actions: []string{"read"}, Description: "Published content"},
			},
		},
	}
}

// SeedSystemRoles inserts any system role missing from the store. Roles
// already present are left untouched so reseeding at startup is idempotent.
func (m *Manager) SeedSystemRoles(ctx context.Context) error {
	seeded := 0
	for _, role := range SystemRoles() {
		err := m.roles.CreateRole(ctx, role)
		if errors.Is(err, ErrDuplicateRole) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed role %s: %w", role.ID, err)
		}
		seeded++
	}
	if seeded > 0 {
		m.InvalidateCache()
		m.logger.Info("system roles seeded", "count", seeded)
	}
	return nil
}

// DefaultResourceDefinitions is the catalog the platform protects out of the
// box. Embedders register additional resources at startup.
func DefaultResourceDefinitions() []*ResourceDefinition {
	return []*ResourceDefinition{
		{ID: "users", Name: "User accounts", Type: ResourceTypeData, Actions: []string{"create", "read", "update", "delete"}},
		{ID: "profile", Name: "User profile", Type: ResourceTypeData, Actions: []string{"read", "update"}, OwnershipField: "user_id"},
		{ID: "content", Name: "User content", Type: ResourceTypeData, Actions: []string{"create", "read", "update", "delete"}, OwnershipField: "author_id"},
		{ID: "analytics", Name: "Analytics dashboards", Type: ResourceTypeUI, Actions: []string{"read"}},
		{ID: "reports", Name: "Moderation reports", Type: ResourceTypeData, Actions: []string{"read", "update"}},
		{ID: "security", Name: "Security administration", Type: ResourceTypeSystem, Actions: []string{"read", "manage"}},
		{ID: "settings", Name: "Platform settings", Type: ResourceTypeSystem, Actions: []string{"read", "update"}},
	}
}
