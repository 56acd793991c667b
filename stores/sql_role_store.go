package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/cargoflow/accessctl"
)

// SQLRoleStore persists roles in SQL (squealx)
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, role *accessctl.Role) error {
	if _, err := s.GetRole(ctx, role.ID); err == nil {
		return accessctl.ErrDuplicateRole
	}
	perms, _ := json.Marshal(role.Permissions)
	inherits, _ := json.Marshal(role.Inherits)
	meta, _ := json.Marshal(role.Metadata)
	now := time.Now()
	q := `INSERT INTO access_roles(id, name, description, permissions_json, inherits_json, priority, is_system, metadata_json, created_at, updated_at) VALUES(:id, :name, :description, :permissions_json, :inherits_json, :priority, :is_system, :metadata_json, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               role.ID,
		"name":             role.Name,
		"description":      role.Description,
		"permissions_json": string(perms),
		"inherits_json":    string(inherits),
		"priority":         role.Priority,
		"is_system":        boolToInt(role.IsSystem),
		"metadata_json":    string(meta),
		"created_at":       now,
		"updated_at":       now,
	})
	return err
}

func (s *SQLRoleStore) UpdateRole(ctx context.Context, role *accessctl.Role) error {
	if _, err := s.GetRole(ctx, role.ID); err != nil {
		return err
	}
	perms, _ := json.Marshal(role.Permissions)
	inherits, _ := json.Marshal(role.Inherits)
	meta, _ := json.Marshal(role.Metadata)
	q := `UPDATE access_roles SET name=:name, description=:description, permissions_json=:permissions_json, inherits_json=:inherits_json, priority=:priority, is_system=:is_system, metadata_json=:metadata_json, updated_at=:updated_at WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               role.ID,
		"name":             role.Name,
		"description":      role.Description,
		"permissions_json": string(perms),
		"inherits_json":    string(inherits),
		"priority":         role.Priority,
		"is_system":        boolToInt(role.IsSystem),
		"metadata_json":    string(meta),
		"updated_at":       time.Now(),
	})
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string) error {
	if _, err := s.GetRole(ctx, id); err != nil {
		return err
	}
	q := `DELETE FROM access_roles WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*accessctl.Role, error) {
	q := `SELECT id, name, description, permissions_json, inherits_json, priority, is_system, metadata_json FROM access_roles WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, accessctl.ErrRoleNotFound
	}
	var idv, name, description, permsJSON, inheritsJSON, metaJSON string
	var priority, systemInt int
	if err := r.Scan(&idv, &name, &description, &permsJSON, &inheritsJSON, &priority, &systemInt, &metaJSON); err != nil {
		return nil, err
	}
	role := &accessctl.Role{ID: idv, Name: name, Description: description, Priority: priority, IsSystem: systemInt != 0}
	var perms []accessctl.Permission
	_ = json.Unmarshal([]byte(permsJSON), &perms)
	role.Permissions = perms
	var inherits []string
	_ = json.Unmarshal([]byte(inheritsJSON), &inherits)
	role.Inherits = inherits
	var meta map[string]any
	_ = json.Unmarshal([]byte(metaJSON), &meta)
	role.Metadata = meta
	return role, nil
}

func (s *SQLRoleStore) GetRoles(ctx context.Context) ([]*accessctl.Role, error) {
	q := `SELECT id FROM access_roles ORDER BY priority DESC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for r.Next() {
		var id string
		_ = r.Scan(&id)
		ids = append(ids, id)
	}
	// release the cursor before issuing the per-role queries
	r.Close()
	out := make([]*accessctl.Role, 0, len(ids))
	for _, id := range ids {
		if role, err := s.GetRole(ctx, id); err == nil {
			out = append(out, role)
		}
	}
	return out, nil
}
