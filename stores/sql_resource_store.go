package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/cargoflow/accessctl"
)

// SQLResourceStore persists resource definitions in SQL
type SQLResourceStore struct {
	db *squealx.DB
}

func NewSQLResourceStore(db *squealx.DB) *SQLResourceStore {
	return &SQLResourceStore{db: db}
}

func (s *SQLResourceStore) RegisterResource(ctx context.Context, def *accessctl.ResourceDefinition) error {
	actions, _ := json.Marshal(def.Actions)
	children, _ := json.Marshal(def.Children)
	params := map[string]any{
		"id":              def.ID,
		"name":            def.Name,
		"type":            string(def.Type),
		"actions_json":    string(actions),
		"ownership_field": def.OwnershipField,
		"parent":          def.Parent,
		"children_json":   string(children),
	}
	// registration upserts by id
	if _, err := s.GetResource(ctx, def.ID); err == nil {
		q := `UPDATE access_resources SET name=:name, type=:type, actions_json=:actions_json, ownership_field=:ownership_field, parent=:parent, children_json=:children_json WHERE id=:id`
		_, err := s.db.NamedExecContext(ctx, q, params)
		return err
	}
	q := `INSERT INTO access_resources(id, name, type, actions_json, ownership_field, parent, children_json) VALUES(:id, :name, :type, :actions_json, :ownership_field, :parent, :children_json)`
	_, err := s.db.NamedExecContext(ctx, q, params)
	return err
}

func (s *SQLResourceStore) GetResource(ctx context.Context, id string) (*accessctl.ResourceDefinition, error) {
	q := `SELECT id, name, type, actions_json, ownership_field, parent, children_json FROM access_resources WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, accessctl.ErrResourceNotFound
	}
	var idv, name, typ, actionsJSON, ownershipField, parent, childrenJSON string
	if err := r.Scan(&idv, &name, &typ, &actionsJSON, &ownershipField, &parent, &childrenJSON); err != nil {
		return nil, err
	}
	def := &accessctl.ResourceDefinition{
		ID:             idv,
		Name:           name,
		Type:           accessctl.ResourceType(typ),
		OwnershipField: ownershipField,
		Parent:         parent,
	}
	_ = json.Unmarshal([]byte(actionsJSON), &def.Actions)
	_ = json.Unmarshal([]byte(childrenJSON), &def.Children)
	return def, nil
}

func (s *SQLResourceStore) GetResources(ctx context.Context) ([]*accessctl.ResourceDefinition, error) {
	q := `SELECT id FROM access_resources ORDER BY id ASC`
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
	// release the cursor before issuing the per-resource queries
	r.Close()
	out := make([]*accessctl.ResourceDefinition, 0, len(ids))
	for _, id := range ids {
		if def, err := s.GetResource(ctx, id); err == nil {
			out = append(out, def)
		}
	}
	return out, nil
}
