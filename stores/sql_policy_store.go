package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/cargoflow/accessctl"
)

// SQLPolicyStore persists policies in SQL (squealx)
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) CreatePolicy(ctx context.Context, p *accessctl.AccessPolicy) error {
	if _, err := s.GetPolicy(ctx, p.ID); err == nil {
		return accessctl.ErrDuplicatePolicy
	}
	now := time.Now()
	_, err := s.db.NamedExecContext(ctx, insertPolicyQuery, policyParams(p, now, now))
	if err != nil {
		return err
	}
	// initial snapshot so history covers the policy's whole life
	return s.insertPolicyHistory(ctx, p)
}

func (s *SQLPolicyStore) UpdatePolicy(ctx context.Context, p *accessctl.AccessPolicy) error {
	if _, err := s.GetPolicy(ctx, p.ID); err != nil {
		return err
	}
	q := `UPDATE access_policies SET name=:name, description=:description, effect=:effect, principals_json=:principals_json, resources_json=:resources_json, actions_json=:actions_json, conditions_json=:conditions_json, priority=:priority, enabled=:enabled, updated_at=:updated_at WHERE id=:id`
	params := policyParams(p, time.Time{}, time.Now())
	delete(params, "created_at")
	if _, err := s.db.NamedExecContext(ctx, q, params); err != nil {
		return err
	}
	return s.insertPolicyHistory(ctx, p)
}

func (s *SQLPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	if _, err := s.GetPolicy(ctx, id); err != nil {
		return err
	}
	q := `DELETE FROM access_policies WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*accessctl.AccessPolicy, error) {
	q := `SELECT id, name, description, effect, principals_json, resources_json, actions_json, conditions_json, priority, enabled FROM access_policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, accessctl.ErrPolicyNotFound
	}
	var idv, name, description, effect, principalsJSON, resourcesJSON, actionsJSON, conditionsJSON string
	var priority, enabledInt int
	if err := r.Scan(&idv, &name, &description, &effect, &principalsJSON, &resourcesJSON, &actionsJSON, &conditionsJSON, &priority, &enabledInt); err != nil {
		return nil, err
	}
	p := &accessctl.AccessPolicy{
		ID:          idv,
		Name:        name,
		Description: description,
		Effect:      accessctl.PolicyEffect(effect),
		Priority:    priority,
		Enabled:     enabledInt != 0,
	}
	_ = json.Unmarshal([]byte(principalsJSON), &p.Principals)
	_ = json.Unmarshal([]byte(resourcesJSON), &p.Resources)
	_ = json.Unmarshal([]byte(actionsJSON), &p.Actions)
	_ = json.Unmarshal([]byte(conditionsJSON), &p.Conditions)
	return p, nil
}

func (s *SQLPolicyStore) GetPolicies(ctx context.Context) ([]*accessctl.AccessPolicy, error) {
	q := `SELECT id FROM access_policies ORDER BY priority DESC`
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
	// release the cursor before issuing the per-policy queries
	r.Close()
	out := make([]*accessctl.AccessPolicy, 0, len(ids))
	for _, id := range ids {
		if p, err := s.GetPolicy(ctx, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetPolicyHistory returns the append-only snapshots recorded around policy
// writes, oldest first.
func (s *SQLPolicyStore) GetPolicyHistory(ctx context.Context, id string) ([]*accessctl.AccessPolicy, error) {
	q := `SELECT snapshot_json FROM access_policy_history WHERE policy_id = :policy_id ORDER BY id ASC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"policy_id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessctl.AccessPolicy, 0)
	for r.Next() {
		var snap string
		if err := r.Scan(&snap); err != nil {
			return nil, err
		}
		p := &accessctl.AccessPolicy{}
		if err := json.Unmarshal([]byte(snap), p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no history for policy %s", id)
	}
	return out, nil
}

func (s *SQLPolicyStore) insertPolicyHistory(ctx context.Context, p *accessctl.AccessPolicy) error {
	snap, err := json.Marshal(p)
	if err != nil {
		return err
	}
	q := `INSERT INTO access_policy_history(policy_id, snapshot_json) VALUES(:policy_id, :snapshot_json)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{"policy_id": p.ID, "snapshot_json": string(snap)})
	return err
}

const insertPolicyQuery = `INSERT INTO access_policies(id, name, description, effect, principals_json, resources_json, actions_json, conditions_json, priority, enabled, created_at, updated_at) VALUES(:id, :name, :description, :effect, :principals_json, :resources_json, :actions_json, :conditions_json, :priority, :enabled, :created_at, :updated_at)`

func policyParams(p *accessctl.AccessPolicy, created, updated time.Time) map[string]any {
	principals, _ := json.Marshal(p.Principals)
	resources, _ := json.Marshal(p.Resources)
	actions, _ := json.Marshal(p.Actions)
	conditions, _ := json.Marshal(p.Conditions)
	return map[string]any{
		"id":              p.ID,
		"name":            p.Name,
		"description":     p.Description,
		"effect":          string(p.Effect),
		"principals_json": string(principals),
		"resources_json":  string(resources),
		"actions_json":    string(actions),
		"conditions_json": string(conditions),
		"priority":        p.Priority,
		"enabled":         boolToInt(p.Enabled),
		"created_at":      created,
		"updated_at":      updated,
	}
}
