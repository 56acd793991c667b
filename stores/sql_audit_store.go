package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/cargoflow/accessctl"
)

// SQLAuditStore persists audit records in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) LogAccess(ctx context.Context, rec *accessctl.AuditRecord) error {
	details, _ := json.Marshal(rec.Details)
	q := `INSERT INTO access_audit_log(id, user_id, action, resource_type, resource_id, details_json, ip_address, user_agent, created_at) VALUES(:id, :user_id, :action, :resource_type, :resource_id, :details_json, :ip_address, :user_agent, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            rec.ID,
		"user_id":       rec.UserID,
		"action":        rec.Action,
		"resource_type": rec.ResourceType,
		"resource_id":   rec.ResourceID,
		"details_json":  string(details),
		"ip_address":    rec.IPAddress,
		"user_agent":    rec.UserAgent,
		"created_at":    rec.Timestamp,
	})
	return err
}

func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter accessctl.AuditFilter) ([]*accessctl.AuditRecord, error) {
	q := `SELECT id, user_id, action, resource_type, resource_id, details_json, ip_address, user_agent, created_at FROM access_audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.UserID != "" {
		q += " AND user_id = :user_id"
		params["user_id"] = filter.UserID
	}
	if filter.Resource != "" {
		q += " AND resource_type = :resource_type"
		params["resource_type"] = filter.Resource
	}
	if filter.Decision != "" {
		q += " AND action = :action"
		params["action"] = filter.Decision
	}
	if !filter.Since.IsZero() {
		q += " AND created_at >= :since"
		params["since"] = filter.Since
	}
	if !filter.Until.IsZero() {
		q += " AND created_at <= :until"
		params["until"] = filter.Until
	}
	q += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*accessctl.AuditRecord, 0)
	for r.Next() {
		var id, userID, action, resourceType, resourceID, detailsJSON, ip, agent string
		var createdRaw interface{}
		if err := r.Scan(&id, &userID, &action, &resourceType, &resourceID, &detailsJSON, &ip, &agent, &createdRaw); err != nil {
			return nil, err
		}
		rec := &accessctl.AuditRecord{
			ID:           id,
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    ip,
			UserAgent:    agent,
			Timestamp:    timeFromRaw(createdRaw),
		}
		_ = json.Unmarshal([]byte(detailsJSON), &rec.Details)
		out = append(out, rec)
	}
	return out, nil
}
