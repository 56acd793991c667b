package accessctl

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// AUDIT PIPELINE
// ============================================================================

const (
	AuditActionGranted = "access_granted"
	AuditActionDenied  = "access_denied"

	auditNoResourceID = "N/A"
	auditUnknownIP    = "unknown"
	auditSystemAgent  = "system"
)

// AuditRecord is the compliance trail entry written for every evaluated
// decision. Writes are fire-and-forget; a failed write never reaches the
// caller of CheckAccess.
type AuditRecord struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Action       string       `json:"action"` // access_granted or access_denied
	ResourceType string       `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	Details      AuditDetails `json:"details"`
	IPAddress    string       `json:"ip_address"`
	UserAgent    string       `json:"user_agent"`
	Timestamp    time.Time    `json:"timestamp"`
}

// AuditDetails preserves the evaluated action, the decision, and the request
// context for later review.
type AuditDetails struct {
	Action   string          `json:"action"`
	Decision *AccessDecision `json:"decision"`
	Context  *AccessContext  `json:"context"`
}

// AuditFilter narrows GetAccessLog queries
type AuditFilter struct {
	UserID   string
	Resource string
	Decision string // access_granted or access_denied, empty for both
	Since    time.Time
	Until    time.Time
	Limit    int
}

func (f AuditFilter) matches(rec *AuditRecord) bool {
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.Resource != "" && rec.ResourceType != f.Resource {
		return false
	}
	if f.Decision != "" && rec.Action != f.Decision {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// submitAudit queues a value copy of the audit record on the async channel.
// The send is non-blocking; when the queue is full the record is dropped and
// counted rather than stalling the decision path.
func (m *Manager) submitAudit(ac *AccessContext, dec *AccessDecision) {
	action := AuditActionDenied
	if dec.Granted {
		action = AuditActionGranted
	}
	resourceID := ac.ResourceID
	if resourceID == "" {
		resourceID = auditNoResourceID
	}
	ip := ac.IPAddress
	if strings.TrimSpace(ip) == "" {
		ip = auditUnknownIP
	}
	ctxCopy := *ac
	decCopy := *dec
	rec := AuditRecord{
		ID:           uuid.NewString(),
		UserID:       ac.UserID,
		Action:       action,
		ResourceType: ac.Resource,
		ResourceID:   resourceID,
		Details:      AuditDetails{Action: ac.Action, Decision: &decCopy, Context: &ctxCopy},
		IPAddress:    ip,
		UserAgent:    auditSystemAgent,
		Timestamp:    time.Now(),
	}

	m.auditMu.RLock()
	defer m.auditMu.RUnlock()
	if m.auditClosed {
		return
	}
	select {
	case m.auditCh <- rec:
	default:
		m.auditDropped.Add(1)
		if m.metrics != nil {
			m.metrics.auditDropped.Inc()
		}
		m.logger.Debug("audit queue full, record dropped", "user", rec.UserID, "resource", rec.ResourceType)
	}
}

// auditWorker drains the channel until Close. Write failures are logged and
// otherwise swallowed.
func (m *Manager) auditWorker() {
	defer m.auditWG.Done()
	bg := context.Background()
	for rec := range m.auditCh {
		if err := m.audit.LogAccess(bg, &rec); err != nil {
			m.logger.Error("audit write failed", "id", rec.ID, "user", rec.UserID, "error", err.Error())
		}
	}
}

// AuditDropped reports how many records were discarded because the queue was
// full since the manager started.
func (m *Manager) AuditDropped() uint64 {
	return m.auditDropped.Load()
}

// GetAccessLog queries the configured audit store.
func (m *Manager) GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error) {
	return m.audit.GetAccessLog(ctx, filter)
}
