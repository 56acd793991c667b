package accessctl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Template event types emitted by a TemplateManager.
const (
	TemplateEventApplied = "template:applied"
	TemplateEventUpdated = "template:updated"
)

// RoleTemplate is an externally managed blueprint for constructing roles.
type RoleTemplate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Permissions []Permission   `json:"permissions"`
	Priority    int            `json:"priority"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the template.
func (t *RoleTemplate) Clone() *RoleTemplate {
	if t == nil {
		return nil
	}
	dup := *t
	dup.Permissions = ClonePermissions(t.Permissions)
	dup.Metadata = cloneMetadata(t.Metadata)
	return &dup
}

// TemplateEvent notifies subscribers of template lifecycle changes.
type TemplateEvent struct {
	Type     string
	Template *RoleTemplate
}

// TemplateApplication parameterizes one instantiation of a template.
type TemplateApplication struct {
	TemplateID string
	RoleID     string
	RoleName   string
	Priority   int
	Metadata   map[string]any
}

// TemplateManager is the external collaborator serving role blueprints.
type TemplateManager interface {
	// GetTemplate returns ErrTemplateNotFound for unknown ids.
	GetTemplate(ctx context.Context, id string) (*RoleTemplate, error)
	// ApplyTemplate materializes a role from the template. The returned role
	// is not yet stored.
	ApplyTemplate(ctx context.Context, app TemplateApplication) (*Role, error)
	Subscribe(fn func(TemplateEvent))
}

// TemplateRoleOptions customizes CreateRoleFromTemplate.
type TemplateRoleOptions struct {
	RoleID        string
	Name          string
	Priority      int
	Metadata      map[string]any
	AssignToUsers []string
}

// CreateRoleFromTemplate materializes a template into a stored role and
// optionally assigns it to users. Assignment failures do not roll back the
// created role; they are logged and joined into the returned error.
func (m *Manager) CreateRoleFromTemplate(ctx context.Context, templateID string, opts TemplateRoleOptions) (*Role, error) {
	if m.templates == nil {
		return nil, errNoTemplates
	}
	tpl, err := m.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", templateID, err)
	}
	role, err := m.templates.ApplyTemplate(ctx, TemplateApplication{
		TemplateID: templateID,
		RoleID:     opts.RoleID,
		RoleName:   opts.Name,
		Priority:   opts.Priority,
		Metadata:   opts.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("apply template %s: %w", templateID, err)
	}
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	if role.Metadata == nil {
		role.Metadata = make(map[string]any)
	}
	if _, ok := role.Metadata[MetadataAppliedFrom]; !ok {
		role.Metadata[MetadataAppliedFrom] = tpl.ID
	}
	if err := m.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	var assignErrs []error
	for _, userID := range opts.AssignToUsers {
		if m.directory == nil {
			assignErrs = append(assignErrs, errNoDirectory)
			break
		}
		if err := m.directory.AssignRole(ctx, userID, role.ID); err != nil {
			m.logger.Error("role assignment failed", "user", userID, "role", role.ID, "error", err.Error())
			assignErrs = append(assignErrs, fmt.Errorf("assign %s: %w", userID, err))
		}
	}
	return role, errors.Join(assignErrs...)
}

// SyncTemplate overwrites the permission list of every role instantiated
// from the template, leaving name, priority, inheritance and metadata
// untouched. System roles are synced too; only their identity is immutable.
func (m *Manager) SyncTemplate(ctx context.Context, tpl *RoleTemplate) error {
	if tpl == nil || tpl.ID == "" {
		return errors.New("accessctl: template id is required")
	}
	roles, err := m.roles.GetRoles(ctx)
	if err != nil {
		return fmt.Errorf("sync template %s: %w", tpl.ID, err)
	}
	synced := 0
	for _, role := range roles {
		from, ok := role.TemplateID()
		if !ok || from != tpl.ID {
			continue
		}
		role.Permissions = ClonePermissions(tpl.Permissions)
		if err := m.roles.UpdateRole(ctx, role); err != nil {
			return fmt.Errorf("sync template %s into role %s: %w", tpl.ID, role.ID, err)
		}
		synced++
	}
	if synced > 0 {
		m.InvalidateCache()
		m.logger.Info("template synced", "template", tpl.ID, "roles", synced)
	}
	return nil
}

// handleTemplateEvent reacts to template manager notifications. Applied
// events are informational; updated events resync derived roles.
func (m *Manager) handleTemplateEvent(ev TemplateEvent) {
	switch ev.Type {
	case TemplateEventApplied:
		id := ""
		if ev.Template != nil {
			id = ev.Template.ID
		}
		m.logger.Info("role template applied", "template", id)
	case TemplateEventUpdated:
		if ev.Template == nil {
			return
		}
		if err := m.SyncTemplate(context.Background(), ev.Template); err != nil {
			m.logger.Error("template sync failed", "template", ev.Template.ID, "error", err.Error())
		}
	}
}

// MemoryTemplateManager is an in-process TemplateManager for tests and
// single-binary deployments.
type MemoryTemplateManager struct {
	mu        sync.RWMutex
	templates map[string]*RoleTemplate
	subs      []func(TemplateEvent)
}

func NewMemoryTemplateManager() *MemoryTemplateManager {
	return &MemoryTemplateManager{templates: make(map[string]*RoleTemplate)}
}

// PutTemplate inserts or replaces a template without notifying subscribers.
// Use UpdateTemplate when derived roles should resync.
func (tm *MemoryTemplateManager) PutTemplate(tpl *RoleTemplate) {
	tm.mu.Lock()
	tm.templates[tpl.ID] = tpl.Clone()
	tm.mu.Unlock()
}

// UpdateTemplate replaces a template and emits a template:updated event.
func (tm *MemoryTemplateManager) UpdateTemplate(tpl *RoleTemplate) {
	tm.mu.Lock()
	tm.templates[tpl.ID] = tpl.Clone()
	tm.mu.Unlock()
	tm.publish(TemplateEvent{Type: TemplateEventUpdated, Template: tpl.Clone()})
}

func (tm *MemoryTemplateManager) GetTemplate(ctx context.Context, id string) (*RoleTemplate, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	tpl, ok := tm.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return tpl.Clone(), nil
}

func (tm *MemoryTemplateManager) ApplyTemplate(ctx context.Context, app TemplateApplication) (*Role, error) {
	tpl, err := tm.GetTemplate(ctx, app.TemplateID)
	if err != nil {
		return nil, err
	}
	name := app.RoleName
	if name == "" {
		name = tpl.Name
	}
	priority := app.Priority
	if priority == 0 {
		priority = tpl.Priority
	}
	metadata := cloneMetadata(tpl.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	for k, v := range app.Metadata {
		metadata[k] = v
	}
	metadata[MetadataAppliedFrom] = tpl.ID
	role := &Role{
		ID:          app.RoleID,
		Name:        name,
		Description: tpl.Description,
		Permissions: ClonePermissions(tpl.Permissions),
		Priority:    priority,
		Metadata:    metadata,
	}
	tm.publish(TemplateEvent{Type: TemplateEventApplied, Template: tpl})
	return role, nil
}

func (tm *MemoryTemplateManager) Subscribe(fn func(TemplateEvent)) {
	tm.mu.Lock()
	tm.subs = append(tm.subs, fn)
	tm.mu.Unlock()
}

func (tm *MemoryTemplateManager) publish(ev TemplateEvent) {
	tm.mu.RLock()
	subs := make([]func(TemplateEvent), len(tm.subs))
	copy(subs, tm.subs)
	tm.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
