package accessctl

import (
	"context"
	"sync"
)

// UserRecord is the directory's view of one user: the role driving
// authorization plus the user's declared permission ids (informational).
type UserRecord struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// UserDirectory is the external collaborator resolving users to roles and
// persisting role assignment. The surrounding system owns the user table;
// the manager only reads roles and writes assignments.
type UserDirectory interface {
	// GetUser returns ErrUserNotFound for unknown ids.
	GetUser(ctx context.Context, id string) (*UserRecord, error)
	AssignRole(ctx context.Context, userID, roleID string) error
}

// MemoryUserDirectory is an in-process directory for tests and single-binary
// deployments.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]*UserRecord
}

func NewMemoryUserDirectory() *MemoryUserDirectory {
	return &MemoryUserDirectory{users: make(map[string]*UserRecord)}
}

// SetUser inserts or replaces a user record.
func (d *MemoryUserDirectory) SetUser(rec *UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dup := *rec
	dup.Permissions = cloneStrings(rec.Permissions)
	d.users[rec.ID] = &dup
}

func (d *MemoryUserDirectory) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	dup := *rec
	dup.Permissions = cloneStrings(rec.Permissions)
	return &dup, nil
}

func (d *MemoryUserDirectory) AssignRole(ctx context.Context, userID, roleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	rec.Role = roleID
	return nil
}

// GetUsersWithRole lists the ids of users currently holding the role.
func (d *MemoryUserDirectory) GetUsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0)
	for id, rec := range d.users {
		if rec.Role == roleID {
			out = append(out, id)
		}
	}
	return out, nil
}
