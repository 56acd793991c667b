package stores

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/cargoflow/accessctl"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLRoleStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSQLRoleStore(newTestDB(t))

	role := &accessctl.Role{
		ID: "writer", Name: "Writer", Description: "content writers",
		Permissions: []accessctl.Permission{
			{ID: "writer-docs", Resource: "docs", Actions: []string{"read", "create"},
				Conditions: []accessctl.AccessCondition{accessctl.OwnershipCondition()}},
		},
		Inherits: []string{"viewer"},
		Priority: 200,
		Metadata: map[string]any{accessctl.MetadataAppliedFrom: "writer-tpl"},
	}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := store.CreateRole(ctx, role); !errors.Is(err, accessctl.ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}

	got, err := store.GetRole(ctx, "writer")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if got.Name != "Writer" || got.Priority != 200 || got.IsSystem {
		t.Fatalf("unexpected role: %+v", got)
	}
	if len(got.Permissions) != 1 || got.Permissions[0].ID != "writer-docs" {
		t.Fatalf("unexpected permissions: %+v", got.Permissions)
	}
	if len(got.Permissions[0].Conditions) != 1 || got.Permissions[0].Conditions[0].Type != accessctl.ConditionOwnership {
		t.Fatalf("unexpected conditions: %+v", got.Permissions[0].Conditions)
	}
	if len(got.Inherits) != 1 || got.Inherits[0] != "viewer" {
		t.Fatalf("unexpected inherits: %v", got.Inherits)
	}
	if from, ok := got.TemplateID(); !ok || from != "writer-tpl" {
		t.Fatalf("expected metadata to survive, got %q ok=%v", from, ok)
	}

	got.Name = "Writer v2"
	got.Priority = 210
	if err := store.UpdateRole(ctx, got); err != nil {
		t.Fatalf("update role: %v", err)
	}
	updated, _ := store.GetRole(ctx, "writer")
	if updated.Name != "Writer v2" || updated.Priority != 210 {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := store.CreateRole(ctx, &accessctl.Role{ID: "admin", Name: "Admin", Priority: 900, IsSystem: true}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	roles, err := store.GetRoles(ctx)
	if err != nil {
		t.Fatalf("get roles: %v", err)
	}
	if len(roles) != 2 || roles[0].ID != "admin" {
		t.Fatalf("expected priority ordering, got %+v", roles)
	}
	if !roles[0].IsSystem {
		t.Fatalf("expected system flag to survive")
	}

	if err := store.DeleteRole(ctx, "writer"); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	if _, err := store.GetRole(ctx, "writer"); !errors.Is(err, accessctl.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if err := store.UpdateRole(ctx, &accessctl.Role{ID: "ghost"}); !errors.Is(err, accessctl.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound on update, got %v", err)
	}
	if err := store.DeleteRole(ctx, "ghost"); !errors.Is(err, accessctl.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound on delete, got %v", err)
	}
}

func TestSQLPolicyStoreLifecycleAndHistory(t *testing.T) {
	ctx := context.Background()
	store := NewSQLPolicyStore(newTestDB(t))

	p := &accessctl.AccessPolicy{
		ID: "night-lock", Name: "Night Lock", Effect: accessctl.EffectDeny,
		Principals: []string{"*"}, Resources: []string{"docs"}, Actions: []string{"delete"},
		Conditions: []accessctl.AccessCondition{accessctl.TimeCondition(accessctl.OpGreaterThan, 22.0)},
		Priority:   10, Enabled: true,
	}
	if err := store.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if err := store.CreatePolicy(ctx, p); !errors.Is(err, accessctl.ErrDuplicatePolicy) {
		t.Fatalf("expected ErrDuplicatePolicy, got %v", err)
	}

	got, err := store.GetPolicy(ctx, "night-lock")
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if got.Effect != accessctl.EffectDeny || !got.Enabled || got.Priority != 10 {
		t.Fatalf("unexpected policy: %+v", got)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].Type != accessctl.ConditionTime {
		t.Fatalf("unexpected conditions: %+v", got.Conditions)
	}
	if v, ok := got.Conditions[0].Value.(float64); !ok || v != 22.0 {
		t.Fatalf("unexpected condition value: %#v", got.Conditions[0].Value)
	}

	got.Priority = 20
	if err := store.UpdatePolicy(ctx, got); err != nil {
		t.Fatalf("first update: %v", err)
	}
	got.Enabled = false
	if err := store.UpdatePolicy(ctx, got); err != nil {
		t.Fatalf("second update: %v", err)
	}

	history, err := store.GetPolicyHistory(ctx, "night-lock")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// create snapshot plus one per update, oldest first
	if len(history) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(history))
	}
	if history[0].Priority != 10 || history[1].Priority != 20 || history[2].Enabled {
		t.Fatalf("unexpected history order: %+v", history)
	}

	if err := store.DeletePolicy(ctx, "night-lock"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetPolicy(ctx, "night-lock"); !errors.Is(err, accessctl.ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
	// history outlives the policy
	if _, err := store.GetPolicyHistory(ctx, "night-lock"); err != nil {
		t.Fatalf("expected history to survive deletion: %v", err)
	}
	if _, err := store.GetPolicyHistory(ctx, "never-existed"); err == nil {
		t.Fatalf("expected missing history to fail")
	}
}

func TestSQLResourceStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewSQLResourceStore(newTestDB(t))

	def := &accessctl.ResourceDefinition{
		ID: "docs", Name: "Documents", Type: accessctl.ResourceTypeData,
		Actions: []string{"read", "create"}, OwnershipField: "author_id",
		Children: []string{"docs:drafts"},
	}
	if err := store.RegisterResource(ctx, def); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := store.GetResource(ctx, "docs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Documents" || got.OwnershipField != "author_id" || len(got.Children) != 1 {
		t.Fatalf("unexpected resource: %+v", got)
	}

	def.Name = "All Documents"
	def.Actions = append(def.Actions, "delete")
	if err := store.RegisterResource(ctx, def); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	got, _ = store.GetResource(ctx, "docs")
	if got.Name != "All Documents" || len(got.Actions) != 3 {
		t.Fatalf("expected upsert, got %+v", got)
	}

	if err := store.RegisterResource(ctx, &accessctl.ResourceDefinition{ID: "analytics", Name: "Analytics", Type: accessctl.ResourceTypeAPI}); err != nil {
		t.Fatalf("register second: %v", err)
	}
	all, err := store.GetResources(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 || all[0].ID != "analytics" {
		t.Fatalf("expected id ordering, got %+v", all)
	}

	if _, err := store.GetResource(ctx, "ghost"); !errors.Is(err, accessctl.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestSQLAuditStoreFilters(t *testing.T) {
	ctx := context.Background()
	store := NewSQLAuditStore(newTestDB(t))

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	records := []*accessctl.AuditRecord{
		{ID: "r1", UserID: "alice", Action: accessctl.AuditActionGranted, ResourceType: "docs", ResourceID: "d1",
			Details:   accessctl.AuditDetails{Action: "read", Decision: &accessctl.AccessDecision{Granted: true, Reason: "Granted by role Viewer"}},
			IPAddress: "10.0.0.1", UserAgent: "cli", Timestamp: base},
		{ID: "r2", UserID: "alice", Action: accessctl.AuditActionDenied, ResourceType: "docs", ResourceID: "d2",
			Details:   accessctl.AuditDetails{Action: "delete"},
			IPAddress: "10.0.0.1", UserAgent: "cli", Timestamp: base.Add(time.Minute)},
		{ID: "r3", UserID: "bob", Action: accessctl.AuditActionGranted, ResourceType: "reports", ResourceID: "N/A",
			Details:   accessctl.AuditDetails{Action: "read"},
			IPAddress: "unknown", UserAgent: "system", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		if err := store.LogAccess(ctx, rec); err != nil {
			t.Fatalf("log %s: %v", rec.ID, err)
		}
	}

	all, err := store.GetAccessLog(ctx, accessctl.AuditFilter{})
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	// newest first
	if all[0].ID != "r3" || all[2].ID != "r1" {
		t.Fatalf("unexpected order: %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	alice, err := store.GetAccessLog(ctx, accessctl.AuditFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("filter user: %v", err)
	}
	if len(alice) != 2 {
		t.Fatalf("expected 2 alice records, got %d", len(alice))
	}

	granted, err := store.GetAccessLog(ctx, accessctl.AuditFilter{Decision: accessctl.AuditActionGranted})
	if err != nil {
		t.Fatalf("filter decision: %v", err)
	}
	if len(granted) != 2 {
		t.Fatalf("expected 2 granted records, got %d", len(granted))
	}

	reports, err := store.GetAccessLog(ctx, accessctl.AuditFilter{Resource: "reports"})
	if err != nil {
		t.Fatalf("filter resource: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != "r3" {
		t.Fatalf("unexpected resource filter result: %+v", reports)
	}

	window, err := store.GetAccessLog(ctx, accessctl.AuditFilter{
		Since: base.Add(30 * time.Second),
		Until: base.Add(90 * time.Second),
	})
	if err != nil {
		t.Fatalf("filter window: %v", err)
	}
	if len(window) != 1 || window[0].ID != "r2" {
		t.Fatalf("unexpected window result: %+v", window)
	}

	limited, err := store.GetAccessLog(ctx, accessctl.AuditFilter{Limit: 1})
	if err != nil {
		t.Fatalf("filter limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "r3" {
		t.Fatalf("unexpected limit result: %+v", limited)
	}

	// details travel as JSON
	got := all[2]
	if got.Details.Action != "read" || got.Details.Decision == nil || !got.Details.Decision.Granted {
		t.Fatalf("unexpected details: %+v", got.Details)
	}
	if got.Timestamp.IsZero() {
		t.Fatalf("expected parsed timestamp")
	}
}

func TestTimeFromRaw(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	if got := timeFromRaw(now); !got.Equal(now) {
		t.Fatalf("expected passthrough, got %v", got)
	}
	if got := timeFromRaw("2026-03-01 15:04:05"); got.IsZero() {
		t.Fatalf("expected string timestamp to parse")
	}
	if got := timeFromRaw([]byte("2026-03-01T15:04:05Z")); got.IsZero() {
		t.Fatalf("expected byte timestamp to parse")
	}
	if got := timeFromRaw("not a time"); !got.IsZero() {
		t.Fatalf("expected garbage to map to zero, got %v", got)
	}
	if got := timeFromRaw(42); !got.IsZero() {
		t.Fatalf("expected unsupported type to map to zero, got %v", got)
	}
}
