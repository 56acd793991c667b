package accessctl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	accessctl "github.com/cargoflow/accessctl"
)

func sampleConfig() *accessctl.Config {
	return accessctl.NewConfigBuilder().
		Settings(func(s *accessctl.Settings) {
			s.CacheTTL = 30000
			s.AuditQueueSize = 512
		}).
		AddResource(&accessctl.ResourceDefinition{
			ID: "docs", Name: "Documents", Type: accessctl.ResourceTypeData,
			Actions: []string{"read", "create", "update", "delete"}, OwnershipField: "author_id",
		}).
		AddRole(accessctl.NewRoleBuilder().
			ID("writer").Name("Writer").Priority(200).
			Permission(accessctl.NewPermissionBuilder().
				ID("writer-docs").Resource("docs").Actions("read", "create").
				Condition(accessctl.AttributeCondition("dept", accessctl.OpEquals, "engineering")).
				Build()).
			Build()).
		AddRole(accessctl.NewRoleBuilder().
			ID("reviewer").Name("Reviewer").Inherits("writer").Priority(300).
			Build()).
		AddPolicy(accessctl.NewPolicyBuilder().
			ID("night-lock").Name("night-lock").Deny().
			Principals("*").Resources("docs").Actions("delete").
			Condition(accessctl.TimeCondition(accessctl.OpGreaterThan, 22.0)).
			Priority(50).
			Build()).
		Build()
}

func assertSampleConfig(t *testing.T, cfg *accessctl.Config) {
	t.Helper()
	if cfg.Settings.CacheTTL != 30000 || cfg.Settings.AuditQueueSize != 512 {
		t.Fatalf("unexpected settings: %+v", cfg.Settings)
	}
	if len(cfg.Resources) != 1 || cfg.Resources[0].ID != "docs" || cfg.Resources[0].OwnershipField != "author_id" {
		t.Fatalf("unexpected resources: %+v", cfg.Resources)
	}
	if len(cfg.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(cfg.Roles))
	}
	writer := cfg.Roles[0]
	if writer.ID != "writer" || writer.Priority != 200 || len(writer.Permissions) != 1 {
		t.Fatalf("unexpected writer role: %+v", writer)
	}
	perm := writer.Permissions[0]
	if perm.Resource != "docs" || len(perm.Actions) != 2 || len(perm.Conditions) != 1 {
		t.Fatalf("unexpected writer permission: %+v", perm)
	}
	if perm.Conditions[0].Type != accessctl.ConditionAttribute || perm.Conditions[0].Field != "dept" {
		t.Fatalf("unexpected permission condition: %+v", perm.Conditions[0])
	}
	if cfg.Roles[1].Inherits[0] != "writer" {
		t.Fatalf("expected reviewer to inherit writer, got %+v", cfg.Roles[1].Inherits)
	}
	if len(cfg.Policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(cfg.Policies))
	}
	pol := cfg.Policies[0]
	if pol.Effect != accessctl.EffectDeny || !pol.Enabled || pol.Priority != 50 {
		t.Fatalf("unexpected policy: %+v", pol)
	}
	if len(pol.Conditions) != 1 || pol.Conditions[0].Type != accessctl.ConditionTime {
		t.Fatalf("unexpected policy condition: %+v", pol.Conditions)
	}
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	data, err := sampleConfig().ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	cfg, err := accessctl.NewConfigLoader().LoadYAML(data)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	assertSampleConfig(t, cfg)
}

func TestConfigJSONRoundTrip(t *testing.T) {
	data, err := sampleConfig().ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	cfg, err := accessctl.NewConfigLoader().LoadJSON(data)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	assertSampleConfig(t, cfg)
}

func TestConfigBinaryRoundTrip(t *testing.T) {
	src := sampleConfig()
	src.Roles[0].Metadata = map[string]any{accessctl.MetadataAppliedFrom: "writer-tpl"}

	data, err := accessctl.EncodeBinaryConfig(src)
	if err != nil {
		t.Fatalf("encode binary: %v", err)
	}
	cfg, err := accessctl.NewConfigLoader().LoadBinary(data)
	if err != nil {
		t.Fatalf("load binary: %v", err)
	}
	assertSampleConfig(t, cfg)

	if from, ok := cfg.Roles[0].TemplateID(); !ok || from != "writer-tpl" {
		t.Fatalf("expected role metadata to survive, got %q ok=%v", from, ok)
	}
	// numeric condition values come back as float64
	if v, ok := cfg.Policies[0].Conditions[0].Value.(float64); !ok || v != 22.0 {
		t.Fatalf("unexpected condition value: %#v", cfg.Policies[0].Conditions[0].Value)
	}
}

func TestConfigBinaryRejectsGarbage(t *testing.T) {
	loader := accessctl.NewConfigLoader()
	if _, err := loader.LoadBinary([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00}); err == nil {
		t.Fatalf("expected bad magic to fail")
	}
	if _, err := loader.LoadBinary(nil); err == nil {
		t.Fatalf("expected empty input to fail")
	}
}

func TestLoadFileDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	loader := accessctl.NewConfigLoader()
	src := sampleConfig()

	yamlData, _ := src.ToYAML()
	jsonData, _ := src.ToJSON()
	binData, _ := accessctl.EncodeBinaryConfig(src)
	dslData, _ := src.ToDSL()

	files := map[string][]byte{
		"access.yaml": yamlData,
		"access.json": jsonData,
		"access.bin":  binData,
		"access.acl":  dslData,
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		cfg, err := loader.LoadFile(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if len(cfg.Roles) != 2 || len(cfg.Policies) != 1 {
			t.Fatalf("%s: unexpected shape, roles=%d policies=%d", name, len(cfg.Roles), len(cfg.Policies))
		}
	}

	bad := filepath.Join(dir, "access.toml")
	if err := os.WriteFile(bad, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loader.LoadFile(bad); err == nil {
		t.Fatalf("expected unsupported extension to fail")
	}
	if _, err := loader.LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestApplyConfigUpsertsAndSkipsSystemRoles(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	if err := m.SeedSystemRoles(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := sampleConfig()
	// a config may restate a system role; apply must leave it alone
	cfg.Roles = append(cfg.Roles, &accessctl.Role{ID: accessctl.RoleGuest, Name: "Renamed Guest"})

	if err := m.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	if _, err := m.GetRole(ctx, "writer"); err != nil {
		t.Fatalf("expected writer role: %v", err)
	}
	if _, err := m.GetPolicy(ctx, "night-lock"); err != nil {
		t.Fatalf("expected night-lock policy: %v", err)
	}
	guest, err := m.GetRole(ctx, accessctl.RoleGuest)
	if err != nil {
		t.Fatalf("get guest: %v", err)
	}
	if guest.Name != accessctl.RoleGuest {
		t.Fatalf("expected system role untouched, got name %q", guest.Name)
	}

	// a second apply updates in place instead of failing on duplicates
	cfg.Roles[0].Priority = 999
	cfg.Policies[0].Priority = 999
	if err := m.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("re-apply config: %v", err)
	}
	writer, _ := m.GetRole(ctx, "writer")
	if writer.Priority != 999 {
		t.Fatalf("expected role update on re-apply, got priority %d", writer.Priority)
	}
	pol, _ := m.GetPolicy(ctx, "night-lock")
	if pol.Priority != 999 {
		t.Fatalf("expected policy update on re-apply, got priority %d", pol.Priority)
	}
}

func TestConfigOptionsFromSettings(t *testing.T) {
	cfg := &accessctl.Config{}
	if got := len(cfg.Options()); got != 0 {
		t.Fatalf("expected no options for zero settings, got %d", got)
	}

	cfg.Settings = accessctl.Settings{
		CacheTTL:             5000,
		SweepInterval:        10000,
		AuditQueueSize:       256,
		PatternCacheSize:     128,
		RistrettoNumCounters: 1000,
	}
	opts := cfg.Options()
	if len(opts) != 5 {
		t.Fatalf("expected 5 options, got %d", len(opts))
	}
	// the produced options must be usable as-is
	m := newManager(t, opts...)
	if m.CacheSize() != 0 {
		t.Fatalf("expected empty cache, got %d", m.CacheSize())
	}
}
