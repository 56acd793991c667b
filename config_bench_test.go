package accessctl_test

import (
	"fmt"
	"testing"

	accessctl "github.com/cargoflow/accessctl"
)

// benchConfig builds a mid-sized catalog: 20 resources, 50 roles, 100
// policies, representative of a single-tenant deployment.
func benchConfig() *accessctl.Config {
	b := accessctl.NewConfigBuilder().Settings(func(s *accessctl.Settings) {
		s.CacheTTL = 60000
		s.AuditQueueSize = 1024
	})
	for i := 0; i < 20; i++ {
		b.AddResource(&accessctl.ResourceDefinition{
			ID:      fmt.Sprintf("res-%d", i),
			Name:    fmt.Sprintf("Resource %d", i),
			Type:    accessctl.ResourceTypeData,
			Actions: []string{"read", "create", "update", "delete"},
		})
	}
	for i := 0; i < 50; i++ {
		role := accessctl.NewRoleBuilder().
			ID(fmt.Sprintf("role-%d", i)).
			Name(fmt.Sprintf("Role %d", i)).
			Priority(i * 10)
		for j := 0; j < 4; j++ {
			role.Permission(accessctl.Permission{
				ID:       fmt.Sprintf("perm-%d-%d", i, j),
				Resource: fmt.Sprintf("res-%d", (i+j)%20),
				Actions:  []string{"read", "update"},
			})
		}
		if i > 0 {
			role.Inherits(fmt.Sprintf("role-%d", i-1))
		}
		b.AddRole(role.Build())
	}
	for i := 0; i < 100; i++ {
		pol := accessctl.NewPolicyBuilder().
			ID(fmt.Sprintf("policy-%d", i)).
			Name(fmt.Sprintf("Policy %d", i)).
			Principals("*").
			Resources(fmt.Sprintf("res-%d", i%20)).
			Actions("read").
			Priority(i)
		if i%2 == 0 {
			pol.Allow()
		} else {
			pol.Deny()
		}
		if i%5 == 0 {
			pol.Condition(accessctl.TimeCondition(accessctl.OpGreaterThan, 6.0))
		}
		b.AddPolicy(pol.Build())
	}
	return b.Build()
}

func BenchmarkConfigEncodeYAML(b *testing.B) {
	cfg := benchConfig()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.ToYAML(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConfigEncodeJSON(b *testing.B) {
	cfg := benchConfig()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.ToJSON(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConfigEncodeBinary(b *testing.B) {
	cfg := benchConfig()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := accessctl.EncodeBinaryConfig(cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConfigEncodeDSL(b *testing.B) {
	cfg := benchConfig()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.ToDSL(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConfigDecodeYAML(b *testing.B) {
	data, err := benchConfig().ToYAML()
	if err != nil {
		b.Fatal(err)
	}
	loader := accessctl.NewConfigLoader()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loader.LoadYAML(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConfigDecodeJSON(b *testing.B) {
	data, err := benchConfig().ToJSON()
	if err != nil {
		b.Fatal(err)
	}
	loader := accessctl.NewConfigLoader()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loader.LoadJSON(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConfigDecodeBinary(b *testing.B) {
	data, err := accessctl.EncodeBinaryConfig(benchConfig())
	if err != nil {
		b.Fatal(err)
	}
	loader := accessctl.NewConfigLoader()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loader.LoadBinary(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConfigDecodeDSL(b *testing.B) {
	data, err := benchConfig().ToDSL()
	if err != nil {
		b.Fatal(err)
	}
	loader := accessctl.NewConfigLoader()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loader.LoadDSL(data); err != nil {
			b.Fatal(err)
		}
	}
}
