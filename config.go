package accessctl

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete declarative access control configuration: tuning
// settings plus the resource catalog, roles, and policies to load.
type Config struct {
	Version   uint16                `json:"version" yaml:"version"`
	Settings  Settings              `json:"settings" yaml:"settings"`
	Resources []*ResourceDefinition `json:"resources" yaml:"resources"`
	Roles     []*Role               `json:"roles" yaml:"roles"`
	Policies  []*AccessPolicy       `json:"policies" yaml:"policies"`
}

// Settings carries manager tuning knobs. Zero values keep the defaults.
type Settings struct {
	CacheTTL             int64 `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	SweepInterval        int64 `json:"sweep_interval_ms" yaml:"sweep_interval_ms"`
	AuditQueueSize       int   `json:"audit_queue_size" yaml:"audit_queue_size"`
	PatternCacheSize     int   `json:"pattern_cache_size" yaml:"pattern_cache_size"`
	RistrettoNumCounters int64 `json:"ristretto_num_counters" yaml:"ristretto_num_counters"`
	RistrettoMaxCost     int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBufferItems int64 `json:"ristretto_buffer_items" yaml:"ristretto_buffer_items"`
	SeedSystemRoles      bool  `json:"seed_system_roles" yaml:"seed_system_roles"`
}

// Options translates settings into constructor options for NewManager.
func (c *Config) Options() []Option {
	var opts []Option
	s := c.Settings
	if s.CacheTTL > 0 {
		opts = append(opts, WithCacheTTL(time.Duration(s.CacheTTL)*time.Millisecond))
	}
	if s.SweepInterval > 0 {
		opts = append(opts, WithSweepInterval(time.Duration(s.SweepInterval)*time.Millisecond))
	}
	if s.AuditQueueSize > 0 {
		opts = append(opts, WithAuditQueueSize(s.AuditQueueSize))
	}
	if s.PatternCacheSize > 0 {
		opts = append(opts, WithPatternCacheSize(s.PatternCacheSize))
	}
	if s.RistrettoNumCounters > 0 {
		opts = append(opts, WithRistrettoCache(RistrettoConfig{
			NumCounters: s.RistrettoNumCounters,
			MaxCost:     s.RistrettoMaxCost,
			BufferItems: s.RistrettoBufferItems,
		}))
	}
	return opts
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBinary loads from the compact binary format
func (l *ConfigLoader) LoadBinary(data []byte) (*Config, error) {
	r := bytes.NewReader(data)
	return decodeBinaryConfig(r)
}

// LoadDSL loads from the compact text format
func (l *ConfigLoader) LoadDSL(data []byte) (*Config, error) {
	return NewDSLParser().Parse(data)
}

// LoadFile dispatches on the file extension: .yaml/.yml, .json, .bin, or
// .acl/.dsl.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	case ".bin":
		return l.LoadBinary(data)
	case ".acl", ".dsl":
		return l.LoadDSL(data)
	default:
		return nil, fmt.Errorf("unsupported config extension: %s", filepath.Ext(path))
	}
}

// EncodeBinaryConfig encodes config to the compact binary format
func EncodeBinaryConfig(cfg *Config) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeBinaryConfig(cfg, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ToDSL exports config to the compact text format
func (c *Config) ToDSL() ([]byte, error) {
	return NewDSLEncoder().Encode(c)
}

// ApplyConfig loads the config's resources, roles, and policies into the
// manager's stores with upsert semantics. Existing system roles are left
// untouched so a config can be re-applied without tripping the immutability
// guard. Settings are constructor-time knobs; use Config.Options for those.
func (m *Manager) ApplyConfig(ctx context.Context, cfg *Config) error {
	if cfg.Settings.SeedSystemRoles {
		if err := m.SeedSystemRoles(ctx); err != nil {
			return fmt.Errorf("seed system roles: %w", err)
		}
	}

	for _, def := range cfg.Resources {
		if err := m.RegisterResource(ctx, def); err != nil {
			return fmt.Errorf("register resource %s: %w", def.ID, err)
		}
	}

	for _, role := range cfg.Roles {
		existing, err := m.roles.GetRole(ctx, role.ID)
		if err != nil {
			if err := m.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("create role %s: %w", role.ID, err)
			}
			continue
		}
		if existing.IsSystem {
			m.logger.Debug("config skipped system role", "role", role.ID)
			continue
		}
		update := RoleUpdate{
			Name:        &role.Name,
			Description: &role.Description,
			Permissions: &role.Permissions,
			Inherits:    &role.Inherits,
			Priority:    &role.Priority,
			Metadata:    role.Metadata,
		}
		if _, err := m.UpdateRole(ctx, role.ID, update); err != nil {
			return fmt.Errorf("update role %s: %w", role.ID, err)
		}
	}

	for _, p := range cfg.Policies {
		if _, err := m.policies.GetPolicy(ctx, p.ID); err != nil {
			if err := m.CreatePolicy(ctx, p); err != nil {
				return fmt.Errorf("create policy %s: %w", p.ID, err)
			}
			continue
		}
		update := PolicyUpdate{
			Name:        &p.Name,
			Description: &p.Description,
			Effect:      &p.Effect,
			Principals:  &p.Principals,
			Resources:   &p.Resources,
			Actions:     &p.Actions,
			Conditions:  &p.Conditions,
			Priority:    &p.Priority,
			Enabled:     &p.Enabled,
		}
		if _, err := m.UpdatePolicy(ctx, p.ID, update); err != nil {
			return fmt.Errorf("update policy %s: %w", p.ID, err)
		}
	}

	m.logger.Info("config applied",
		"resources", len(cfg.Resources),
		"roles", len(cfg.Roles),
		"policies", len(cfg.Policies))
	return nil
}

// Binary protocol encoding/decoding
const (
	binaryMagic   = 0x4143 // "AC"
	binaryVersion = 1
)

// Section tags in the binary layout.
const (
	sectionSettings  = 0x01
	sectionResources = 0x02
	sectionRoles     = 0x03
	sectionPolicies  = 0x04
)

func encodeBinaryConfig(cfg *Config, w io.Writer) error {
	buf := &bytes.Buffer{}

	// Header: magic(2) + version(2) + config_version(2)
	binary.Write(buf, binary.LittleEndian, uint16(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	binary.Write(buf, binary.LittleEndian, cfg.Version)

	writeSection(buf, sectionSettings, func(b *bytes.Buffer) { encodeSettings(b, &cfg.Settings) })
	writeSection(buf, sectionResources, func(b *bytes.Buffer) { encodeResources(b, cfg.Resources) })
	writeSection(buf, sectionRoles, func(b *bytes.Buffer) { encodeRoles(b, cfg.Roles) })
	writeSection(buf, sectionPolicies, func(b *bytes.Buffer) { encodePolicies(b, cfg.Policies) })

	_, err := w.Write(buf.Bytes())
	return err
}

func decodeBinaryConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}

	var magic, ver, cfgVer uint16
	binary.Read(r, binary.LittleEndian, &magic)
	binary.Read(r, binary.LittleEndian, &ver)
	binary.Read(r, binary.LittleEndian, &cfgVer)

	if magic != binaryMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	if ver != binaryVersion {
		return nil, fmt.Errorf("unsupported version: %d", ver)
	}
	cfg.Version = cfgVer

	for {
		var tag uint8
		if err := binary.Read(r, binary.LittleEndian, &tag); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		var size uint32
		binary.Read(r, binary.LittleEndian, &size)
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("section %#x truncated: %w", tag, err)
		}

		switch tag {
		case sectionSettings:
			cfg.Settings = decodeSettings(data)
		case sectionResources:
			cfg.Resources = decodeResources(data)
		case sectionRoles:
			cfg.Roles = decodeRoles(data)
		case sectionPolicies:
			cfg.Policies = decodePolicies(data)
		}
	}

	return cfg, nil
}

func writeSection(buf *bytes.Buffer, tag uint8, fn func(*bytes.Buffer)) {
	tmp := &bytes.Buffer{}
	fn(tmp)
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, uint32(tmp.Len()))
	buf.Write(tmp.Bytes())
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) string {
	var l uint16
	binary.Read(r, binary.LittleEndian, &l)
	b := make([]byte, l)
	r.Read(b)
	return string(b)
}

func writeStrings(buf *bytes.Buffer, items []string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(items)))
	for _, item := range items {
		writeString(buf, item)
	}
}

func readStrings(r *bytes.Reader) []string {
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	items := make([]string, count)
	for i := range items {
		items[i] = readString(r)
	}
	return items
}

// Conditions and metadata travel as embedded JSON; their shapes are open
// ended and not worth a bespoke wire layout.
func writeJSON(buf *bytes.Buffer, v any) {
	data, _ := json.Marshal(v)
	writeString(buf, string(data))
}

func readConditions(r *bytes.Reader) []AccessCondition {
	s := readString(r)
	if s == "" || s == "null" {
		return nil
	}
	var conds []AccessCondition
	if err := json.Unmarshal([]byte(s), &conds); err != nil {
		return nil
	}
	return conds
}

func readMetadata(r *bytes.Reader) map[string]any {
	s := readString(r)
	if s == "" || s == "null" {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil
	}
	return meta
}

func encodeSettings(buf *bytes.Buffer, s *Settings) {
	binary.Write(buf, binary.LittleEndian, s.CacheTTL)
	binary.Write(buf, binary.LittleEndian, s.SweepInterval)
	binary.Write(buf, binary.LittleEndian, int32(s.AuditQueueSize))
	binary.Write(buf, binary.LittleEndian, int32(s.PatternCacheSize))
	binary.Write(buf, binary.LittleEndian, s.RistrettoNumCounters)
	binary.Write(buf, binary.LittleEndian, s.RistrettoMaxCost)
	binary.Write(buf, binary.LittleEndian, s.RistrettoBufferItems)
	buf.WriteByte(map[bool]byte{true: 1, false: 0}[s.SeedSystemRoles])
}

func decodeSettings(data []byte) Settings {
	r := bytes.NewReader(data)
	s := Settings{}
	binary.Read(r, binary.LittleEndian, &s.CacheTTL)
	binary.Read(r, binary.LittleEndian, &s.SweepInterval)
	var queue, patterns int32
	binary.Read(r, binary.LittleEndian, &queue)
	binary.Read(r, binary.LittleEndian, &patterns)
	s.AuditQueueSize = int(queue)
	s.PatternCacheSize = int(patterns)
	binary.Read(r, binary.LittleEndian, &s.RistrettoNumCounters)
	binary.Read(r, binary.LittleEndian, &s.RistrettoMaxCost)
	binary.Read(r, binary.LittleEndian, &s.RistrettoBufferItems)
	seed, _ := r.ReadByte()
	s.SeedSystemRoles = seed == 1
	return s
}

func encodeResources(buf *bytes.Buffer, resources []*ResourceDefinition) {
	binary.Write(buf, binary.LittleEndian, uint16(len(resources)))
	for _, def := range resources {
		writeString(buf, def.ID)
		writeString(buf, def.Name)
		writeString(buf, string(def.Type))
		writeStrings(buf, def.Actions)
		writeString(buf, def.OwnershipField)
		writeString(buf, def.Parent)
		writeStrings(buf, def.Children)
	}
}

func decodeResources(data []byte) []*ResourceDefinition {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	resources := make([]*ResourceDefinition, count)
	for i := range resources {
		def := &ResourceDefinition{}
		def.ID = readString(r)
		def.Name = readString(r)
		def.Type = ResourceType(readString(r))
		def.Actions = readStrings(r)
		def.OwnershipField = readString(r)
		def.Parent = readString(r)
		def.Children = readStrings(r)
		resources[i] = def
	}
	return resources
}

func encodeRoles(buf *bytes.Buffer, roles []*Role) {
	binary.Write(buf, binary.LittleEndian, uint16(len(roles)))
	for _, role := range roles {
		writeString(buf, role.ID)
		writeString(buf, role.Name)
		writeString(buf, role.Description)
		binary.Write(buf, binary.LittleEndian, uint16(len(role.Permissions)))
		for _, perm := range role.Permissions {
			writeString(buf, perm.ID)
			writeString(buf, perm.Resource)
			writeString(buf, perm.Description)
			writeStrings(buf, perm.Actions)
			writeJSON(buf, perm.Conditions)
		}
		writeStrings(buf, role.Inherits)
		binary.Write(buf, binary.LittleEndian, int32(role.Priority))
		buf.WriteByte(map[bool]byte{true: 1, false: 0}[role.IsSystem])
		writeJSON(buf, role.Metadata)
	}
}

func decodeRoles(data []byte) []*Role {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	roles := make([]*Role, count)
	for i := range roles {
		role := &Role{}
		role.ID = readString(r)
		role.Name = readString(r)
		role.Description = readString(r)
		var permCount uint16
		binary.Read(r, binary.LittleEndian, &permCount)
		role.Permissions = make([]Permission, permCount)
		for j := range role.Permissions {
			role.Permissions[j].ID = readString(r)
			role.Permissions[j].Resource = readString(r)
			role.Permissions[j].Description = readString(r)
			role.Permissions[j].Actions = readStrings(r)
			role.Permissions[j].Conditions = readConditions(r)
		}
		role.Inherits = readStrings(r)
		var pri int32
		binary.Read(r, binary.LittleEndian, &pri)
		role.Priority = int(pri)
		system, _ := r.ReadByte()
		role.IsSystem = system == 1
		role.Metadata = readMetadata(r)
		roles[i] = role
	}
	return roles
}

func encodePolicies(buf *bytes.Buffer, policies []*AccessPolicy) {
	binary.Write(buf, binary.LittleEndian, uint16(len(policies)))
	for _, p := range policies {
		writeString(buf, p.ID)
		writeString(buf, p.Name)
		writeString(buf, p.Description)
		buf.WriteByte(map[PolicyEffect]byte{EffectAllow: 1, EffectDeny: 2}[p.Effect])
		writeStrings(buf, p.Principals)
		writeStrings(buf, p.Resources)
		writeStrings(buf, p.Actions)
		writeJSON(buf, p.Conditions)
		binary.Write(buf, binary.LittleEndian, int32(p.Priority))
		buf.WriteByte(map[bool]byte{true: 1, false: 0}[p.Enabled])
	}
}

func decodePolicies(data []byte) []*AccessPolicy {
	r := bytes.NewReader(data)
	var count uint16
	binary.Read(r, binary.LittleEndian, &count)
	policies := make([]*AccessPolicy, count)
	for i := range policies {
		p := &AccessPolicy{}
		p.ID = readString(r)
		p.Name = readString(r)
		p.Description = readString(r)
		eff, _ := r.ReadByte()
		p.Effect = map[byte]PolicyEffect{1: EffectAllow, 2: EffectDeny}[eff]
		p.Principals = readStrings(r)
		p.Resources = readStrings(r)
		p.Actions = readStrings(r)
		p.Conditions = readConditions(r)
		var pri int32
		binary.Read(r, binary.LittleEndian, &pri)
		p.Priority = int(pri)
		enb, _ := r.ReadByte()
		p.Enabled = enb == 1
		policies[i] = p
	}
	return policies
}
