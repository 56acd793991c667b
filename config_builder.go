package accessctl

// ConfigBuilder assembles a Config fluently. Role and policy values come from
// the corresponding builders in builders.go.
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: &Config{Version: 1}}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

// Settings mutates the config's tuning knobs in place.
func (b *ConfigBuilder) Settings(fn func(*Settings)) *ConfigBuilder {
	fn(&b.cfg.Settings)
	return b
}

func (b *ConfigBuilder) AddResource(def *ResourceDefinition) *ConfigBuilder {
	b.cfg.Resources = append(b.cfg.Resources, def)
	return b
}

func (b *ConfigBuilder) AddRole(r *Role) *ConfigBuilder {
	b.cfg.Roles = append(b.cfg.Roles, r)
	return b
}

func (b *ConfigBuilder) AddPolicy(p *AccessPolicy) *ConfigBuilder {
	b.cfg.Policies = append(b.cfg.Policies, p)
	return b
}

// SeedSystemRoles marks the config to install the platform roles on apply.
func (b *ConfigBuilder) SeedSystemRoles() *ConfigBuilder {
	b.cfg.Settings.SeedSystemRoles = true
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}

func (b *ConfigBuilder) ToDSL() ([]byte, error) {
	return b.cfg.ToDSL()
}

func (b *ConfigBuilder) ToBinary() ([]byte, error) {
	return EncodeBinaryConfig(b.cfg)
}
