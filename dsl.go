package accessctl

import (
	"fmt"
	"strconv"
	"strings"
)

// Compact text config, one directive per line ("#" starts a comment):
//
//	resource <id> <name> <type> <actions> [owner:<field>] [parent:<id>]
//	role <id> <name> [perms:<res>=<a>+<a>,...] [inherits:<ids>] [priority:<n>] [system] [template:<id>]
//	policy <id> <name> <effect> <principals> <resources> <actions> [when:<cond>;<cond>] [priority:<n>] [disabled]
//	setting <key>=<value>...
//
// Lists are comma separated and "-" stands for an empty list. Names with
// spaces are double quoted. Condition syntax is documented on
// ParseConditionExpr.

// DSLParser parses the text config format into a Config.
type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser {
	return &DSLParser{}
}

func (p *DSLParser) Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Version:   1,
		Resources: make([]*ResourceDefinition, 0, 8),
		Roles:     make([]*Role, 0, 8),
		Policies:  make([]*AccessPolicy, 0, 16),
	}

	p.line = 0
	start := 0
	for i := 0; i <= len(data); i++ {
		if i < len(data) && data[i] != '\n' {
			continue
		}
		p.line++
		line := data[start:i]
		start = i + 1

		for len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			line = line[1:]
		}
		for len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t' || line[len(line)-1] == '\r') {
			line = line[:len(line)-1]
		}

		if len(line) == 0 || line[0] == '#' {
			continue
		}

		parts := splitDSLFields(line)
		if len(parts) == 0 {
			continue
		}

		var err error
		switch parts[0] {
		case "resource":
			err = p.parseResource(cfg, parts[1:])
		case "role":
			err = p.parseRole(cfg, parts[1:])
		case "policy":
			err = p.parsePolicy(cfg, parts[1:])
		case "setting":
			err = p.parseSetting(cfg, parts[1:])
		default:
			err = fmt.Errorf("unknown directive: %s", parts[0])
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}

	return cfg, nil
}

// splitDSLFields splits a line on whitespace, treating double-quoted runs as
// single fields with the quotes stripped.
func splitDSLFields(line []byte) []string {
	parts := make([]string, 0, 8)
	var start int
	inQuote := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		if ch == '"' {
			if inQuote {
				parts = append(parts, string(line[start:i]))
				start = i + 1
				inQuote = false
			} else {
				start = i + 1
				inQuote = true
			}
		} else if (ch == ' ' || ch == '\t') && !inQuote {
			if i > start {
				parts = append(parts, string(line[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(line) {
		parts = append(parts, string(line[start:]))
	}

	return parts
}

func (p *DSLParser) parseResource(cfg *Config, parts []string) error {
	if len(parts) < 4 {
		return fmt.Errorf("resource requires: <id> <name> <type> <actions> [owner:<field>] [parent:<id>]")
	}

	def := &ResourceDefinition{
		ID:      parts[0],
		Name:    parts[1],
		Type:    ResourceType(parts[2]),
		Actions: parseDSLList(parts[3]),
	}
	for _, opt := range parts[4:] {
		switch {
		case strings.HasPrefix(opt, "owner:"):
			def.OwnershipField = opt[6:]
		case strings.HasPrefix(opt, "parent:"):
			def.Parent = opt[7:]
		}
	}

	cfg.Resources = append(cfg.Resources, def)
	return nil
}

func (p *DSLParser) parseRole(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("role requires: <id> <name> [perms:...] [inherits:...] [priority:<n>] [system] [template:<id>]")
	}

	role := &Role{ID: parts[0], Name: parts[1]}
	for _, opt := range parts[2:] {
		switch {
		case strings.HasPrefix(opt, "perms:"):
			perms, err := parseDSLPermissions(opt[6:])
			if err != nil {
				return err
			}
			role.Permissions = perms
		case strings.HasPrefix(opt, "inherits:"):
			role.Inherits = parseDSLList(opt[9:])
		case strings.HasPrefix(opt, "priority:"):
			role.Priority, _ = strconv.Atoi(opt[9:])
		case strings.HasPrefix(opt, "template:"):
			role.Metadata = map[string]any{MetadataAppliedFrom: opt[9:]}
		case opt == "system":
			role.IsSystem = true
		}
	}

	cfg.Roles = append(cfg.Roles, role)
	return nil
}

func (p *DSLParser) parsePolicy(cfg *Config, parts []string) error {
	if len(parts) < 6 {
		return fmt.Errorf("policy requires: <id> <name> <effect> <principals> <resources> <actions> [when:...] [priority:<n>] [disabled]")
	}

	pol := &AccessPolicy{
		ID:         parts[0],
		Name:       parts[1],
		Effect:     PolicyEffect(parts[2]),
		Principals: parseDSLList(parts[3]),
		Resources:  parseDSLList(parts[4]),
		Actions:    parseDSLList(parts[5]),
		Enabled:    true,
	}
	for _, opt := range parts[6:] {
		switch {
		case strings.HasPrefix(opt, "when:"):
			conds, err := ParseConditionExprs(opt[5:])
			if err != nil {
				return err
			}
			pol.Conditions = conds
		case strings.HasPrefix(opt, "priority:"):
			pol.Priority, _ = strconv.Atoi(opt[9:])
		case opt == "disabled":
			pol.Enabled = false
		}
	}

	cfg.Policies = append(cfg.Policies, pol)
	return nil
}

func (p *DSLParser) parseSetting(cfg *Config, parts []string) error {
	for _, kv := range parts {
		idx := strings.Index(kv, "=")
		if idx == -1 {
			continue
		}
		key, val := kv[:idx], kv[idx+1:]
		switch key {
		case "cache_ttl":
			cfg.Settings.CacheTTL, _ = strconv.ParseInt(val, 10, 64)
		case "sweep_interval":
			cfg.Settings.SweepInterval, _ = strconv.ParseInt(val, 10, 64)
		case "audit_queue":
			cfg.Settings.AuditQueueSize, _ = strconv.Atoi(val)
		case "pattern_cache":
			cfg.Settings.PatternCacheSize, _ = strconv.Atoi(val)
		case "ristretto_counters":
			cfg.Settings.RistrettoNumCounters, _ = strconv.ParseInt(val, 10, 64)
		case "ristretto_cost":
			cfg.Settings.RistrettoMaxCost, _ = strconv.ParseInt(val, 10, 64)
		case "ristretto_buffer":
			cfg.Settings.RistrettoBufferItems, _ = strconv.ParseInt(val, 10, 64)
		case "seed_system":
			cfg.Settings.SeedSystemRoles, _ = strconv.ParseBool(val)
		}
	}
	return nil
}

func parseDSLList(s string) []string {
	if s == "" || s == "-" {
		return nil
	}
	return strings.Split(s, ",")
}

// parseDSLPermissions parses "docs=read+write,reports=read" into permissions.
func parseDSLPermissions(s string) ([]Permission, error) {
	if s == "" || s == "-" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	perms := make([]Permission, 0, len(parts))
	for _, part := range parts {
		idx := strings.Index(part, "=")
		if idx <= 0 || idx == len(part)-1 {
			return nil, fmt.Errorf("malformed permission %q, want <resource>=<action>+<action>", part)
		}
		perms = append(perms, Permission{
			Resource: part[:idx],
			Actions:  strings.Split(part[idx+1:], "+"),
		})
	}
	return perms, nil
}

// DSLEncoder renders a Config back into the text format.
type DSLEncoder struct {
	buf []byte
}

func NewDSLEncoder() *DSLEncoder {
	return &DSLEncoder{buf: make([]byte, 0, 4096)}
}

func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]
	var tmp [20]byte

	for _, def := range cfg.Resources {
		e.buf = append(e.buf, "resource "...)
		e.buf = append(e.buf, def.ID...)
		e.appendQuoted(def.Name)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, def.Type...)
		e.appendList(def.Actions)
		if def.OwnershipField != "" {
			e.buf = append(e.buf, " owner:"...)
			e.buf = append(e.buf, def.OwnershipField...)
		}
		if def.Parent != "" {
			e.buf = append(e.buf, " parent:"...)
			e.buf = append(e.buf, def.Parent...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, role := range cfg.Roles {
		e.buf = append(e.buf, "role "...)
		e.buf = append(e.buf, role.ID...)
		e.appendQuoted(role.Name)
		if len(role.Permissions) > 0 {
			e.buf = append(e.buf, " perms:"...)
			for i, perm := range role.Permissions {
				if i > 0 {
					e.buf = append(e.buf, ',')
				}
				e.buf = append(e.buf, perm.Resource...)
				e.buf = append(e.buf, '=')
				for j, action := range perm.Actions {
					if j > 0 {
						e.buf = append(e.buf, '+')
					}
					e.buf = append(e.buf, action...)
				}
			}
		}
		if len(role.Inherits) > 0 {
			e.buf = append(e.buf, " inherits:"...)
			e.appendJoined(role.Inherits)
		}
		if role.Priority != 0 {
			e.buf = append(e.buf, " priority:"...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(role.Priority), 10)...)
		}
		if role.IsSystem {
			e.buf = append(e.buf, " system"...)
		}
		if tplID, ok := role.TemplateID(); ok {
			e.buf = append(e.buf, " template:"...)
			e.buf = append(e.buf, tplID...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, pol := range cfg.Policies {
		e.buf = append(e.buf, "policy "...)
		e.buf = append(e.buf, pol.ID...)
		e.appendQuoted(pol.Name)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, pol.Effect...)
		e.appendList(pol.Principals)
		e.appendList(pol.Resources)
		e.appendList(pol.Actions)
		if expr := FormatConditionExprs(pol.Conditions); expr != "" {
			e.buf = append(e.buf, " when:"...)
			e.buf = append(e.buf, expr...)
		}
		if pol.Priority != 0 {
			e.buf = append(e.buf, " priority:"...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(pol.Priority), 10)...)
		}
		if !pol.Enabled {
			e.buf = append(e.buf, " disabled"...)
		}
		e.buf = append(e.buf, '\n')
	}

	e.encodeSettingsLine(&cfg.Settings, tmp[:0])

	return e.buf, nil
}

func (e *DSLEncoder) encodeSettingsLine(s *Settings, tmp []byte) {
	if *s == (Settings{}) {
		return
	}
	e.buf = append(e.buf, "setting"...)
	if s.CacheTTL > 0 {
		e.buf = append(e.buf, " cache_ttl="...)
		e.buf = append(e.buf, strconv.AppendInt(tmp, s.CacheTTL, 10)...)
	}
	if s.SweepInterval > 0 {
		e.buf = append(e.buf, " sweep_interval="...)
		e.buf = append(e.buf, strconv.AppendInt(tmp, s.SweepInterval, 10)...)
	}
	if s.AuditQueueSize > 0 {
		e.buf = append(e.buf, " audit_queue="...)
		e.buf = append(e.buf, strconv.AppendInt(tmp, int64(s.AuditQueueSize), 10)...)
	}
	if s.PatternCacheSize > 0 {
		e.buf = append(e.buf, " pattern_cache="...)
		e.buf = append(e.buf, strconv.AppendInt(tmp, int64(s.PatternCacheSize), 10)...)
	}
	if s.RistrettoNumCounters > 0 {
		e.buf = append(e.buf, " ristretto_counters="...)
		e.buf = append(e.buf, strconv.AppendInt(tmp, s.RistrettoNumCounters, 10)...)
	}
	if s.RistrettoMaxCost > 0 {
		e.buf = append(e.buf, " ristretto_cost="...)
		e.buf = append(e.buf, strconv.AppendInt(tmp, s.RistrettoMaxCost, 10)...)
	}
	if s.RistrettoBufferItems > 0 {
		e.buf = append(e.buf, " ristretto_buffer="...)
		e.buf = append(e.buf, strconv.AppendInt(tmp, s.RistrettoBufferItems, 10)...)
	}
	if s.SeedSystemRoles {
		e.buf = append(e.buf, " seed_system=true"...)
	}
	e.buf = append(e.buf, '\n')
}

// appendQuoted writes a leading space and the name in double quotes.
func (e *DSLEncoder) appendQuoted(s string) {
	e.buf = append(e.buf, ' ', '"')
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, '"')
}

// appendList writes a leading space and a comma-joined list, "-" when empty.
func (e *DSLEncoder) appendList(items []string) {
	e.buf = append(e.buf, ' ')
	if len(items) == 0 {
		e.buf = append(e.buf, '-')
		return
	}
	e.appendJoined(items)
}

func (e *DSLEncoder) appendJoined(items []string) {
	for i, item := range items {
		if i > 0 {
			e.buf = append(e.buf, ',')
		}
		e.buf = append(e.buf, item...)
	}
}
