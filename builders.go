package accessctl

// Builders provide a fluent API for assembling roles, permissions and policies

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{Permissions: []Permission{}, Inherits: []string{}}}
}

func (b *RoleBuilder) ID(id string) *RoleBuilder         { b.r.ID = id; return b }
func (b *RoleBuilder) Name(n string) *RoleBuilder        { b.r.Name = n; return b }
func (b *RoleBuilder) Description(d string) *RoleBuilder { b.r.Description = d; return b }
func (b *RoleBuilder) Priority(p int) *RoleBuilder       { b.r.Priority = p; return b }
func (b *RoleBuilder) System() *RoleBuilder              { b.r.IsSystem = true; return b }
func (b *RoleBuilder) Permission(p Permission) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, p)
	return b
}
func (b *RoleBuilder) Inherits(ids ...string) *RoleBuilder {
	b.r.Inherits = append(b.r.Inherits, ids...)
	return b
}
func (b *RoleBuilder) Meta(key string, value any) *RoleBuilder {
	if b.r.Metadata == nil {
		b.r.Metadata = make(map[string]any)
	}
	b.r.Metadata[key] = value
	return b
}
func (b *RoleBuilder) FromTemplate(templateID string) *RoleBuilder {
	return b.Meta(MetadataAppliedFrom, templateID)
}
func (b *RoleBuilder) Build() *Role { return b.r }

// PermissionBuilder builds a Permission
type PermissionBuilder struct {
	p Permission
}

func NewPermissionBuilder() *PermissionBuilder {
	return &PermissionBuilder{p: Permission{Actions: []string{}}}
}

func (b *PermissionBuilder) ID(id string) *PermissionBuilder         { b.p.ID = id; return b }
func (b *PermissionBuilder) Resource(r string) *PermissionBuilder    { b.p.Resource = r; return b }
func (b *PermissionBuilder) Description(d string) *PermissionBuilder { b.p.Description = d; return b }
func (b *PermissionBuilder) Actions(a ...string) *PermissionBuilder {
	b.p.Actions = append(b.p.Actions, a...)
	return b
}
func (b *PermissionBuilder) Condition(c AccessCondition) *PermissionBuilder {
	b.p.Conditions = append(b.p.Conditions, c)
	return b
}
func (b *PermissionBuilder) Build() Permission { return b.p }

// PolicyBuilder builds an AccessPolicy
type PolicyBuilder struct {
	p *AccessPolicy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &AccessPolicy{
		Principals: []string{},
		Resources:  []string{},
		Actions:    []string{},
		Enabled:    true,
	}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder          { b.p.ID = id; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder         { b.p.Name = n; return b }
func (b *PolicyBuilder) Description(d string) *PolicyBuilder  { b.p.Description = d; return b }
func (b *PolicyBuilder) Effect(e PolicyEffect) *PolicyBuilder { b.p.Effect = e; return b }
func (b *PolicyBuilder) Allow() *PolicyBuilder                { b.p.Effect = EffectAllow; return b }
func (b *PolicyBuilder) Deny() *PolicyBuilder                 { b.p.Effect = EffectDeny; return b }
func (b *PolicyBuilder) Priority(p int) *PolicyBuilder        { b.p.Priority = p; return b }
func (b *PolicyBuilder) Enabled(enabled bool) *PolicyBuilder  { b.p.Enabled = enabled; return b }
func (b *PolicyBuilder) Principals(p ...string) *PolicyBuilder {
	b.p.Principals = append(b.p.Principals, p...)
	return b
}
func (b *PolicyBuilder) Resources(r ...string) *PolicyBuilder {
	b.p.Resources = append(b.p.Resources, r...)
	return b
}
func (b *PolicyBuilder) Actions(a ...string) *PolicyBuilder {
	b.p.Actions = append(b.p.Actions, a...)
	return b
}
func (b *PolicyBuilder) Condition(c AccessCondition) *PolicyBuilder {
	b.p.Conditions = append(b.p.Conditions, c)
	return b
}
func (b *PolicyBuilder) Build() *AccessPolicy { return b.p }

// Condition constructors for the built-in condition types

// OwnershipCondition passes when the resolved resource owner equals the
// requesting user.
func OwnershipCondition() AccessCondition {
	return AccessCondition{Type: ConditionOwnership}
}

// TimeCondition compares the current hour (0-23) against value.
func TimeCondition(op CompareOperator, value any) AccessCondition {
	return AccessCondition{Type: ConditionTime, Field: "hour", Operator: op, Value: value}
}

// LocationCondition compares the request IP against value.
func LocationCondition(op CompareOperator, value any) AccessCondition {
	return AccessCondition{Type: ConditionLocation, Field: "ip", Operator: op, Value: value}
}

// AttributeCondition compares a request metadata field against value.
func AttributeCondition(field string, op CompareOperator, value any) AccessCondition {
	return AccessCondition{Type: ConditionAttribute, Field: field, Operator: op, Value: value}
}

// CustomCondition defers to the named evaluator registered on the Manager.
func CustomCondition(evaluator string) AccessCondition {
	return AccessCondition{Type: ConditionCustom, Evaluator: evaluator}
}
