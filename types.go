package accessctl

import "time"

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// ConditionType identifies the kind of predicate an AccessCondition applies
type ConditionType string

const (
	ConditionOwnership ConditionType = "ownership"
	ConditionTime      ConditionType = "time"
	ConditionLocation  ConditionType = "location"
	ConditionAttribute ConditionType = "attribute"
	ConditionCustom    ConditionType = "custom"
)

// CompareOperator is the comparison applied between a condition's field and its value
type CompareOperator string

const (
	OpEquals      CompareOperator = "equals"
	OpNotEquals   CompareOperator = "not_equals"
	OpGreaterThan CompareOperator = "greater_than"
	OpLessThan    CompareOperator = "less_than"
	OpIn          CompareOperator = "in"
	OpNotIn       CompareOperator = "not_in"
)

// PolicyEffect represents the outcome a policy enforces when it matches
type PolicyEffect string

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

// ResourceType classifies a protected resource
type ResourceType string

const (
	ResourceTypeAPI    ResourceType = "api"
	ResourceTypeUI     ResourceType = "ui"
	ResourceTypeData   ResourceType = "data"
	ResourceTypeSystem ResourceType = "system"
)

// Wildcard matches any resource or action in permission and policy patterns
const Wildcard = "*"

// AccessCondition narrows when a permission or policy applies. Custom
// conditions reference a predicate registered on the Manager by name so
// condition data stays serializable.
type AccessCondition struct {
	Type      ConditionType   `json:"type" yaml:"type"`
	Field     string          `json:"field,omitempty" yaml:"field,omitempty"`
	Operator  CompareOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value     any             `json:"value,omitempty" yaml:"value,omitempty"`
	Evaluator string          `json:"evaluator,omitempty" yaml:"evaluator,omitempty"` // registered predicate name, type "custom" only
}

// Permission grants actions on a resource pattern, optionally gated by conditions
type Permission struct {
	ID          string            `json:"id" yaml:"id"`
	Resource    string            `json:"resource" yaml:"resource"` // exact name, "*", or a pattern with '*' wildcards
	Actions     []string          `json:"actions" yaml:"actions"`
	Conditions  []AccessCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
}

// Role groups permissions under a name. Inherited roles contribute their
// permission sets recursively. Roles own their permissions by value; stores
// hand out copies so callers can never mutate shared state through a slice.
type Role struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []Permission   `json:"permissions" yaml:"permissions"`
	Inherits    []string       `json:"inherits,omitempty" yaml:"inherits,omitempty"`
	Priority    int            `json:"priority" yaml:"priority"`
	IsSystem    bool           `json:"is_system" yaml:"is_system"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// MetadataAppliedFrom is the role metadata key linking a role to the template
// it was instantiated from. Template sync rewrites the permissions of every
// role carrying this key when the template changes.
const MetadataAppliedFrom = "appliedFrom"

// TemplateID returns the template id this role was instantiated from, if any.
func (r *Role) TemplateID() (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	id, ok := r.Metadata[MetadataAppliedFrom].(string)
	return id, ok && id != ""
}

// Clone returns a deep copy of the role.
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Permissions = ClonePermissions(r.Permissions)
	dup.Inherits = cloneStrings(r.Inherits)
	dup.Metadata = cloneMetadata(r.Metadata)
	return &dup
}

// RoleUpdate carries the fields UpdateRole shallow-merges into an existing
// role. Nil fields are left untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions *[]Permission
	Inherits    *[]string
	Priority    *int
	Metadata    map[string]any
}

// ResourceDefinition describes a protected resource and its valid actions
type ResourceDefinition struct {
	ID             string       `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	Type           ResourceType `json:"type" yaml:"type"`
	Actions        []string     `json:"actions" yaml:"actions"`
	OwnershipField string       `json:"ownership_field,omitempty" yaml:"ownership_field,omitempty"`
	Parent         string       `json:"parent,omitempty" yaml:"parent,omitempty"`
	Children       []string     `json:"children,omitempty" yaml:"children,omitempty"`
}

// Clone returns a deep copy of the resource definition.
func (d *ResourceDefinition) Clone() *ResourceDefinition {
	if d == nil {
		return nil
	}
	dup := *d
	dup.Actions = cloneStrings(d.Actions)
	dup.Children = cloneStrings(d.Children)
	return &dup
}

// AccessPolicy is a standalone allow/deny rule independent of roles.
// Principals hold role names, user ids, or "*". Deny policies are always
// evaluated before allow policies regardless of priority; priority orders
// evaluation within the same effect.
type AccessPolicy struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Effect      PolicyEffect      `json:"effect" yaml:"effect"`
	Principals  []string          `json:"principals" yaml:"principals"`
	Resources   []string          `json:"resources" yaml:"resources"`
	Actions     []string          `json:"actions" yaml:"actions"`
	Conditions  []AccessCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Priority    int               `json:"priority" yaml:"priority"`
	Enabled     bool              `json:"enabled" yaml:"enabled"`
}

// Clone returns a deep copy of the policy.
func (p *AccessPolicy) Clone() *AccessPolicy {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Principals = cloneStrings(p.Principals)
	dup.Resources = cloneStrings(p.Resources)
	dup.Actions = cloneStrings(p.Actions)
	dup.Conditions = CloneConditions(p.Conditions)
	return &dup
}

// PolicyUpdate carries the fields UpdatePolicy shallow-merges into an
// existing policy. Nil fields are left untouched.
type PolicyUpdate struct {
	Name        *string
	Description *string
	Effect      *PolicyEffect
	Principals  *[]string
	Resources   *[]string
	Actions     *[]string
	Conditions  *[]AccessCondition
	Priority    *int
	Enabled     *bool
}

// AccessContext carries one request's evaluation inputs. It is request
// scoped and never persisted.
type AccessContext struct {
	UserID          string         `json:"user_id"`
	UserRole        string         `json:"user_role"`
	UserPermissions []string       `json:"user_permissions,omitempty"`
	Resource        string         `json:"resource"`
	Action          string         `json:"action"`
	ResourceID      string         `json:"resource_id,omitempty"`
	ResourceOwner   string         `json:"resource_owner,omitempty"` // must be resolved by the caller for ownership conditions
	RequestTime     time.Time      `json:"request_time"`
	IPAddress       string         `json:"ip_address,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// AccessDecision is the outcome of one access check
type AccessDecision struct {
	Granted           bool              `json:"granted"`
	Reason            string            `json:"reason,omitempty"`
	AppliedRole       string            `json:"applied_role,omitempty"`
	AppliedPermission string            `json:"applied_permission,omitempty"`
	Conditions        []AccessCondition `json:"conditions,omitempty"`
}

// AccessStatistics is a read-only snapshot for operational dashboards
type AccessStatistics struct {
	TotalRoles     int `json:"total_roles"`
	SystemRoles    int `json:"system_roles"`
	CustomRoles    int `json:"custom_roles"`
	TotalPolicies  int `json:"total_policies"`
	TotalResources int `json:"total_resources"`
	CacheSize      int `json:"cache_size"`
}

// ClonePermissions deep-copies a permission slice.
func ClonePermissions(perms []Permission) []Permission {
	if perms == nil {
		return nil
	}
	out := make([]Permission, len(perms))
	for i, p := range perms {
		out[i] = p
		out[i].Actions = cloneStrings(p.Actions)
		out[i].Conditions = CloneConditions(p.Conditions)
	}
	return out
}

// CloneConditions deep-copies a condition slice. Condition values are copied
// by reference; they are treated as immutable once attached.
func CloneConditions(conds []AccessCondition) []AccessCondition {
	if conds == nil {
		return nil
	}
	out := make([]AccessCondition, len(conds))
	copy(out, conds)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
