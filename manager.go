// Package accessctl is a centralized access control manager. It combines
// role based permissions with inheritance, standalone allow/deny policies,
// condition evaluation (ownership, time, location, attribute, custom), a
// short-TTL decision cache, and an asynchronous audit trail behind a single
// CheckAccess entry point.
package accessctl

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/cargoflow/accessctl/logger"
	"github.com/cargoflow/accessctl/utils"
)

// Decision reasons surfaced to callers and audit records.
const (
	ReasonSuperAdmin  = "Super admin access"
	ReasonNoMatch     = "No matching permissions"
	ReasonCheckFailed = "Access check failed"
)

const defaultPatternCacheSize = 512

var (
	errNoDirectory = errors.New("accessctl: no user directory configured")
	errNoTemplates = errors.New("accessctl: no template manager configured")
)

// Manager evaluates access decisions against the injected stores. Construct
// one per process at startup and share it; all methods are safe for
// concurrent use.
type Manager struct {
	resources ResourceStore
	roles     RoleStore
	policies  PolicyStore
	audit     AuditStore

	directory UserDirectory
	templates TemplateManager

	cache         decisionCache
	cacheTTL      time.Duration
	sweepInterval time.Duration
	ristretto     *RistrettoConfig

	evaluators map[string]EvaluatorFunc
	evalMu     sync.RWMutex

	patternCache *expirable.LRU[string, *regexp.Regexp]
	patternSize  int

	auditCh       chan AuditRecord
	auditQueueLen int
	auditMu       sync.RWMutex
	auditClosed   bool
	auditWG       sync.WaitGroup
	auditDropped  atomic.Uint64

	logger  logger.Logger
	metrics *managerMetrics

	closeOnce sync.Once
}

// NewManager wires a Manager from its collaborators. The audit worker starts
// immediately; call Close to drain it on shutdown.
func NewManager(resources ResourceStore, roles RoleStore, policies PolicyStore, audit AuditStore, opts ...Option) (*Manager, error) {
	m := &Manager{
		resources:     resources,
		roles:         roles,
		policies:      policies,
		audit:         audit,
		cacheTTL:      DefaultCacheTTL,
		sweepInterval: DefaultSweepInterval,
		auditQueueLen: DefaultAuditQueueSize,
		patternSize:   defaultPatternCacheSize,
		evaluators:    make(map[string]EvaluatorFunc),
		logger:        logger.NewPhusluLogger(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if m.ristretto != nil {
		cache, err := newRistrettoDecisionCache(*m.ristretto, m.cacheTTL)
		if err != nil {
			return nil, fmt.Errorf("ristretto decision cache: %w", err)
		}
		m.cache = cache
	} else {
		m.cache = newMapDecisionCache(m.cacheTTL, m.sweepInterval)
	}

	// compiled resource patterns are recycled across checks
	m.patternCache = expirable.NewLRU[string, *regexp.Regexp](m.patternSize, nil, time.Hour)

	m.auditCh = make(chan AuditRecord, m.auditQueueLen)
	m.auditWG.Add(1)
	go m.auditWorker()

	if m.templates != nil {
		m.templates.Subscribe(m.handleTemplateEvent)
	}
	return m, nil
}

// Close stops audit intake, drains queued records, and releases the cache.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.auditMu.Lock()
		m.auditClosed = true
		close(m.auditCh)
		m.auditMu.Unlock()
		m.auditWG.Wait()
		m.cache.Close()
	})
}

// ============================================================================
// ACCESS CHECK
// ============================================================================

// CheckAccess evaluates one request. The order is fixed: cached decision,
// superadmin bypass, enabled deny policies by descending priority, enabled
// allow policies, then role permissions with inheritance. Every evaluated
// decision is cached and audited; cache hits and superadmin grants are not
// audited. CheckAccess never returns an error or panics to the caller; any
// internal failure denies with ReasonCheckFailed.
func (m *Manager) CheckAccess(ctx context.Context, ac *AccessContext) (dec *AccessDecision) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("access check panic", "user", ac.UserID, "resource", ac.Resource, "action", ac.Action, "panic", fmt.Sprint(r))
			dec = &AccessDecision{Granted: false, Reason: ReasonCheckFailed}
		}
		if m.metrics != nil {
			m.metrics.observeCheck(dec, time.Since(start))
		}
	}()

	key := decisionKey{UserID: ac.UserID, Resource: ac.Resource, Action: ac.Action, ResourceID: ac.ResourceID}
	if cached, ok := m.cache.Get(key); ok {
		if m.metrics != nil {
			m.metrics.cacheHits.Inc()
		}
		return cached
	}

	// superadmin bypasses policies and role matching entirely
	if ac.UserRole == RoleSuperadmin {
		dec = &AccessDecision{Granted: true, Reason: ReasonSuperAdmin, AppliedRole: RoleSuperadmin}
		m.cache.Set(key, dec)
		return dec
	}

	policies, err := m.policies.GetPolicies(ctx)
	if err != nil {
		m.logger.Error("policy load failed during access check", "user", ac.UserID, "error", err.Error())
		dec = &AccessDecision{Granted: false, Reason: ReasonCheckFailed}
		return dec
	}

	// deny policies always run before allow policies, whatever their priorities
	if p := m.firstMatchingPolicy(policies, EffectDeny, ac); p != nil {
		dec = &AccessDecision{Granted: false, Reason: fmt.Sprintf("Policy %s deny", p.Name), Conditions: p.Conditions}
		return m.finish(key, ac, dec)
	}
	if p := m.firstMatchingPolicy(policies, EffectAllow, ac); p != nil {
		dec = &AccessDecision{Granted: true, Reason: fmt.Sprintf("Policy %s allow", p.Name), Conditions: p.Conditions}
		return m.finish(key, ac, dec)
	}

	dec = m.checkRolePermissions(ctx, ac)
	return m.finish(key, ac, dec)
}

// finish caches the decision and queues its audit record.
func (m *Manager) finish(key decisionKey, ac *AccessContext, dec *AccessDecision) *AccessDecision {
	m.cache.Set(key, dec)
	m.submitAudit(ac, dec)
	m.logger.Debug("access decision",
		"user", ac.UserID,
		"role", ac.UserRole,
		"resource", ac.Resource,
		"action", ac.Action,
		"granted", dec.Granted,
		"reason", dec.Reason)
	return dec
}

// batchCheckConcurrency bounds how many checks a batch runs at once.
const batchCheckConcurrency = 8

// CheckAccessBatch evaluates several access contexts concurrently and returns
// decisions in request order. Individual failures degrade to denials exactly
// as in CheckAccess; the only error is context cancellation, in which case
// the partial results are discarded.
func (m *Manager) CheckAccessBatch(ctx context.Context, batch []*AccessContext) ([]*AccessDecision, error) {
	decisions := make([]*AccessDecision, len(batch))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchCheckConcurrency)
	for i, ac := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			decisions[i] = m.CheckAccess(ctx, ac)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

// firstMatchingPolicy returns the highest-priority enabled policy of the
// given effect whose principals, resources, actions, and conditions all
// match the context.
func (m *Manager) firstMatchingPolicy(policies []*AccessPolicy, effect PolicyEffect, ac *AccessContext) *AccessPolicy {
	matched := make([]*AccessPolicy, 0, 4)
	for _, p := range policies {
		if !p.Enabled || p.Effect != effect {
			continue
		}
		if m.policyApplies(p, ac) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority > matched[j].Priority })
	for _, p := range matched {
		if m.evaluateConditions(p.Conditions, ac) {
			return p
		}
	}
	return nil
}

func (m *Manager) policyApplies(p *AccessPolicy, ac *AccessContext) bool {
	if !principalMatches(p.Principals, ac) {
		return false
	}
	if !m.anyResourceMatches(p.Resources, ac.Resource) {
		return false
	}
	return actionMatches(p.Actions, ac.Action)
}

// principalMatches accepts the wildcard, the user's role name, or the user id.
func principalMatches(principals []string, ac *AccessContext) bool {
	for _, pr := range principals {
		if pr == Wildcard || pr == ac.UserRole || pr == ac.UserID {
			return true
		}
	}
	return false
}

func actionMatches(actions []string, action string) bool {
	for _, a := range actions {
		if a == Wildcard || a == action {
			return true
		}
	}
	return false
}

func (m *Manager) anyResourceMatches(patterns []string, resource string) bool {
	for _, pat := range patterns {
		if m.matchResource(pat, resource) {
			return true
		}
	}
	return false
}

// matchResource checks exact equality first, then falls back to compiled
// wildcard patterns.
func (m *Manager) matchResource(pattern, resource string) bool {
	if pattern == Wildcard || pattern == resource {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	re, err := m.compilePattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(resource)
}

func (m *Manager) compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := m.patternCache.Get(pattern); ok {
		return re, nil
	}
	re, err := utils.CompileResourcePattern(pattern)
	if err != nil {
		return nil, err
	}
	m.patternCache.Add(pattern, re)
	return re, nil
}

// ============================================================================
// ROLE PERMISSION EVALUATION
// ============================================================================

func (m *Manager) checkRolePermissions(ctx context.Context, ac *AccessContext) *AccessDecision {
	role, err := m.roles.GetRole(ctx, ac.UserRole)
	if err != nil {
		return &AccessDecision{Granted: false, Reason: fmt.Sprintf("Role %s not found", ac.UserRole)}
	}
	perms := m.collectPermissions(ctx, role, make(map[string]bool))
	for i := range perms {
		p := &perms[i]
		if !m.matchResource(p.Resource, ac.Resource) {
			continue
		}
		if !actionMatches(p.Actions, ac.Action) {
			continue
		}
		if !m.evaluateConditions(p.Conditions, ac) {
			continue
		}
		return &AccessDecision{
			Granted:           true,
			Reason:            fmt.Sprintf("Granted by role %s", role.Name),
			AppliedRole:       role.Name,
			AppliedPermission: p.ID,
			Conditions:        p.Conditions,
		}
	}
	return &AccessDecision{Granted: false, Reason: ReasonNoMatch}
}

// collectPermissions unions a role's own permissions with every inherited
// role's permissions, depth first. The visited set guards against cycles
// written directly to a store, on top of the fail-fast check in CreateRole
// and UpdateRole.
func (m *Manager) collectPermissions(ctx context.Context, role *Role, visited map[string]bool) []Permission {
	if visited[role.ID] {
		return nil
	}
	visited[role.ID] = true
	perms := make([]Permission, 0, len(role.Permissions))
	perms = append(perms, role.Permissions...)
	for _, parentID := range role.Inherits {
		parent, err := m.roles.GetRole(ctx, parentID)
		if err != nil {
			// missing ancestors contribute nothing
			continue
		}
		perms = append(perms, m.collectPermissions(ctx, parent, visited)...)
	}
	return perms
}

// GetAllPermissions resolves the full inherited permission set of a role.
func (m *Manager) GetAllPermissions(ctx context.Context, roleID string) ([]Permission, error) {
	role, err := m.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return m.collectPermissions(ctx, role, make(map[string]bool)), nil
}

// ============================================================================
// USER-LEVEL HELPERS
// ============================================================================

// CanUserAccessResource resolves the user's stored role through the directory
// and answers what CheckAccess would for an equivalent context.
func (m *Manager) CanUserAccessResource(ctx context.Context, userID, resource, action string) (bool, error) {
	if m.directory == nil {
		return false, errNoDirectory
	}
	user, err := m.directory.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	dec := m.CheckAccess(ctx, &AccessContext{
		UserID:          userID,
		UserRole:        user.Role,
		UserPermissions: cloneStrings(user.Permissions),
		Resource:        resource,
		Action:          action,
		RequestTime:     time.Now(),
	})
	return dec.Granted, nil
}

// GetUserPermissions returns the inherited permission set of the user's role.
func (m *Manager) GetUserPermissions(ctx context.Context, userID string) ([]Permission, error) {
	if m.directory == nil {
		return nil, errNoDirectory
	}
	user, err := m.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return m.GetAllPermissions(ctx, user.Role)
}

// GetAccessStatistics snapshots store and cache sizes for dashboards.
func (m *Manager) GetAccessStatistics(ctx context.Context) (*AccessStatistics, error) {
	roles, err := m.roles.GetRoles(ctx)
	if err != nil {
		return nil, err
	}
	policies, err := m.policies.GetPolicies(ctx)
	if err != nil {
		return nil, err
	}
	resources, err := m.resources.GetResources(ctx)
	if err != nil {
		return nil, err
	}
	stats := &AccessStatistics{
		TotalRoles:     len(roles),
		TotalPolicies:  len(policies),
		TotalResources: len(resources),
		CacheSize:      m.cache.Len(),
	}
	for _, r := range roles {
		if r.IsSystem {
			stats.SystemRoles++
		} else {
			stats.CustomRoles++
		}
	}
	return stats, nil
}

// InvalidateCache drops every memoized decision. Runs after any role,
// permission, or policy mutation; the short TTL keeps coarse invalidation
// affordable.
func (m *Manager) InvalidateCache() {
	m.cache.Clear()
	if m.metrics != nil {
		m.metrics.invalidations.Inc()
	}
}

// CacheSize reports the number of live cached decisions.
func (m *Manager) CacheSize() int {
	return m.cache.Len()
}
