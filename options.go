package accessctl

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cargoflow/accessctl/logger"
)

// Option configures a Manager during construction.
type Option func(*Manager) error

// WithLogger installs a Logger on the Manager.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) error {
		if l == nil {
			return fmt.Errorf("accessctl: nil logger")
		}
		m.logger = l
		return nil
	}
}

// WithCacheTTL overrides the decision cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl <= 0 {
			return fmt.Errorf("accessctl: cache ttl must be positive, got %s", ttl)
		}
		m.cacheTTL = ttl
		return nil
	}
}

// WithSweepInterval overrides how often the map-backed cache evicts expired
// entries. Ignored when the ristretto backend is selected.
func WithSweepInterval(interval time.Duration) Option {
	return func(m *Manager) error {
		if interval <= 0 {
			return fmt.Errorf("accessctl: sweep interval must be positive, got %s", interval)
		}
		m.sweepInterval = interval
		return nil
	}
}

// WithAuditQueueSize resizes the audit channel buffer.
func WithAuditQueueSize(size int) Option {
	return func(m *Manager) error {
		if size <= 0 {
			return fmt.Errorf("accessctl: audit queue size must be positive, got %d", size)
		}
		m.auditQueueLen = size
		return nil
	}
}

// WithRistrettoCache swaps the decision cache for a ristretto backend.
func WithRistrettoCache(cfg RistrettoConfig) Option {
	return func(m *Manager) error {
		m.ristretto = &cfg
		return nil
	}
}

// WithMetrics registers Prometheus collectors for the decision path. A nil
// registerer uses the default Prometheus registerer.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(m *Manager) error {
		m.metrics = newManagerMetrics(registerer)
		return nil
	}
}

// WithUserDirectory wires the collaborator resolving users to roles,
// enabling CanUserAccessResource and GetUserPermissions.
func WithUserDirectory(dir UserDirectory) Option {
	return func(m *Manager) error {
		m.directory = dir
		return nil
	}
}

// WithTemplateManager wires the role template collaborator. The manager
// subscribes to its events so template updates resync derived roles.
func WithTemplateManager(tm TemplateManager) Option {
	return func(m *Manager) error {
		m.templates = tm
		return nil
	}
}

// WithEvaluator registers a named custom condition evaluator at construction.
func WithEvaluator(name string, fn EvaluatorFunc) Option {
	return func(m *Manager) error {
		if name == "" || fn == nil {
			return fmt.Errorf("accessctl: evaluator needs a name and a func")
		}
		m.evaluators[name] = fn
		return nil
	}
}

// WithPatternCacheSize bounds the compiled resource pattern cache.
func WithPatternCacheSize(size int) Option {
	return func(m *Manager) error {
		if size <= 0 {
			return fmt.Errorf("accessctl: pattern cache size must be positive, got %d", size)
		}
		m.patternSize = size
		return nil
	}
}
