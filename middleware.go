package accessctl

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Principal identifies the authenticated caller for the HTTP gate. Upstream
// authentication middleware is expected to resolve it and place it on the
// request context.
type Principal struct {
	UserID      string
	Role        string
	Permissions []string
}

type principalKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal placed by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// gateConfig holds RequireAccess knobs.
type gateConfig struct {
	principalFn    func(*http.Request) (*Principal, bool)
	resourceIDFn   func(*http.Request) string
	genericDenials bool
}

// GateOption customizes RequireAccess.
type GateOption func(*gateConfig)

// WithPrincipalFunc overrides how the gate resolves the caller. The default
// reads PrincipalFromContext.
func WithPrincipalFunc(fn func(*http.Request) (*Principal, bool)) GateOption {
	return func(g *gateConfig) { g.principalFn = fn }
}

// WithResourceIDFunc overrides how the gate extracts the resource id. The
// default reads the chi "id" URL parameter.
func WithResourceIDFunc(fn func(*http.Request) string) GateOption {
	return func(g *gateConfig) { g.resourceIDFn = fn }
}

// WithGenericDenials suppresses decision reasons in 403 bodies, for
// deployments that treat policy names as sensitive.
func WithGenericDenials() GateOption {
	return func(g *gateConfig) { g.genericDenials = true }
}

// RequireAccess gates a route on an access check for the given resource and
// action. Unauthenticated requests get 401, denied requests 403 with the
// decision reason.
func (m *Manager) RequireAccess(resource, action string, opts ...GateOption) func(http.Handler) http.Handler {
	cfg := gateConfig{
		principalFn: func(r *http.Request) (*Principal, bool) {
			return PrincipalFromContext(r.Context())
		},
		resourceIDFn: func(r *http.Request) string {
			return chi.URLParam(r, "id")
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := cfg.principalFn(r)
			if !ok {
				writeGateError(w, http.StatusUnauthorized, "Authentication required", "")
				return
			}
			dec := m.CheckAccess(r.Context(), &AccessContext{
				UserID:          principal.UserID,
				UserRole:        principal.Role,
				UserPermissions: principal.Permissions,
				Resource:        resource,
				Action:          action,
				ResourceID:      cfg.resourceIDFn(r),
				RequestTime:     time.Now(),
				IPAddress:       clientIP(r),
				Metadata: map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				},
			})
			if !dec.Granted {
				reason := dec.Reason
				if cfg.genericDenials {
					reason = ""
				}
				writeGateError(w, http.StatusForbidden, "Access denied", reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeGateError(w http.ResponseWriter, status int, message, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := struct {
		Error  string `json:"error"`
		Reason string `json:"reason,omitempty"`
	}{Error: message, Reason: reason}
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP resolves the caller address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// first hop is the original client
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
