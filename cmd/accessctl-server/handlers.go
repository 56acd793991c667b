package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cargoflow/accessctl"
	"github.com/cargoflow/accessctl/logger"
)

type server struct {
	mgr      *accessctl.Manager
	log      logger.Logger
	validate *validator.Validate
	cfg      *serverConfig
}

func newServer(mgr *accessctl.Manager, log logger.Logger, cfg *serverConfig) *server {
	return &server{mgr: mgr, log: log, validate: validator.New(), cfg: cfg}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/check", s.handleCheck)
	r.Post("/api/v1/check/batch", s.handleCheckBatch)

	gateOpts := []accessctl.GateOption{}
	if s.cfg.GenericDenials {
		gateOpts = append(gateOpts, accessctl.WithGenericDenials())
	}

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(principalFromHeaders)
		r.Use(httprate.Limit(
			s.cfg.AdminRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Use(s.mgr.RequireAccess("security", "manage", gateOpts...))

		r.Get("/roles", s.handleListRoles)
		r.Post("/roles", s.handleCreateRole)
		r.Get("/roles/{id}", s.handleGetRole)
		r.Put("/roles/{id}", s.handleUpdateRole)
		r.Delete("/roles/{id}", s.handleDeleteRole)
		r.Post("/roles/{id}/permissions", s.handleGrantPermission)
		r.Delete("/roles/{id}/permissions/{permID}", s.handleRevokePermission)

		r.Get("/policies", s.handleListPolicies)
		r.Post("/policies", s.handleCreatePolicy)
		r.Get("/policies/{id}", s.handleGetPolicy)
		r.Put("/policies/{id}", s.handleUpdatePolicy)
		r.Delete("/policies/{id}", s.handleDeletePolicy)
		r.Post("/policies/{id}/enable", s.handleEnablePolicy)
		r.Post("/policies/{id}/disable", s.handleDisablePolicy)

		r.Get("/resources", s.handleListResources)
		r.Post("/resources", s.handleRegisterResource)
		r.Get("/resources/{id}", s.handleGetResource)

		r.Get("/audit", s.handleAuditLog)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// principalFromHeaders trusts X-User-ID and X-User-Role. A real deployment
// terminates authentication upstream and injects these after verifying a
// token; requests without a user simply reach the gate anonymous.
func principalFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		p := &accessctl.Principal{UserID: userID, Role: r.Header.Get("X-User-Role")}
		next.ServeHTTP(w, r.WithContext(accessctl.WithPrincipal(r.Context(), p)))
	})
}

type checkRequest struct {
	UserID        string         `json:"user_id" validate:"required"`
	UserRole      string         `json:"user_role"`
	Resource      string         `json:"resource" validate:"required"`
	Action        string         `json:"action" validate:"required"`
	ResourceID    string         `json:"resource_id"`
	ResourceOwner string         `json:"resource_owner"`
	IPAddress     string         `json:"ip_address"`
	Metadata      map[string]any `json:"metadata"`
}

func (cr *checkRequest) toContext() *accessctl.AccessContext {
	return &accessctl.AccessContext{
		UserID:        cr.UserID,
		UserRole:      cr.UserRole,
		Resource:      cr.Resource,
		Action:        cr.Action,
		ResourceID:    cr.ResourceID,
		ResourceOwner: cr.ResourceOwner,
		RequestTime:   time.Now(),
		IPAddress:     cr.IPAddress,
		Metadata:      cr.Metadata,
	}
}

func (s *server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dec := s.mgr.CheckAccess(r.Context(), req.toContext())
	s.writeJSON(w, http.StatusOK, dec)
}

type batchCheckRequest struct {
	Checks []checkRequest `json:"checks" validate:"required,min=1,max=256,dive"`
}

func (s *server) handleCheckBatch(w http.ResponseWriter, r *http.Request) {
	var req batchCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	batch := make([]*accessctl.AccessContext, len(req.Checks))
	for i := range req.Checks {
		batch[i] = req.Checks[i].toContext()
	}
	decisions, err := s.mgr.CheckAccessBatch(r.Context(), batch)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "batch check canceled")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

func (s *server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.mgr.GetRoles(r.Context())
	if err != nil {
		s.serverError(w, "list roles", err)
		return
	}
	s.writeJSON(w, http.StatusOK, roles)
}

func (s *server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var role accessctl.Role
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mgr.CreateRole(r.Context(), &role); err != nil {
		s.mutationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &role)
}

func (s *server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.mgr.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mutationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, role)
}

type roleUpdateRequest struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Permissions *[]accessctl.Permission `json:"permissions"`
	Inherits    *[]string               `json:"inherits"`
	Priority    *int                    `json:"priority"`
	Metadata    map[string]any          `json:"metadata"`
}

func (s *server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := s.mgr.UpdateRole(r.Context(), chi.URLParam(r, "id"), accessctl.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		Inherits:    req.Inherits,
		Priority:    req.Priority,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.mutationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, role)
}

func (s *server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var perm accessctl.Permission
	if err := json.NewDecoder(r.Body).Decode(&perm); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mgr.GrantPermission(r.Context(), chi.URLParam(r, "id"), perm); err != nil {
		s.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	err := s.mgr.RevokePermission(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "permID"))
	if err != nil {
		s.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.mgr.GetPolicies(r.Context())
	if err != nil {
		s.serverError(w, "list policies", err)
		return
	}
	s.writeJSON(w, http.StatusOK, policies)
}

func (s *server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var policy accessctl.AccessPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mgr.CreatePolicy(r.Context(), &policy); err != nil {
		s.mutationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &policy)
}

func (s *server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.mgr.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mutationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, policy)
}

type policyUpdateRequest struct {
	Name        *string                      `json:"name"`
	Description *string                      `json:"description"`
	Effect      *accessctl.PolicyEffect      `json:"effect"`
	Principals  *[]string                    `json:"principals"`
	Resources   *[]string                    `json:"resources"`
	Actions     *[]string                    `json:"actions"`
	Conditions  *[]accessctl.AccessCondition `json:"conditions"`
	Priority    *int                         `json:"priority"`
	Enabled     *bool                        `json:"enabled"`
}

func (s *server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	policy, err := s.mgr.UpdatePolicy(r.Context(), chi.URLParam(r, "id"), accessctl.PolicyUpdate{
		Name:        req.Name,
		Description: req.Description,
		Effect:      req.Effect,
		Principals:  req.Principals,
		Resources:   req.Resources,
		Actions:     req.Actions,
		Conditions:  req.Conditions,
		Priority:    req.Priority,
		Enabled:     req.Enabled,
	})
	if err != nil {
		s.mutationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, policy)
}

func (s *server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.DeletePolicy(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleEnablePolicy(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.EnablePolicy(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDisablePolicy(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.DisablePolicy(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListResources(w http.ResponseWriter, r *http.Request) {
	defs, err := s.mgr.GetResources(r.Context())
	if err != nil {
		s.serverError(w, "list resources", err)
		return
	}
	s.writeJSON(w, http.StatusOK, defs)
}

func (s *server) handleRegisterResource(w http.ResponseWriter, r *http.Request) {
	var def accessctl.ResourceDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mgr.RegisterResource(r.Context(), &def); err != nil {
		s.mutationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &def)
}

func (s *server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	def, err := s.mgr.GetResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mutationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

func (s *server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := accessctl.AuditFilter{
		UserID:   q.Get("user"),
		Resource: q.Get("resource"),
		Decision: q.Get("decision"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		filter.Until = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	records, err := s.mgr.GetAccessLog(r.Context(), filter)
	if err != nil {
		s.serverError(w, "audit log", err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.mgr.GetAccessStatistics(r.Context())
	if err != nil {
		s.serverError(w, "stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err.Error())
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *server) serverError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op, "error", err.Error())
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

// mutationError maps administrative errors onto HTTP status codes.
func (s *server) mutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, accessctl.ErrRoleNotFound),
		errors.Is(err, accessctl.ErrPolicyNotFound),
		errors.Is(err, accessctl.ErrResourceNotFound),
		errors.Is(err, accessctl.ErrTemplateNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, accessctl.ErrDuplicateRole), errors.Is(err, accessctl.ErrDuplicatePolicy):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, accessctl.ErrSystemRoleImmutable):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, accessctl.ErrInheritanceCycle):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}
