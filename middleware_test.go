package accessctl_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	accessctl "github.com/cargoflow/accessctl"
	"github.com/cargoflow/accessctl/logger"
)

type gateBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func asPrincipal(req *http.Request, p *accessctl.Principal) *http.Request {
	return req.WithContext(accessctl.WithPrincipal(req.Context(), p))
}

func TestRequireAccessUnauthenticated(t *testing.T) {
	m := newManager(t)
	h := m.RequireAccess("docs", "read")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body gateBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "Authentication required" {
		t.Fatalf("unexpected error message: %q", body.Error)
	}
}

func TestRequireAccessGrantAndDeny(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	if err := m.CreateRole(ctx, &accessctl.Role{ID: "viewer", Name: "Viewer", Permissions: []accessctl.Permission{
		{ID: "viewer-docs", Resource: "docs", Actions: []string{"read"}},
	}}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	h := m.RequireAccess("docs", "read")(okHandler())

	rec := httptest.NewRecorder()
	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/docs", nil), &accessctl.Principal{UserID: "alice", Role: "viewer"})
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected pass-through, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = asPrincipal(httptest.NewRequest(http.MethodGet, "/docs", nil), &accessctl.Principal{UserID: "eve", Role: "ghost"})
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body gateBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "Access denied" || body.Reason == "" {
		t.Fatalf("expected reasoned denial, got %+v", body)
	}
}

func TestRequireAccessGenericDenials(t *testing.T) {
	m := newManager(t)
	h := m.RequireAccess("docs", "read", accessctl.WithGenericDenials())(okHandler())

	rec := httptest.NewRecorder()
	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/docs", nil), &accessctl.Principal{UserID: "eve", Role: "ghost"})
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body gateBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Reason != "" {
		t.Fatalf("expected suppressed reason, got %q", body.Reason)
	}
}

func TestRequireAccessRouteResourceID(t *testing.T) {
	ctx := context.Background()
	audit := accessctl.NewMemoryAuditStore()
	m, err := accessctl.NewManager(
		accessctl.NewMemoryResourceStore(),
		accessctl.NewMemoryRoleStore(),
		accessctl.NewMemoryPolicyStore(),
		audit,
		accessctl.WithLogger(logger.NewNullLogger()),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.CreateRole(ctx, &accessctl.Role{ID: "viewer", Name: "Viewer", Permissions: []accessctl.Permission{
		{ID: "viewer-docs", Resource: "docs", Actions: []string{"read"}},
	}}); err != nil {
		t.Fatalf("create role: %v", err)
	}

	r := chi.NewRouter()
	r.With(m.RequireAccess("docs", "read")).Get("/docs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/docs/d42", nil), &accessctl.Principal{UserID: "alice", Role: "viewer"})
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	m.Close() // drains the audit queue
	recs, err := audit.GetAccessLog(ctx, accessctl.AuditFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("get access log: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recs))
	}
	if recs[0].ResourceID != "d42" {
		t.Fatalf("expected route id in audit record, got %q", recs[0].ResourceID)
	}
}

func TestRequireAccessForwardedIPFeedsLocationPolicies(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	if err := m.CreateRole(ctx, &accessctl.Role{ID: "viewer", Name: "Viewer", Permissions: []accessctl.Permission{
		{ID: "viewer-docs", Resource: "docs", Actions: []string{"read"}},
	}}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	block := &accessctl.AccessPolicy{ID: "block-ip", Name: "block-ip", Effect: accessctl.EffectDeny,
		Principals: []string{"*"}, Resources: []string{"docs"}, Actions: []string{"read"},
		Conditions: []accessctl.AccessCondition{accessctl.LocationCondition(accessctl.OpEquals, "198.51.100.7")},
		Enabled:    true}
	if err := m.CreatePolicy(ctx, block); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	h := m.RequireAccess("docs", "read")(okHandler())

	// first hop of the forwarded chain is the client
	rec := httptest.NewRecorder()
	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/docs", nil), &accessctl.Principal{UserID: "alice", Role: "viewer"})
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected blocked ip to get 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = asPrincipal(httptest.NewRequest(http.MethodGet, "/docs", nil), &accessctl.Principal{UserID: "bob", Role: "viewer"})
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other ip to pass, got %d", rec.Code)
	}
}

func TestRequireAccessCustomPrincipalFunc(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	if err := m.CreateRole(ctx, &accessctl.Role{ID: "viewer", Name: "Viewer", Permissions: []accessctl.Permission{
		{ID: "viewer-docs", Resource: "docs", Actions: []string{"read"}},
	}}); err != nil {
		t.Fatalf("create role: %v", err)
	}

	fromHeader := accessctl.WithPrincipalFunc(func(r *http.Request) (*accessctl.Principal, bool) {
		user := r.Header.Get("X-User")
		if user == "" {
			return nil, false
		}
		return &accessctl.Principal{UserID: user, Role: r.Header.Get("X-Role")}, true
	})
	h := m.RequireAccess("docs", "read", fromHeader)(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	req.Header.Set("X-User", "alice")
	req.Header.Set("X-Role", "viewer")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected header principal to pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected missing header to get 401, got %d", rec.Code)
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	if _, ok := accessctl.PrincipalFromContext(context.Background()); ok {
		t.Fatalf("expected empty context to carry no principal")
	}
	ctx := accessctl.WithPrincipal(context.Background(), &accessctl.Principal{UserID: "alice", Role: "viewer"})
	p, ok := accessctl.PrincipalFromContext(ctx)
	if !ok || p.UserID != "alice" || p.Role != "viewer" {
		t.Fatalf("unexpected principal: %+v ok=%v", p, ok)
	}
}
