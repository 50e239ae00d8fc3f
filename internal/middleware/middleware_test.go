package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/middleware"
	"project-tracker/internal/platform/logger"
	"project-tracker/internal/ports/auth"
)

type tokenVerifier map[string]string

func (v tokenVerifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	uid, ok := v[token]
	if !ok {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return auth.Claims{UserID: uid}, nil
}

func whoami(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	_, _ = w.Write([]byte(uid))
}

func TestAuthContext_DevHeader(t *testing.T) {
	h := middleware.AuthContext(nil)(http.HandlerFunc(whoami))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.HeaderDebugUserID, " alice ")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "alice", rr.Body.String())
}

func TestAuthContext_VerifierIgnoresDebugHeader(t *testing.T) {
	h := middleware.AuthContext(tokenVerifier{"tok": "bob"})(middleware.RequireUser(http.HandlerFunc(whoami)))

	tests := []struct {
		name   string
		header map[string]string
		status int
		body   string
	}{
		{"valid bearer", map[string]string{"Authorization": "Bearer tok"}, http.StatusOK, "bob"},
		{"debug header only", map[string]string{middleware.HeaderDebugUserID: "alice"}, http.StatusUnauthorized, ""},
		{"bad token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, ""},
		{"wrong scheme", map[string]string{"Authorization": "Basic tok"}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rr.Body.String())
			}
		})
	}
}

type fakeResolver struct {
	actors map[string]authz.Actor // tenant|user
}

func (f fakeResolver) ResolveActor(ctx context.Context, tenantID, userID, viewAs string) (authz.Actor, error) {
	a, ok := f.actors[tenantID+"|"+userID]
	if !ok {
		return authz.Actor{}, authz.ErrNotMember
	}
	if viewAs == "" {
		return a, nil
	}
	role, err := authz.ParseRole(viewAs)
	if err != nil {
		return authz.Actor{}, err
	}
	if a.Role != authz.RoleAdmin {
		return authz.Actor{}, authz.ErrImpersonation
	}
	a.EffectiveRole = role
	return a, nil
}

type brokenResolver struct{}

func (brokenResolver) ResolveActor(ctx context.Context, tenantID, userID, viewAs string) (authz.Actor, error) {
	return authz.Actor{}, errors.New("db down")
}

func tenantRouter(resolver middleware.ActorResolver, log logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.AuthContext(nil))
	r.Route("/tenants/{tenantID}", func(tr chi.Router) {
		tr.Use(middleware.TenantActor(resolver, log))
		tr.Get("/", func(w http.ResponseWriter, r *http.Request) {
			a, ok := middleware.ActorFrom(r.Context())
			if !ok {
				http.Error(w, "no actor", http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(string(a.Role) + "/" + string(a.Effective())))
		})
	})
	return r
}

func TestTenantActor(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Level: logger.Debug, Format: logger.FormatJSON, Output: &buf})
	resolver := fakeResolver{actors: map[string]authz.Actor{
		"t1|root":  {ID: "root", TenantID: "t1", Role: authz.RoleAdmin},
		"t1|alice": {ID: "alice", TenantID: "t1", Role: authz.RoleContributor},
	}}
	h := tenantRouter(resolver, log)

	tests := []struct {
		name   string
		path   string
		user   string
		viewAs string
		status int
		body   string
	}{
		{"member", "/tenants/t1/", "alice", "", http.StatusOK, "contributor/contributor"},
		{"admin views as viewer", "/tenants/t1/", "root", "viewer", http.StatusOK, "admin/viewer"},
		{"non admin views as", "/tenants/t1/", "alice", "admin", http.StatusForbidden, ""},
		{"unknown role", "/tenants/t1/", "root", "god", http.StatusBadRequest, ""},
		{"not a member", "/tenants/t2/", "alice", "", http.StatusNotFound, ""},
		{"anonymous", "/tenants/t1/", "", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.user != "" {
				req.Header.Set(middleware.HeaderDebugUserID, tt.user)
			}
			if tt.viewAs != "" {
				req.Header.Set(middleware.HeaderViewAs, tt.viewAs)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rr.Body.String())
			}
		})
	}

	assert.Contains(t, buf.String(), `"security_event":"impersonation_rejected"`)
}

func TestTenantActor_ResolverFailure(t *testing.T) {
	h := tenantRouter(brokenResolver{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/tenants/t1/", nil)
	req.Header.Set(middleware.HeaderDebugUserID, "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestSecurity_HeadersAndRateLimit(t *testing.T) {
	r := chi.NewRouter()
	r.Use(middleware.AuthContext(nil))
	r.Use(middleware.Security(middleware.SecurityOptions{RequestsPerMinute: 2}, logger.Nop())...)
	r.Get("/", whoami)

	do := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.HeaderDebugUserID, user)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	first := do("alice")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "DENY", first.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", first.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, first.Header().Get("Content-Security-Policy"))

	assert.Equal(t, http.StatusOK, do("alice").Code)
	assert.Equal(t, http.StatusTooManyRequests, do("alice").Code)
	// otro usuario tiene su propio cupo
	assert.Equal(t, http.StatusOK, do("bob").Code)
}

func TestRecover_LogsAndReturns500(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Level: logger.Info, Format: logger.FormatJSON, Output: &buf})
	h := middleware.RequestLogger(log)(middleware.Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), `"status":500`)
}
