package http_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/labshare/internal/auth"
	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/domain/user"
	apphttp "github.com/geocoder89/labshare/internal/http"
	"github.com/geocoder89/labshare/internal/http/handlers"
	"github.com/geocoder89/labshare/internal/http/middlewares"
	"github.com/geocoder89/labshare/internal/observability"
	"github.com/geocoder89/labshare/internal/provisioning"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type stubUsers struct{}

func (stubUsers) GetByEmail(context.Context, string) (user.User, error) {
	return user.User{}, user.ErrNotFound
}
func (stubUsers) GetByID(_ context.Context, id int64) (user.User, error) {
	return user.User{ID: id, Email: "u@x.com"}, nil
}
func (stubUsers) Create(_ context.Context, nu user.NewUser) (user.User, error) {
	return user.User{ID: 1, Email: nu.Email}, nil
}
func (stubUsers) UpdateProfile(_ context.Context, id int64, _ user.UpdateProfileRequest) (user.User, error) {
	return user.User{ID: id}, nil
}
func (stubUsers) Delete(context.Context, int64) error { return nil }

type stubRoles map[int64]string

func (s stubRoles) RoleOf(_ context.Context, id int64) (string, error) {
	if r, ok := s[id]; ok {
		return r, nil
	}
	return "student", nil
}

type stubOrgs struct{}

func (stubOrgs) ListInstitutions(context.Context, int, int) ([]organization.Institution, error) {
	return []organization.Institution{}, nil
}
func (stubOrgs) GetInstitution(_ context.Context, id int64) (organization.Institution, error) {
	return organization.Institution{ID: id}, nil
}
func (stubOrgs) ListLaboratories(context.Context, int64) ([]organization.Laboratory, error) {
	return []organization.Laboratory{}, nil
}
func (stubOrgs) GetLaboratory(_ context.Context, id int64) (organization.Laboratory, error) {
	return organization.Laboratory{ID: id}, nil
}
func (stubOrgs) ListSuppliers(context.Context, int, int) ([]organization.Supplier, error) {
	return []organization.Supplier{}, nil
}
func (stubOrgs) GetSupplier(_ context.Context, id int64) (organization.Supplier, error) {
	return organization.Supplier{ID: id}, nil
}
func (stubOrgs) Delete(context.Context, organization.Kind, int64) error { return nil }

type stubEngine struct{ calls int }

func (s *stubEngine) Provision(_ context.Context, req provisioning.Request) (provisioning.Result, error) {
	s.calls++
	kind, _ := req.Org.Kind()
	return provisioning.Result{Kind: kind, OrganizationID: 1}, nil
}

func newTestRouter(t *testing.T, engine *stubEngine) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	tokens := auth.NewManager("router-test-secret", time.Hour, 0)
	roles := stubRoles{1: "admin"}
	errs := handlers.ErrorMapper{Log: log}

	r := apphttp.NewRouter(apphttp.Deps{
		Log:           log,
		Debug:         true,
		Gatherer:      reg,
		Prom:          prom,
		Auth:          handlers.NewAuthHandler(stubUsers{}, roles, tokens, nopHasher{}, errs),
		Provisioning:  handlers.NewProvisioningHandler(engine, errs),
		Organizations: handlers.NewOrganizationsHandler(stubOrgs{}, errs),
		Users:         handlers.NewUsersHandler(stubUsers{}, nil, errs),
		Gate:          middlewares.NewAuthMiddleware(tokens, roles, time.Minute, prom, log),
		AuthLimiter:   middlewares.NewRateLimiter(middlewares.NewMemoryStore(), 100, time.Minute),
		MaxBodyBytes:  1 << 20,
	})
	return r, tokens
}

type nopHasher struct{}

func (nopHasher) Hash(s string) (string, error) { return s, nil }
func (nopHasher) Verify(s, d string) bool      { return s == d }

func serve(r http.Handler, method, path, token, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType == "" && body != "" {
		contentType = "application/json"
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Gates(t *testing.T) {
	engine := &stubEngine{}
	r, tokens := newTestRouter(t, engine)

	adminToken, _, _ := tokens.Issue(1, "root@x.com", "admin", 0)
	studentToken, _, _ := tokens.Issue(42, "s@x.com", "student", 0)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		// contentType defaults to application/json when body is set
		contentType string
		want        int
	}{
		{name: "health_open", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "metrics_open", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "list_requires_token", method: http.MethodGet, path: "/institutions", want: http.StatusUnauthorized},
		{name: "list_with_token", method: http.MethodGet, path: "/institutions", token: studentToken, want: http.StatusOK},
		{name: "provision_forbidden_for_student", method: http.MethodPost, path: "/institutions", token: studentToken, body: `{"name":"MIT"}`, want: http.StatusForbidden},
		{name: "provision_admin", method: http.MethodPost, path: "/institutions", token: adminToken, body: `{"name":"MIT"}`, want: http.StatusCreated},
		{name: "self_profile", method: http.MethodGet, path: "/users/42", token: studentToken, want: http.StatusOK},
		{name: "other_profile", method: http.MethodGet, path: "/users/43", token: studentToken, want: http.StatusForbidden},
		{name: "admin_reads_any_profile", method: http.MethodGet, path: "/users/43", token: adminToken, want: http.StatusOK},
		{name: "delete_user_admin_only", method: http.MethodDelete, path: "/users/42", token: studentToken, want: http.StatusForbidden},
		{name: "verify", method: http.MethodGet, path: "/auth/verify", token: studentToken, want: http.StatusOK},
		{name: "non_json_body", method: http.MethodPost, path: "/auth/login", body: "x", contentType: "text/plain", want: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.method, tt.path, tt.token, tt.contentType, tt.body)
			if w.Code != tt.want {
				t.Fatalf("got %d, want %d body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	if engine.calls != 1 {
		t.Fatalf("engine calls = %d, want 1 (only the admin request)", engine.calls)
	}
}

func TestRouter_RequestIDEchoed(t *testing.T) {
	r, _ := newTestRouter(t, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}
