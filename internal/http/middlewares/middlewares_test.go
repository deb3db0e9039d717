package middlewares_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/labshare/internal/auth"
	"github.com/geocoder89/labshare/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRoles struct {
	roleFn func(ctx context.Context, id int64) (string, error)
	calls  int
}

func (f *fakeRoles) RoleOf(ctx context.Context, id int64) (string, error) {
	f.calls++
	return f.roleFn(ctx, id)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	ExpiredAt string `json:"expiredAt"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	return env
}

func newRouter(m *middlewares.AuthMiddleware, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := append([]gin.HandlerFunc{m.RequireToken()}, extra...)
	chain = append(chain, func(c *gin.Context) {
		id, _ := middlewares.UserIDFromContext(c)
		role, _ := middlewares.RoleFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "role": role})
	})
	r.GET("/users/:id", chain...)
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireToken(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens := auth.NewManager("gate-secret", time.Hour, 0).WithClock(c.now)

	live, _, _ := tokens.Issue(42, "a@x.com", "student", time.Hour)

	past := &clock{t: c.t.Add(-2 * time.Hour)}
	expired, _, _ := auth.NewManager("gate-secret", time.Hour, 0).WithClock(past.now).Issue(42, "a@x.com", "student", time.Hour)
	foreign, _, _ := auth.NewManager("other", time.Hour, 0).WithClock(c.now).Issue(42, "a@x.com", "admin", time.Hour)

	m := middlewares.NewAuthMiddleware(tokens, nil, 0, nil, nil)
	r := newRouter(m)

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantCode   string
	}{
		{name: "missing", token: "", wantStatus: http.StatusUnauthorized, wantCode: "unauthenticated"},
		{name: "garbage", token: "abc", wantStatus: http.StatusUnauthorized, wantCode: "invalid_token"},
		{name: "foreign_signature", token: foreign, wantStatus: http.StatusUnauthorized, wantCode: "invalid_token"},
		{name: "expired", token: expired, wantStatus: http.StatusUnauthorized, wantCode: "token_expired"},
		{name: "valid", token: live, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, "/users/42", tt.token)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode == "" {
				return
			}
			env := decode(t, w)
			if env.Success || env.Code != tt.wantCode {
				t.Fatalf("unexpected envelope %+v", env)
			}
			if tt.wantCode == "token_expired" && env.ExpiredAt != "2026-03-01T11:00:00Z" {
				t.Fatalf("expiredAt = %q", env.ExpiredAt)
			}
			if tt.wantCode != "token_expired" && env.ExpiredAt != "" {
				t.Fatalf("only expired tokens carry expiredAt")
			}
		})
	}
}

func TestRequireToken_StaleRoleIsReResolved(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens := auth.NewManager("gate-secret", time.Hour, 0).WithClock(c.now)
	tok, _, _ := tokens.Issue(42, "a@x.com", "student", time.Hour)

	roles := &fakeRoles{roleFn: func(context.Context, int64) (string, error) { return "admin", nil }}
	m := middlewares.NewAuthMiddleware(tokens, roles, 5*time.Minute, nil, nil).WithClock(c.now)
	r := newRouter(m, m.RequireRole("admin"))

	// fresh token: the embedded role is trusted
	if w := do(r, "/users/42", tok); w.Code != http.StatusForbidden {
		t.Fatalf("fresh token status = %d, want 403", w.Code)
	}
	if roles.calls != 0 {
		t.Fatalf("fresh token must not hit the resolver")
	}

	c.t = c.t.Add(10 * time.Minute)
	if w := do(r, "/users/42", tok); w.Code != http.StatusOK {
		t.Fatalf("stale token status = %d, want 200 body=%s", w.Code, w.Body.String())
	}
	if roles.calls != 1 {
		t.Fatalf("resolver calls = %d, want 1", roles.calls)
	}

	roles.roleFn = func(context.Context, int64) (string, error) { return "", errors.New("db down") }
	if w := do(r, "/users/42", tok); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("resolver failure status = %d, want 503", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	tokens := auth.NewManager("gate-secret", time.Hour, 0)
	m := middlewares.NewAuthMiddleware(tokens, nil, 0, nil, nil)
	r := newRouter(m, m.RequireRole("admin", "lab_manager"))

	manager, _, _ := tokens.Issue(5, "m@x.com", "lab_manager", 0)
	student, _, _ := tokens.Issue(6, "s@x.com", "student", 0)

	if w := do(r, "/users/5", manager); w.Code != http.StatusOK {
		t.Fatalf("lab_manager status = %d", w.Code)
	}
	w := do(r, "/users/6", student)
	if w.Code != http.StatusForbidden || decode(t, w).Code != "forbidden" {
		t.Fatalf("student status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestRequireSelfOrElevated(t *testing.T) {
	tokens := auth.NewManager("gate-secret", time.Hour, 0)
	m := middlewares.NewAuthMiddleware(tokens, nil, 0, nil, nil)
	r := newRouter(m, m.RequireSelfOrElevated("id", "admin"))

	self, _, _ := tokens.Issue(42, "a@x.com", "student", 0)
	admin, _, _ := tokens.Issue(1, "root@x.com", "admin", 0)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "self", path: "/users/42", token: self, want: http.StatusOK},
		{name: "other_user", path: "/users/43", token: self, want: http.StatusForbidden},
		{name: "non_numeric", path: "/users/abc", token: self, want: http.StatusForbidden},
		{name: "elevated_other_user", path: "/users/43", token: admin, want: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if w := do(r, tt.path, tt.token); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRateLimiter_MemoryStore(t *testing.T) {
	rl := middlewares.NewRateLimiter(middlewares.NewMemoryStore(), 2, time.Minute)

	r := gin.New()
	r.POST("/auth/login", rl.RateLimiterMiddleware(middlewares.KeyByIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		r.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("429 must carry Retry-After")
	}
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequireJSON())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestRequestID_PropagatesHeader(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Request-Id") != "abc-123" {
		t.Fatalf("request id not echoed")
	}
}
