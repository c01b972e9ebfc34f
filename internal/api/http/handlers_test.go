package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/guesthost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/guesthost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/guesthost/internal/permissions"
)

type fixture struct {
	router    *gin.Engine
	allowlist *permissions.Allowlist
	audit     *permissions.Audited
	metrics   *monitoring.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	allowlist := permissions.NewAllowlist()
	metrics := monitoring.NewMetrics()
	audit := permissions.NewAudited(allowlist, permissions.WithAuditMetrics(metrics), permissions.WithAuditCapacity(16))
	h := NewHandlers(Deps{
		Allowlist: allowlist,
		Audit:     audit,
		Metrics:   metrics,
		Breaker:   resilience.New("fetch", resilience.Settings{}),
	})

	cfg := DefaultRouterConfig()
	cfg.RateLimit.RequestsPerSecond = 0
	cfg.LogLevel = zap.NewAtomicLevel()
	return &fixture{
		router:    NewRouter(h, cfg),
		allowlist: allowlist,
		audit:     audit,
		metrics:   metrics,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "closed", body["fetch_breaker"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAllowAndDeny(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, s permissions.AllowlistSnapshot) []string
		want  []string
	}{
		{
			name:  "url",
			body:  `{"kind":"url","value":"https://example.com/"}`,
			check: func(t *testing.T, s permissions.AllowlistSnapshot) []string { return s.URLs },
			want:  []string{"https://example.com/"},
		},
		{
			name:  "url is normalized",
			body:  `{"kind":"url","value":"https://Example.COM"}`,
			check: func(t *testing.T, s permissions.AllowlistSnapshot) []string { return s.URLs },
			want:  []string{"https://example.com/"},
		},
		{
			name:  "host is normalized",
			body:  `{"kind":"host","value":"API.Example.com:8443"}`,
			check: func(t *testing.T, s permissions.AllowlistSnapshot) []string { return s.Hosts },
			want:  []string{"api.example.com:8443"},
		},
		{
			name:  "env",
			body:  `{"kind":"env","value":"HOME"}`,
			check: func(t *testing.T, s permissions.AllowlistSnapshot) []string { return s.Envs },
			want:  []string{"HOME"},
		},
		{
			name:  "open for write",
			body:  `{"kind":"open","value":"/tmp/out.txt","write":true}`,
			check: func(t *testing.T, s permissions.AllowlistSnapshot) []string { return s.OpenWrite },
			want:  []string{"/tmp/out.txt"},
		},
		{
			name:  "sys",
			body:  `{"kind":"sys","value":"hostname"}`,
			check: func(t *testing.T, s permissions.AllowlistSnapshot) []string { return s.Sys },
			want:  []string{"hostname"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w := f.do(t, http.MethodPost, "/permissions/allow", tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, tt.check(t, decode[permissions.AllowlistSnapshot](t, w)))
			assert.Equal(t, tt.want, tt.check(t, f.allowlist.Snapshot()))

			w = f.do(t, http.MethodPost, "/permissions/deny", tt.body)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, tt.check(t, f.allowlist.Snapshot()))
		})
	}
}

func TestAllowRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"unknown kind", `{"kind":"socket","value":"x"}`},
		{"missing value", `{"kind":"url"}`},
		{"open without mode", `{"kind":"open","value":"/tmp/x"}`},
		{"url without host", `{"kind":"url","value":"not a url"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/permissions/allow", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSetFlags(t *testing.T) {
	f := newFixture(t)
	f.allowlist.SetReadAll(true)

	w := f.do(t, http.MethodPost, "/permissions/flags", `{"hrtime":true,"exec":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	snap := f.allowlist.Snapshot()
	assert.True(t, snap.HRTime)
	assert.True(t, snap.Exec)
	assert.True(t, snap.ReadAll, "omitted flags are unchanged")
	assert.False(t, snap.WriteAll)
	assert.NoError(t, f.allowlist.CheckExec())
}

func TestAudit(t *testing.T) {
	f := newFixture(t)
	f.allowlist.AllowEnv("USER")
	require.NoError(t, f.audit.CheckEnv("USER"))
	require.Error(t, f.audit.CheckEnv("HOME"))

	t.Run("all", func(t *testing.T) {
		body := decode[struct {
			Entries []permissions.AuditEntry `json:"entries"`
			Count   int                      `json:"count"`
		}](t, f.do(t, http.MethodGet, "/permissions/audit", ""))
		require.Equal(t, 2, body.Count)
		assert.False(t, body.Entries[0].Allowed, "newest first")
		assert.True(t, body.Entries[1].Allowed)
	})

	t.Run("denied only", func(t *testing.T) {
		body := decode[map[string]interface{}](t, f.do(t, http.MethodGet, "/permissions/audit?denied=true&limit=5", ""))
		assert.EqualValues(t, 1, body["count"])
	})

	t.Run("bad limit", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/permissions/audit?limit=-1", "").Code)
	})
}

func TestImmutableBackend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewHandlers(Deps{}), DefaultRouterConfig())

	for _, path := range []string{"/permissions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/permissions/audit", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	require.Error(t, f.audit.CheckEnv("HOME"))
	f.do(t, http.MethodGet, "/health", "")

	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "guesthost_http_requests_total")
	assert.Contains(t, w.Body.String(), `path="/health"`)
}

func TestLogLevelEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/log/level", `{"level":"debug"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/log/level", "")
	assert.Contains(t, w.Body.String(), "debug")
}
