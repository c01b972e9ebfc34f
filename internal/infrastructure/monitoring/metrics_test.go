package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPermission(t *testing.T) {
	m := NewMetrics()
	m.RecordPermission("read", true)
	m.RecordPermission("read", false)
	m.RecordPermission("net", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecks.WithLabelValues("read", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecks.WithLabelValues("net", "denied")))
	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.Allowed)
	assert.EqualValues(t, 2, snap.Denied)
}

func TestRecordPromiseAndRuntimes(t *testing.T) {
	m := NewMetrics()
	m.RecordPromise("resolved", time.Millisecond)
	m.RecordPromise("timeout", 50*time.Millisecond)
	m.IncRuntimes()
	m.IncRuntimes()
	m.DecRuntimes()

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.Resolved)
	assert.EqualValues(t, 1, snap.TimedOut)
	assert.EqualValues(t, 1, snap.RuntimesActive)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuntimesActive))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPermission("read", true)
		m.RecordHostCall("host.env.get", "ok")
		m.RecordEval(time.Millisecond)
		m.IncRuntimes()
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordHostCall("host.sys.uid", "ok")
	assert.Equal(t, 1, testutil.CollectAndCount(a.HostCalls))
	assert.Equal(t, 0, testutil.CollectAndCount(b.HostCalls))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
