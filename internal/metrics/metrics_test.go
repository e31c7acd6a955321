package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetSessionsActive(3)
	m.IncSessionsCreated("normal")
	m.IncSpawnFailures()
	m.IncSessionsRemoved(PathKill)
	m.AddInputBytes(4)
	m.AddOutputBytes(4)
	m.SetSubscribers(1)
	m.IncEventsDelivered("data")
	m.IncEventsDropped("data", DropNoSubscriber)
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetSessionsActive(2)
	m.IncSessionsCreated("bypass")
	m.IncSessionsRemoved(PathExit)
	m.IncSessionsRemoved(PathExit)
	m.IncEventsDropped("exit", DropAfterExit)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated.WithLabelValues("bypass")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsRemoved.WithLabelValues(PathExit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("exit", DropAfterExit)))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/api/sessions/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/api/sessions/session-1", nil)
	require.NoError(t, err)
	router.ServeHTTP(w, req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/sessions/:id", "204")))
}
