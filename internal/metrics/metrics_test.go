package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.InboundEvent("sendMessage")
	m.DeliveryFailed("newMessage")
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.NotificationPersisted("follow")
	m.NotificationPersisted("follow")
	m.AuthFailed("invalid_token")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("follow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authFailures.WithLabelValues("invalid_token")))
}

func TestHandlerExposesHiveMetrics(t *testing.T) {
	m := New()
	m.MessagePersisted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "hive_messages_total 1"))
}
