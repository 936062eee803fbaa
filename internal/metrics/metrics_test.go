package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.PushSends.WithLabelValues("sent").Inc()
	m.PushSends.WithLabelValues("sent").Inc()
	m.PushSends.WithLabelValues("expired").Inc()

	if got := testutil.ToFloat64(m.PushSends.WithLabelValues("sent")); got != 2 {
		t.Errorf("sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PushSends.WithLabelValues("expired")); got != 1 {
		t.Errorf("expired = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.NotificationsEmitted.WithLabelValues("order").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `notifly_notifications_emitted_total{kind="order"} 1`) {
		t.Errorf("metrics output missing emitted counter:\n%s", body)
	}
}

func TestNewIsIndependent(t *testing.T) {
	// Two instances must not collide on registration.
	New()
	New()
}
