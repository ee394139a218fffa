package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectMetric returns the first series of c whose labels include labels.
func collectMetric(c prometheus.Collector, labels map[string]string) *dto.Metric {
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}
		got := make(map[string]string, len(d.GetLabel()))
		for _, lp := range d.GetLabel() {
			got[lp.GetName()] = lp.GetValue()
		}
		match := true
		for k, v := range labels {
			if got[k] != v {
				match = false
				break
			}
		}
		if match {
			return d
		}
	}
	return nil
}

func TestPrometheusMetrics_UsesRoutePattern(t *testing.T) {
	handler := serveWithChi(PrometheusMetrics("route-svc"), "/api/v1/users/{id}", okHandler)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	m := collectMetric(httpRequestsTotal, map[string]string{
		"service": "route-svc", "method": "GET", "path": "/api/v1/users/{id}", "status": "200",
	})
	require.NotNil(t, m)
	assert.Equal(t, float64(3), m.GetCounter().GetValue())

	h := collectMetric(httpRequestDuration, map[string]string{"service": "route-svc"})
	require.NotNil(t, h)
	assert.Equal(t, uint64(3), h.GetHistogram().GetSampleCount())
}

func TestPrometheusMetrics_StatusCodes(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusGatewayTimeout} {
		svc := "status-" + strconv.Itoa(code)
		handler := serveWithChi(PrometheusMetrics(svc), "/test", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		})

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		m := collectMetric(httpRequestsTotal, map[string]string{"service": svc, "status": strconv.Itoa(code)})
		assert.NotNil(t, m, svc)
	}
}

func TestPrometheusMetrics_ImplicitOK(t *testing.T) {
	handler := serveWithChi(PrometheusMetrics("implicit-svc"), "/test", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.NotNil(t, collectMetric(httpRequestsTotal, map[string]string{"service": "implicit-svc", "status": "200"}))
}

func TestPrometheusMetrics_InFlight(t *testing.T) {
	seen := float64(-1)
	handler := serveWithChi(PrometheusMetrics("inflight-svc"), "/test", func(w http.ResponseWriter, _ *http.Request) {
		if m := collectMetric(httpRequestsInFlight, map[string]string{"service": "inflight-svc"}); m != nil {
			seen = m.GetGauge().GetValue()
		}
		w.WriteHeader(http.StatusOK)
	})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, float64(1), seen)
	m := collectMetric(httpRequestsInFlight, map[string]string{"service": "inflight-svc"})
	require.NotNil(t, m)
	assert.Zero(t, m.GetGauge().GetValue())
}

type flushRecorder struct {
	http.ResponseWriter
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

type hijackRecorder struct {
	http.ResponseWriter
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

// bareWriter implements neither http.Flusher nor http.Hijacker.
type bareWriter struct{ header http.Header }

func (b *bareWriter) Header() http.Header {
	if b.header == nil {
		b.header = make(http.Header)
	}
	return b.header
}
func (b *bareWriter) Write(p []byte) (int, error) { return len(p), nil }
func (b *bareWriter) WriteHeader(int)             {}

func TestStatusRecorder(t *testing.T) {
	t.Run("first status wins", func(t *testing.T) {
		rec := newStatusRecorder(httptest.NewRecorder())
		rec.WriteHeader(http.StatusCreated)
		rec.WriteHeader(http.StatusInternalServerError)
		_, _ = rec.Write([]byte("abc"))

		assert.Equal(t, http.StatusCreated, rec.status)
		assert.Equal(t, 3, rec.bytes)
	})

	t.Run("reuses an existing recorder", func(t *testing.T) {
		inner := newStatusRecorder(httptest.NewRecorder())
		assert.Same(t, inner, newStatusRecorder(inner))
	})

	t.Run("flush delegates", func(t *testing.T) {
		f := &flushRecorder{ResponseWriter: httptest.NewRecorder()}
		newStatusRecorder(f).Flush()
		assert.True(t, f.flushed)

		newStatusRecorder(&bareWriter{}).Flush()
	})

	t.Run("hijack delegates", func(t *testing.T) {
		h := &hijackRecorder{ResponseWriter: httptest.NewRecorder()}
		_, _, err := newStatusRecorder(h).Hijack()
		require.NoError(t, err)
		assert.True(t, h.hijacked)

		_, _, err = newStatusRecorder(&bareWriter{}).Hijack()
		assert.ErrorIs(t, err, http.ErrNotSupported)
	})
}
