package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetOnlineSessions(3)
	c.RecordDispatch("new-message", true)
	c.RecordDispatch("new-message", false)
	c.RecordDispatch("new-message", false)
	c.RecordReceipt("seen")
	c.RecordMessageSent(true)
	c.RecordRelay("publish", errors.New("broker down"))

	assert.Equal(t, 3.0, testutil.ToFloat64(c.onlineSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatched.WithLabelValues("new-message", "delivered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatched.WithLabelValues("new-message", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.receipts.WithLabelValues("seen")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesSent.WithLabelValues("group")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relay.WithLabelValues("publish", "error")))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordReceipt("delivered")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "chat_receipt_transitions_total")
}
