package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCounters(t *testing.T) {
	c := NewClient()
	c.EventDispatched("userMoved")
	c.EventDispatched("userMoved")
	c.WaitFinished("userInitResponse", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatched.WithLabelValues("userMoved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.waits.WithLabelValues("userInitResponse", "timeout")))
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	assert.NotPanics(t, func() {
		c.EventDispatched("x")
		c.EventBuffered()
		c.MessageDropped("foreign")
		c.PanningDegraded()
	})
}

func TestClientsDoNotShareRegistry(t *testing.T) {
	a, b := NewClient(), NewClient()
	a.EventBuffered()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.buffered))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.buffered))
}

func TestServerHandler(t *testing.T) {
	s := NewServer()
	s.Relayed("message")
	s.MemberJoined()

	rec := httptest.NewRecorder()
	Handler(s.Registry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `calla_relay_messages_total{type="message"} 1`)
	assert.Contains(t, rec.Body.String(), "calla_relay_members 1")
}
