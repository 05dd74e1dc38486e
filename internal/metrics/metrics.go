// Package metrics holds the prometheus collectors of the client session and the relay server.
// Each collector owns its registry so several sessions can live in one process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "calla"

// Client counts session activity. A nil *Client is valid and records nothing.
type Client struct {
	reg *prometheus.Registry

	dispatched *prometheus.CounterVec
	buffered   prometheus.Counter
	dropped    *prometheus.CounterVec
	waits      *prometheus.CounterVec
	degraded   prometheus.Counter
}

func NewClient() *Client {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Client{
		reg: reg,
		dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "events_dispatched_total",
			Help:      "Events delivered to listeners, by event name",
		}, []string{"event"}),
		buffered: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "events_buffered_total",
			Help:      "Events held back until the local identity was known",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages discarded before dispatch, by reason",
		}, []string{"reason"}),
		waits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "waits_total",
			Help:      "Timed confirmation waits, by event and result",
		}, []string{"event", "result"}),
		degraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "spatial",
			Name:      "panning_degraded_total",
			Help:      "Times stereo panning was turned off for the process",
		}),
	}
}

func (c *Client) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

func (c *Client) EventDispatched(name string) {
	if c == nil {
		return
	}
	c.dispatched.WithLabelValues(name).Inc()
}

func (c *Client) EventBuffered() {
	if c == nil {
		return
	}
	c.buffered.Inc()
}

func (c *Client) MessageDropped(reason string) {
	if c == nil {
		return
	}
	c.dropped.WithLabelValues(reason).Inc()
}

func (c *Client) WaitFinished(event string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "timeout"
	}
	c.waits.WithLabelValues(event, result).Inc()
}

func (c *Client) PanningDegraded() {
	if c == nil {
		return
	}
	c.degraded.Inc()
}

// Server counts relay server activity.
type Server struct {
	reg *prometheus.Registry

	relayed  *prometheus.CounterVec
	members  prometheus.Gauge
	rooms    prometheus.Gauge
	tracks   prometheus.Gauge
	rejected *prometheus.CounterVec
}

func NewServer() *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Server{
		reg: reg,
		relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Signal frames relayed between members, by type",
		}, []string{"type"}),
		members: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "members",
			Help:      "Members currently joined to a room",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Rooms currently open",
		}),
		tracks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "tracks",
			Help:      "Media tracks currently forwarded",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Requests refused, by reason",
		}, []string{"reason"}),
	}
}

func (s *Server) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.reg
}

func (s *Server) Relayed(msgType string) {
	if s == nil {
		return
	}
	s.relayed.WithLabelValues(msgType).Inc()
}

func (s *Server) MemberJoined() {
	if s == nil {
		return
	}
	s.members.Inc()
}

func (s *Server) MemberLeft() {
	if s == nil {
		return
	}
	s.members.Dec()
}

func (s *Server) RoomOpened() {
	if s == nil {
		return
	}
	s.rooms.Inc()
}

func (s *Server) RoomClosed() {
	if s == nil {
		return
	}
	s.rooms.Dec()
}

func (s *Server) TrackStarted() {
	if s == nil {
		return
	}
	s.tracks.Inc()
}

func (s *Server) TrackStopped() {
	if s == nil {
		return
	}
	s.tracks.Dec()
}

func (s *Server) Rejected(reason string) {
	if s == nil {
		return
	}
	s.rejected.WithLabelValues(reason).Inc()
}

// Handler serves a registry in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
