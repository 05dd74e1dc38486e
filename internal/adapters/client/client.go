// Package client connects a conference session to the Calla relay server: JSON frames
// over a websocket for signalling, one pion peer connection for media.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendQueue      = 64
)

var (
	ErrBackpressure = errors.New("send queue full")
	errRemoteMute   = errors.New("cannot mute a remote track")
	errForeignTrack = errors.New("track was not created by this client")
)

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithWebRTCConfig(cfg webrtc.Configuration) Option {
	return func(c *Client) { c.rtcCfg = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client implements transport.Transport against the relay server.
type Client struct {
	url    string
	dialer *websocket.Dialer
	rtcCfg webrtc.Configuration
	logger zerolog.Logger

	mu      sync.Mutex
	handler transport.Handler
	conn    *websocket.Conn
	out     chan []byte
	done    chan struct{}
	pc      *webrtc.PeerConnection
	self    domain.UserID
	name    string
	joined  bool
	local   map[domain.MediaKind]*localTrack
	remote  map[remoteKey]*remoteTrack
	muted   map[remoteKey]bool

	// negMu serializes offer/answer exchanges on pc.
	negMu sync.Mutex
	// renegotiate is set when a change arrives while an offer is in flight.
	renegotiate bool
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: log.With().Str("module", "client").Logger(),
		local:  make(map[domain.MediaKind]*localTrack),
		remote: make(map[remoteKey]*remoteTrack),
		muted:  make(map[remoteKey]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ transport.Transport = (*Client)(nil)

func (c *Client) SetHandler(h transport.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Client) emit(ev transport.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Connect dials the relay and starts the pumps. A failed dial is reported both as an
// error and as a ConnectionFailed event.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", c.url, err)
		c.emit(transport.ConnectionFailed{Err: err})
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	out := make(chan []byte, sendQueue)
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.out = out
	c.done = done
	c.mu.Unlock()

	go c.writePump(conn, out, done)
	go c.readPump(conn)

	c.logger.Info().Str("url", c.url).Msg("connected")
	c.emit(transport.Connected{})
	return nil
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.teardown(conn) {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = nil
				}
				c.logger.Warn().Err(err).Msg("connection lost")
				c.emit(transport.Disconnected{Err: err})
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) writePump(conn *websocket.Conn, out <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case data := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("write failed")
				_ = conn.Close()
				return
			}
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			return
		}
	}
}

// teardown drops conn and everything bound to it. It reports false when conn was
// already gone.
func (c *Client) teardown(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.conn != conn || conn == nil {
		c.mu.Unlock()
		return false
	}
	c.conn = nil
	done := c.done
	c.done = nil
	c.out = nil
	pc := c.pc
	c.pc = nil
	c.joined = false
	c.self = ""
	c.remote = make(map[remoteKey]*remoteTrack)
	c.muted = make(map[remoteKey]bool)
	for _, lt := range c.local {
		lt.mu.Lock()
		lt.sender = nil
		lt.mu.Unlock()
	}
	c.mu.Unlock()

	close(done)
	if pc != nil {
		if err := pc.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("close peer connection")
		}
	}
	return true
}

func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return domain.ErrNotConnected
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close ends the connection. Listeners see a Disconnected event with a nil error.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	if c.teardown(conn) {
		c.emit(transport.Disconnected{})
	}
	return nil
}

// Self is the relay-assigned identity, empty before a join completes.
func (c *Client) Self() domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ParticipantID(c.self)
}
