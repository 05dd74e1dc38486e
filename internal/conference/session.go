// Package conference is the session layer of a spatial audio conference: it turns
// transport notifications into ordered application events, keeps the track and pose
// state of every participant and runs the small peer protocols (pose exchange, mute).
package conference

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/conference/envelope"
	"github.com/dkeye/calla/internal/devices"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
	"github.com/dkeye/calla/internal/spatial"
	"github.com/dkeye/calla/internal/transport"
)

const (
	DefaultHandshakeTimeout = time.Second
	DefaultConfirmTimeout   = time.Second
)

type peer struct {
	displayName string
	role        domain.Role
}

// Session owns one conference connection. All state below the channels is touched
// only by the goroutine running Run.
type Session struct {
	tr       transport.Transport
	codec    *envelope.Codec
	resolver *devices.Resolver
	metrics  *metrics.Client
	logger   zerolog.Logger

	handshakeTimeout time.Duration
	confirmTimeout   time.Duration

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	emitter *emitter
	waiters waiters

	seq         *Sequencer
	tracks      *TrackTable
	scene       *spatial.Manager
	peers       map[domain.ParticipantID]*peer
	displayName string
	prefs       devices.Preferences
}

type Option func(*Session)

func WithCodec(c *envelope.Codec) Option { return func(s *Session) { s.codec = c } }

func WithScene(m *spatial.Manager) Option { return func(s *Session) { s.scene = m } }

// WithResolver enables device resolution. Without it preferences are passed to the
// transport as they are.
func WithResolver(r *devices.Resolver) Option { return func(s *Session) { s.resolver = r } }

func WithMetrics(m *metrics.Client) Option { return func(s *Session) { s.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.logger = l } }

func WithPreferences(p devices.Preferences) Option { return func(s *Session) { s.prefs = p } }

func WithTimeouts(handshake, confirm time.Duration) Option {
	return func(s *Session) {
		if handshake > 0 {
			s.handshakeTimeout = handshake
		}
		if confirm > 0 {
			s.confirmTimeout = confirm
		}
	}
}

func New(tr transport.Transport, opts ...Option) *Session {
	s := &Session{
		tr:               tr,
		logger:           log.With().Str("module", "conference").Logger(),
		handshakeTimeout: DefaultHandshakeTimeout,
		confirmTimeout:   DefaultConfirmTimeout,
		ops:              make(chan func(), 256),
		quit:             make(chan struct{}),
		done:             make(chan struct{}),
		emitter:          newEmitter(),
		peers:            make(map[domain.ParticipantID]*peer),
	}
	for _, o := range opts {
		o(s)
	}
	if s.codec == nil {
		s.codec, _ = envelope.New(envelope.FormatJSON)
	}
	if s.scene == nil {
		sel := spatial.NewSelector(spatial.NewHeadlessRenderer(true), spatial.WithDegradeHook(s.metrics.PanningDegraded))
		s.scene = spatial.NewManager(sel)
	}
	s.seq = NewSequencer(s.dispatch, s.metrics, s.logger)
	s.tracks = NewTrackTable(s.scene, s.logger)
	tr.SetHandler(func(ev transport.Event) {
		s.post(func() { s.handleTransport(ev) })
	})
	return s
}

// AddEventListener subscribes fn to one of the supported event names.
func (s *Session) AddEventListener(name string, fn Listener) error {
	n, err := ParseEventName(name)
	if err != nil {
		return err
	}
	s.emitter.on(n, fn)
	return nil
}

// Run processes transport events and API calls until ctx ends or Close is called.
// Tracks still held are disposed on exit.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.teardown()
	s.logger.Debug().Msg("session loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit:
			return nil
		case fn := <-s.ops:
			fn()
		}
	}
}

// Close stops the loop and closes the transport.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		err = s.tr.Close()
	})
	return err
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.quit:
	case <-s.done:
	}
}

// exec runs fn on the loop and waits for it. Never call it from a listener.
func (s *Session) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return domain.ErrClosed
	case <-s.done:
		return domain.ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return domain.ErrClosed
	}
}

func (s *Session) teardown() {
	if err := s.tracks.ClearAll(); err != nil {
		s.logger.Warn().Err(err).Msg("dispose tracks")
	}
	s.scene.Reset()
	s.logger.Debug().Msg("session loop stopped")
}

// LocalID is the identity assigned by the last join, empty before it.
func (s *Session) LocalID(ctx context.Context) (domain.ParticipantID, error) {
	var id domain.ParticipantID
	err := s.exec(ctx, func() { id = s.seq.LocalID() })
	return id, err
}

// Participants lists known remote participants.
func (s *Session) Participants(ctx context.Context) (map[domain.ParticipantID]string, error) {
	out := make(map[domain.ParticipantID]string)
	err := s.exec(ctx, func() {
		for id, p := range s.peers {
			out[id] = p.displayName
		}
	})
	return out, err
}

// dispatch delivers an ordered, identity-resolved event: session state first, then
// listeners, then pending waits.
func (s *Session) dispatch(ev Event) {
	if !s.apply(ev) {
		// A pose answer still settles a pending request when the pose itself is dropped.
		if r, ok := ev.(UserInitResponse); ok && r.Pose.Finite() {
			s.waiters.notify(ev)
		}
		return
	}
	s.metrics.EventDispatched(string(ev.Name()))
	s.emitter.emit(ev)
	s.waiters.notify(ev)

	if m, ok := ev.(MuteStatusChanged); ok && !m.Local && m.ID != "" && m.ID == s.seq.LocalID() {
		m.Local = true
		s.dispatch(m)
	}
}

// apply updates session state for ev and reports whether ev should reach listeners.
func (s *Session) apply(ev Event) bool {
	local := s.seq.LocalID()
	switch e := ev.(type) {
	case ConferenceJoined:
		s.displayName = e.DisplayName
		s.logger.Info().Str("participant", e.ID.String()).Msg("joined conference")

	case ConferenceLeft:
		if err := s.tracks.ClearAll(); err != nil {
			s.logger.Warn().Err(err).Msg("dispose tracks")
		}
		s.scene.Reset()
		clear(s.peers)
		s.logger.Info().Msg("left conference")

	case ParticipantJoined:
		if e.ID == local {
			return false
		}
		s.peers[e.ID] = &peer{displayName: e.DisplayName}
		s.scene.AddSource(e.ID)
		if err := s.send(e.ID, cmdUserInitRequest, nil); err != nil {
			s.logger.Warn().Err(err).Str("participant", e.ID.String()).Msg("send init request")
		}

	case ParticipantLeft:
		delete(s.peers, e.ID)
		if err := s.tracks.Clear(e.ID); err != nil {
			s.logger.Warn().Err(err).Str("participant", e.ID.String()).Msg("dispose tracks")
		}
		s.scene.RemoveSource(e.ID)

	case DisplayNameChanged:
		if e.ID == local {
			s.displayName = e.DisplayName
		} else if p, ok := s.peers[e.ID]; ok {
			p.displayName = e.DisplayName
		}

	case ParticipantRoleChanged:
		if p, ok := s.peers[e.ID]; ok {
			p.role = e.Role
		}

	case UserMoved:
		return s.applyPose(e.ID, e.Pose)

	case UserInitResponse:
		return s.applyPose(e.ID, e.Pose)

	case UserInitRequest:
		if err := s.send(e.ID, cmdUserInitResponse, newPosePayload(s.scene.ListenerPosition())); err != nil {
			s.logger.Warn().Err(err).Str("participant", e.ID.String()).Msg("send init response")
		}

	case MuteStatusChanged:
		if e.ID != local && !s.known(e.ID) {
			s.logger.Debug().Str("participant", e.ID.String()).Msg("mute change for unknown participant dropped")
			return false
		}

	case TrackAdded:
		s.tracks.Add(e.ID, e.Kind, e.Track)

	case TrackRemoved:
		cur := s.tracks.Get(e.ID, e.Kind)
		if cur != nil && e.Track != nil && cur.ID() != e.Track.ID() {
			s.logger.Debug().Str("participant", e.ID.String()).Str("track", e.Track.ID()).Msg("stale track removal")
			return false
		}
		if err := s.tracks.Remove(e.ID, e.Kind); err != nil {
			s.logger.Warn().Err(err).Msg("remove track")
		}
	}
	return true
}

func (s *Session) known(id domain.ParticipantID) bool {
	_, ok := s.peers[id]
	return ok
}

// applyPose moves a remote participant. Updates for participants not yet joined are dropped.
func (s *Session) applyPose(id domain.ParticipantID, p domain.Pose) bool {
	if !p.Finite() {
		return false
	}
	if !s.known(id) || !s.scene.SetPosition(id, p) {
		s.logger.Debug().Str("participant", id.String()).Msg("pose for unknown participant dropped")
		return false
	}
	return true
}

func (s *Session) handleTransport(ev transport.Event) {
	switch e := ev.(type) {
	case transport.Connected:
		s.logger.Info().Msg("connection established")
	case transport.ConnectionFailed:
		s.logger.Error().Err(e.Err).Msg("connection failed")
		s.connectionLost()
	case transport.Disconnected:
		s.logger.Warn().Err(e.Err).Msg("disconnected")
		s.connectionLost()
	case transport.JoinedConference:
		s.seq.Push(ConferenceJoined{ID: e.LocalID, DisplayName: e.DisplayName})
	case transport.LeftConference:
		s.seq.Push(ConferenceLeft{})
	case transport.PeerJoined:
		s.seq.Push(ParticipantJoined{ID: e.ID, DisplayName: e.DisplayName})
	case transport.PeerLeft:
		s.seq.Push(ParticipantLeft{ID: e.ID})
	case transport.PeerRenamed:
		s.seq.Push(DisplayNameChanged{ID: e.ID, DisplayName: e.DisplayName})
	case transport.RoleChanged:
		s.seq.Push(ParticipantRoleChanged{ID: e.ID, Role: e.Role})
	case transport.TrackAdded:
		s.seq.Push(TrackAdded{ID: e.Track.Participant(), Kind: e.Track.Kind(), Track: e.Track})
	case transport.TrackRemoved:
		s.seq.Push(TrackRemoved{ID: e.Track.Participant(), Kind: e.Track.Kind(), Track: e.Track})
	case transport.TrackMuteChanged:
		s.seq.Push(MuteStatusChanged{ID: e.Track.Participant(), Kind: e.Track.Kind(), Muted: e.Muted})
	case transport.MessageReceived:
		if ev, ok := s.decode(e.From, e.Data); ok {
			s.seq.Push(ev)
		}
	}
}

// connectionLost ends the conference locally. Reconnecting is up to the caller.
func (s *Session) connectionLost() {
	if s.seq.Identified() {
		s.seq.Push(ConferenceLeft{})
	}
}
