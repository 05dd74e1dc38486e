package sfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
)

type relayKey struct {
	sid  core.SessionID
	kind domain.MediaKind
}

// StopFunc is told when a publisher's relay ends, with the subscribers it had.
// Their senders are still attached to the subscriber connections.
type StopFunc func(sid core.SessionID, kind domain.MediaKind, subs map[core.SessionID]*OutTrack)

type RelayManager struct {
	mu     sync.RWMutex
	relays map[relayKey]*Relay

	metrics *metrics.Server
	onStop  StopFunc
}

func NewRelayManager(m *metrics.Server) *RelayManager {
	return &RelayManager{
		relays:  make(map[relayKey]*Relay),
		metrics: m,
	}
}

func (m *RelayManager) OnStop(fn StopFunc) { m.onStop = fn }

// StartRelay creates a new Relay for the given publisher track and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) (domain.MediaKind, error) {
	kind, err := domain.ParseMediaKind(track.Kind().String())
	if err != nil {
		return "", err
	}
	logger := log.With().
		Str("module", "relay").
		Str("sid", string(sid)).
		Str("kind", string(kind)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(track, kind, cancel)
	key := relayKey{sid, kind}

	m.mu.Lock()
	old := m.relays[key]
	m.relays[key] = relay
	m.mu.Unlock()
	m.metrics.TrackStarted()
	if old != nil {
		logger.Info().Msg("replacing existing relay")
		m.finish(key, old)
	}

	logger.Info().Msg("starting relay loop")
	go func() {
		relay.loop(relayCtx, &logger)
		if m.remove(key, relay) {
			m.finish(key, relay)
		}
	}()
	return kind, nil
}

// finish runs once per relay, after it left the map.
func (m *RelayManager) finish(key relayKey, relay *Relay) {
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
	subs := relay.drain()
	m.metrics.TrackStopped()
	if m.onStop != nil {
		m.onStop(key.sid, key.kind, subs)
	}
}

// remove drops relay if it is still the current one for key.
func (m *RelayManager) remove(key relayKey, relay *Relay) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.relays[key] != relay {
		return false
	}
	delete(m.relays, key)
	return true
}

// Subscribe forwards the publisher's track of kind to dst over mc. The subscriber sees
// it with stream ID streamID and track ID kind.
func (m *RelayManager) Subscribe(srcSID core.SessionID, kind domain.MediaKind, streamID string, dstSID core.SessionID, mc core.MediaConnection) error {
	m.mu.RLock()
	relay, ok := m.relays[relayKey{srcSID, kind}]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no %s relay for %s", kind, srcSID)
	}

	local, err := webrtc.NewTrackLocalStaticRTP(relay.Src.Codec().RTPCodecCapability, string(kind), streamID)
	if err != nil {
		return fmt.Errorf("local track: %w", err)
	}
	sender, err := mc.AddLocalTrack(local)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	go drainRTCP(sender)

	relay.AddOutTrack(dstSID, NewOutTrack(local, sender))
	log.Debug().Str("module", "relay").Str("src", string(srcSID)).Str("dst", string(dstSID)).Str("kind", string(kind)).Msg("subscribed")
	return nil
}

// drainRTCP keeps interceptors running until the sender stops.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Unsubscribe detaches dst from every relay of src and removes the senders from mc.
// It reports whether mc changed.
func (m *RelayManager) Unsubscribe(srcSID, dstSID core.SessionID, mc core.MediaConnection) bool {
	changed := false
	for _, kind := range []domain.MediaKind{domain.MediaAudio, domain.MediaVideo} {
		m.mu.RLock()
		relay, ok := m.relays[relayKey{srcSID, kind}]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		ot, ok := relay.RemoveOutTrack(dstSID)
		if !ok || mc == nil || mc.IsClosed() || ot.Sender == nil {
			continue
		}
		if err := mc.RemoveSender(ot.Sender); err != nil {
			log.Warn().Err(err).Str("module", "relay").Str("dst", string(dstSID)).Msg("remove sender")
			continue
		}
		changed = true
	}
	return changed
}

// MarkSubscriberDelete marks subscriber's OutTracks as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(srcSID, dstSID core.SessionID) {
	for _, r := range m.relaysOf(srcSID) {
		r.mu.RLock()
		ot, ok := r.outTracks[dstSID]
		r.mu.RUnlock()
		if ok {
			ot.MarkDelete()
		}
	}
}

func (m *RelayManager) SetMuted(sid core.SessionID, kind domain.MediaKind, muted bool) {
	m.mu.RLock()
	relay, ok := m.relays[relayKey{sid, kind}]
	m.mu.RUnlock()
	if ok {
		relay.SetMuted(muted)
	}
}

// StopRelay stops every relay published by sid.
func (m *RelayManager) StopRelay(srcSID core.SessionID) {
	for _, kind := range []domain.MediaKind{domain.MediaAudio, domain.MediaVideo} {
		key := relayKey{srcSID, kind}
		m.mu.Lock()
		relay, ok := m.relays[key]
		if ok {
			delete(m.relays, key)
		}
		m.mu.Unlock()
		if ok {
			m.finish(key, relay)
		}
	}
}

// HasRelay reports whether sid publishes kind.
func (m *RelayManager) HasRelay(sid core.SessionID, kind domain.MediaKind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[relayKey{sid, kind}]
	return ok
}

// Kinds lists what sid currently publishes.
func (m *RelayManager) Kinds(sid core.SessionID) []domain.MediaKind {
	var out []domain.MediaKind
	for _, r := range m.relaysOf(sid) {
		out = append(out, r.Kind)
	}
	return out
}

func (m *RelayManager) relaysOf(sid core.SessionID) []*Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Relay
	for _, kind := range []domain.MediaKind{domain.MediaAudio, domain.MediaVideo} {
		if r, ok := m.relays[relayKey{sid, kind}]; ok {
			out = append(out, r)
		}
	}
	return out
}
