package spatial

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

type source struct {
	pose domain.Pose
	sp   Spatializer
}

// Manager owns the listener pose and one source per remote participant.
// It is not safe for concurrent use; the conference session drives it from its loop.
type Manager struct {
	selector *Selector
	listener domain.Pose
	sources  map[domain.ParticipantID]*source
	logger   zerolog.Logger
}

func NewManager(sel *Selector) *Manager {
	return &Manager{
		selector: sel,
		sources:  make(map[domain.ParticipantID]*source),
		logger:   log.With().Str("module", "spatial").Logger(),
	}
}

// AddSource registers a participant at the origin. Existing sources are left alone.
func (m *Manager) AddSource(id domain.ParticipantID) {
	_ = m.ensure(id)
}

func (m *Manager) HasSource(id domain.ParticipantID) bool {
	_, ok := m.sources[id]
	return ok
}

func (m *Manager) Sources() []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(m.sources))
	for id := range m.sources {
		out = append(out, id)
	}
	return out
}

// SetStream attaches a participant's audio; nil silences it.
func (m *Manager) SetStream(id domain.ParticipantID, s transport.Stream) {
	src := m.ensure(id)
	if src == nil {
		return
	}
	src.sp.SetStream(s)
}

// SetPosition moves a known source. Unknown participants are ignored.
func (m *Manager) SetPosition(id domain.ParticipantID, p domain.Pose) bool {
	src, ok := m.sources[id]
	if !ok {
		return false
	}
	src.pose = p
	src.sp.Update(m.listener, p)
	return true
}

func (m *Manager) Position(id domain.ParticipantID) (domain.Pose, bool) {
	src, ok := m.sources[id]
	if !ok {
		return domain.Pose{}, false
	}
	return src.pose, true
}

func (m *Manager) SetListenerPosition(p domain.Pose) {
	m.listener = p
	for _, src := range m.sources {
		src.sp.Update(p, src.pose)
	}
}

func (m *Manager) ListenerPosition() domain.Pose { return m.listener }

func (m *Manager) RemoveSource(id domain.ParticipantID) {
	src, ok := m.sources[id]
	if !ok {
		return
	}
	src.sp.Dispose()
	delete(m.sources, id)
}

// Reset drops every source and recentres the listener.
func (m *Manager) Reset() {
	for id := range m.sources {
		m.RemoveSource(id)
	}
	m.listener = domain.Pose{}
}

func (m *Manager) SetOutputDevice(deviceID string) error {
	return m.selector.SetOutputDevice(deviceID)
}

func (m *Manager) ensure(id domain.ParticipantID) *source {
	if src, ok := m.sources[id]; ok {
		return src
	}
	sp, err := m.selector.CreateSource(id, nil)
	if err != nil {
		m.logger.Error().Err(err).Str("participant", id.String()).Msg("create source")
		return nil
	}
	src := &source{sp: sp}
	sp.Update(m.listener, src.pose)
	m.sources[id] = src
	return src
}
