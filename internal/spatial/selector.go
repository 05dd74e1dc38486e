package spatial

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

// Selector picks the best spatializer the platform can build.
type Selector struct {
	renderer  Renderer
	model     DistanceModel
	logger    zerolog.Logger
	onDegrade func()
}

type SelectorOption func(*Selector)

func WithDistanceModel(m DistanceModel) SelectorOption {
	return func(s *Selector) { s.model = m }
}

// WithDegradeHook is called once, when this selector is the one that turned panning off.
func WithDegradeHook(fn func()) SelectorOption {
	return func(s *Selector) { s.onDegrade = fn }
}

func NewSelector(r Renderer, opts ...SelectorOption) *Selector {
	s := &Selector{
		renderer: r,
		model:    DefaultDistanceModel(),
		logger:   log.With().Str("module", "spatial").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateSource returns a stereo panner while the platform supports one. The first
// panner failure switches every later call to volume-only. It only errors when the
// renderer cannot build a gain node either.
func (s *Selector) CreateSource(id domain.ParticipantID, stream transport.Stream) (Spatializer, error) {
	var sp Spatializer
	if PanningSupported() {
		node, err := s.renderer.NewPanner(id)
		if err == nil {
			sp = &panner{node: node, model: s.model}
		} else if degradePanning() {
			s.logger.Warn().Err(err).Str("participant", id.String()).Msg("stereo panning unavailable, using volume only")
			if s.onDegrade != nil {
				s.onDegrade()
			}
		}
	}
	if sp == nil {
		node, err := s.renderer.NewGain(id)
		if err != nil {
			return nil, fmt.Errorf("create gain for %s: %w", id, err)
		}
		sp = &volumeOnly{node: node, model: s.model}
	}
	sp.SetStream(stream)
	return sp, nil
}

func (s *Selector) SetOutputDevice(deviceID string) error {
	return s.renderer.SetOutputDevice(deviceID)
}
