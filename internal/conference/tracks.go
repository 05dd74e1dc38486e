package conference

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

// AudioSink receives remote audio streams; a nil stream silences the participant.
type AudioSink interface {
	SetStream(id domain.ParticipantID, s transport.Stream)
}

type trackKey struct {
	id   domain.ParticipantID
	kind domain.MediaKind
}

// TrackTable holds at most one track per participant and media kind.
// It is owned by the session loop.
type TrackTable struct {
	entries map[trackKey]transport.Track
	sink    AudioSink
	logger  zerolog.Logger
}

func NewTrackTable(sink AudioSink, logger zerolog.Logger) *TrackTable {
	return &TrackTable{
		entries: make(map[trackKey]transport.Track),
		sink:    sink,
		logger:  logger,
	}
}

// Add stores t, disposing whatever was stored for the same participant and kind first.
func (tt *TrackTable) Add(id domain.ParticipantID, kind domain.MediaKind, t transport.Track) {
	key := trackKey{id, kind}
	if old, ok := tt.entries[key]; ok && old != t {
		if err := old.Dispose(); err != nil {
			tt.logger.Warn().Err(err).Str("participant", id.String()).Str("kind", string(kind)).Msg("dispose replaced track")
		}
		delete(tt.entries, key)
	}
	tt.entries[key] = t
	if kind == domain.MediaAudio && !t.IsLocal() && tt.sink != nil {
		tt.sink.SetStream(id, t.Stream())
	}
}

// Remove disposes and forgets the entry. Absent entries are ignored.
func (tt *TrackTable) Remove(id domain.ParticipantID, kind domain.MediaKind) error {
	key := trackKey{id, kind}
	t, ok := tt.entries[key]
	if !ok {
		return nil
	}
	delete(tt.entries, key)
	if kind == domain.MediaAudio && !t.IsLocal() && tt.sink != nil {
		tt.sink.SetStream(id, nil)
	}
	if err := t.Dispose(); err != nil {
		return fmt.Errorf("dispose %s %s track: %w", id, kind, err)
	}
	return nil
}

// Get returns nil when nothing is stored.
func (tt *TrackTable) Get(id domain.ParticipantID, kind domain.MediaKind) transport.Track {
	return tt.entries[trackKey{id, kind}]
}

// Clear removes every track of one participant.
func (tt *TrackTable) Clear(id domain.ParticipantID) error {
	var errs *multierror.Error
	for _, kind := range []domain.MediaKind{domain.MediaAudio, domain.MediaVideo} {
		if err := tt.Remove(id, kind); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (tt *TrackTable) ClearAll() error {
	var errs *multierror.Error
	for key := range tt.entries {
		if err := tt.Remove(key.id, key.kind); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (tt *TrackTable) Len() int { return len(tt.entries) }
