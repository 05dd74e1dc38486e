package conference

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

type sinkCall struct {
	id     domain.ParticipantID
	stream transport.Stream
}

type fakeSink struct{ calls []sinkCall }

func (f *fakeSink) SetStream(id domain.ParticipantID, s transport.Stream) {
	f.calls = append(f.calls, sinkCall{id, s})
}

func remoteTrack(id string, owner domain.ParticipantID, kind domain.MediaKind) *fakeTrack {
	return &fakeTrack{id: id, owner: owner, kind: kind}
}

func TestTrackTableReplaceDisposesFirst(t *testing.T) {
	tt := NewTrackTable(nil, zerolog.Nop())
	first := remoteTrack("t1", "a", domain.MediaAudio)
	second := remoteTrack("t2", "a", domain.MediaAudio)

	var visibleDuringDispose transport.Track
	first.onDispose = func() { visibleDuringDispose = tt.Get("a", domain.MediaAudio) }

	tt.Add("a", domain.MediaAudio, first)
	tt.Add("a", domain.MediaAudio, second)

	assert.Equal(t, 1, first.Disposed())
	assert.NotEqual(t, second, visibleDuringDispose)
	assert.Equal(t, second, tt.Get("a", domain.MediaAudio))
	assert.Equal(t, 1, tt.Len())
	assert.Zero(t, second.Disposed())
}

func TestTrackTableReaddSameTrack(t *testing.T) {
	tt := NewTrackTable(nil, zerolog.Nop())
	tr := remoteTrack("t1", "a", domain.MediaVideo)
	tt.Add("a", domain.MediaVideo, tr)
	tt.Add("a", domain.MediaVideo, tr)
	assert.Zero(t, tr.Disposed())
}

func TestTrackTableRemoveAbsent(t *testing.T) {
	tt := NewTrackTable(nil, zerolog.Nop())
	tt.Add("a", domain.MediaAudio, remoteTrack("t1", "a", domain.MediaAudio))

	require.NoError(t, tt.Remove("b", domain.MediaAudio))
	require.NoError(t, tt.Remove("a", domain.MediaVideo))
	assert.Equal(t, 1, tt.Len())

	require.NoError(t, tt.Remove("a", domain.MediaAudio))
	require.NoError(t, tt.Remove("a", domain.MediaAudio))
	assert.Zero(t, tt.Len())
}

func TestTrackTableDrivesSinkForRemoteAudioOnly(t *testing.T) {
	sink := &fakeSink{}
	tt := NewTrackTable(sink, zerolog.Nop())

	tt.Add("a", domain.MediaAudio, remoteTrack("ra", "a", domain.MediaAudio))
	tt.Add("a", domain.MediaVideo, remoteTrack("rv", "a", domain.MediaVideo))
	tt.Add("me", domain.MediaAudio, &fakeTrack{id: "la", owner: "me", kind: domain.MediaAudio, local: true})
	require.NoError(t, tt.Remove("a", domain.MediaAudio))
	require.NoError(t, tt.Remove("me", domain.MediaAudio))

	require.Len(t, sink.calls, 2)
	assert.Equal(t, sinkCall{"a", fakeStream("stream-ra")}, sink.calls[0])
	assert.Equal(t, sinkCall{"a", nil}, sink.calls[1])
}

type failingTrack struct{ *fakeTrack }

func (failingTrack) Dispose() error { return errors.New("busy") }

func TestTrackTableClearAllAggregatesErrors(t *testing.T) {
	tt := NewTrackTable(nil, zerolog.Nop())
	tt.Add("a", domain.MediaAudio, failingTrack{remoteTrack("1", "a", domain.MediaAudio)})
	tt.Add("b", domain.MediaVideo, failingTrack{remoteTrack("2", "b", domain.MediaVideo)})
	tt.Add("c", domain.MediaVideo, remoteTrack("3", "c", domain.MediaVideo))

	err := tt.ClearAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Zero(t, tt.Len())
}

func TestTrackTableClearParticipant(t *testing.T) {
	tt := NewTrackTable(nil, zerolog.Nop())
	a1 := remoteTrack("1", "a", domain.MediaAudio)
	a2 := remoteTrack("2", "a", domain.MediaVideo)
	tt.Add("a", domain.MediaAudio, a1)
	tt.Add("a", domain.MediaVideo, a2)
	tt.Add("b", domain.MediaAudio, remoteTrack("3", "b", domain.MediaAudio))

	require.NoError(t, tt.Clear("a"))
	assert.Equal(t, 1, a1.Disposed())
	assert.Equal(t, 1, a2.Disposed())
	assert.Equal(t, 1, tt.Len())
}
