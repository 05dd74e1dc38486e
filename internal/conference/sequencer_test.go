package conference

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/calla/internal/domain"
)

func newTestSequencer() (*Sequencer, *[]Event) {
	var got []Event
	q := NewSequencer(func(ev Event) { got = append(got, ev) }, nil, zerolog.Nop())
	return q, &got
}

func TestSequencerReplaysBufferAfterJoin(t *testing.T) {
	q, got := newTestSequencer()

	q.Push(ParticipantJoined{ID: "a", DisplayName: "A"})
	q.Push(Emote{ID: domain.LocalParticipant, Emoji: "👋"})
	q.Push(MuteStatusChanged{ID: "", Kind: domain.MediaAudio, Muted: true})
	q.Push(UserMoved{ID: "a", Pose: domain.NewPose(1, 2, 3)})

	assert.Empty(t, *got)
	assert.Equal(t, 4, q.Buffered())
	assert.False(t, q.Identified())

	q.Push(ConferenceJoined{ID: "me", DisplayName: "Me"})

	require.True(t, q.Identified())
	assert.Equal(t, domain.ParticipantID("me"), q.LocalID())
	assert.Zero(t, q.Buffered())
	assert.Equal(t, []Event{
		ConferenceJoined{ID: "me", DisplayName: "Me"},
		ParticipantJoined{ID: "a", DisplayName: "A"},
		Emote{ID: "me", Emoji: "👋"},
		MuteStatusChanged{ID: "me", Kind: domain.MediaAudio, Muted: true},
		UserMoved{ID: "a", Pose: domain.NewPose(1, 2, 3)},
	}, *got)
}

func TestSequencerRewritesLocalAliasWhenIdentified(t *testing.T) {
	q, got := newTestSequencer()
	q.Push(ConferenceJoined{ID: "me"})
	*got = nil

	q.Push(AvatarChanged{ID: "", URL: "u"})
	q.Push(AudioActivity{ID: domain.LocalParticipant, Active: true})
	q.Push(AudioActivity{ID: "b", Active: true})
	q.Push(DeviceListChanged{})

	assert.Equal(t, []Event{
		AvatarChanged{ID: "me", URL: "u"},
		AudioActivity{ID: "me", Active: true},
		AudioActivity{ID: "b", Active: true},
		DeviceListChanged{},
	}, *got)
}

func TestSequencerBuffersAgainAfterLeave(t *testing.T) {
	q, got := newTestSequencer()
	q.Push(ConferenceJoined{ID: "me"})
	q.Push(ConferenceLeft{})

	assert.False(t, q.Identified())
	assert.Empty(t, q.LocalID())
	assert.Equal(t, []Event{ConferenceJoined{ID: "me"}, ConferenceLeft{}}, *got)

	q.Push(Emote{ID: "", Emoji: "x"})
	assert.Len(t, *got, 2)

	q.Push(ConferenceJoined{ID: "me2"})
	assert.Equal(t, Emote{ID: "me2", Emoji: "x"}, (*got)[3])
}

func TestSequencerLeaveBufferedBeforeJoinResetsIdentity(t *testing.T) {
	q, got := newTestSequencer()
	q.Push(ConferenceLeft{})
	q.Push(Emote{ID: "", Emoji: "x"})
	q.Push(ConferenceJoined{ID: "me"})

	assert.Equal(t, []Event{ConferenceJoined{ID: "me"}, ConferenceLeft{}}, *got)
	assert.False(t, q.Identified())
	assert.Empty(t, q.LocalID())
	assert.Equal(t, 1, q.Buffered())

	q.Push(ConferenceJoined{ID: "me2"})
	assert.Equal(t, Emote{ID: "me2", Emoji: "x"}, (*got)[3])
	assert.True(t, q.Identified())
}
