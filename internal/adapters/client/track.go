package client

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

// Stream is the media handle handed to the audio renderer. Remote is nil for local
// tracks.
type Stream struct {
	id     string
	Remote *webrtc.TrackRemote
}

func (s *Stream) ID() string { return s.id }

type remoteKey struct {
	participant domain.ParticipantID
	kind        domain.MediaKind
}

type localTrack struct {
	id       string
	kind     domain.MediaKind
	deviceID string
	rtp      *webrtc.TrackLocalStaticSample
	stream   *Stream
	c        *Client

	mu       sync.Mutex
	muted    bool
	sender   *webrtc.RTPSender
	disposed bool
}

func newLocalTrack(c *Client, kind domain.MediaKind, deviceID string) (*localTrack, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == domain.MediaVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	id := uuid.NewString()
	rtp, err := webrtc.NewTrackLocalStaticSample(codec, string(kind), "local-"+id)
	if err != nil {
		return nil, fmt.Errorf("local %s track: %w", kind, err)
	}
	return &localTrack{
		id:       id,
		kind:     kind,
		deviceID: deviceID,
		rtp:      rtp,
		stream:   &Stream{id: id},
		c:        c,
	}, nil
}

func (t *localTrack) ID() string                        { return t.id }
func (t *localTrack) Participant() domain.ParticipantID { return domain.LocalParticipant }
func (t *localTrack) Kind() domain.MediaKind            { return t.kind }
func (t *localTrack) IsLocal() bool                     { return true }
func (t *localTrack) Stream() transport.Stream          { return t.stream }

// DeviceID is the capture device the track was created for.
func (t *localTrack) DeviceID() string { return t.deviceID }

func (t *localTrack) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *localTrack) setMuted(muted bool) {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
}

// SetMuted asks the relay to mute; the relay echoes the change back to every member.
func (t *localTrack) SetMuted(muted bool) error {
	return t.c.requestMute(t, muted)
}

func (t *localTrack) Dispose() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
	return nil
}

type remoteTrack struct {
	id          string
	participant domain.ParticipantID
	kind        domain.MediaKind
	stream      *Stream

	mu    sync.Mutex
	muted bool
}

func newRemoteTrack(participant domain.ParticipantID, kind domain.MediaKind, tr *webrtc.TrackRemote, muted bool) *remoteTrack {
	id := fmt.Sprintf("%s-%s-%d", participant, kind, tr.SSRC())
	return &remoteTrack{
		id:          id,
		participant: participant,
		kind:        kind,
		stream:      &Stream{id: id, Remote: tr},
		muted:       muted,
	}
}

func (t *remoteTrack) ID() string                        { return t.id }
func (t *remoteTrack) Participant() domain.ParticipantID { return t.participant }
func (t *remoteTrack) Kind() domain.MediaKind            { return t.kind }
func (t *remoteTrack) IsLocal() bool                     { return false }
func (t *remoteTrack) Stream() transport.Stream          { return t.stream }
func (t *remoteTrack) Dispose() error                    { return nil }

func (t *remoteTrack) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *remoteTrack) setMuted(muted bool) {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
}

// SetMuted on a remote track is not forwarded; only publishers mute themselves.
func (t *remoteTrack) SetMuted(bool) error {
	return fmt.Errorf("remote %s track of %s: %w", t.kind, t.participant, errRemoteMute)
}
