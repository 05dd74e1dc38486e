// Package transport is the contract between the conference session layer and the
// conferencing engine underneath it. The session only ever talks to these interfaces.
package transport

import (
	"context"

	"github.com/dkeye/calla/internal/domain"
)

// Stream is the opaque media handle a track carries to the audio renderer.
type Stream interface {
	ID() string
}

// Track is one media stream owned by a participant.
type Track interface {
	ID() string
	// Participant is the owner; local tracks may report a local alias.
	Participant() domain.ParticipantID
	Kind() domain.MediaKind
	IsLocal() bool
	IsMuted() bool
	// SetMuted requests a mute change. Confirmation arrives as a TrackMuteChanged event.
	SetMuted(muted bool) error
	Stream() Stream
	Dispose() error
}

// Handler receives transport events. Implementations call it from their own goroutines.
type Handler func(Event)

// Transport is the conferencing engine: connection, conference membership, tracks and
// an opaque per-participant message channel.
type Transport interface {
	SetHandler(h Handler)
	Connect(ctx context.Context) error
	Join(ctx context.Context, room, displayName string) error
	Leave(ctx context.Context) error
	SetDisplayName(name string) error
	SendMessage(to domain.ParticipantID, data []byte) error
	CreateLocalTrack(ctx context.Context, kind domain.MediaKind, deviceID string) (Track, error)
	AddTrack(ctx context.Context, t Track) error
	RemoveTrack(ctx context.Context, t Track) error
	Close() error
}
