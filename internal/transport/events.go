package transport

import "github.com/dkeye/calla/internal/domain"

// Event is the closed set of notifications a Transport delivers.
type Event interface {
	transportEvent()
}

type (
	Connected        struct{}
	ConnectionFailed struct{ Err error }
	Disconnected     struct{ Err error }

	JoinedConference struct {
		LocalID     domain.ParticipantID
		DisplayName string
	}
	LeftConference struct{}

	PeerJoined struct {
		ID          domain.ParticipantID
		DisplayName string
	}
	PeerLeft    struct{ ID domain.ParticipantID }
	PeerRenamed struct {
		ID          domain.ParticipantID
		DisplayName string
	}
	RoleChanged struct {
		ID   domain.ParticipantID
		Role domain.Role
	}

	TrackAdded       struct{ Track Track }
	TrackRemoved     struct{ Track Track }
	TrackMuteChanged struct {
		Track Track
		Muted bool
	}

	MessageReceived struct {
		From domain.ParticipantID
		Data []byte
	}
)

func (Connected) transportEvent()        {}
func (ConnectionFailed) transportEvent() {}
func (Disconnected) transportEvent()     {}
func (JoinedConference) transportEvent() {}
func (LeftConference) transportEvent()   {}
func (PeerJoined) transportEvent()       {}
func (PeerLeft) transportEvent()         {}
func (PeerRenamed) transportEvent()      {}
func (RoleChanged) transportEvent()      {}
func (TrackAdded) transportEvent()       {}
func (TrackRemoved) transportEvent()     {}
func (TrackMuteChanged) transportEvent() {}
func (MessageReceived) transportEvent()  {}
