// Package protocol holds the JSON frames exchanged between the relay server and clients
// over the signalling websocket.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/calla/internal/domain"
)

// Message type constants.
const (
	TypeJoin      = "join"
	TypeLeave     = "leave"
	TypeRename    = "rename"
	TypePing      = "ping"
	TypeWhoAmI    = "whoami"
	TypeMessage   = "message"
	TypeMute      = "mute"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"

	TypeRoomState     = "room_state"
	TypeMemberJoined  = "member_joined"
	TypeMemberLeft    = "member_left"
	TypeMemberUpdated = "member_updated"
	TypeMemberRole    = "member_role"
	TypeLeft          = "left"
	TypePong          = "pong"
	TypeTrackMuted    = "track_muted"
	TypeTrackRemoved  = "track_removed"
	TypeError         = "error"
)

// Envelope is decoded first to route a frame by its type.
type Envelope struct {
	Type string `json:"type"`
}

// PeekType returns the type of a raw frame.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role,omitempty"`
}

type Join struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Name string `json:"name,omitempty"`
}

type Rename struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type RoomState struct {
	Type     string          `json:"type"`
	Room     domain.RoomID   `json:"room"`
	RoomName domain.RoomName `json:"room_name"`
	Self     MemberDTO       `json:"self"`
	Members  []MemberDTO     `json:"members"`
	Count    int             `json:"count"`
}

type MemberEvent struct {
	Type string    `json:"type"`
	User MemberDTO `json:"user"`
}

type WhoAmI struct {
	Type     string          `json:"type"`
	ID       domain.UserID   `json:"id"`
	Username string          `json:"username"`
	Room     domain.RoomName `json:"room,omitempty"`
}

// Data carries an opaque application payload between two members. An empty To
// addresses every other member of the room.
type Data struct {
	Type string        `json:"type"`
	From domain.UserID `json:"from,omitempty"`
	To   domain.UserID `json:"to,omitempty"`
	Data []byte        `json:"data"`
}

type Mute struct {
	Type  string           `json:"type"`
	Kind  domain.MediaKind `json:"kind"`
	Muted bool             `json:"muted"`
}

type TrackMuted struct {
	Type        string           `json:"type"`
	Participant domain.UserID    `json:"participant"`
	Kind        domain.MediaKind `json:"kind"`
	Muted       bool             `json:"muted"`
}

type TrackRemoved struct {
	Type        string           `json:"type"`
	Participant domain.UserID    `json:"participant"`
	Kind        domain.MediaKind `json:"kind"`
}

type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewError(msg string) Error {
	return Error{Type: TypeError, Error: msg}
}

// Simple builds a frame that carries only its type.
func Simple(t string) Envelope {
	return Envelope{Type: t}
}
