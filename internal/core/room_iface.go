package core

import (
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/protocol"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []protocol.MemberDTO
	Member(sid SessionID) (MemberSession, bool)
	SessionOf(uid domain.UserID) (SessionID, bool)

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID)
	// Broadcast sends to every member except from. An empty from reaches everyone.
	Broadcast(from SessionID, data Frame) PublishResult
	SendTo(uid domain.UserID, data Frame) error
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	StopRoom(name domain.RoomName)
}
