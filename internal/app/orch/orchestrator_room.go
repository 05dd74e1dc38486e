package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/protocol"
)

func MemberDTO(sess core.MemberSession) protocol.MemberDTO {
	u := sess.Meta().User
	return protocol.MemberDTO{ID: u.ID, Username: u.Username, Role: u.Role}
}

// Join moves sid into roomName, leaving its current room first. The first member of a
// room moderates it. Callers follow up with OnMediaReady once the joiner has its room state.
func (o *Orchestrator) Join(sid core.SessionID, roomName domain.RoomName) (core.RoomService, error) {
	if from, _, ok := o.Registry.RoomOf(sid); ok {
		o.Leave(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(from)).Msg("left previous room")
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, domain.ErrNotConnected
	}

	room := o.Rooms.GetOrCreate(roomName)
	user := sess.Meta().User
	if room.MemberCount() == 0 {
		user.Role = domain.RoleModerator
	} else {
		user.Role = domain.RoleParticipant
	}
	room.AddMember(sid, sess)
	o.Registry.UpdateRoom(sid, roomName)
	o.Metrics.MemberJoined()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomName)).Str("role", string(user.Role)).Msg("added to room")

	o.broadcast(room, sid, protocol.MemberEvent{Type: protocol.TypeMemberJoined, User: MemberDTO(sess)})
	return room, nil
}

// Leave removes sid from its room. Media stays up so the client can join elsewhere.
func (o *Orchestrator) Leave(sid core.SessionID) bool {
	roomName, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return false
	}
	o.unsubscribeRoom(sid)

	room := o.Rooms.GetOrCreate(roomName)
	room.RemoveMember(sid)
	o.Registry.RemoveRoom(sid)
	o.Metrics.MemberLeft()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomName)).Msg("removed from room")

	left := MemberDTO(sess)
	o.broadcast(room, "", protocol.MemberEvent{Type: protocol.TypeMemberLeft, User: left})

	if room.MemberCount() == 0 {
		o.Rooms.StopRoom(roomName)
		return true
	}
	if left.Role == domain.RoleModerator {
		o.promote(room)
	}
	return true
}

// promote hands moderation to the longest present member.
func (o *Orchestrator) promote(room core.RoomService) {
	members := room.MembersSnapshot()
	if len(members) == 0 {
		return
	}
	sid, ok := room.SessionOf(members[0].ID)
	if !ok {
		return
	}
	sess, ok := room.Member(sid)
	if !ok {
		return
	}
	sess.Meta().User.Role = domain.RoleModerator
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("promoted to moderator")
	o.broadcast(room, "", protocol.MemberEvent{Type: protocol.TypeMemberRole, User: MemberDTO(sess)})
}

// Rename changes sid's display name and tells the room.
func (o *Orchestrator) Rename(sid core.SessionID, name string) error {
	if err := o.Registry.UpdateUsername(sid, name); err != nil {
		return err
	}
	roomName, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return nil
	}
	if room, ok := o.Rooms.Get(roomName); ok {
		o.broadcast(room, sid, protocol.MemberEvent{Type: protocol.TypeMemberUpdated, User: MemberDTO(sess)})
	}
	return nil
}

// Mute records the publisher's mute state, pauses its relay and tells the whole room,
// the publisher included.
func (o *Orchestrator) Mute(sid core.SessionID, kind domain.MediaKind, muted bool) error {
	if !kind.Valid() {
		return domain.ErrUnsupportedEvent
	}
	roomName, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return domain.ErrNotIdentified
	}
	sess.Meta().SetMuted(kind, muted)
	if o.Relays != nil {
		o.Relays.SetMuted(sid, kind, muted)
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return domain.ErrNotIdentified
	}
	o.Metrics.Relayed(protocol.TypeMute)
	o.broadcast(room, "", protocol.TrackMuted{
		Type:        protocol.TypeTrackMuted,
		Participant: sess.Meta().User.ID,
		Kind:        kind,
		Muted:       muted,
	})
	return nil
}

// KickBySID tears down sid's media and membership.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.cleanupMedia(sid)
	o.Leave(sid)
}

func (o *Orchestrator) EvictRoom(name domain.RoomName) int {
	snaps := o.Registry.MembersOfRoom(name)
	for _, snap := range snaps {
		o.Send(snap.SID, protocol.Simple(protocol.TypeLeft))
		o.KickBySID(snap.SID)
	}
	o.Rooms.StopRoom(name)
	return len(snaps)
}
