package client

import (
	"context"
	"encoding/json"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/protocol"
	"github.com/dkeye/calla/internal/transport"
)

// Join asks the relay for room. The identity arrives with the room state as a
// JoinedConference event.
func (c *Client) Join(ctx context.Context, room, displayName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.name = displayName
	c.mu.Unlock()
	return c.send(protocol.Join{Type: protocol.TypeJoin, Room: room, Name: displayName})
}

func (c *Client) Leave(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(protocol.Simple(protocol.TypeLeave))
}

func (c *Client) SetDisplayName(name string) error {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return c.send(protocol.Rename{Type: protocol.TypeRename, Name: name})
}

func (c *Client) SendMessage(to domain.ParticipantID, data []byte) error {
	return c.send(protocol.Data{Type: protocol.TypeMessage, To: domain.UserID(to), Data: data})
}

func (c *Client) handleFrame(data []byte) {
	typ, err := protocol.PeekType(data)
	if err != nil {
		c.logger.Debug().Err(err).Msg("bad frame")
		return
	}
	switch typ {
	case protocol.TypeRoomState:
		var st protocol.RoomState
		if c.decode(data, &st) {
			c.onRoomState(st)
		}
	case protocol.TypeLeft:
		c.onLeft()
	case protocol.TypeMemberJoined, protocol.TypeMemberLeft, protocol.TypeMemberUpdated, protocol.TypeMemberRole:
		var ev protocol.MemberEvent
		if c.decode(data, &ev) {
			c.onMember(typ, ev.User)
		}
	case protocol.TypeMessage:
		var msg protocol.Data
		if c.decode(data, &msg) {
			c.emit(transport.MessageReceived{From: domain.ParticipantID(msg.From), Data: msg.Data})
		}
	case protocol.TypeTrackMuted:
		var ev protocol.TrackMuted
		if c.decode(data, &ev) {
			c.onTrackMuted(ev)
		}
	case protocol.TypeTrackRemoved:
		var ev protocol.TrackRemoved
		if c.decode(data, &ev) {
			c.onTrackRemoved(domain.ParticipantID(ev.Participant), ev.Kind)
		}
	case protocol.TypeOffer:
		var sdp protocol.SDP
		if c.decode(data, &sdp) {
			c.onOffer(sdp.SDP)
		}
	case protocol.TypeAnswer:
		var sdp protocol.SDP
		if c.decode(data, &sdp) {
			c.onAnswer(sdp.SDP)
		}
	case protocol.TypeCandidate:
		var cand protocol.Candidate
		if c.decode(data, &cand) {
			c.onCandidate(cand)
		}
	case protocol.TypeError:
		var e protocol.Error
		if c.decode(data, &e) {
			c.logger.Warn().Str("error", e.Error).Msg("relay refused request")
		}
	default:
		c.logger.Debug().Str("type", typ).Msg("ignored frame")
	}
}

func (c *Client) decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Debug().Err(err).Msg("bad frame payload")
		return false
	}
	return true
}

func (c *Client) onRoomState(st protocol.RoomState) {
	c.mu.Lock()
	c.self = st.Self.ID
	c.joined = true
	c.mu.Unlock()

	c.logger.Info().Str("room", string(st.RoomName)).Str("self", string(st.Self.ID)).Int("count", st.Count).Msg("joined room")
	c.emit(transport.JoinedConference{LocalID: domain.ParticipantID(st.Self.ID), DisplayName: st.Self.Username})
	if st.Self.Role != "" {
		c.emit(transport.RoleChanged{ID: domain.ParticipantID(st.Self.ID), Role: st.Self.Role})
	}
	for _, m := range st.Members {
		if m.ID == st.Self.ID {
			continue
		}
		c.emit(transport.PeerJoined{ID: domain.ParticipantID(m.ID), DisplayName: m.Username})
		if m.Role != "" {
			c.emit(transport.RoleChanged{ID: domain.ParticipantID(m.ID), Role: m.Role})
		}
	}
	if err := c.ensureMedia(); err != nil {
		c.logger.Error().Err(err).Msg("media setup failed")
	}
}

func (c *Client) onLeft() {
	c.mu.Lock()
	was := c.joined
	c.joined = false
	c.self = ""
	c.remote = make(map[remoteKey]*remoteTrack)
	c.muted = make(map[remoteKey]bool)
	c.mu.Unlock()
	if was {
		c.emit(transport.LeftConference{})
	}
}

func (c *Client) onMember(typ string, m protocol.MemberDTO) {
	id := domain.ParticipantID(m.ID)
	switch typ {
	case protocol.TypeMemberJoined:
		c.emit(transport.PeerJoined{ID: id, DisplayName: m.Username})
	case protocol.TypeMemberLeft:
		c.mu.Lock()
		for key := range c.remote {
			if key.participant == id {
				delete(c.remote, key)
				delete(c.muted, key)
			}
		}
		c.mu.Unlock()
		c.emit(transport.PeerLeft{ID: id})
	case protocol.TypeMemberUpdated:
		c.emit(transport.PeerRenamed{ID: id, DisplayName: m.Username})
	case protocol.TypeMemberRole:
		c.emit(transport.RoleChanged{ID: id, Role: m.Role})
	}
}

func (c *Client) onTrackMuted(ev protocol.TrackMuted) {
	c.mu.Lock()
	if ev.Participant == c.self {
		lt := c.local[ev.Kind]
		c.mu.Unlock()
		if lt == nil {
			return
		}
		lt.setMuted(ev.Muted)
		c.emit(transport.TrackMuteChanged{Track: lt, Muted: ev.Muted})
		return
	}
	key := remoteKey{domain.ParticipantID(ev.Participant), ev.Kind}
	c.muted[key] = ev.Muted
	rt := c.remote[key]
	c.mu.Unlock()
	if rt == nil {
		return
	}
	rt.setMuted(ev.Muted)
	c.emit(transport.TrackMuteChanged{Track: rt, Muted: ev.Muted})
}

func (c *Client) onTrackRemoved(participant domain.ParticipantID, kind domain.MediaKind) {
	key := remoteKey{participant, kind}
	c.mu.Lock()
	rt := c.remote[key]
	delete(c.remote, key)
	c.mu.Unlock()
	if rt != nil {
		c.emit(transport.TrackRemoved{Track: rt})
	}
}

// requestMute sends a mute request while joined. Before that the change is local only.
func (c *Client) requestMute(t *localTrack, muted bool) error {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		t.setMuted(muted)
		c.emit(transport.TrackMuteChanged{Track: t, Muted: muted})
		return nil
	}
	return c.send(protocol.Mute{Type: protocol.TypeMute, Kind: t.kind, Muted: muted})
}
