package signal

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/app/orch"
	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/protocol"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	name := strings.TrimSpace(p.Room)
	if name == "" || len(name) > domain.MaxRoomNameLen {
		ctl.sendError(conn, "invalid_room")
		return
	}

	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.Meta().User.ID) {
		ctl.Orch.Metrics.Rejected("rate_limited")
		ctl.sendError(conn, "rate_limited")
		return
	}
	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
			ctl.sendError(conn, "invalid_name")
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename on join")
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", name).Msg("join")
	room, err := ctl.Orch.Join(sid, domain.RoomName(name))
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	ctl.sendJSON(conn, protocol.RoomState{
		Type:     protocol.TypeRoomState,
		Room:     room.Room().ID,
		RoomName: room.Room().Name,
		Self:     orch.MemberDTO(sess),
		Members:  room.MembersSnapshot(),
		Count:    room.MemberCount(),
	})
	ctl.Orch.OnMediaReady(sid)
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
	ctl.sendJSON(conn, protocol.Simple(protocol.TypeLeft))
}

func (ctl *SignalWSController) handleMessage(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Data
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad message payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	err := ctl.Orch.Forward(sid, p)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotIdentified):
		ctl.sendError(conn, "not_in_room")
	default:
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("to", string(p.To)).Msg("message not delivered")
		ctl.sendError(conn, "not_delivered")
	}
}

func (ctl *SignalWSController) handleMute(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Mute
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if err := ctl.Orch.Mute(sid, p.Kind, p.Muted); err != nil {
		ctl.sendError(conn, err.Error())
	}
}
