package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/protocol"
)

func (ctl *SignalWSController) handleRename(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Rename
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	if err := ctl.Orch.Rename(sid, p.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}
	ctl.handleWhoAmI(sid, conn)
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	resp := protocol.WhoAmI{
		Type:     protocol.TypeWhoAmI,
		ID:       user.ID,
		Username: user.Username,
	}
	if roomName, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.Room = roomName
	}
	ctl.sendJSON(conn, resp)
}
