// Package orch ties the registry, rooms and relays together. Adapters call it; it never
// reads from a connection itself.
package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/app"
	"github.com/dkeye/calla/internal/app/sfu"
	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/metrics"
	"github.com/dkeye/calla/internal/protocol"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Relays   *sfu.RelayManager
	Metrics  *metrics.Server
}

// New builds an orchestrator and hooks relay shutdown into it.
func New(reg *app.Registry, rooms core.RoomManager, policy app.Policy, relays *sfu.RelayManager, m *metrics.Server) *Orchestrator {
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Relays:   relays,
		Metrics:  m,
	}
	if relays != nil {
		relays.OnStop(o.onRelayStop)
	}
	return o
}

// Send writes one frame to sid. A full queue is logged and dropped.
func (o *Orchestrator) Send(sid core.SessionID, v any) bool {
	sess, ok := o.Registry.GetSession(sid)
	if !ok || sess.Signal() == nil {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal frame")
		return false
	}
	if err := sess.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("send dropped")
		return false
	}
	return true
}

// broadcast sends v to everyone in room except from and applies the backpressure policy.
func (o *Orchestrator) broadcast(room core.RoomService, from core.SessionID, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal frame")
		return
	}
	o.handleDropped(room, room.Broadcast(from, data))
}

func (o *Orchestrator) handleDropped(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	roomName := room.Room().Name
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOfRoom(roomName) {
				if snap.Session == slow {
					o.Metrics.Rejected("backpressure")
					o.KickBySID(snap.SID)
					o.Registry.Cancel(snap.SID)
				}
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// Forward relays an application message from sid. The sender is stamped by the server;
// an empty To reaches every other member of the room.
func (o *Orchestrator) Forward(sid core.SessionID, msg protocol.Data) error {
	roomName, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return domain.ErrNotIdentified
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return domain.ErrNotIdentified
	}
	msg.Type = protocol.TypeMessage
	msg.From = sess.Meta().User.ID
	to := msg.To
	msg.To = ""

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	o.Metrics.Relayed(protocol.TypeMessage)
	if to == "" {
		o.handleDropped(room, room.Broadcast(sid, data))
		return nil
	}
	return room.SendTo(to, data)
}
