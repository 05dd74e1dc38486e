package orch

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/app/sfu"
	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/protocol"
)

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, sid, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(sid) })
}

func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID) {
	o.cleanupMedia(sid)
}

func (o *Orchestrator) cleanupMedia(sid core.SessionID) {
	if o.Relays != nil {
		o.Relays.StopRelay(sid)
		for _, snap := range o.Registry.RoomMates(sid) {
			o.Relays.MarkSubscriberDelete(snap.SID, sid)
		}
	}
	if sess, ok := o.Registry.GetSession(sid); ok {
		if mc := sess.Media(); mc != nil {
			mc.Close()
		}
	}
}

// unsubscribeRoom cuts every forwarding path between sid and its room mates.
func (o *Orchestrator) unsubscribeRoom(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	own := sess.Media()
	changedOwn := false
	for _, snap := range o.Registry.RoomMates(sid) {
		if o.Relays.Unsubscribe(snap.SID, sid, own) {
			changedOwn = true
		}
		if o.Relays.Unsubscribe(sid, snap.SID, snap.Session.Media()) {
			o.Renegotiate(snap.SID)
		}
	}
	if changedOwn {
		o.Renegotiate(sid)
	}
}

// OnTrack is called when a new remote media track appears for a given session.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok || sess.Media() == nil {
		return
	}
	kind, err := o.Relays.StartRelay(ctx, sid, track)
	if err != nil {
		log.Warn().Err(err).Str("module", "sfu").Str("sid", string(sid)).Msg("relay not started")
		return
	}
	if sess.Meta().IsMuted(kind) {
		o.Relays.SetMuted(sid, kind, true)
	}

	mates := o.Registry.RoomMates(sid)
	if len(mates) == 0 {
		log.Info().Str("module", "sfu").Str("sid", string(sid)).Msg("OnTrack: nobody to forward to")
		return
	}
	streamID := string(sess.Meta().User.ID)
	for _, snap := range mates {
		mc := snap.Session.Media()
		if mc == nil || mc.IsClosed() {
			continue
		}
		if err := o.Relays.Subscribe(sid, kind, streamID, snap.SID, mc); err != nil {
			log.Warn().Err(err).Str("module", "sfu").Str("dst", string(snap.SID)).Msg("subscribe failed")
			continue
		}
		o.Renegotiate(snap.SID)
	}
}

// OnMediaReady wires sid into its room in both directions: it subscribes to every
// mate's relays and every mate subscribes to sid's.
func (o *Orchestrator) OnMediaReady(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	mc := sess.Media()
	if mc == nil || mc.IsClosed() {
		return
	}

	changed := false
	for _, snap := range o.Registry.RoomMates(sid) {
		mateID := string(snap.Session.Meta().User.ID)
		for _, kind := range o.Relays.Kinds(snap.SID) {
			if err := o.Relays.Subscribe(snap.SID, kind, mateID, sid, mc); err != nil {
				log.Warn().Err(err).Str("module", "sfu").Str("src", string(snap.SID)).Msg("subscribe failed")
				continue
			}
			changed = true
		}

		mateMC := snap.Session.Media()
		if mateMC == nil || mateMC.IsClosed() {
			continue
		}
		mateChanged := false
		for _, kind := range o.Relays.Kinds(sid) {
			if err := o.Relays.Subscribe(sid, kind, string(sess.Meta().User.ID), snap.SID, mateMC); err != nil {
				log.Warn().Err(err).Str("module", "sfu").Str("dst", string(snap.SID)).Msg("subscribe failed")
				continue
			}
			mateChanged = true
		}
		if mateChanged {
			o.Renegotiate(snap.SID)
		}
	}
	if changed {
		o.Renegotiate(sid)
	}
}

// Renegotiate sends a server offer to sid. An offer already in flight is redone once
// its answer arrives.
func (o *Orchestrator) Renegotiate(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	mc := sess.Media()
	if mc == nil || mc.IsClosed() {
		return
	}
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "sfu").Str("sid", string(sid)).Msg("create offer")
		return
	}
	if offer == nil {
		return
	}
	o.Send(sid, protocol.SDP{Type: protocol.TypeOffer, SDP: offer.SDP})
}

// HandleAnswer applies the client's answer to a server offer.
func (o *Orchestrator) HandleAnswer(sid core.SessionID, sdp string) error {
	sess, ok := o.Registry.GetSession(sid)
	if !ok || sess.Media() == nil {
		return domain.ErrNotConnected
	}
	again, err := sess.Media().ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		return err
	}
	if again {
		o.Renegotiate(sid)
	}
	return nil
}

// onRelayStop detaches a finished publisher track from its subscribers.
func (o *Orchestrator) onRelayStop(sid core.SessionID, kind domain.MediaKind, subs map[core.SessionID]*sfu.OutTrack) {
	var participant domain.UserID
	if sess, ok := o.Registry.GetSession(sid); ok {
		participant = sess.Meta().User.ID
	}
	for dst, ot := range subs {
		sess, ok := o.Registry.GetSession(dst)
		if !ok {
			continue
		}
		if mc := sess.Media(); mc != nil && !mc.IsClosed() && ot.Sender != nil {
			if err := mc.RemoveSender(ot.Sender); err != nil {
				log.Warn().Err(err).Str("module", "sfu").Str("dst", string(dst)).Msg("remove sender")
			} else {
				o.Renegotiate(dst)
			}
		}
		if participant != "" {
			o.Send(dst, protocol.TrackRemoved{Type: protocol.TypeTrackRemoved, Participant: participant, Kind: kind})
		}
	}
}
