package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/calla/internal/adapters/rtc"
	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/protocol"
)

func (ctl *SignalWSController) sendCandidate(c *WsSignalConn, ci webrtc.ICECandidateInit) {
	resp := protocol.Candidate{
		Type:      protocol.TypeCandidate,
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

// handleOffer answers a client offer. The first offer creates the peer connection;
// later ones renegotiate it.
func (ctl *SignalWSController) handleOffer(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}

	mc := sess.Media()
	fresh := mc == nil || mc.IsClosed()
	if fresh {
		wc, err := rtc.NewWebRTCConnection(ctl.RTC, sid)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
			ctl.sendError(conn, "webrtc_failed")
			return
		}
		wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
			ctl.sendCandidate(conn, ci)
		})
		ctl.Orch.BindMediaHandlers(wc, sid)
		if err := wc.Start(conn.ctx); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
			wc.Close()
			return
		}
		mc = wc
		sess.UpdateMedia(wc)
	}

	answer, err := mc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		ctl.sendError(conn, "bad_offer")
		if fresh {
			mc.Close()
		}
		return
	}
	ctl.sendJSON(conn, protocol.SDP{Type: protocol.TypeAnswer, SDP: answer.SDP})

	if fresh {
		ctl.Orch.OnMediaReady(sid)
	} else if mc.TakePendingOffer() {
		ctl.Orch.Renegotiate(sid)
	}
}

func (ctl *SignalWSController) handleAnswer(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if err := ctl.Orch.HandleAnswer(sid, p.SDP); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("apply answer")
		ctl.sendError(conn, "bad_answer")
	}
}

func (ctl *SignalWSController) handleCandidate(
	sid core.SessionID,
	_ *WsSignalConn,
	data []byte,
) {
	var p protocol.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no session for")
		return
	}
	mc := sess.Media()
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no media connection for")
		return
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
