package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/protocol"
	"github.com/dkeye/calla/internal/transport"
)

func (c *Client) CreateLocalTrack(ctx context.Context, kind domain.MediaKind, deviceID string) (transport.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("create track: unknown kind %q", kind)
	}
	t, err := newLocalTrack(c, kind, deviceID)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("kind", string(kind)).Str("device", deviceID).Str("track", t.id).Msg("local track created")
	return t, nil
}

// AddTrack publishes t, replacing any local track of the same kind. Tracks added
// before the peer connection exists are attached when it is created.
func (c *Client) AddTrack(ctx context.Context, t transport.Track) error {
	lt, err := c.own(t)
	if err != nil {
		return err
	}
	lt.mu.Lock()
	disposed := lt.disposed
	lt.mu.Unlock()
	if disposed {
		return fmt.Errorf("add track %s: disposed", lt.id)
	}

	c.mu.Lock()
	old := c.local[lt.kind]
	c.local[lt.kind] = lt
	pc := c.pc
	c.mu.Unlock()

	if pc != nil {
		if old != nil && old != lt {
			c.detach(pc, old)
		}
		sender, err := pc.AddTrack(lt.rtp)
		if err != nil {
			return fmt.Errorf("add track %s: %w", lt.id, err)
		}
		lt.mu.Lock()
		lt.sender = sender
		lt.mu.Unlock()
		go drainRTCP(sender)
		if err := c.negotiate(); err != nil {
			return err
		}
	}
	c.emit(transport.TrackAdded{Track: lt})
	return ctx.Err()
}

func (c *Client) RemoveTrack(ctx context.Context, t transport.Track) error {
	lt, err := c.own(t)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.local[lt.kind] == lt {
		delete(c.local, lt.kind)
	}
	pc := c.pc
	c.mu.Unlock()

	if pc != nil && c.detach(pc, lt) {
		if err := c.negotiate(); err != nil {
			return err
		}
	}
	c.emit(transport.TrackRemoved{Track: lt})
	return ctx.Err()
}

func (c *Client) own(t transport.Track) (*localTrack, error) {
	lt, ok := t.(*localTrack)
	if !ok || lt.c != c {
		return nil, errForeignTrack
	}
	return lt, nil
}

// detach stops sending lt on pc and reports whether anything changed.
func (c *Client) detach(pc *webrtc.PeerConnection, lt *localTrack) bool {
	lt.mu.Lock()
	sender := lt.sender
	lt.sender = nil
	lt.mu.Unlock()
	if sender == nil {
		return false
	}
	if err := pc.RemoveTrack(sender); err != nil {
		c.logger.Warn().Err(err).Str("track", lt.id).Msg("remove sender")
		return false
	}
	return true
}

// drainRTCP keeps interceptors running until the sender stops.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// ensureMedia creates the peer connection once per join and makes the first offer.
func (c *Client) ensureMedia() error {
	c.negMu.Lock()
	defer c.negMu.Unlock()

	c.mu.Lock()
	if c.pc != nil || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(c.rtcCfg)
	if err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return fmt.Errorf("transceiver %s: %w", kind, err)
		}
	}
	pc.OnTrack(c.onTrack)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed {
			c.mediaFailed(pc)
		}
	})

	c.mu.Lock()
	c.pc = pc
	locals := make([]*localTrack, 0, len(c.local))
	for _, lt := range c.local {
		locals = append(locals, lt)
	}
	c.mu.Unlock()

	for _, lt := range locals {
		sender, err := pc.AddTrack(lt.rtp)
		if err != nil {
			c.logger.Warn().Err(err).Str("track", lt.id).Msg("attach local track")
			continue
		}
		lt.mu.Lock()
		lt.sender = sender
		lt.mu.Unlock()
		go drainRTCP(sender)
	}
	return c.offerLocked(pc)
}

func (c *Client) mediaFailed(pc *webrtc.PeerConnection) {
	c.mu.Lock()
	conn := c.conn
	current := c.pc == pc
	c.mu.Unlock()
	if !current {
		return
	}
	if c.teardown(conn) {
		c.emit(transport.ConnectionFailed{Err: errors.New("peer connection failed")})
	}
}

func (c *Client) negotiate() error {
	c.negMu.Lock()
	defer c.negMu.Unlock()
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return nil
	}
	return c.offerLocked(pc)
}

// offerLocked sends a complete offer, ICE candidates included. Caller holds negMu.
func (c *Client) offerLocked(pc *webrtc.PeerConnection) error {
	if pc.SignalingState() != webrtc.SignalingStateStable {
		c.renegotiate = true
		return nil
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set offer: %w", err)
	}
	<-gatherComplete
	return c.send(protocol.SDP{Type: protocol.TypeOffer, SDP: pc.LocalDescription().SDP})
}

// onOffer answers a relay offer. While our own offer is pending the relay yields, so
// its offer is ignored here and redone after our answer lands.
func (c *Client) onOffer(sdp string) {
	c.negMu.Lock()
	defer c.negMu.Unlock()
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}
	if pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		c.logger.Debug().Msg("offer collision, keeping ours")
		return
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		c.logger.Error().Err(err).Msg("apply relay offer")
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		c.logger.Error().Err(err).Msg("create answer")
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		c.logger.Error().Err(err).Msg("set answer")
		return
	}
	<-gatherComplete
	if err := c.send(protocol.SDP{Type: protocol.TypeAnswer, SDP: pc.LocalDescription().SDP}); err != nil {
		c.logger.Warn().Err(err).Msg("send answer")
		return
	}
	c.flushRenegotiation(pc)
}

func (c *Client) onAnswer(sdp string) {
	c.negMu.Lock()
	defer c.negMu.Unlock()
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		c.logger.Error().Err(err).Msg("apply relay answer")
		return
	}
	c.flushRenegotiation(pc)
}

func (c *Client) flushRenegotiation(pc *webrtc.PeerConnection) {
	if !c.renegotiate {
		return
	}
	c.renegotiate = false
	if err := c.offerLocked(pc); err != nil {
		c.logger.Error().Err(err).Msg("renegotiate")
	}
}

func (c *Client) onCandidate(cand protocol.Candidate) {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}
	init := webrtc.ICECandidateInit{Candidate: cand.Candidate, SDPMLineIndex: &cand.SDPMLineIndex}
	if cand.SDPMid != "" {
		init.SDPMid = &cand.SDPMid
	}
	if err := pc.AddICECandidate(init); err != nil {
		c.logger.Debug().Err(err).Msg("add ice candidate")
	}
}

// onTrack maps a forwarded track onto its publisher: the relay sets the stream ID to
// the publisher's identity and the track ID to its kind.
func (c *Client) onTrack(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind, err := domain.ParseMediaKind(tr.Kind().String())
	if err != nil {
		c.logger.Warn().Err(err).Msg("remote track of unknown kind")
		return
	}
	participant := domain.ParticipantID(tr.StreamID())
	key := remoteKey{participant, kind}

	c.mu.Lock()
	rt := newRemoteTrack(participant, kind, tr, c.muted[key])
	c.remote[key] = rt
	c.mu.Unlock()

	go drainRTP(tr)
	c.logger.Info().Str("participant", string(participant)).Str("kind", string(kind)).Msg("remote track")
	c.emit(transport.TrackAdded{Track: rt})
}

// drainRTP consumes packets until the track ends. Decoding is the renderer's concern.
func drainRTP(tr *webrtc.TrackRemote) {
	for {
		if _, _, err := tr.ReadRTP(); err != nil {
			return
		}
	}
}
