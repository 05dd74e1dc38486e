package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// ApplyOfferAndCreateAnswer handles a client offer. A pending server offer is rolled back.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// CreateAndSetOffer starts a server side renegotiation. It returns nil while an
	// earlier offer is still unanswered; that offer is redone after ApplyAnswer.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyAnswer completes a server offer and reports whether another one is due.
	ApplyAnswer(webrtc.SessionDescription) (bool, error)
	// TakePendingOffer reports and clears an offer deferred by a collision.
	TakePendingOffer() bool
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// AddLocalTrack attaches a local static RTP track to the underlying PeerConnection.
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	RemoveSender(sender *webrtc.RTPSender) error
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}
