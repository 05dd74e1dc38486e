package sfu

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/calla/internal/core"
	"github.com/dkeye/calla/internal/domain"
)

// Relay forwards one published track to every subscriber.
type Relay struct {
	Src  *webrtc.TrackRemote
	Kind domain.MediaKind

	mu        sync.RWMutex
	outTracks map[core.SessionID]*OutTrack
	muted     atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(src *webrtc.TrackRemote, kind domain.MediaKind, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		Kind:      kind,
		outTracks: make(map[core.SessionID]*OutTrack),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	snapshot := make(map[core.SessionID]*OutTrack, len(r.outTracks))
	r.mu.RLock()
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]core.SessionID, 0, len(snapshot))
	for dstSID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dstSID)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("dst_sid", string(dstSID)).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, dstSID)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sid := range dirty {
		if ot, ok := r.outTracks[sid]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, sid)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(dst core.SessionID, ot *OutTrack) {
	if r.muted.Load() {
		ot.MarkMuted()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.outTracks[dst]; ok {
		old.MarkDelete()
	}
	r.outTracks[dst] = ot
}

// RemoveOutTrack detaches the subscriber and returns its track, if any.
func (r *Relay) RemoveOutTrack(dst core.SessionID) (*OutTrack, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ot, ok := r.outTracks[dst]
	if ok {
		ot.MarkDelete()
		delete(r.outTracks, dst)
	}
	return ot, ok
}

// drain detaches and returns every subscriber.
func (r *Relay) drain() map[core.SessionID]*OutTrack {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.outTracks
	r.outTracks = make(map[core.SessionID]*OutTrack)
	return out
}

func (r *Relay) SetMuted(muted bool) {
	r.muted.Store(muted)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ot := range r.outTracks {
		if muted {
			ot.MarkMuted()
		} else {
			ot.MarkOk()
		}
	}
}

func (r *Relay) Subscribers() []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SessionID, 0, len(r.outTracks))
	for sid := range r.outTracks {
		out = append(out, sid)
	}
	return out
}
