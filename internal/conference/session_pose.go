package conference

import (
	"context"
	"errors"

	"github.com/dkeye/calla/internal/domain"
)

var errNonFinitePose = errors.New("position must be finite")

// SetLocalPosition moves the listener and sends the new pose to every known peer.
func (s *Session) SetLocalPosition(ctx context.Context, x, y, z float64) error {
	pose := domain.NewPose(x, y, z)
	if !pose.Finite() {
		return errNonFinitePose
	}
	var err error
	if xerr := s.exec(ctx, func() {
		s.scene.SetListenerPosition(pose)
		err = s.broadcast(cmdUserMoved, newPosePayload(pose))
	}); xerr != nil {
		return xerr
	}
	return err
}

// SetUserPosition applies a remote pose locally without sending anything.
// It reports false when the participant is unknown or the pose is not finite.
func (s *Session) SetUserPosition(ctx context.Context, id domain.ParticipantID, x, y, z float64) (bool, error) {
	var ok bool
	err := s.exec(ctx, func() { ok = s.applyPose(id, domain.NewPose(x, y, z)) })
	return ok, err
}

// LocalPosition is the current listener pose.
func (s *Session) LocalPosition(ctx context.Context) (domain.Pose, error) {
	var p domain.Pose
	err := s.exec(ctx, func() { p = s.scene.ListenerPosition() })
	return p, err
}

// UserPosition is the last pose applied for a remote participant.
func (s *Session) UserPosition(ctx context.Context, id domain.ParticipantID) (domain.Pose, bool, error) {
	var (
		p  domain.Pose
		ok bool
	)
	err := s.exec(ctx, func() { p, ok = s.scene.Position(id) })
	return p, ok, err
}

// UserInitRequestAsync asks a peer for its pose and waits for a finite answer.
func (s *Session) UserInitRequestAsync(ctx context.Context, to domain.ParticipantID) (domain.Pose, error) {
	resp, err := waitFor(ctx, s, EventUserInitResponse,
		func(e UserInitResponse) bool { return e.ID == to && e.Pose.Finite() },
		s.handshakeTimeout,
		func() error {
			var err error
			if xerr := s.exec(ctx, func() { err = s.send(to, cmdUserInitRequest, nil) }); xerr != nil {
				return xerr
			}
			return err
		})
	if err != nil {
		return domain.Pose{}, err
	}
	return resp.Pose, nil
}
