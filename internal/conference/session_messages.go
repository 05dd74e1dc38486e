package conference

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dkeye/calla/internal/conference/envelope"
	"github.com/dkeye/calla/internal/domain"
)

// Commands exchanged between peers over the transport message channel.
const (
	cmdUserMoved        = "userMoved"
	cmdUserInitRequest  = "userInitRequest"
	cmdUserInitResponse = "userInitResponse"
	cmdEmote            = "emote"
	cmdSetAvatarEmoji   = "setAvatarEmoji"
	cmdAvatarChanged    = "avatarChanged"
	cmdAudioActivity    = "audioActivity"
)

// posePayload uses pointers so a missing coordinate is told apart from zero.
type posePayload struct {
	X *float64 `json:"x" msgpack:"x"`
	Y *float64 `json:"y" msgpack:"y"`
	Z *float64 `json:"z" msgpack:"z"`
}

func newPosePayload(p domain.Pose) posePayload {
	return posePayload{X: &p.X, Y: &p.Y, Z: &p.Z}
}

func (p posePayload) pose() (domain.Pose, bool) {
	if p.X == nil || p.Y == nil || p.Z == nil {
		return domain.Pose{}, false
	}
	pose := domain.NewPose(*p.X, *p.Y, *p.Z)
	return pose, pose.Finite()
}

type emojiPayload struct {
	Emoji string `json:"emoji" msgpack:"emoji"`
}

type avatarPayload struct {
	URL string `json:"url" msgpack:"url"`
}

type activityPayload struct {
	Active bool `json:"isActive" msgpack:"isActive"`
}

// decode turns an inbound message into an event. Foreign and malformed messages are
// dropped here and never reach listeners.
func (s *Session) decode(from domain.ParticipantID, data []byte) (Event, bool) {
	msg, err := s.codec.Decode(data)
	if err != nil {
		s.metrics.MessageDropped("foreign")
		s.logger.Debug().Str("participant", from.String()).Msg("foreign message dropped")
		return nil, false
	}

	var ev Event
	switch msg.Command {
	case cmdUserMoved, cmdUserInitResponse:
		var p posePayload
		if err := msg.Bind(&p); err != nil {
			break
		}
		pose, ok := p.pose()
		if !ok {
			break
		}
		if msg.Command == cmdUserMoved {
			ev = UserMoved{ID: from, Pose: pose}
		} else {
			ev = UserInitResponse{ID: from, Pose: pose}
		}
	case cmdUserInitRequest:
		ev = UserInitRequest{ID: from}
	case cmdEmote, cmdSetAvatarEmoji:
		var p emojiPayload
		if err := msg.Bind(&p); err != nil {
			break
		}
		if msg.Command == cmdEmote {
			ev = Emote{ID: from, Emoji: p.Emoji}
		} else {
			ev = SetAvatarEmoji{ID: from, Emoji: p.Emoji}
		}
	case cmdAvatarChanged:
		var p avatarPayload
		if err := msg.Bind(&p); err == nil {
			ev = AvatarChanged{ID: from, URL: p.URL}
		}
	case cmdAudioActivity:
		var p activityPayload
		if err := msg.Bind(&p); err == nil {
			ev = AudioActivity{ID: from, Active: p.Active}
		}
	default:
		s.metrics.MessageDropped("unknown")
		s.logger.Debug().Str("participant", from.String()).Str("command", msg.Command).Msg("unknown command dropped")
		return nil, false
	}
	if ev == nil {
		s.metrics.MessageDropped("malformed")
		s.logger.Debug().Str("participant", from.String()).Str("command", msg.Command).Msg("malformed payload dropped")
		return nil, false
	}
	return ev, true
}

func (s *Session) send(to domain.ParticipantID, command string, value any) error {
	data, err := s.codec.Encode(command, value)
	if err != nil {
		return err
	}
	if err := s.tr.SendMessage(to, data); err != nil {
		return fmt.Errorf("send %s to %s: %w", command, to, err)
	}
	return nil
}

// broadcast sends one message per known peer.
func (s *Session) broadcast(command string, value any) error {
	data, err := s.codec.Encode(command, value)
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for id := range s.peers {
		if err := s.tr.SendMessage(id, data); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("send %s to %s: %w", command, id, err))
		}
	}
	return errs.ErrorOrNil()
}

// announce broadcasts a local change and dispatches it to our own listeners as well.
func (s *Session) announce(ctx context.Context, command string, value any, ev Event) error {
	var err error
	if xerr := s.exec(ctx, func() {
		if !s.seq.Identified() {
			err = domain.ErrNotIdentified
			return
		}
		err = s.broadcast(command, value)
		s.seq.Push(ev)
	}); xerr != nil {
		return xerr
	}
	return err
}

func (s *Session) Emote(ctx context.Context, emoji string) error {
	return s.announce(ctx, cmdEmote, emojiPayload{Emoji: emoji}, Emote{ID: domain.LocalParticipant, Emoji: emoji})
}

func (s *Session) SetAvatarEmoji(ctx context.Context, emoji string) error {
	return s.announce(ctx, cmdSetAvatarEmoji, emojiPayload{Emoji: emoji}, SetAvatarEmoji{ID: domain.LocalParticipant, Emoji: emoji})
}

func (s *Session) SetAvatarURL(ctx context.Context, url string) error {
	return s.announce(ctx, cmdAvatarChanged, avatarPayload{URL: url}, AvatarChanged{ID: domain.LocalParticipant, URL: url})
}

func (s *Session) SetAudioActivity(ctx context.Context, active bool) error {
	return s.announce(ctx, cmdAudioActivity, activityPayload{Active: active}, AudioActivity{ID: domain.LocalParticipant, Active: active})
}

func (s *Session) Connect(ctx context.Context) error {
	if err := s.tr.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Join asks the transport to join room. The local identity arrives later as a
// videoConferenceJoined event.
func (s *Session) Join(ctx context.Context, room, displayName string) error {
	if err := s.tr.Join(ctx, room, displayName); err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	return nil
}

func (s *Session) Leave(ctx context.Context) error {
	if err := s.tr.Leave(ctx); err != nil && !errors.Is(err, domain.ErrNotConnected) {
		return fmt.Errorf("leave: %w", err)
	}
	return nil
}

func (s *Session) SetDisplayName(name string) error {
	return s.tr.SetDisplayName(name)
}

// Codec exposes the envelope format in use.
func (s *Session) Codec() *envelope.Codec { return s.codec }
