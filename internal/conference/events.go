package conference

import (
	"fmt"

	"github.com/dkeye/calla/internal/devices"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

// EventName is the name application listeners subscribe to.
type EventName string

const (
	EventUserMoved                   EventName = "userMoved"
	EventEmote                       EventName = "emote"
	EventUserInitRequest             EventName = "userInitRequest"
	EventUserInitResponse            EventName = "userInitResponse"
	EventAudioMuteStatusChanged      EventName = "audioMuteStatusChanged"
	EventVideoMuteStatusChanged      EventName = "videoMuteStatusChanged"
	EventLocalAudioMuteStatusChanged EventName = "localAudioMuteStatusChanged"
	EventLocalVideoMuteStatusChanged EventName = "localVideoMuteStatusChanged"
	EventConferenceJoined            EventName = "videoConferenceJoined"
	EventConferenceLeft              EventName = "videoConferenceLeft"
	EventParticipantJoined           EventName = "participantJoined"
	EventParticipantLeft             EventName = "participantLeft"
	EventAvatarChanged               EventName = "avatarChanged"
	EventDisplayNameChange           EventName = "displayNameChange"
	EventAudioActivity               EventName = "audioActivity"
	EventSetAvatarEmoji              EventName = "setAvatarEmoji"
	EventDeviceListChanged           EventName = "deviceListChanged"
	EventParticipantRoleChanged      EventName = "participantRoleChanged"
	EventAudioAdded                  EventName = "audioAdded"
	EventVideoAdded                  EventName = "videoAdded"
	EventAudioRemoved                EventName = "audioRemoved"
	EventVideoRemoved                EventName = "videoRemoved"
	EventAudioChanged                EventName = "audioChanged"
	EventVideoChanged                EventName = "videoChanged"
)

var supportedEvents = map[EventName]struct{}{
	EventUserMoved: {}, EventEmote: {}, EventUserInitRequest: {}, EventUserInitResponse: {},
	EventAudioMuteStatusChanged: {}, EventVideoMuteStatusChanged: {},
	EventLocalAudioMuteStatusChanged: {}, EventLocalVideoMuteStatusChanged: {},
	EventConferenceJoined: {}, EventConferenceLeft: {},
	EventParticipantJoined: {}, EventParticipantLeft: {},
	EventAvatarChanged: {}, EventDisplayNameChange: {}, EventAudioActivity: {}, EventSetAvatarEmoji: {},
	EventDeviceListChanged: {}, EventParticipantRoleChanged: {},
	EventAudioAdded: {}, EventVideoAdded: {}, EventAudioRemoved: {}, EventVideoRemoved: {},
	EventAudioChanged: {}, EventVideoChanged: {},
}

// ParseEventName accepts only names a listener can be registered for.
func ParseEventName(s string) (EventName, error) {
	n := EventName(s)
	if _, ok := supportedEvents[n]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedEvent, s)
	}
	return n, nil
}

// SupportedEvents lists every listenable name.
func SupportedEvents() []EventName {
	out := make([]EventName, 0, len(supportedEvents))
	for n := range supportedEvents {
		out = append(out, n)
	}
	return out
}

// Event is the closed set of application events.
type Event interface {
	Name() EventName
	sealed()
}

// participantEvent is implemented by events that name a participant. Those carrying a
// local alias are rewritten to the local identity before dispatch.
type participantEvent interface {
	Event
	Participant() domain.ParticipantID
	withParticipant(id domain.ParticipantID) Event
}

type UserMoved struct {
	ID   domain.ParticipantID
	Pose domain.Pose
}

type Emote struct {
	ID    domain.ParticipantID
	Emoji string
}

type UserInitRequest struct {
	ID domain.ParticipantID
}

type UserInitResponse struct {
	ID   domain.ParticipantID
	Pose domain.Pose
}

// MuteStatusChanged reports a track mute change. Local is set on the extra copy
// dispatched when the track belongs to this session.
type MuteStatusChanged struct {
	ID    domain.ParticipantID
	Kind  domain.MediaKind
	Muted bool
	Local bool
}

// ConferenceJoined carries the identity the transport assigned to this session.
type ConferenceJoined struct {
	ID          domain.ParticipantID
	DisplayName string
}

type ConferenceLeft struct{}

type ParticipantJoined struct {
	ID          domain.ParticipantID
	DisplayName string
}

type ParticipantLeft struct {
	ID domain.ParticipantID
}

type AvatarChanged struct {
	ID  domain.ParticipantID
	URL string
}

type DisplayNameChanged struct {
	ID          domain.ParticipantID
	DisplayName string
}

type AudioActivity struct {
	ID     domain.ParticipantID
	Active bool
}

type SetAvatarEmoji struct {
	ID    domain.ParticipantID
	Emoji string
}

type DeviceListChanged struct {
	Devices []devices.Device
}

type ParticipantRoleChanged struct {
	ID   domain.ParticipantID
	Role domain.Role
}

type TrackAdded struct {
	ID    domain.ParticipantID
	Kind  domain.MediaKind
	Track transport.Track
}

type TrackRemoved struct {
	ID    domain.ParticipantID
	Kind  domain.MediaKind
	Track transport.Track
}

// TrackChanged follows a completed input device switch.
type TrackChanged struct {
	ID    domain.ParticipantID
	Kind  domain.MediaKind
	Track transport.Track
}

func (UserMoved) Name() EventName        { return EventUserMoved }
func (Emote) Name() EventName            { return EventEmote }
func (UserInitRequest) Name() EventName  { return EventUserInitRequest }
func (UserInitResponse) Name() EventName { return EventUserInitResponse }

func (e MuteStatusChanged) Name() EventName {
	switch {
	case e.Kind == domain.MediaVideo && e.Local:
		return EventLocalVideoMuteStatusChanged
	case e.Kind == domain.MediaVideo:
		return EventVideoMuteStatusChanged
	case e.Local:
		return EventLocalAudioMuteStatusChanged
	default:
		return EventAudioMuteStatusChanged
	}
}

func (ConferenceJoined) Name() EventName       { return EventConferenceJoined }
func (ConferenceLeft) Name() EventName         { return EventConferenceLeft }
func (ParticipantJoined) Name() EventName      { return EventParticipantJoined }
func (ParticipantLeft) Name() EventName        { return EventParticipantLeft }
func (AvatarChanged) Name() EventName          { return EventAvatarChanged }
func (DisplayNameChanged) Name() EventName     { return EventDisplayNameChange }
func (AudioActivity) Name() EventName          { return EventAudioActivity }
func (SetAvatarEmoji) Name() EventName         { return EventSetAvatarEmoji }
func (DeviceListChanged) Name() EventName      { return EventDeviceListChanged }
func (ParticipantRoleChanged) Name() EventName { return EventParticipantRoleChanged }

func (e TrackAdded) Name() EventName {
	if e.Kind == domain.MediaVideo {
		return EventVideoAdded
	}
	return EventAudioAdded
}

func (e TrackRemoved) Name() EventName {
	if e.Kind == domain.MediaVideo {
		return EventVideoRemoved
	}
	return EventAudioRemoved
}

func (e TrackChanged) Name() EventName {
	if e.Kind == domain.MediaVideo {
		return EventVideoChanged
	}
	return EventAudioChanged
}

func (UserMoved) sealed()              {}
func (Emote) sealed()                  {}
func (UserInitRequest) sealed()        {}
func (UserInitResponse) sealed()       {}
func (MuteStatusChanged) sealed()      {}
func (ConferenceJoined) sealed()       {}
func (ConferenceLeft) sealed()         {}
func (ParticipantJoined) sealed()      {}
func (ParticipantLeft) sealed()        {}
func (AvatarChanged) sealed()          {}
func (DisplayNameChanged) sealed()     {}
func (AudioActivity) sealed()          {}
func (SetAvatarEmoji) sealed()         {}
func (DeviceListChanged) sealed()      {}
func (ParticipantRoleChanged) sealed() {}
func (TrackAdded) sealed()             {}
func (TrackRemoved) sealed()           {}
func (TrackChanged) sealed()           {}

func (e UserMoved) Participant() domain.ParticipantID              { return e.ID }
func (e Emote) Participant() domain.ParticipantID                  { return e.ID }
func (e UserInitRequest) Participant() domain.ParticipantID        { return e.ID }
func (e UserInitResponse) Participant() domain.ParticipantID       { return e.ID }
func (e MuteStatusChanged) Participant() domain.ParticipantID      { return e.ID }
func (e ParticipantJoined) Participant() domain.ParticipantID      { return e.ID }
func (e ParticipantLeft) Participant() domain.ParticipantID        { return e.ID }
func (e AvatarChanged) Participant() domain.ParticipantID          { return e.ID }
func (e DisplayNameChanged) Participant() domain.ParticipantID     { return e.ID }
func (e AudioActivity) Participant() domain.ParticipantID          { return e.ID }
func (e SetAvatarEmoji) Participant() domain.ParticipantID         { return e.ID }
func (e ParticipantRoleChanged) Participant() domain.ParticipantID { return e.ID }
func (e TrackAdded) Participant() domain.ParticipantID             { return e.ID }
func (e TrackRemoved) Participant() domain.ParticipantID           { return e.ID }
func (e TrackChanged) Participant() domain.ParticipantID           { return e.ID }

func (e UserMoved) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e Emote) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e UserInitRequest) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e UserInitResponse) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e MuteStatusChanged) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e ParticipantJoined) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e ParticipantLeft) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e AvatarChanged) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e DisplayNameChanged) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e AudioActivity) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e SetAvatarEmoji) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e ParticipantRoleChanged) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e TrackAdded) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e TrackRemoved) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}

func (e TrackChanged) withParticipant(id domain.ParticipantID) Event {
	e.ID = id
	return e
}
