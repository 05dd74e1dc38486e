// Package devices resolves which capture and playback device a session should use.
package devices

import (
	"context"

	"github.com/dkeye/calla/internal/domain"
)

// Well-known platform device IDs.
const (
	CommunicationsID = "communications"
	DefaultID        = "default"
)

type Device struct {
	ID    string            `json:"deviceId"`
	Kind  domain.DeviceKind `json:"kind"`
	Label string            `json:"label"`
}

// Source is the platform device layer.
type Source interface {
	Enumerate(ctx context.Context) ([]Device, error)
	// RequestPermission asks for access to the given kinds. Platforms withhold
	// device labels until it is granted.
	RequestPermission(ctx context.Context, kinds ...domain.DeviceKind) error
}

// Preferences are the device IDs the user picked, per kind. Empty means no preference.
type Preferences struct {
	AudioInput  string
	AudioOutput string
	VideoInput  string
}

func (p Preferences) For(kind domain.DeviceKind) string {
	switch kind {
	case domain.DeviceAudioInput:
		return p.AudioInput
	case domain.DeviceAudioOutput:
		return p.AudioOutput
	case domain.DeviceVideoInput:
		return p.VideoInput
	}
	return ""
}

func (p *Preferences) Set(kind domain.DeviceKind, id string) {
	switch kind {
	case domain.DeviceAudioInput:
		p.AudioInput = id
	case domain.DeviceAudioOutput:
		p.AudioOutput = id
	case domain.DeviceVideoInput:
		p.VideoInput = id
	}
}

func OfKind(devs []Device, kind domain.DeviceKind) []Device {
	var out []Device
	for _, d := range devs {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
