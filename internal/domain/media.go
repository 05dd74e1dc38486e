package domain

import "fmt"

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

// ParseMediaKind accepts the pion codec type names ("audio", "video").
func ParseMediaKind(s string) (MediaKind, error) {
	k := MediaKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown media kind %q", s)
	}
	return k, nil
}

// InputDevice is the device kind a local track of this media kind is captured from.
func (k MediaKind) InputDevice() DeviceKind {
	if k == MediaVideo {
		return DeviceVideoInput
	}
	return DeviceAudioInput
}

type DeviceKind string

const (
	DeviceAudioOutput DeviceKind = "audiooutput"
	DeviceAudioInput  DeviceKind = "audioinput"
	DeviceVideoInput  DeviceKind = "videoinput"
)
