package devices

import (
	"context"
	"fmt"

	"github.com/pion/mediadevices"

	"github.com/dkeye/calla/internal/domain"
)

// MediaDevicesSource lists devices through pion/mediadevices. Drivers register
// themselves by blank import in the binary (see cmd/calla).
type MediaDevicesSource struct{}

func (MediaDevicesSource) Enumerate(context.Context) ([]Device, error) {
	var out []Device
	for _, d := range mediadevices.EnumerateDevices() {
		var kind domain.DeviceKind
		switch d.Kind {
		case mediadevices.AudioInput:
			kind = domain.DeviceAudioInput
		case mediadevices.VideoInput:
			kind = domain.DeviceVideoInput
		default:
			continue
		}
		out = append(out, Device{ID: d.DeviceID, Kind: kind, Label: d.Label})
	}
	return out, nil
}

// RequestPermission opens and immediately closes a capture stream, which is how the
// driver layer grants access.
func (MediaDevicesSource) RequestPermission(_ context.Context, kinds ...domain.DeviceKind) error {
	var c mediadevices.MediaStreamConstraints
	for _, k := range kinds {
		switch k {
		case domain.DeviceAudioInput:
			c.Audio = func(*mediadevices.MediaTrackConstraints) {}
		case domain.DeviceVideoInput:
			c.Video = func(*mediadevices.MediaTrackConstraints) {}
		}
	}
	if c.Audio == nil && c.Video == nil {
		return nil
	}
	stream, err := mediadevices.GetUserMedia(c)
	if err != nil {
		return fmt.Errorf("get user media: %w", err)
	}
	for _, t := range stream.GetTracks() {
		_ = t.Close()
	}
	return nil
}
