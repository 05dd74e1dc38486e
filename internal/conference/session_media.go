package conference

import (
	"context"
	"fmt"

	"github.com/dkeye/calla/internal/devices"
	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

// ToggleAudioMuted flips the local microphone and returns the confirmed mute state.
// Without a local audio track one is created from the preferred input, unmuted.
func (s *Session) ToggleAudioMuted(ctx context.Context) (bool, error) {
	return s.toggleMuted(ctx, domain.MediaAudio)
}

func (s *Session) ToggleVideoMuted(ctx context.Context) (bool, error) {
	return s.toggleMuted(ctx, domain.MediaVideo)
}

func (s *Session) toggleMuted(ctx context.Context, kind domain.MediaKind) (bool, error) {
	local, cur, err := s.localTrack(ctx, kind)
	if err != nil {
		return false, err
	}
	if cur == nil {
		t, err := s.addLocalTrack(ctx, local, kind)
		if err != nil {
			return false, err
		}
		return t.IsMuted(), nil
	}

	target := !cur.IsMuted()
	name := MuteStatusChanged{Kind: kind}.Name()
	ev, err := waitFor(ctx, s, name,
		func(e MuteStatusChanged) bool { return e.ID == local && e.Kind == kind && !e.Local && e.Muted == target },
		s.confirmTimeout,
		func() error { return cur.SetMuted(target) })
	if err != nil {
		return cur.IsMuted(), err
	}
	return ev.Muted, nil
}

// IsAudioMuted reports the local microphone state; no track counts as muted.
func (s *Session) IsAudioMuted(ctx context.Context) (bool, error) {
	_, t, err := s.localTrack(ctx, domain.MediaAudio)
	if err != nil || t == nil {
		return true, err
	}
	return t.IsMuted(), nil
}

func (s *Session) localTrack(ctx context.Context, kind domain.MediaKind) (domain.ParticipantID, transport.Track, error) {
	var (
		local domain.ParticipantID
		t     transport.Track
	)
	if err := s.exec(ctx, func() {
		local = s.seq.LocalID()
		if local != "" {
			t = s.tracks.Get(local, kind)
		}
	}); err != nil {
		return "", nil, err
	}
	if local == "" {
		return "", nil, domain.ErrNotIdentified
	}
	return local, t, nil
}

// addLocalTrack creates a track from the preferred device and waits until the
// transport confirms it was added.
func (s *Session) addLocalTrack(ctx context.Context, local domain.ParticipantID, kind domain.MediaKind) (transport.Track, error) {
	deviceID, err := s.preferredDevice(ctx, kind.InputDevice())
	if err != nil {
		return nil, err
	}
	t, err := s.tr.CreateLocalTrack(ctx, kind, deviceID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	_, err = waitFor(ctx, s, TrackAdded{Kind: kind}.Name(),
		func(e TrackAdded) bool { return e.ID == local && e.Kind == kind && e.Track.ID() == t.ID() },
		s.confirmTimeout,
		func() error { return s.tr.AddTrack(ctx, t) })
	if err != nil {
		_ = t.Dispose()
		return nil, err
	}
	return t, nil
}

func (s *Session) preferredDevice(ctx context.Context, kind domain.DeviceKind) (string, error) {
	var pref string
	if err := s.exec(ctx, func() { pref = s.prefs.For(kind) }); err != nil {
		return "", err
	}
	if s.resolver == nil {
		return pref, nil
	}
	d, ok, err := s.resolver.Preferred(ctx, kind, pref, true)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", kind, domain.ErrDeviceUnavailable)
	}
	return d.ID, nil
}

func (s *Session) SetAudioInputDevice(ctx context.Context, deviceID string) error {
	return s.setInputDevice(ctx, domain.MediaAudio, deviceID)
}

func (s *Session) SetVideoInputDevice(ctx context.Context, deviceID string) error {
	return s.setInputDevice(ctx, domain.MediaVideo, deviceID)
}

// setInputDevice swaps the local track of kind for one on the new device. The old
// track is fully removed before the new one is created.
func (s *Session) setInputDevice(ctx context.Context, kind domain.MediaKind, deviceID string) error {
	if err := s.exec(ctx, func() { s.prefs.Set(kind.InputDevice(), deviceID) }); err != nil {
		return err
	}
	local, cur, err := s.localTrack(ctx, kind)
	if err != nil {
		return err
	}
	if cur != nil {
		_, err := waitFor(ctx, s, TrackRemoved{Kind: kind}.Name(),
			func(e TrackRemoved) bool { return e.ID == local && e.Kind == kind },
			s.confirmTimeout,
			func() error { return s.tr.RemoveTrack(ctx, cur) })
		if err != nil {
			return fmt.Errorf("remove %s track: %w", kind, err)
		}
	}
	t, err := s.addLocalTrack(ctx, local, kind)
	if err != nil {
		return err
	}
	return s.exec(ctx, func() {
		s.seq.Push(TrackChanged{ID: local, Kind: kind, Track: t})
	})
}

// SetAudioOutputDevice records the preference and hands it to the renderer.
func (s *Session) SetAudioOutputDevice(ctx context.Context, deviceID string) error {
	var err error
	if xerr := s.exec(ctx, func() {
		s.prefs.Set(domain.DeviceAudioOutput, deviceID)
		err = s.scene.SetOutputDevice(deviceID)
	}); xerr != nil {
		return xerr
	}
	return err
}

// Preferences returns the device IDs chosen so far.
func (s *Session) Preferences(ctx context.Context) (devices.Preferences, error) {
	var p devices.Preferences
	err := s.exec(ctx, func() { p = s.prefs })
	return p, err
}

// RefreshDevices enumerates devices and dispatches deviceListChanged.
func (s *Session) RefreshDevices(ctx context.Context) ([]devices.Device, error) {
	if s.resolver == nil {
		return nil, fmt.Errorf("refresh devices: %w", domain.ErrDeviceUnavailable)
	}
	list, err := s.resolver.Enumerate(ctx, domain.DeviceAudioInput, domain.DeviceVideoInput)
	if err != nil {
		return nil, err
	}
	if err := s.exec(ctx, func() { s.seq.Push(DeviceListChanged{Devices: list}) }); err != nil {
		return nil, err
	}
	return list, nil
}
