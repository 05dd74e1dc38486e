package devices

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/calla/internal/domain"
)

type fakeSource struct {
	listings    [][]Device
	calls       int
	permissions int
	err         error
}

func (f *fakeSource) Enumerate(context.Context) ([]Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	if i >= len(f.listings) {
		i = len(f.listings) - 1
	}
	f.calls++
	return f.listings[i], nil
}

func (f *fakeSource) RequestPermission(context.Context, ...domain.DeviceKind) error {
	f.permissions++
	return nil
}

var mics = []Device{
	{ID: "usb", Kind: domain.DeviceAudioInput, Label: "USB mic"},
	{ID: DefaultID, Kind: domain.DeviceAudioInput, Label: "Default"},
	{ID: CommunicationsID, Kind: domain.DeviceAudioInput, Label: "Headset"},
	{ID: "cam", Kind: domain.DeviceVideoInput, Label: "Camera"},
}

func TestResolveOrder(t *testing.T) {
	d, ok := Resolve(mics, domain.DeviceAudioInput, "usb", false)
	require.True(t, ok)
	assert.Equal(t, "usb", d.ID)

	d, ok = Resolve(mics, domain.DeviceAudioInput, "gone", false)
	require.True(t, ok)
	assert.Equal(t, CommunicationsID, d.ID)

	d, ok = Resolve(mics[:2], domain.DeviceAudioInput, "", false)
	require.True(t, ok)
	assert.Equal(t, DefaultID, d.ID)

	_, ok = Resolve(mics, domain.DeviceVideoInput, "", false)
	assert.False(t, ok, "any-device fallback is opt-in")

	d, ok = Resolve(mics, domain.DeviceVideoInput, "", true)
	require.True(t, ok)
	assert.Equal(t, "cam", d.ID)

	_, ok = Resolve(mics, domain.DeviceAudioOutput, "", true)
	assert.False(t, ok)
}

func TestEnumerateRequestsPermissionUntilLabelled(t *testing.T) {
	unlabelled := []Device{{ID: "usb", Kind: domain.DeviceAudioInput}}
	src := &fakeSource{listings: [][]Device{unlabelled, unlabelled, mics}}
	r := NewResolver(src, 3)

	devs, err := r.Enumerate(context.Background(), domain.DeviceAudioInput)
	require.NoError(t, err)
	assert.Equal(t, mics, devs)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 2, src.permissions)

	// Once labels were seen the permission is not asked for again.
	_, err = r.Enumerate(context.Background(), domain.DeviceAudioInput)
	require.NoError(t, err)
	assert.Equal(t, 2, src.permissions)
}

func TestEnumerateIsBounded(t *testing.T) {
	unlabelled := []Device{{ID: "usb", Kind: domain.DeviceAudioInput}}
	src := &fakeSource{listings: [][]Device{unlabelled}}
	r := NewResolver(src, 3)

	devs, err := r.Enumerate(context.Background(), domain.DeviceAudioInput)
	require.NoError(t, err)
	assert.Equal(t, unlabelled, devs)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 2, src.permissions)
}

func TestEnumerateError(t *testing.T) {
	src := &fakeSource{err: errors.New("no backend")}
	_, err := NewResolver(src, 2).Enumerate(context.Background())
	assert.ErrorContains(t, err, "no backend")
}

func TestPreferredAbsentIsNotError(t *testing.T) {
	r := NewResolver(&fakeSource{listings: [][]Device{mics}}, 3)
	_, ok, err := r.Preferred(context.Background(), domain.DeviceAudioOutput, "", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreferences(t *testing.T) {
	var p Preferences
	p.Set(domain.DeviceVideoInput, "cam")
	assert.Equal(t, "cam", p.For(domain.DeviceVideoInput))
	assert.Empty(t, p.For(domain.DeviceAudioInput))
}
