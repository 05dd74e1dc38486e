package spatial

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/calla/internal/domain"
)

type stream string

func (s stream) ID() string { return string(s) }

type countingRenderer struct {
	*HeadlessRenderer
	pannerCalls int
}

func (r *countingRenderer) NewPanner(id domain.ParticipantID) (Node, error) {
	r.pannerCalls++
	return r.HeadlessRenderer.NewPanner(id)
}

func resetPanning(t *testing.T) {
	panningDegraded.Store(false)
	t.Cleanup(func() { panningDegraded.Store(false) })
}

func TestSelectorPrefersPanner(t *testing.T) {
	resetPanning(t)
	sel := NewSelector(NewHeadlessRenderer(true))

	sp, err := sel.CreateSource("a", stream("s1"))
	require.NoError(t, err)
	assert.True(t, sp.Stereo())
	assert.True(t, PanningSupported())
}

func TestSelectorDegradesOnceAndForAll(t *testing.T) {
	resetPanning(t)
	r := &countingRenderer{HeadlessRenderer: NewHeadlessRenderer(false)}
	degraded := 0
	sel := NewSelector(r, WithDegradeHook(func() { degraded++ }))

	first, err := sel.CreateSource("a", stream("s1"))
	require.NoError(t, err)
	assert.False(t, first.Stereo())
	assert.False(t, PanningSupported())

	second, err := sel.CreateSource("b", stream("s2"))
	require.NoError(t, err)
	assert.False(t, second.Stereo())

	assert.Equal(t, 1, r.pannerCalls, "panner must not be retried after a failure")
	assert.Equal(t, 1, degraded)

	// A stereo-capable renderer does not bring panning back.
	third, err := NewSelector(NewHeadlessRenderer(true)).CreateSource("c", nil)
	require.NoError(t, err)
	assert.False(t, third.Stereo())
}

type brokenRenderer struct{ *HeadlessRenderer }

func (brokenRenderer) NewGain(domain.ParticipantID) (Node, error) {
	return nil, errors.New("no audio graph")
}

func TestSelectorErrorsWithoutGain(t *testing.T) {
	resetPanning(t)
	_, err := NewSelector(brokenRenderer{NewHeadlessRenderer(false)}).CreateSource("a", nil)
	assert.Error(t, err)
}

func TestDistanceModel(t *testing.T) {
	m := DistanceModel{MinDistance: 1, MaxDistance: 10, Rolloff: 1}
	assert.Equal(t, 1.0, m.Gain(0))
	assert.Equal(t, 1.0, m.Gain(1))
	assert.InDelta(t, 0.5, m.Gain(2), 1e-9)
	assert.Equal(t, m.Gain(10), m.Gain(50))
}

func TestManagerPanning(t *testing.T) {
	resetPanning(t)
	r := NewHeadlessRenderer(true)
	m := NewManager(NewSelector(r))

	m.AddSource("right")
	m.AddSource("left")
	require.True(t, m.SetPosition("right", domain.NewPose(1, 0, 0)))
	require.True(t, m.SetPosition("left", domain.NewPose(-1, 0, 0)))

	n, ok := r.Node("right")
	require.True(t, ok)
	l, rr := n.Gains()
	assert.InDelta(t, 0, l, 1e-9)
	assert.InDelta(t, 1, rr, 1e-9)

	n, _ = r.Node("left")
	l, rr = n.Gains()
	assert.InDelta(t, 1, l, 1e-9)
	assert.InDelta(t, 0, rr, 1e-9)

	// Moving the listener onto the right source centres it.
	m.SetListenerPosition(domain.NewPose(1, 0, -0.5))
	n, _ = r.Node("right")
	l, rr = n.Gains()
	assert.InDelta(t, l, rr, 1e-9)
	assert.InDelta(t, math.Sqrt(0.5), l, 1e-9)
}

func TestManagerUnknownAndRemoval(t *testing.T) {
	resetPanning(t)
	r := NewHeadlessRenderer(true)
	m := NewManager(NewSelector(r))

	assert.False(t, m.SetPosition("ghost", domain.NewPose(1, 2, 3)))
	_, ok := m.Position("ghost")
	assert.False(t, ok)

	m.SetStream("a", stream("audio-a"))
	n, ok := r.Node("a")
	require.True(t, ok)
	assert.Equal(t, "audio-a", n.Stream().ID())

	m.SetStream("a", nil)
	assert.Nil(t, n.Stream())

	m.RemoveSource("a")
	assert.True(t, n.Closed())
	assert.False(t, m.HasSource("a"))
	m.RemoveSource("a")
}

func TestManagerOutputDevice(t *testing.T) {
	r := NewHeadlessRenderer(true)
	m := NewManager(NewSelector(r))
	require.NoError(t, m.SetOutputDevice("speakers"))
	assert.Equal(t, "speakers", r.OutputDevice())
}
