package spatial

import (
	"math"

	"github.com/dkeye/calla/internal/domain"
	"github.com/dkeye/calla/internal/transport"
)

// DistanceModel is the inverse distance rolloff used by both spatializer flavours.
type DistanceModel struct {
	MinDistance float64
	MaxDistance float64
	Rolloff     float64
}

func DefaultDistanceModel() DistanceModel {
	return DistanceModel{MinDistance: 1, MaxDistance: 10, Rolloff: 1}
}

// Gain returns the attenuation at distance d. Inside MinDistance it is 1, beyond
// MaxDistance it stays at the MaxDistance value.
func (m DistanceModel) Gain(d float64) float64 {
	lo := m.MinDistance
	if lo <= 0 {
		lo = 1
	}
	hi := m.MaxDistance
	if hi < lo {
		hi = lo
	}
	d = math.Min(math.Max(d, lo), hi)
	return lo / (lo + m.Rolloff*(d-lo))
}

// Spatializer positions one remote participant's audio relative to the listener.
type Spatializer interface {
	SetStream(s transport.Stream)
	Update(listener, source domain.Pose)
	Stereo() bool
	Dispose()
}

type panner struct {
	node  Node
	model DistanceModel
}

func (p *panner) SetStream(s transport.Stream) { p.node.SetStream(s) }
func (p *panner) Stereo() bool                 { return true }
func (p *panner) Dispose()                     { p.node.Close() }

// Update applies an equal-power pan from the source azimuth on the horizontal plane.
func (p *panner) Update(listener, source domain.Pose) {
	rel := source.Sub(listener)
	d := rel.Length()
	gain := p.model.Gain(d)

	pan := 0.0
	if flat := math.Hypot(rel.X, rel.Z); flat > 0 {
		pan = rel.X / flat
	}
	angle := (pan + 1) * math.Pi / 4
	p.node.SetGains(gain*math.Cos(angle), gain*math.Sin(angle))
}

type volumeOnly struct {
	node  Node
	model DistanceModel
}

func (v *volumeOnly) SetStream(s transport.Stream) { v.node.SetStream(s) }
func (v *volumeOnly) Stereo() bool                 { return false }
func (v *volumeOnly) Dispose()                     { v.node.Close() }

func (v *volumeOnly) Update(listener, source domain.Pose) {
	gain := v.model.Gain(source.Sub(listener).Length())
	v.node.SetGains(gain, gain)
}
