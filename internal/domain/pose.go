package domain

import "math"

// Pose is a position in listener-relative 3D space.
type Pose struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

func NewPose(x, y, z float64) Pose { return Pose{X: x, Y: y, Z: z} }

// Finite reports whether all coordinates are real numbers.
func (p Pose) Finite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

func (p Pose) Sub(o Pose) Pose {
	return Pose{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

func (p Pose) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
