package spatial

import "sync/atomic"

// Stereo panning is a property of the platform, so one failed panner construction
// disables it for the rest of the process.
var panningDegraded atomic.Bool

// PanningSupported reports whether stereo panners may still be attempted.
func PanningSupported() bool {
	return !panningDegraded.Load()
}

// degradePanning flips the capability off and reports whether this call did it.
func degradePanning() bool {
	return panningDegraded.CompareAndSwap(false, true)
}
