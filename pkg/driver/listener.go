// ABOUTME: Audio listener shared by every player of a driver
// ABOUTME: Master volume plus position and orientation, turned into per-player gain and pan
package driver

import (
	"math"
	"sync"
)

// MinDistance is the radius around the listener inside which audio is not attenuated
const MinDistance = 1.0

// Vec3 is a position or direction in listener space
type Vec3 [3]float64

// Listener holds the master volume and listener placement. Changes are pushed to
// every live AudioPlayer whose output supports gain or panning.
type Listener struct {
	mu       sync.Mutex
	volume   float64
	position Vec3
	forward  Vec3
	up       Vec3
	onChange func()
}

func newListener() *Listener {
	return &Listener{
		volume:  1.0,
		forward: Vec3{0, 0, -1},
		up:      Vec3{0, 1, 0},
	}
}

// Volume returns the master volume
func (l *Listener) Volume() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.volume
}

// SetVolume sets the master volume (0..1)
func (l *Listener) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	l.mu.Lock()
	l.volume = v
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Position returns the listener position
func (l *Listener) Position() Vec3 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

// SetPosition moves the listener
func (l *Listener) SetPosition(p Vec3) {
	l.mu.Lock()
	l.position = p
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Orientation returns the forward and up vectors
func (l *Listener) Orientation() (forward, up Vec3) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.forward, l.up
}

// SetOrientation sets the forward and up vectors
func (l *Listener) SetOrientation(forward, up Vec3) {
	l.mu.Lock()
	l.forward = forward
	l.up = up
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// spatialize returns the gain and stereo pan for audio placed at pos. Gain is
// the master volume with inverse distance attenuation beyond MinDistance; pan is
// the direction to pos projected on the listener's right axis.
func (l *Listener) spatialize(pos Vec3) (gain, pan float64) {
	l.mu.Lock()
	volume, at, forward, up := l.volume, l.position, l.forward, l.up
	l.mu.Unlock()

	rel := pos.sub(at)
	dist := rel.length()
	gain = volume
	if dist > MinDistance {
		gain *= MinDistance / dist
	}
	right := forward.cross(up).unit()
	if dist > 0 {
		pan = rel.unit().dot(right)
	}
	return gain, pan
}

func (v Vec3) sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

func (v Vec3) dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vec3) cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v Vec3) length() float64 {
	return math.Sqrt(v.dot(v))
}

// unit returns v scaled to length 1, or the zero vector
func (v Vec3) unit() Vec3 {
	n := v.length()
	if n == 0 {
		return Vec3{}
	}
	return Vec3{v[0] / n, v[1] / n, v[2] / n}
}
