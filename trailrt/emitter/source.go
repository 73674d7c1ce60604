package emitter

import "github.com/go-gl/mathgl/mgl32"

// SourcePoint is one sample of whatever a chain follows.
type SourcePoint struct {
	Position        mgl32.Vec3
	Rotation        mgl32.Quat
	Up              mgl32.Vec3
	Tangent         mgl32.Vec3
	TangentStrength float32
	// Serial identifies the tracked particle, if the source is one.
	Serial uint32
}

type SourceStatus uint8

const (
	SourceOK SourceStatus = iota
	// SourceUnavailable means nothing to follow right now; the emitter falls
	// back to its owner's transform.
	SourceUnavailable
	// SourceLost means the tracked thing is gone for good. Chains following
	// it stop growing.
	SourceLost
)

func (s SourceStatus) String() string {
	switch s {
	case SourceOK:
		return "ok"
	case SourceUnavailable:
		return "unavailable"
	case SourceLost:
		return "lost"
	}
	return "unknown"
}

// SourceResolver yields the source of chain chainIndex for the current tick.
type SourceResolver interface {
	Resolve(chainIndex int32) (SourcePoint, SourceStatus)
}

type SourceFunc func(chainIndex int32) (SourcePoint, SourceStatus)

func (f SourceFunc) Resolve(chainIndex int32) (SourcePoint, SourceStatus) { return f(chainIndex) }

// StaticSource resolves every chain to the same point.
type StaticSource struct {
	Point SourcePoint
}

func (s *StaticSource) Resolve(int32) (SourcePoint, SourceStatus) {
	return s.Point, SourceOK
}

// SocketResolver yields the two sockets an anim trail is stretched between.
type SocketResolver interface {
	Sockets() (first, second SourcePoint, ok bool)
}

type SocketFunc func() (first, second SourcePoint, ok bool)

func (f SocketFunc) Sockets() (SourcePoint, SourcePoint, bool) { return f() }

func withDefaults(p SourcePoint) SourcePoint {
	if p.Rotation == (mgl32.Quat{}) {
		p.Rotation = mgl32.QuatIdent()
	}
	if p.Up == (mgl32.Vec3{}) {
		p.Up = p.Rotation.Rotate(upAxis)
	}
	if p.TangentStrength == 0 {
		p.TangentStrength = 1
	}
	return p
}
