package trailfx

import (
	"github.com/gekko3d/trailfx/trailrt/emitter"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/go-gl/mathgl/mgl32"
)

type TransformComponent struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func (t TransformComponent) rotation() mgl32.Quat {
	if t.Rotation == (mgl32.Quat{}) {
		return mgl32.QuatIdent()
	}
	return t.Rotation
}

func (t TransformComponent) scale() mgl32.Vec3 {
	if t.Scale == (mgl32.Vec3{}) {
		return mgl32.Vec3{1, 1, 1}
	}
	return t.Scale
}

// ToWorld maps a local point into world space.
func (t TransformComponent) ToWorld(local mgl32.Vec3) mgl32.Vec3 {
	s := t.scale()
	scaled := mgl32.Vec3{local.X() * s.X(), local.Y() * s.Y(), local.Z() * s.Z()}
	return t.Position.Add(t.rotation().Rotate(scaled))
}

func (t TransformComponent) emitterTransform() emitter.Transform {
	return emitter.Transform{Position: t.Position, Rotation: t.rotation(), Scale: t.scale()}
}

func (t TransformComponent) sourcePoint() emitter.SourcePoint {
	return t.emitterTransform().Point()
}

type NameComponent struct {
	Name string
}

// Socket is an attachment point in its entity's local space.
type Socket struct {
	Offset   mgl32.Vec3
	Rotation mgl32.Quat
}

// SocketsComponent holds the named sockets anim trails are sampled from.
type SocketsComponent struct {
	Sockets map[string]Socket
}

// ChainEmitterComponent attaches one chain emitter to an entity. Chain is
// one of *emitter.Ribbon, *emitter.AnimTrail or *emitter.Beam. Container
// always holds the newest accepted snapshot.
type ChainEmitterComponent struct {
	Enabled bool
	Chain   emitter.Chain

	// Source feeds ribbons and beam sources, Target feeds beam targets.
	Source SourceBinding
	Target SourceBinding

	Container *tess.SnapshotContainer

	source  *sampledSource
	target  *sampledSource
	sockets *sampledSockets
}

// NewChainEmitter wraps chain in an enabled component with its own container.
func NewChainEmitter(chain emitter.Chain, source SourceBinding) ChainEmitterComponent {
	return ChainEmitterComponent{
		Enabled:   true,
		Chain:     chain,
		Source:    source,
		Container: &tess.SnapshotContainer{},
	}
}

var (
	transformComponent    = RegisterComponent[TransformComponent]()
	nameComponent         = RegisterComponent[NameComponent]()
	socketsComponent      = RegisterComponent[SocketsComponent]()
	chainEmitterComponent = RegisterComponent[ChainEmitterComponent]()
	sparkEmitterComponent = RegisterComponent[SparkEmitterComponent]()
)
