package core

import "github.com/go-gl/mathgl/mgl32"

// MaxBeamNoisePoints bounds the per-beam noise payload so the stride stays fixed.
const MaxBeamNoisePoints = 16

// TrailPayload is the per-particle chain data of ribbons and anim trails.
type TrailPayload struct {
	Links

	ChainIndex int32

	// SpawnTime is the emitter time the particle represents, SpawnDelta the
	// time between it and the particle spawned right before it.
	SpawnTime  float32
	SpawnDelta float32
	Tangent    mgl32.Vec3
	Up         mgl32.Vec3

	// Interpolated is set on particles placed between two source samples.
	Interpolated bool

	TessellationPoints   int32
	RenderingInterpCount int32
	// TriangleCount is only non-zero on chain heads.
	TriangleCount int32
	TiledU        float32

	// SourceSerial is the serial of the tracked particle the chain follows.
	SourceSerial uint32

	// Anim trail edges, sampled from two sockets.
	FirstEdge              mgl32.Vec3
	SecondEdge             mgl32.Vec3
	FirstEdgeTangent       mgl32.Vec3
	SecondEdgeTangent      mgl32.Vec3
	InterpolationParameter float32
}

// BeamPayload is the per-particle data of a beam. Each live beam is one particle.
type BeamPayload struct {
	BeamIndex int32

	Source         mgl32.Vec3
	SourceTangent  mgl32.Vec3
	SourceStrength float32
	Target         mgl32.Vec3
	TargetTangent  mgl32.Vec3
	TargetStrength float32

	Direction mgl32.Vec3
	Length    float32

	Steps         int32
	StepSize      float32
	TravelRatio   float32
	TriangleCount int32

	NoiseCount int32
	Noise      [MaxBeamNoisePoints]mgl32.Vec3
	// Taper holds width multipliers at the source, every noise point and the target.
	Taper [MaxBeamNoisePoints + 2]float32
}
