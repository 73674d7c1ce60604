package core

import "github.com/go-gl/mathgl/mgl32"

// Kind identifies which chain emitter owns a pool.
type Kind uint8

const (
	KindRibbon Kind = iota
	KindAnimTrail
	KindBeam
)

func (k Kind) String() string {
	switch k {
	case KindRibbon:
		return "ribbon"
	case KindAnimTrail:
		return "animtrail"
	case KindBeam:
		return "beam"
	}
	return "unknown"
}

// Particle holds the state shared by every chain kind.
// Chain specific data lives in the pool's payload slice at the same slot.
type Particle struct {
	Position     mgl32.Vec3
	PrevPosition mgl32.Vec3
	Velocity     mgl32.Vec3

	Rotation     float32
	RotationRate float32

	// RelativeTime is 0 at spawn and 1 at the end of life. Above 1 the particle is dead.
	RelativeTime       float32
	OneOverMaxLifetime float32

	Size  mgl32.Vec3
	Color mgl32.Vec4

	// Serial changes every time the slot is reused.
	Serial uint32
}

// Advance integrates the particle by dt seconds.
func (p *Particle) Advance(dt float32) {
	p.PrevPosition = p.Position
	p.Position = p.Position.Add(p.Velocity.Mul(dt))
	p.Rotation += p.RotationRate * dt
	p.RelativeTime += dt * p.OneOverMaxLifetime
}

// Expired reports whether the particle outlived its lifetime.
func (p *Particle) Expired() bool {
	return p.RelativeTime > 1
}

// Width is the ribbon width carried in Size.X.
func (p *Particle) Width() float32 {
	return p.Size.X()
}
