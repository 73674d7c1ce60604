package trailfx

import (
	"math"
	"math/rand"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// SparkEmitterComponent is a CPU point-particle emitter. Its particles carry
// serials, so ribbons and beams can follow them through a SourceBinding.
type SparkEmitterComponent struct {
	Enabled bool

	MaxParticles int

	SpawnRate        float32    // particles per second
	LifetimeRange    [2]float32 // seconds (min,max)
	StartSpeedRange  [2]float32 // units/sec (min,max)
	StartSizeRange   [2]float32 // world units (min,max)
	StartColorMin    mgl32.Vec4
	StartColorMax    mgl32.Vec4
	Gravity          float32 // positive acceleration downward
	Drag             float32 // per-second linear drag
	ConeAngleDegrees float32 // 0 = along the emitter up axis
	Seed             int64

	pool     *core.Pool[struct{}]
	serials  map[uint32]int32
	spawnAcc float32
	rng      *rand.Rand
}

// SparkParticle is a read-only view of one live spark.
type SparkParticle struct {
	Serial   uint32
	Position mgl32.Vec3
	Velocity mgl32.Vec3
}

func (em *SparkEmitterComponent) ensurePool() *core.Pool[struct{}] {
	n := max(em.MaxParticles, 1)
	if em.pool == nil || em.pool.Capacity() != n {
		em.pool = core.NewPool[struct{}](n, n)
		em.serials = make(map[uint32]int32, n)
		em.spawnAcc = 0
	}
	if em.rng == nil {
		em.rng = rand.New(rand.NewSource(em.Seed))
	}
	return em.pool
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

// sampleDirection picks a uniform direction in a cone around the emitter's
// up axis, then rotates it by the emitter rotation.
func sampleDirection(rng *rand.Rand, rot mgl32.Quat, coneDeg float32) mgl32.Vec3 {
	if coneDeg <= 0 {
		return rot.Rotate(mgl32.Vec3{0, 1, 0}).Normalize()
	}
	thetaMax := float32(math.Pi) * (coneDeg / 180)
	cosTheta := lerp(float32(math.Cos(float64(thetaMax))), 1, rng.Float32())
	sinTheta := float32(math.Sqrt(float64(1 - cosTheta*cosTheta)))
	phi := 2 * float32(math.Pi) * rng.Float32()

	local := mgl32.Vec3{
		float32(math.Cos(float64(phi))) * sinTheta,
		cosTheta,
		float32(math.Sin(float64(phi))) * sinTheta,
	}
	return rot.Rotate(local).Normalize()
}

// step spawns, integrates and expires sparks for one frame.
func (em *SparkEmitterComponent) step(tr *TransformComponent, dt float32) {
	pool := em.ensurePool()

	drag := float32(math.Max(0, float64(1-em.Drag*dt)))
	for pos := pool.Active - 1; pos >= 0; pos-- {
		p := pool.Particle(pool.Live(pos))
		p.Velocity = p.Velocity.Add(mgl32.Vec3{0, -em.Gravity * dt, 0}).Mul(drag)
		p.Advance(dt)
		if p.Expired() {
			delete(em.serials, p.Serial)
			pool.KillAt(pos)
		}
	}

	em.spawnAcc += em.SpawnRate * dt
	n := int(em.spawnAcc)
	em.spawnAcc -= float32(n)
	n = min(n, pool.FreeCount())

	rot := tr.rotation()
	for i := 0; i < n; i++ {
		slot, ok := pool.Acquire()
		if !ok {
			break
		}
		p := pool.Particle(slot)
		p.Position = tr.Position
		p.PrevPosition = tr.Position
		speed := lerp(em.StartSpeedRange[0], em.StartSpeedRange[1], em.rng.Float32())
		p.Velocity = sampleDirection(em.rng, rot, em.ConeAngleDegrees).Mul(speed)
		if life := lerp(em.LifetimeRange[0], em.LifetimeRange[1], em.rng.Float32()); life > 0 {
			p.OneOverMaxLifetime = 1 / life
		}
		size := lerp(em.StartSizeRange[0], em.StartSizeRange[1], em.rng.Float32())
		p.Size = mgl32.Vec3{size, size, size}
		for j := 0; j < 4; j++ {
			p.Color[j] = lerp(em.StartColorMin[j], em.StartColorMax[j], em.rng.Float32())
		}
		em.serials[p.Serial] = slot
	}
}

// AliveCount is the number of live sparks.
func (em *SparkEmitterComponent) AliveCount() int {
	if em.pool == nil {
		return 0
	}
	return em.pool.Active
}

// Particle returns the spark with the given serial if it is still alive.
func (em *SparkEmitterComponent) Particle(serial uint32) (SparkParticle, bool) {
	slot, ok := em.serials[serial]
	if !ok || !em.pool.IsLive(slot) {
		return SparkParticle{}, false
	}
	p := em.pool.Particle(slot)
	if p.Serial != serial {
		return SparkParticle{}, false
	}
	return SparkParticle{Serial: serial, Position: p.Position, Velocity: p.Velocity}, true
}

// Particles lists the live sparks in pool order.
func (em *SparkEmitterComponent) Particles() []SparkParticle {
	if em.pool == nil {
		return nil
	}
	out := make([]SparkParticle, 0, em.pool.Active)
	for i := 0; i < em.pool.Active; i++ {
		p := em.pool.Particle(em.pool.Live(i))
		out = append(out, SparkParticle{Serial: p.Serial, Position: p.Position, Velocity: p.Velocity})
	}
	return out
}

func sparkSystem(t *Time, cmd *Commands) {
	dt := t.Seconds()
	if dt <= 0 {
		dt = 1.0 / 60.0
	}
	MakeQuery2[TransformComponent, SparkEmitterComponent](cmd).Map(func(eid EntityId, tr *TransformComponent, em *SparkEmitterComponent) bool {
		if em.Enabled && em.MaxParticles > 0 {
			em.step(tr, dt)
		}
		return true
	})
}
