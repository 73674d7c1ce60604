// Package emitter runs the per-tick simulation of chain emitters: ribbons
// following a source, anim trails sampled from two sockets, and beams
// stretched between a source and a target.
package emitter

import (
	"fmt"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Logger is the subset of the host logger the emitters write to.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

var (
	upAxis      = mgl32.Vec3{0, 1, 0}
	forwardAxis = mgl32.Vec3{0, 0, -1}
)

// Transform is the owning component's world transform.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func (t Transform) rotation() mgl32.Quat {
	if t.Rotation == (mgl32.Quat{}) {
		return mgl32.QuatIdent()
	}
	return t.Rotation
}

// Forward is the rotated -Z axis.
func (t Transform) Forward() mgl32.Vec3 {
	return t.rotation().Rotate(forwardAxis)
}

// Point turns the transform into a source sample.
func (t Transform) Point() SourcePoint {
	rot := t.rotation()
	return SourcePoint{
		Position:        t.Position,
		Rotation:        rot,
		Up:              rot.Rotate(upAxis),
		Tangent:         rot.Rotate(forwardAxis),
		TangentStrength: 1,
	}
}

type EventKind uint8

const (
	// EventChainDead fires when a chain loses its source and becomes a dead trail.
	EventChainDead EventKind = iota
	// EventSpawnThrottled fires when pool growth failed and spawning was skipped.
	EventSpawnThrottled
	// EventTopology fires when a chain repair hit a broken invariant.
	EventTopology
)

func (k EventKind) String() string {
	switch k {
	case EventChainDead:
		return "chain_dead"
	case EventSpawnThrottled:
		return "spawn_throttled"
	case EventTopology:
		return "topology"
	}
	return "unknown"
}

type Event struct {
	Kind  EventKind
	Chain int32
	Err   error
}

// TickResult reports what one tick did. Snapshot is nil when Reject is set.
type TickResult struct {
	Snapshot  *tess.ReplaySnapshot
	Reject    tess.RejectReason
	Spawned   int
	Killed    int
	Throttled bool
	Events    []Event
}

func (r *TickResult) event(kind EventKind, chain int32, err error) {
	r.Events = append(r.Events, Event{Kind: kind, Chain: chain, Err: err})
}

// Chain is one of Ribbon, AnimTrail or Beam. The set is closed; use a type
// switch to reach kind specific controls.
type Chain interface {
	Kind() core.Kind
	ID() uuid.UUID
	ActiveCount() int

	base() *instance
	updateSource(owner Transform, res *TickResult)
	kill(res *TickResult)
	spawn(res *TickResult)
	recomputeTangents()
	snapshot() (*tess.ReplaySnapshot, tess.RejectReason)
	validate() error
	strict() bool
}

// Tick advances c by dt seconds and returns the new snapshot, if any.
// A single chain must not be ticked from two goroutines at once; different
// chains are independent.
func Tick(c Chain, owner Transform, dt float32) TickResult {
	b := c.base()
	b.tickCount++
	b.dt = dt
	b.lastTime = b.time
	b.time += dt

	var res TickResult
	c.updateSource(owner, &res)
	c.kill(&res)
	c.spawn(&res)
	c.recomputeTangents()

	if c.strict() {
		if err := c.validate(); err != nil {
			panic(fmt.Errorf("%s emitter %s tick %d: %w", c.Kind(), c.ID(), b.tickCount, err))
		}
	}

	res.Snapshot, res.Reject = c.snapshot()
	if res.Reject != tess.RejectNone {
		b.log.Debugf("%s %s: no snapshot at tick %d (%s)", c.Kind(), c.ID(), b.tickCount, res.Reject)
	}
	return res
}

// instance is the state every chain kind shares. Counters are per instance.
type instance struct {
	id  uuid.UUID
	log Logger

	tickCount uint64
	dt        float32
	time      float32
	lastTime  float32

	provider     SpawnProvider
	rateFraction float32

	flags  tess.Flags
	format tess.IndexFormat
	sheets int32
}

func newInstance(log Logger, provider SpawnProvider, flags tess.Flags, indexBits int) instance {
	if log == nil {
		log = nopLogger{}
	}
	if provider == nil {
		provider = ConstantSpawn{}
	}
	return instance{
		id:       uuid.New(),
		log:      log,
		provider: provider,
		flags:    flags,
		format:   tess.IndexFormatForBits(indexBits),
	}
}

func (b *instance) base() *instance { return b }

func (b *instance) ID() uuid.UUID { return b.id }

// TickCount is the number of ticks this instance has run.
func (b *instance) TickCount() uint64 { return b.tickCount }

// Time is the emitter-local time in seconds.
func (b *instance) Time() float32 { return b.time }

func (b *instance) header(kind core.Kind) tess.Header {
	return tess.Header{
		EmitterID: b.id,
		Kind:      kind,
		Sequence:  b.tickCount,
		Time:      b.time,
		Flags:     b.flags,
		Format:    b.format,
		Sheets:    b.sheets,
	}
}

// pendingRate returns the particles the rate and burst terms want this tick
// and the fraction left over. Nothing is committed.
func (b *instance) pendingRate() (int, float32) {
	acc := b.rateFraction + b.provider.Rate(b.time)*b.dt
	if acc < 0 {
		acc = 0
	}
	n := int(acc + 1e-5)
	frac := acc - float32(n)
	if frac < 0 {
		frac = 0
	}
	return n + b.provider.Bursts(b.lastTime, b.time), frac
}

func (b *instance) inverseLifetime() float32 {
	life := b.provider.MaxLifetime(b.time)
	if life <= 0 {
		return 0
	}
	return 1 / life
}
