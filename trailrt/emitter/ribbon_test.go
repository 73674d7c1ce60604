package emitter

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordLogger struct {
	warnings []string
}

func (l *recordLogger) Debugf(string, ...any) {}
func (l *recordLogger) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func testRibbonConfig() RibbonConfig {
	cfg := DefaultRibbonConfig()
	cfg.Spawn = SpawnConfig{Rate: 10, Lifetime: 100}
	cfg.Pool = PoolConfig{InitialCapacity: 16, MaxCapacity: 1024}
	cfg.StrictTopology = true
	return cfg
}

func newTestRibbon(t *testing.T, cfg RibbonConfig) *Ribbon {
	t.Helper()
	r, err := NewRibbon(cfg, nil)
	require.NoError(t, err)
	return r
}

func liveSpawnTimes(r *Ribbon) []float32 {
	var out []float32
	for i := 0; i < r.pool.Active; i++ {
		out = append(out, r.pool.Payload(r.pool.Live(i)).SpawnTime)
	}
	return out
}

func TestRibbon_FirstTickSpawnsOnlyParticle(t *testing.T) {
	r := newTestRibbon(t, testRibbonConfig())

	res := Tick(r, Transform{}, 0.1)
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, 1, r.ActiveCount())

	head := r.walker.Head(0)
	require.NotEqual(t, core.NullIndex, head)
	assert.Equal(t, core.TagOnly, r.pool.Payload(head).Tag)
	assert.Nil(t, res.Snapshot)
}

func TestRibbon_BootstrapWithZeroRate(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.Spawn.Rate = 0
	r := newTestRibbon(t, cfg)

	res := Tick(r, Transform{}, 0.1)
	assert.Equal(t, 1, res.Spawned)

	res = Tick(r, Transform{}, 0.1)
	assert.Zero(t, res.Spawned, "bootstrap only applies to empty chains")
}

func TestRibbon_MaxParticlesPreKillsTail(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.Spawn.Rate = 30
	cfg.MaxParticleInTrailCount = 5
	r := newTestRibbon(t, cfg)

	res := Tick(r, Transform{}, 0.1)
	assert.Equal(t, 3, res.Spawned)
	res = Tick(r, Transform{}, 0.1)
	assert.Equal(t, 3, res.Spawned)
	assert.Equal(t, 1, res.Killed)
	require.Equal(t, 5, r.ChainLen(0))

	res = Tick(r, Transform{}, 0.1)
	assert.Equal(t, 3, res.Killed)
	assert.Equal(t, 3, res.Spawned)
	assert.Equal(t, 5, r.ChainLen(0))
	require.NoError(t, r.Validate())

	tail := r.walker.Tail(r.walker.Head(0))
	assert.InDelta(t, 0.5/3, r.pool.Payload(tail).SpawnTime, 1e-3)
	for _, st := range liveSpawnTimes(r) {
		assert.GreaterOrEqual(t, st, float32(0.16))
	}
}

func TestRibbon_ThrottledSpawnKeepsAccumulator(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.Spawn.Rate = 25
	cfg.Pool = PoolConfig{InitialCapacity: 2, MaxCapacity: 100, GrowthPerTick: 1}
	r := newTestRibbon(t, cfg)

	res := Tick(r, Transform{}, 0.1)
	require.Equal(t, 2, res.Spawned)
	assert.InDelta(t, 0.5, r.rateFraction, 1e-5)

	res = Tick(r, Transform{}, 0.1)
	assert.True(t, res.Throttled)
	assert.Zero(t, res.Spawned)
	assert.InDelta(t, 0.5, r.rateFraction, 1e-5)
	require.NotEmpty(t, res.Events)
	assert.Equal(t, EventSpawnThrottled, res.Events[0].Kind)
	assert.True(t, errors.Is(res.Events[0].Err, core.ErrGrowthThrottled))
	assert.Equal(t, 2, r.ActiveCount())
	require.NoError(t, r.Validate())
}

func TestRibbon_SpawnPerUnitInterpolates(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.Spawn.Rate = 0
	cfg.SpawnPerUnit = SpawnPerUnit{Enabled: true, UnitScalar: 1}
	r := newTestRibbon(t, cfg)

	x := float32(0)
	r.Source = SourceFunc(func(int32) (SourcePoint, SourceStatus) {
		return SourcePoint{Position: mgl32.Vec3{x, 0, 0}}, SourceOK
	})

	Tick(r, Transform{}, 0.1)
	x = 5
	res := Tick(r, Transform{}, 0.1)
	assert.Equal(t, 5, res.Spawned)
	require.NoError(t, r.Validate())

	interpolated := 0
	prevX := float32(math.Inf(1))
	for cur := r.walker.Head(0); cur != core.NullIndex; cur = r.pool.Payload(cur).Next {
		px := r.pool.Particle(cur).Position.X()
		assert.Less(t, px, prevX, "positions fall from head to tail")
		prevX = px
		if r.pool.Payload(cur).Interpolated {
			interpolated++
		}
	}
	assert.Equal(t, 4, interpolated)
	assert.InDelta(t, 5, r.pool.Particle(r.walker.Head(0)).Position.X(), 1e-4)
}

func TestRibbon_SourceLostLeavesDeadTrail(t *testing.T) {
	cfg := testRibbonConfig()
	r := newTestRibbon(t, cfg)

	status := SourceOK
	serial := uint32(1)
	x := float32(0)
	r.Source = SourceFunc(func(int32) (SourcePoint, SourceStatus) {
		return SourcePoint{Position: mgl32.Vec3{x, 0, 0}, Serial: serial}, status
	})

	for i := 0; i < 3; i++ {
		Tick(r, Transform{}, 0.1)
		x++
	}
	require.Equal(t, 3, r.ChainLen(0))
	oldHead := r.walker.Head(0)

	status = SourceLost
	res := Tick(r, Transform{}, 0.1)
	require.NotEmpty(t, res.Events)
	assert.Equal(t, EventChainDead, res.Events[0].Kind)
	assert.Equal(t, core.TagDeadTrail, r.pool.Payload(oldHead).Tag)
	assert.Equal(t, core.NullIndex, r.walker.Head(0))
	assert.Zero(t, res.Spawned)
	require.NotNil(t, res.Snapshot, "dead trails keep rendering")

	status, serial = SourceOK, 2
	res = Tick(r, Transform{}, 0.1)
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, core.TagDeadTrail, r.pool.Payload(oldHead).Tag)
	require.NoError(t, r.Validate())
	assert.Equal(t, 1, r.ChainLen(0))
}

func TestRibbon_SourceLostWithoutDeadTrails(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.DeadTrailsOnSourceLoss = false
	r := newTestRibbon(t, cfg)

	status := SourceOK
	r.Source = SourceFunc(func(int32) (SourcePoint, SourceStatus) {
		return SourcePoint{}, status
	})
	for i := 0; i < 3; i++ {
		Tick(r, Transform{}, 0.1)
	}
	require.Equal(t, 3, r.ActiveCount())

	status = SourceLost
	res := Tick(r, Transform{}, 0.1)
	assert.Equal(t, 3, res.Killed)
	assert.Zero(t, r.ActiveCount())
}

func TestRibbon_SerialChangeStartsNewChain(t *testing.T) {
	r := newTestRibbon(t, testRibbonConfig())
	serial := uint32(7)
	r.Source = SourceFunc(func(int32) (SourcePoint, SourceStatus) {
		return SourcePoint{Serial: serial}, SourceOK
	})
	Tick(r, Transform{}, 0.1)
	Tick(r, Transform{}, 0.1)
	require.Equal(t, 2, r.ChainLen(0))

	serial = 8
	res := Tick(r, Transform{}, 0.1)
	require.NotEmpty(t, res.Events)
	assert.Equal(t, EventChainDead, res.Events[0].Kind)
	assert.Equal(t, 1, r.ChainLen(0))
	assert.Equal(t, 3, r.ActiveCount())
	require.NoError(t, r.Validate())
}

func TestRibbon_ZeroTrailCountClampsToOne(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.MaxTrailCount = 0
	log := &recordLogger{}

	r, err := NewRibbon(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Config().MaxTrailCount)
	require.Len(t, log.warnings, 1)
	assert.Contains(t, log.warnings[0], "max_trail_count")

	res := Tick(r, Transform{}, 0.1)
	assert.Equal(t, 1, res.Spawned)
}

func TestRibbon_SourceOffsetsPerChain(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.MaxTrailCount = 2
	cfg.SourceOffsets = []mgl32.Vec3{{-1, 0, 0}, {1, 0, 0}}
	r := newTestRibbon(t, cfg)

	Tick(r, Transform{Position: mgl32.Vec3{0, 2, 0}}, 0.1)
	left := r.pool.Particle(r.walker.Head(0)).Position
	right := r.pool.Particle(r.walker.Head(1)).Position
	assert.True(t, left.ApproxEqual(mgl32.Vec3{-1, 2, 0}), "%v", left)
	assert.True(t, right.ApproxEqual(mgl32.Vec3{1, 2, 0}), "%v", right)
}

func TestRibbon_SnapshotAfterSecondParticle(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.Tessellation.DistanceStep = 1
	cfg.Tessellation.TangentStep = 0
	r := newTestRibbon(t, cfg)

	x := float32(0)
	r.Source = SourceFunc(func(int32) (SourcePoint, SourceStatus) {
		return SourcePoint{Position: mgl32.Vec3{x, 0, 0}}, SourceOK
	})
	Tick(r, Transform{}, 0.1)
	x = 4
	res := Tick(r, Transform{}, 0.1)
	require.NotNil(t, res.Snapshot)

	s := res.Snapshot
	assert.Equal(t, r.ID(), s.EmitterID)
	assert.Equal(t, core.KindRibbon, s.Kind)
	assert.Equal(t, uint64(2), s.Sequence)
	assert.Equal(t, int32(1), s.ChainCount())
	assert.Equal(t, int32(8), s.TriangleCount)
	assert.Equal(t, s.TriangleCount+2*s.ChainCount(), s.IndexCount)
}

func TestRibbon_KillByAge(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.Spawn = SpawnConfig{Rate: 10, Lifetime: 0.25}
	cfg.KillByAge = true
	r := newTestRibbon(t, cfg)

	for i := 0; i < 10; i++ {
		Tick(r, Transform{}, 0.1)
		require.NoError(t, r.Validate())
	}
	assert.LessOrEqual(t, r.ActiveCount(), 3)
	for _, st := range liveSpawnTimes(r) {
		assert.LessOrEqual(t, r.Time()-st, float32(0.25)+1e-4)
	}
}

func TestChainTangents_StraightLine(t *testing.T) {
	pool := core.NewPool[core.TrailPayload](4, 4)
	w := core.Walker{Pool: pool}
	head := core.NullIndex
	var slots []int32
	for i := 0; i < 3; i++ {
		slot, _ := pool.Acquire()
		require.NoError(t, w.InsertAsNewHead(0, head, slot))
		pool.Particle(slot).Position = mgl32.Vec3{2 * float32(i), 0, 0}
		pool.Payload(slot).SpawnTime = 0.5 * float32(i)
		head = slot
		slots = append(slots, slot)
	}

	chainTangents(pool, head, 0, nil)

	mid := pool.Payload(slots[1]).Tangent
	assert.InDelta(t, 4, mid.Len(), 1e-4, "distance over time delta")
	assert.InDelta(t, 0, mid.Y(), 1e-6)
	assert.InDelta(t, 0, mid.Z(), 1e-6)
	assert.Greater(t, mid.X(), float32(0))

	assert.InDelta(t, 4, pool.Payload(slots[0]).Tangent.X(), 1e-4)
	assert.InDelta(t, 4, pool.Payload(slots[2]).Tangent.X(), 1e-4)
}

// randomLifetime gives every particle a different lifetime so chains also
// lose particles from the middle.
type randomLifetime struct {
	rng  *rand.Rand
	rate float32
}

func (p randomLifetime) Rate(float32) float32        { return p.rate }
func (p randomLifetime) MaxLifetime(float32) float32 { return 0.2 + p.rng.Float32() }
func (p randomLifetime) Bursts(float32, float32) int { return 0 }

func TestRibbon_RandomTicksKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cfg := testRibbonConfig()
	cfg.MaxTrailCount = 3
	cfg.MaxParticleInTrailCount = 12
	cfg.SpawnPerUnit = SpawnPerUnit{Enabled: true, UnitScalar: 0.5, TangentScalar: 2}
	cfg.Tessellation.DistanceStep = 0.25
	cfg.Pool = PoolConfig{InitialCapacity: 4, MaxCapacity: 256, GrowthPerTick: 16}
	r := newTestRibbon(t, cfg)
	r.SetSpawnProvider(randomLifetime{rng: rng, rate: 20})

	tick := 0
	r.Source = SourceFunc(func(chain int32) (SourcePoint, SourceStatus) {
		if chain == 1 && tick%23 > 18 {
			return SourcePoint{}, SourceLost
		}
		if chain == 2 && tick%11 == 0 {
			return SourcePoint{}, SourceUnavailable
		}
		angle := float64(tick) * 0.2
		return SourcePoint{
			Position: mgl32.Vec3{float32(math.Cos(angle)) * 3, float32(chain), float32(math.Sin(angle)) * 3},
		}, SourceOK
	})

	for tick = 0; tick < 300; tick++ {
		dt := 0.02 + rng.Float32()*0.05
		res := Tick(r, Transform{}, dt)
		require.NoError(t, r.Validate(), "tick %d", tick)
		for chain := int32(0); chain < 3; chain++ {
			assert.LessOrEqual(t, r.ChainLen(chain), 12)
		}
		if s := res.Snapshot; s != nil {
			assert.Equal(t, s.TriangleCount+2*s.ChainCount(), s.IndexCount, "tick %d", tick)
			assert.Equal(t, r.ActiveCount(), s.ActiveCount)
		}
	}
}

func hasEvent(res TickResult, kind EventKind) bool {
	for _, ev := range res.Events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func tickRecover(c Chain) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	Tick(c, Transform{}, 0.1)
	return nil
}

// corruptTail cuts the back link of chain 0's oldest particle.
func corruptTail(t *testing.T, r *Ribbon) {
	t.Helper()
	tail := r.walker.Tail(r.walker.Head(0))
	require.NotEqual(t, core.NullIndex, tail)
	r.pool.Payload(tail).Prev = core.NullIndex
}

func TestRibbon_BrokenChainDrainsThenRegrows(t *testing.T) {
	cfg := testRibbonConfig()
	cfg.StrictTopology = false
	cfg.Spawn.Lifetime = 0.35
	log := &recordLogger{}
	r, err := NewRibbon(cfg, log)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		Tick(r, Transform{}, 0.1)
	}
	corruptTail(t, r)

	var res TickResult
	for i := 0; i < 20 && !hasEvent(res, EventTopology); i++ {
		res = Tick(r, Transform{}, 0.1)
	}
	require.True(t, hasEvent(res, EventTopology))
	for _, ev := range res.Events {
		if ev.Kind == EventTopology {
			assert.Equal(t, int32(0), ev.Chain)
			assert.ErrorIs(t, ev.Err, core.ErrTopology)
		}
	}
	assert.Zero(t, res.Spawned, "a broken chain stops growing in the same tick")
	assert.True(t, r.broken[0])
	assert.NotEmpty(t, log.warnings)

	for i := 0; i < 20 && r.broken[0]; i++ {
		res = Tick(r, Transform{}, 0.1)
		if r.broken[0] {
			assert.Zero(t, res.Spawned)
		}
	}
	assert.False(t, r.broken[0], "the chain is released once drained")
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, 1, r.ActiveCount())
	require.NoError(t, r.Validate())
}

func TestRibbon_StrictTopologyPanics(t *testing.T) {
	r := newTestRibbon(t, testRibbonConfig())
	for i := 0; i < 3; i++ {
		require.NoError(t, tickRecover(r))
	}
	corruptTail(t, r)

	err := tickRecover(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTopology)

	assert.Panics(t, func() {
		r.topologyError(&r.instance, 0, core.ErrTopology, &TickResult{})
	})
}
