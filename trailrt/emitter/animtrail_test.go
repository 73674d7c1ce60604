package emitter

import (
	"math"
	"testing"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type swingSockets struct {
	x     float32
	width float32
}

func (s *swingSockets) Sockets() (SourcePoint, SourcePoint, bool) {
	return SourcePoint{Position: mgl32.Vec3{s.x, 0, 0}},
		SourcePoint{Position: mgl32.Vec3{s.x, s.width, 0}},
		true
}

func newTestAnimTrail(t *testing.T) (*AnimTrail, *swingSockets) {
	t.Helper()
	cfg := DefaultAnimTrailConfig()
	cfg.Spawn = SpawnConfig{Lifetime: 10}
	cfg.StrictTopology = true
	a, err := NewAnimTrail(cfg, nil)
	require.NoError(t, err)
	sockets := &swingSockets{width: 2}
	a.Sockets = sockets
	return a, sockets
}

func TestAnimTrail_InactiveSpawnsNothing(t *testing.T) {
	a, _ := newTestAnimTrail(t)
	res := Tick(a, Transform{}, 0.1)
	assert.Zero(t, res.Spawned)
	assert.Zero(t, a.ActiveCount())
}

func TestAnimTrail_OneSamplePerTick(t *testing.T) {
	a, sockets := newTestAnimTrail(t)
	a.BeginTrail()
	require.True(t, a.IsActive())

	for i := 0; i < 4; i++ {
		res := Tick(a, Transform{}, 0.1)
		assert.Equal(t, 1, res.Spawned)
		sockets.x += 1
	}
	require.NoError(t, a.Validate())
	assert.Equal(t, 4, a.ChainLen(0))

	head := a.walker.Head(0)
	p := a.pool.Particle(head)
	pl := a.pool.Payload(head)
	assert.True(t, p.Position.ApproxEqual(mgl32.Vec3{3, 1, 0}))
	assert.InDelta(t, 2, p.Width(), 1e-5)
	assert.True(t, pl.FirstEdge.ApproxEqual(mgl32.Vec3{3, 0, 0}))
	assert.True(t, pl.SecondEdge.ApproxEqual(mgl32.Vec3{3, 2, 0}))
	assert.InDelta(t, 1, pl.InterpolationParameter, 1e-4, "sqrt of the unit spacing")
	assert.InDelta(t, 10, pl.FirstEdgeTangent.X(), 1e-3)
	assert.InDelta(t, 10, pl.Tangent.X(), 1e-3)

	tail := a.walker.Tail(head)
	assert.Zero(t, a.pool.Payload(tail).InterpolationParameter)
}

func TestAnimTrail_EndTrailStartsNewChain(t *testing.T) {
	a, sockets := newTestAnimTrail(t)
	a.BeginTrail()
	for i := 0; i < 3; i++ {
		Tick(a, Transform{}, 0.1)
		sockets.x += 1
	}
	oldHead := a.walker.Head(0)

	a.EndTrail()
	assert.False(t, a.IsActive())
	assert.Equal(t, int32(1), a.ChainIndex())
	assert.Equal(t, core.TagDeadTrail, a.pool.Payload(oldHead).Tag)

	res := Tick(a, Transform{}, 0.1)
	assert.Zero(t, res.Spawned)

	a.BeginTrail()
	res = Tick(a, Transform{}, 0.1)
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, 1, a.ChainLen(1))
	assert.Equal(t, 4, a.ActiveCount())
	require.NoError(t, a.Validate())
}

func TestAnimTrail_SlowMotionMovesHead(t *testing.T) {
	a, sockets := newTestAnimTrail(t)
	a.cfg.MinSpawnVelocity = 5
	a.BeginTrail()

	Tick(a, Transform{}, 0.1)
	sockets.x = 0.1
	res := Tick(a, Transform{}, 0.1)
	assert.Zero(t, res.Spawned)
	assert.Equal(t, 1, a.ActiveCount())
	assert.InDelta(t, 0.1, a.pool.Particle(a.walker.Head(0)).Position.X(), 1e-5)

	sockets.x = 2
	res = Tick(a, Transform{}, 0.1)
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, 2, a.ChainLen(0))
}

func TestAnimTrail_MissingSocketsSkipSample(t *testing.T) {
	a, _ := newTestAnimTrail(t)
	a.Sockets = SocketFunc(func() (SourcePoint, SourcePoint, bool) {
		return SourcePoint{}, SourcePoint{}, false
	})
	a.BeginTrail()
	res := Tick(a, Transform{}, 0.1)
	assert.Zero(t, res.Spawned)
}

func TestAnimTrail_ExpiredSamplesDrain(t *testing.T) {
	a, sockets := newTestAnimTrail(t)
	a.SetSpawnProvider(ConstantSpawn{Lifetime: 0.35})
	a.BeginTrail()
	for i := 0; i < 20; i++ {
		Tick(a, Transform{}, 0.1)
		sockets.x = float32(math.Sin(float64(i)))
		require.NoError(t, a.Validate())
	}
	assert.LessOrEqual(t, a.ActiveCount(), 4)

	a.EndTrail()
	for i := 0; i < 10; i++ {
		Tick(a, Transform{}, 0.1)
	}
	assert.Zero(t, a.ActiveCount())
}
