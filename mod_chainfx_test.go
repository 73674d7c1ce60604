package trailfx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/emitter"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"
)

func newChainApp(extra ...Module) *App {
	modules := append([]Module{
		TimeModule{FixedDt: 100 * time.Millisecond},
		ChainFXModule{Workers: 2},
	}, extra...)
	return NewAppBuilder().UseModule(modules...).Build()
}

func testRibbon(t *testing.T, trails int) *emitter.Ribbon {
	t.Helper()
	cfg := emitter.DefaultRibbonConfig()
	cfg.MaxTrailCount = trails
	cfg.Spawn = emitter.SpawnConfig{Rate: 10, Lifetime: 100}
	cfg.StrictTopology = true
	r, err := emitter.NewRibbon(cfg, nil)
	require.NoError(t, err)
	return r
}

func moveEachFrame(app *App, eid EntityId, step mgl32.Vec3) {
	app.UseSystem(System(func(cmd *Commands) {
		if tr, ok := GetComponent[TransformComponent](cmd, eid); ok {
			tr.Position = tr.Position.Add(step)
		}
	}).InStage(Prelude))
}

func TestChainFX_RibbonPublishesSnapshots(t *testing.T) {
	var csv bytes.Buffer
	app := newChainApp(TelemetryModule{Out: &csv})
	cmd := app.Commands()

	r := testRibbon(t, 1)
	eid := cmd.AddEntity(TransformComponent{}, NewChainEmitter(r, SourceBinding{}))
	app.FlushCommands()
	moveEachFrame(app, eid, mgl32.Vec3{1, 0, 0})

	hub, ok := Resource[SnapshotHub](app)
	require.True(t, ok)
	consumed := 0
	hub.Subscribe(tess.ConsumerFunc(func(s *tess.ReplaySnapshot) {
		assert.Equal(t, r.ID(), s.EmitterID)
		consumed++
	}))

	app.RunFrames(5)

	s := hub.Latest(r.ID())
	require.NotNil(t, s)
	assert.Equal(t, uint64(5), s.Sequence)
	assert.Equal(t, core.KindRibbon, s.Kind)
	assert.Equal(t, int32(1), s.ChainCount())
	assert.Equal(t, s.TriangleCount+2, s.IndexCount)
	assert.Equal(t, 4, consumed, "the first frame has a single particle and is rejected")

	ce, ok := GetComponent[ChainEmitterComponent](cmd, eid)
	require.True(t, ok)
	assert.Same(t, s, ce.Container.Get())

	telemetry, ok := Resource[Telemetry](app)
	require.True(t, ok)
	recs := telemetry.Records()
	require.Len(t, recs, 5)
	assert.Equal(t, "too few particles", recs[0].Reject)
	assert.Equal(t, "none", recs[4].Reject)
	assert.Equal(t, 5, recs[4].Active)
	assert.Equal(t, 1, strings.Count(csv.String(), "frame,entity"))
	assert.Len(t, strings.Split(strings.TrimSpace(csv.String()), "\n"), 6)
}

func TestChainFX_BeamFollowsNamedTarget(t *testing.T) {
	app := newChainApp()
	cmd := app.Commands()

	cfg := emitter.DefaultBeamConfig()
	cfg.TargetMethod = emitter.EndpointEntity
	b, err := emitter.NewBeam(cfg, nil)
	require.NoError(t, err)

	ce := NewChainEmitter(b, SourceBinding{})
	ce.Target = SourceBinding{Method: SourceEntity, EntityName: "drone"}
	cmd.AddEntity(TransformComponent{}, ce)
	drone := cmd.AddEntity(TransformComponent{Position: mgl32.Vec3{0, 0, -5}}, NameComponent{Name: "drone"})
	app.FlushCommands()

	app.RunFrames(1)
	hub, _ := Resource[SnapshotHub](app)
	s := hub.Latest(b.ID())
	require.NotNil(t, s)
	assert.InDelta(t, 5, s.Beams[s.Indices[0]].Length, 1e-4)

	cmd.RemoveEntity(drone)
	app.FlushCommands()
	app.RunFrames(1)
	s = hub.Latest(b.ID())
	assert.InDelta(t, 25, s.Beams[s.Indices[0]].Length, 1e-4, "a lost target falls back to the default distance")
}

func TestChainFX_RibbonsFollowSparks(t *testing.T) {
	app := newChainApp()
	cmd := app.Commands()

	sparks := SparkEmitterComponent{
		Enabled:         true,
		MaxParticles:    16,
		SpawnRate:       50,
		LifetimeRange:   [2]float32{10, 10},
		StartSpeedRange: [2]float32{1, 1},
		StartSizeRange:  [2]float32{1, 1},
		Seed:            3,
	}
	cmd.AddEntity(TransformComponent{}, NameComponent{Name: "sparks"}, sparks)

	r := testRibbon(t, 2)
	eid := cmd.AddEntity(TransformComponent{Position: mgl32.Vec3{100, 0, 0}},
		NewChainEmitter(r, SourceBinding{Method: SourceParticle, Emitter: "sparks"}))
	app.FlushCommands()

	app.RunFrames(4)

	assert.Equal(t, 4, r.ChainLen(0))
	assert.Equal(t, 4, r.ChainLen(1))
	require.NoError(t, r.Validate())

	ce, _ := GetComponent[ChainEmitterComponent](cmd, eid)
	require.NotNil(t, ce.source)
	require.Len(t, ce.source.tracked, 2)
	assert.NotZero(t, ce.source.tracked[0])
	assert.NotEqual(t, ce.source.tracked[0], ce.source.tracked[1])

	em, _ := GetComponent[SparkEmitterComponent](cmd, eid-1)
	for i, serial := range ce.source.tracked {
		p, ok := em.Particle(serial)
		require.True(t, ok)
		pt, status := ce.source.Resolve(int32(i))
		assert.Equal(t, emitter.SourceOK, status)
		assert.True(t, pt.Position.ApproxEqual(p.Position))
		assert.Less(t, pt.Position.Len(), float32(1), "ribbons follow the sparks, not their owner")
	}
}

func TestChainFX_AnimTrailSamplesSockets(t *testing.T) {
	app := newChainApp()
	cmd := app.Commands()

	cfg := emitter.DefaultAnimTrailConfig()
	cfg.FirstSocket, cfg.SecondSocket = "base", "tip"
	cfg.Spawn.Lifetime = 10
	a, err := emitter.NewAnimTrail(cfg, nil)
	require.NoError(t, err)
	a.BeginTrail()

	eid := cmd.AddEntity(
		TransformComponent{},
		SocketsComponent{Sockets: map[string]Socket{
			"base": {},
			"tip":  {Offset: mgl32.Vec3{0, 2, 0}},
		}},
		NewChainEmitter(a, SourceBinding{}),
	)
	app.FlushCommands()
	moveEachFrame(app, eid, mgl32.Vec3{1, 0, 0})

	app.RunFrames(3)
	assert.Equal(t, 3, a.ChainLen(0))

	ce, _ := GetComponent[ChainEmitterComponent](cmd, eid)
	first, second, ok := ce.sockets.Sockets()
	require.True(t, ok)
	assert.True(t, first.Position.ApproxEqual(mgl32.Vec3{3, 0, 0}))
	assert.True(t, second.Position.ApproxEqual(mgl32.Vec3{3, 2, 0}))

	hub, _ := Resource[SnapshotHub](app)
	s := hub.Latest(a.ID())
	require.NotNil(t, s)
	assert.Equal(t, core.KindAnimTrail, s.Kind)
}

func TestChainFX_AnimTrailWithoutSocketsIdles(t *testing.T) {
	app := newChainApp()
	cmd := app.Commands()

	cfg := emitter.DefaultAnimTrailConfig()
	cfg.FirstSocket, cfg.SecondSocket = "base", "tip"
	a, err := emitter.NewAnimTrail(cfg, nil)
	require.NoError(t, err)
	a.BeginTrail()
	cmd.AddEntity(TransformComponent{}, NewChainEmitter(a, SourceBinding{}))
	app.FlushCommands()

	app.RunFrames(3)
	assert.Zero(t, a.ActiveCount())
}

func TestChainFX_SourceLossPublishesEvent(t *testing.T) {
	app := newChainApp()
	cmd := app.Commands()

	var events []ChainEvent
	ChainEventType.Subscribe(cmd.World(), func(_ donburi.World, ev ChainEvent) {
		events = append(events, ev)
	})

	r := testRibbon(t, 1)
	eid := cmd.AddEntity(TransformComponent{}, NewChainEmitter(r, SourceBinding{Method: SourceEntity, EntityName: "target"}))
	target := cmd.AddEntity(TransformComponent{}, NameComponent{Name: "target"})
	app.FlushCommands()
	moveEachFrame(app, target, mgl32.Vec3{0, 1, 0})

	app.RunFrames(3)
	assert.Empty(t, events)
	live := r.ActiveCount()

	cmd.RemoveEntity(target)
	app.FlushCommands()
	app.RunFrames(2)

	require.Len(t, events, 1)
	assert.Equal(t, eid, events[0].Entity)
	assert.Equal(t, emitter.EventChainDead, events[0].Event.Kind)
	assert.Equal(t, int32(0), events[0].Event.Chain)
	assert.Equal(t, live, r.ActiveCount(), "a dead trail stops growing but keeps rendering")
}

func TestChainFX_DisabledAndRemovedEmitters(t *testing.T) {
	app := newChainApp()
	cmd := app.Commands()

	idle := testRibbon(t, 1)
	ce := NewChainEmitter(idle, SourceBinding{})
	ce.Enabled = false
	cmd.AddEntity(TransformComponent{}, ce)

	gone := testRibbon(t, 1)
	goneID := cmd.AddEntity(TransformComponent{}, NewChainEmitter(gone, SourceBinding{}))
	app.FlushCommands()

	app.RunFrames(3)
	assert.Zero(t, idle.TickCount())

	hub, _ := Resource[SnapshotHub](app)
	_, ok := hub.Get(gone.ID())
	require.True(t, ok)

	cmd.RemoveEntity(goneID)
	app.FlushCommands()
	app.RunFrames(1)
	_, ok = hub.Get(gone.ID())
	assert.False(t, ok)
}

func TestChainFX_ManyEmittersTickIndependently(t *testing.T) {
	app := NewAppBuilder().UseModule(
		TimeModule{FixedDt: 50 * time.Millisecond},
		ChainFXModule{Workers: 4},
	).Build()
	cmd := app.Commands()

	ribbons := make([]*emitter.Ribbon, 8)
	for i := range ribbons {
		ribbons[i] = testRibbon(t, 2)
		eid := cmd.AddEntity(TransformComponent{Position: mgl32.Vec3{float32(i), 0, 0}}, NewChainEmitter(ribbons[i], SourceBinding{}))
		moveEachFrame(app, eid, mgl32.Vec3{0, 0, 1})
	}
	app.FlushCommands()

	app.RunFrames(10)
	for _, r := range ribbons {
		assert.Equal(t, uint64(10), r.TickCount())
		assert.NoError(t, r.Validate())
	}
}

func TestChainFX_RejectedTickClearsSnapshot(t *testing.T) {
	app := newChainApp()
	cmd := app.Commands()

	r := testRibbon(t, 1)
	r.SetSpawnProvider(emitter.ConstantSpawn{PerSecond: 10, Lifetime: 0.25})
	eid := cmd.AddEntity(TransformComponent{}, NewChainEmitter(r, SourceBinding{}))
	app.FlushCommands()
	moveEachFrame(app, eid, mgl32.Vec3{1, 0, 0})

	hub, _ := Resource[SnapshotHub](app)
	consumed := 0
	hub.Subscribe(tess.ConsumerFunc(func(*tess.ReplaySnapshot) { consumed++ }))

	app.RunFrames(5)
	require.NotNil(t, hub.Latest(r.ID()))

	r.SetSpawnProvider(emitter.ConstantSpawn{PerSecond: 0, Lifetime: 0.05})
	app.RunFrames(10)

	assert.Less(t, r.ActiveCount(), 2)
	assert.Nil(t, hub.Latest(r.ID()), "a drained emitter must not keep serving its last geometry")
	_, ok := hub.Get(r.ID())
	assert.True(t, ok, "the emitter stays registered while it exists")

	before := consumed
	app.RunFrames(3)
	assert.Equal(t, before, consumed, "consumers only see accepted snapshots")
}

// brokenSpawn fails the way a strict topology check does once t passes at.
type brokenSpawn struct {
	emitter.ConstantSpawn
	at float32
}

func (b brokenSpawn) Rate(t float32) float32 {
	if t >= b.at {
		panic(fmt.Errorf("%w: chain 0 has heads 1 and 2", core.ErrTopology))
	}
	return b.PerSecond
}

func TestChainFX_TickPanicReachesMainGoroutine(t *testing.T) {
	app := newChainApp()
	cmd := app.Commands()

	healthy := testRibbon(t, 1)
	broken := testRibbon(t, 1)
	broken.SetSpawnProvider(brokenSpawn{ConstantSpawn: emitter.ConstantSpawn{PerSecond: 10, Lifetime: 100}, at: 0.25})
	cmd.AddEntity(TransformComponent{}, NewChainEmitter(healthy, SourceBinding{}))
	eid := cmd.AddEntity(TransformComponent{}, NewChainEmitter(broken, SourceBinding{}))
	app.FlushCommands()

	app.RunFrames(2)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ = r.(error)
			}
		}()
		app.RunFrames(3)
	}()
	require.Error(t, err, "the worker panic is raised from RunFrames")
	assert.True(t, errors.Is(err, core.ErrTopology))
	assert.Contains(t, err.Error(), fmt.Sprintf("entity %d", eid))
}
