package emitter

import (
	"fmt"
	"math"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/go-gl/mathgl/mgl32"
)

// AnimTrail samples two sockets once per tick while active and leaves a
// chain of edge pairs behind. Each BeginTrail/EndTrail pair is one chain.
type AnimTrail struct {
	instance
	linked

	cfg     AnimTrailConfig
	Sockets SocketResolver

	chain    int32
	active   bool
	sampleOK bool
	first    SourcePoint
	second   SourcePoint
	lastMid  mgl32.Vec3
	hasLast  bool
}

func NewAnimTrail(cfg AnimTrailConfig, log Logger) (*AnimTrail, error) {
	if log == nil {
		log = nopLogger{}
	}
	cfg.Validate(log)
	provider, err := cfg.Spawn.Provider()
	if err != nil {
		return nil, fmt.Errorf("anim trail spawn: %w", err)
	}
	a := &AnimTrail{
		instance: newInstance(log, provider, cfg.Render, cfg.IndexBits),
		linked: newLinked(cfg.Pool, linkedOptions{
			killByAge:      cfg.KillByAge,
			strictTopology: cfg.StrictTopology,
			maxPerChain:    cfg.MaxParticleInTrailCount,
			everyFrame:     cfg.TangentRecalculationEveryFrame,
			tessellation:   cfg.Tessellation,
		}),
		cfg: cfg,
	}
	a.sheets = cfg.Tessellation.Sheets
	return a, nil
}

func (a *AnimTrail) Kind() core.Kind         { return core.KindAnimTrail }
func (a *AnimTrail) Config() AnimTrailConfig { return a.cfg }
func (a *AnimTrail) IsActive() bool          { return a.active }

// ChainIndex is the index the next sample goes to.
func (a *AnimTrail) ChainIndex() int32 { return a.chain }

func (a *AnimTrail) SetSpawnProvider(p SpawnProvider) {
	if p != nil {
		a.provider = p
	}
}

// BeginTrail starts sampling on the next tick.
func (a *AnimTrail) BeginTrail() {
	if a.active {
		return
	}
	a.active = true
	a.hasLast = false
}

// EndTrail stops sampling. The current chain keeps rendering as a dead trail
// until its particles expire; the next BeginTrail starts a new chain.
func (a *AnimTrail) EndTrail() {
	if !a.active {
		return
	}
	if head := a.walker.Head(a.chain); head != core.NullIndex {
		a.pool.Payload(head).SetTag(core.TagDeadTrail)
	}
	a.chain++
	a.active = false
	a.hasLast = false
}

func (a *AnimTrail) updateSource(_ Transform, _ *TickResult) {
	a.sampleOK = false
	if !a.active || a.Sockets == nil {
		return
	}
	first, second, ok := a.Sockets.Sockets()
	if !ok {
		return
	}
	a.first, a.second, a.sampleOK = withDefaults(first), withDefaults(second), true
}

func (a *AnimTrail) kill(res *TickResult) {
	a.killExpired(&a.instance, res)
}

func (a *AnimTrail) spawn(res *TickResult) {
	if !a.active || !a.sampleOK || !a.canGrow(a.chain) {
		return
	}
	mid := a.first.Position.Add(a.second.Position).Mul(0.5)

	head := a.walker.Head(a.chain)
	if head != core.NullIndex && a.hasLast && a.dt > 0 {
		speed := mid.Sub(a.lastMid).Len() / a.dt
		if speed < a.cfg.MinSpawnVelocity {
			a.place(head, mid)
			a.lastMid = mid
			a.spawned[a.chain]++
			return
		}
	}

	n, prekill := a.budget(a.ChainLen(a.chain), 1)
	if err := a.pool.Reserve(n - prekill); err != nil {
		res.Throttled = true
		res.event(EventSpawnThrottled, a.chain, err)
		a.log.Debugf("anim trail %s: spawn skipped: %v", a.id, err)
		return
	}
	a.prekill(&a.instance, a.chain, prekill, res)

	slot, ok := a.acquireHead(&a.instance, a.chain, a.walker.Head(a.chain), res)
	if !ok {
		return
	}
	p := a.pool.Particle(slot)
	p.OneOverMaxLifetime = a.inverseLifetime()
	p.Color = a.cfg.StartColor
	a.place(slot, mid)
	a.pool.Payload(slot).SpawnDelta = a.time - a.lastTime

	a.lastMid = mid
	a.hasLast = true
	res.Spawned++
}

// place writes the current socket sample into slot.
func (a *AnimTrail) place(slot int32, mid mgl32.Vec3) {
	p := a.pool.Particle(slot)
	p.PrevPosition = p.Position
	p.Position = mid
	edge := a.first.Position.Sub(a.second.Position)
	p.Size = mgl32.Vec3{edge.Len(), 1, 1}

	pl := a.pool.Payload(slot)
	pl.SpawnTime = a.time
	pl.FirstEdge = a.first.Position
	pl.SecondEdge = a.second.Position
	pl.Up = core.SafeNormalize(edge, upAxis)
}

// recomputeTangents also refreshes the edge tangents and the centripetal
// interpolation parameter, sqrt of the distance to the older neighbour.
func (a *AnimTrail) recomputeTangents() {
	a.recompute(func(cur, newer, older int32) {
		pl := a.pool.Payload(cur)
		np, op := a.pool.Payload(newer), a.pool.Payload(older)
		inv := 1 / core.SafeDivisor(np.SpawnTime-op.SpawnTime)
		pl.FirstEdgeTangent = np.FirstEdge.Sub(op.FirstEdge).Mul(inv)
		pl.SecondEdgeTangent = np.SecondEdge.Sub(op.SecondEdge).Mul(inv)

		pl.InterpolationParameter = 0
		if next := pl.Next; next != core.NullIndex {
			d := a.pool.Particle(cur).Position.Sub(a.pool.Particle(next).Position).Len()
			pl.InterpolationParameter = float32(math.Sqrt(float64(d)))
		}
	})
}

func (a *AnimTrail) snapshot() (*tess.ReplaySnapshot, tess.RejectReason) {
	return tess.TrailSnapshot(a.header(core.KindAnimTrail), a.pool, a.tessellation)
}
