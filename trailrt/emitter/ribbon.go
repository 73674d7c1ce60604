package emitter

import (
	"fmt"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/go-gl/mathgl/mgl32"
)

// trailSource is the sampled source of one ribbon chain.
type trailSource struct {
	current, last SourcePoint
	valid         bool
	hasLast       bool
	lost          bool

	velocity, lastVelocity mgl32.Vec3
	moved                  float32
	dir, prevDir           mgl32.Vec3
}

func (s *trailSource) advance(pt SourcePoint, dt float32) {
	if !s.valid {
		*s = trailSource{current: pt, valid: true}
		return
	}
	s.last = s.current
	s.lastVelocity = s.velocity
	s.hasLast = true

	move := pt.Position.Sub(s.last.Position)
	s.moved = move.Len()
	if s.moved > core.TangentEpsilon {
		s.prevDir = s.dir
		s.dir = move.Mul(1 / s.moved)
	}
	if dt > 0 {
		s.velocity = move.Mul(1 / dt)
	}
	s.current = pt
}

// Ribbon emits up to MaxTrailCount chains, each following one source.
type Ribbon struct {
	instance
	linked

	cfg RibbonConfig
	// Source resolves the point chain i follows. Nil follows the owner.
	Source SourceResolver

	sources      []trailSource
	unitFraction []float32
}

func NewRibbon(cfg RibbonConfig, log Logger) (*Ribbon, error) {
	if log == nil {
		log = nopLogger{}
	}
	cfg.Validate(log)
	provider, err := cfg.Spawn.Provider()
	if err != nil {
		return nil, fmt.Errorf("ribbon spawn: %w", err)
	}

	r := &Ribbon{
		instance: newInstance(log, provider, cfg.Render, cfg.IndexBits),
		linked: newLinked(cfg.Pool, linkedOptions{
			killByAge:      cfg.KillByAge,
			strictTopology: cfg.StrictTopology,
			maxPerChain:    cfg.MaxParticleInTrailCount,
			everyFrame:     cfg.TangentRecalculationEveryFrame,
			tessellation:   cfg.Tessellation,
		}),
		cfg:          cfg,
		sources:      make([]trailSource, cfg.MaxTrailCount),
		unitFraction: make([]float32, cfg.MaxTrailCount),
	}
	r.sheets = cfg.Tessellation.Sheets
	return r, nil
}

func (r *Ribbon) Kind() core.Kind      { return core.KindRibbon }
func (r *Ribbon) Config() RibbonConfig { return r.cfg }

// SetSpawnProvider replaces the spawn curves built from the config.
func (r *Ribbon) SetSpawnProvider(p SpawnProvider) {
	if p != nil {
		r.provider = p
	}
}

func (r *Ribbon) offset(chain int) mgl32.Vec3 {
	if chain < len(r.cfg.SourceOffsets) {
		return r.cfg.SourceOffsets[chain]
	}
	return mgl32.Vec3{}
}

func (r *Ribbon) updateSource(owner Transform, res *TickResult) {
	for i := range r.sources {
		st := &r.sources[i]
		chain := int32(i)

		pt, status := SourcePoint{}, SourceUnavailable
		if r.Source != nil {
			pt, status = r.Source.Resolve(chain)
		}
		switch status {
		case SourceLost:
			if !st.lost {
				r.loseSource(chain, res)
			}
			*st = trailSource{lost: true}
			continue
		case SourceUnavailable:
			pt = owner.Point()
		default:
			pt = withDefaults(pt)
		}

		// A different tracked particle starts a new chain instead of
		// bridging the gap between the two.
		if st.valid && pt.Serial != st.current.Serial {
			r.loseSource(chain, res)
			st.valid = false
		}
		pt.Position = pt.Position.Add(pt.Rotation.Rotate(r.offset(i)))
		st.advance(pt, r.dt)
	}
}

func (r *Ribbon) loseSource(chain int32, res *TickResult) {
	head := r.walker.Head(chain)
	if head == core.NullIndex {
		return
	}
	if r.cfg.DeadTrailsOnSourceLoss {
		r.pool.Payload(head).SetTag(core.TagDeadTrail)
	} else if err := r.walker.ForceKillChain(head); err != nil {
		r.topologyError(&r.instance, chain, err, res)
	}
	r.log.Debugf("ribbon %s: chain %d lost its source", r.id, chain)
	res.event(EventChainDead, chain, nil)
}

func (r *Ribbon) kill(res *TickResult) {
	r.killExpired(&r.instance, res)
}

// unitSpawns converts the distance the source moved into spawns. Turning
// sources spawn more when TangentScalar is set.
func (r *Ribbon) unitSpawns(st *trailSource, frac float32) (int, float32) {
	if st.moved <= 0 {
		return 0, frac
	}
	turn := float32(0)
	if scalar := r.cfg.SpawnPerUnit.TangentScalar; scalar > 0 && st.prevDir != (mgl32.Vec3{}) {
		turn = (1 - st.prevDir.Dot(st.dir)) * 0.5 * scalar
	}
	units := frac + st.moved*(1+turn)/r.cfg.SpawnPerUnit.UnitScalar
	n := int(units)
	return n, units - float32(n)
}

type ribbonPlan struct {
	chain    int32
	n        int
	prekill  int
	unitFrac float32
}

func (r *Ribbon) spawn(res *TickResult) {
	rateN, rateFrac := r.pendingRate()

	var plans []ribbonPlan
	total := 0
	for i := range r.sources {
		st := &r.sources[i]
		chain := int32(i)
		if !st.valid || !r.canGrow(chain) {
			continue
		}

		n := rateN
		unitFrac := r.unitFraction[i]
		if r.cfg.SpawnPerUnit.Enabled && st.hasLast {
			var extra int
			extra, unitFrac = r.unitSpawns(st, unitFrac)
			n += extra
		}
		live := r.ChainLen(chain)
		if live == 0 && n == 0 {
			n = 1
		}
		n, prekill := r.budget(live, n)
		plans = append(plans, ribbonPlan{chain: chain, n: n, prekill: prekill, unitFrac: unitFrac})
		total += n - prekill
	}

	if err := r.pool.Reserve(total); err != nil {
		res.Throttled = true
		res.event(EventSpawnThrottled, core.NullIndex, err)
		r.log.Debugf("ribbon %s: spawn skipped: %v", r.id, err)
		return
	}

	r.rateFraction = rateFrac
	for _, p := range plans {
		r.unitFraction[p.chain] = p.unitFrac
		if p.n == 0 {
			continue
		}
		r.prekill(&r.instance, p.chain, p.prekill, res)
		res.Spawned += r.insert(p.chain, p.n, &r.sources[p.chain], res)
	}
}

// insert adds n particles to chain, oldest first, spread along the cubic
// between the last and the current source sample.
func (r *Ribbon) insert(chain int32, n int, st *trailSource, res *TickResult) int {
	head := r.walker.Head(chain)
	dt := r.dt
	from := st.current
	if st.hasLast {
		from = st.last
	}
	t0 := st.lastVelocity.Mul(dt)
	t1 := st.velocity.Mul(dt)

	prevTime := r.lastTime
	if head != core.NullIndex {
		prevTime = r.pool.Payload(head).SpawnTime
	}
	inv := r.inverseLifetime()

	spawned := 0
	for k := 0; k < n; k++ {
		frac := float32(k+1) / float32(n)
		pos := st.current.Position
		tangent := st.velocity
		if st.hasLast {
			pos = core.CubicInterp(from.Position, t0, st.current.Position, t1, frac)
			if dt > 0 {
				tangent = core.CubicInterpDerivative(from.Position, t0, st.current.Position, t1, frac).Mul(1 / dt)
			}
		}

		slot, ok := r.acquireHead(&r.instance, chain, head, res)
		if !ok {
			break
		}
		spawnTime := r.lastTime + frac*dt

		p := r.pool.Particle(slot)
		p.Position = pos
		p.PrevPosition = pos
		p.OneOverMaxLifetime = inv
		p.RelativeTime = (r.time - spawnTime) * inv
		p.Size = r.cfg.StartSize
		p.Color = r.cfg.StartColor

		pl := r.pool.Payload(slot)
		pl.SpawnTime = spawnTime
		pl.SpawnDelta = spawnTime - prevTime
		pl.Tangent = tangent
		pl.Up = core.SafeNormalize(from.Up.Mul(1-frac).Add(st.current.Up.Mul(frac)), upAxis)
		pl.Interpolated = k < n-1
		pl.SourceSerial = st.current.Serial

		prevTime = spawnTime
		head = slot
		spawned++
	}
	return spawned
}

func (r *Ribbon) recomputeTangents() {
	r.recompute(nil)
}

func (r *Ribbon) snapshot() (*tess.ReplaySnapshot, tess.RejectReason) {
	return tess.TrailSnapshot(r.header(core.KindRibbon), r.pool, r.tessellation)
}
