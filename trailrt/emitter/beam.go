package emitter

import (
	"fmt"
	"math"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
	"github.com/tanema/gween/ease"
)

// Beam keeps up to BeamCount independent beams between a source and a
// target. Beams are not linked; a dead beam is simply swapped out.
type Beam struct {
	instance

	cfg  BeamConfig
	pool *core.Pool[core.BeamPayload]

	// Source and Target resolve beam i's endpoints when the matching method
	// is not EndpointDefault.
	Source SourceResolver
	Target SourceResolver

	owner     Transform
	noise     opensimplex.Noise32
	taperEase ease.TweenFunc
}

func NewBeam(cfg BeamConfig, log Logger) (*Beam, error) {
	if log == nil {
		log = nopLogger{}
	}
	cfg.Validate(log)
	provider, err := cfg.Spawn.Provider()
	if err != nil {
		return nil, fmt.Errorf("beam spawn: %w", err)
	}
	taperEase, err := EaseByName(cfg.Taper.Ease)
	if err != nil {
		return nil, fmt.Errorf("beam taper: %w", err)
	}

	pool := core.NewPool[core.BeamPayload](cfg.Pool.InitialCapacity, cfg.Pool.MaxCapacity)
	pool.GrowthPerTick = cfg.Pool.GrowthPerTick

	b := &Beam{
		instance:  newInstance(log, provider, cfg.Render, cfg.IndexBits),
		cfg:       cfg,
		pool:      pool,
		noise:     opensimplex.New32(cfg.Noise.Seed),
		taperEase: taperEase,
	}
	b.sheets = int32(cfg.Sheets)
	return b, nil
}

func (b *Beam) Kind() core.Kind    { return core.KindBeam }
func (b *Beam) Config() BeamConfig { return b.cfg }
func (b *Beam) ActiveCount() int   { return b.pool.Active }

func (b *Beam) SetSpawnProvider(p SpawnProvider) {
	if p != nil {
		b.provider = p
	}
}

func (b *Beam) validate() error { return nil }
func (b *Beam) strict() bool    { return false }

func (b *Beam) updateSource(owner Transform, _ *TickResult) {
	b.owner = owner
}

// endpoints resolves both ends of beam i, falling back to the owner.
func (b *Beam) endpoints(i int32) (src, tgt SourcePoint) {
	src = b.owner.Point()
	if b.cfg.SourceMethod != EndpointDefault && b.Source != nil {
		if pt, status := b.Source.Resolve(i); status == SourceOK {
			src = withDefaults(pt)
		}
	}

	tgt = b.owner.Point()
	tgt.Position = b.owner.Position.Add(b.owner.Forward().Mul(b.cfg.Distance))
	if b.cfg.TargetMethod != EndpointDefault && b.Target != nil {
		if pt, status := b.Target.Resolve(i); status == SourceOK {
			tgt = withDefaults(pt)
		}
	}
	return src, tgt
}

func (b *Beam) kill(res *TickResult) {
	b.pool.BeginTick()
	for pos := b.pool.Active - 1; pos >= 0; pos-- {
		p := b.pool.Particle(b.pool.Live(pos))
		p.Advance(b.dt)
		if p.Expired() {
			b.pool.KillAt(pos)
			res.Killed++
		}
	}
}

func (b *Beam) spawn(res *TickResult) {
	n, frac := b.pendingRate()
	free := b.cfg.BeamCount - b.pool.Active
	if b.cfg.AlwaysOn {
		n = free
	} else {
		if b.pool.Active == 0 && n == 0 {
			n = 1
		}
		if n > free {
			n = free
		}
	}
	if n <= 0 {
		b.rateFraction = frac
		return
	}
	if err := b.pool.Reserve(n); err != nil {
		res.Throttled = true
		res.event(EventSpawnThrottled, core.NullIndex, err)
		b.log.Debugf("beam %s: spawn skipped: %v", b.id, err)
		return
	}
	b.rateFraction = frac

	inv := b.inverseLifetime()
	if b.cfg.AlwaysOn {
		inv = 0
	}
	for k := 0; k < n; k++ {
		slot, ok := b.pool.Acquire()
		if !ok {
			break
		}
		p := b.pool.Particle(slot)
		p.OneOverMaxLifetime = inv
		p.Size = b.cfg.StartSize
		p.Color = b.cfg.StartColor

		pl := b.pool.Payload(slot)
		pl.BeamIndex = b.freeBeamIndex(slot)
		if b.cfg.Speed <= 0 {
			pl.TravelRatio = 1
		}
		res.Spawned++
	}
}

// freeBeamIndex returns the lowest beam index no other live beam uses.
func (b *Beam) freeBeamIndex(self int32) int32 {
	used := make([]bool, b.cfg.BeamCount)
	for i := 0; i < b.pool.Active; i++ {
		slot := b.pool.Live(i)
		if slot == self {
			continue
		}
		if idx := b.pool.Payload(slot).BeamIndex; idx >= 0 && int(idx) < len(used) {
			used[idx] = true
		}
	}
	for i, u := range used {
		if !u {
			return int32(i)
		}
	}
	return int32(len(used))
}

// recomputeTangents refreshes every beam from its endpoints: direction,
// travel, segment count, noise and taper.
func (b *Beam) recomputeTangents() {
	for i := 0; i < b.pool.Active; i++ {
		slot := b.pool.Live(i)
		p := b.pool.Particle(slot)
		pl := b.pool.Payload(slot)

		src, tgt := b.endpoints(pl.BeamIndex)
		d := tgt.Position.Sub(src.Position)
		length := d.Len()
		dir := core.SafeNormalize(d, src.Rotation.Rotate(forwardAxis))

		pl.Source, pl.Target = src.Position, tgt.Position
		pl.Direction, pl.Length = dir, length
		pl.SourceTangent, pl.SourceStrength = dir, src.TangentStrength
		pl.TargetTangent, pl.TargetStrength = dir, tgt.TangentStrength
		if b.cfg.SourceMethod != EndpointDefault {
			pl.SourceTangent = core.SafeNormalize(src.Tangent, dir)
		}
		if b.cfg.TargetMethod != EndpointDefault {
			pl.TargetTangent = core.SafeNormalize(tgt.Tangent, dir)
		}

		if b.cfg.Speed > 0 && length > core.TangentEpsilon {
			pl.TravelRatio = min(pl.TravelRatio+b.cfg.Speed*b.dt/length, 1)
		} else {
			pl.TravelRatio = 1
		}
		reach := length * pl.TravelRatio
		p.Position = src.Position.Add(dir.Mul(reach))

		steps := b.cfg.InterpolationPoints
		if np := b.cfg.Noise.Points; np > 0 {
			steps = (np + 1) * b.cfg.Noise.Tessellation
		}
		pl.Steps = int32(steps)
		pl.StepSize = reach / float32(steps)

		b.applyNoise(pl, src.Up)
		b.applyTaper(pl)
	}
}

func (b *Beam) applyNoise(pl *core.BeamPayload, up mgl32.Vec3) {
	n := min(b.cfg.Noise.Points, core.MaxBeamNoisePoints)
	pl.NoiseCount = int32(n)
	if n == 0 {
		return
	}

	right := pl.Direction.Cross(up)
	if right.Len() <= core.TangentEpsilon {
		right = pl.Direction.Cross(mgl32.Vec3{1, 0, 0})
	}
	right = core.SafeNormalize(right, mgl32.Vec3{1, 0, 0})
	normal := right.Cross(pl.Direction)

	t := b.time * b.cfg.Noise.Speed
	lane := float32(pl.BeamIndex) * 17.3
	reach := pl.Length * pl.TravelRatio
	for k := 0; k < n; k++ {
		s := float32(k+1) / float32(n+1)
		base := pl.Source.Add(pl.Direction.Mul(reach * s))
		u := float32(k) * b.cfg.Noise.Frequency
		x := b.noise.Eval3(u, t, lane)
		y := b.noise.Eval3(u, t, lane+31.7)

		amp := b.cfg.Noise.Strength
		if b.cfg.Noise.LockEnds {
			amp *= float32(math.Sin(math.Pi * float64(s)))
		}
		pl.Noise[k] = base.Add(right.Mul(x * amp)).Add(normal.Mul(y * amp))
	}
}

// applyTaper fills one width multiplier per control point: the source, each
// noise point and the target.
func (b *Beam) applyTaper(pl *core.BeamPayload) {
	count := int(pl.NoiseCount) + 2
	tc := b.cfg.Taper
	for k := 0; k < count; k++ {
		s := float32(k) / float32(count-1)
		w := float32(1)
		switch tc.Method {
		case TaperFull:
			w = b.taperAt(s)
		case TaperPartial:
			w = b.taperAt(s * pl.TravelRatio)
		}
		pl.Taper[k] = w * tc.Scale
	}
	for k := count; k < len(pl.Taper); k++ {
		pl.Taper[k] = 0
	}
}

func (b *Beam) taperAt(s float32) float32 {
	return 1 + (b.cfg.Taper.Factor-1)*b.taperEase(s, 0, 1, 1)
}

func (b *Beam) snapshot() (*tess.ReplaySnapshot, tess.RejectReason) {
	return tess.BeamSnapshot(b.header(core.KindBeam), b.pool)
}
