package emitter

import (
	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// tangentBetween is the finite difference velocity between two particles of
// a chain, newer minus older over their spawn time gap.
func tangentBetween(pool *core.Pool[core.TrailPayload], newer, older int32) mgl32.Vec3 {
	a, b := pool.Particle(newer), pool.Particle(older)
	dt := pool.Payload(newer).SpawnTime - pool.Payload(older).SpawnTime
	return a.Position.Sub(b.Position).Mul(1 / core.SafeDivisor(dt))
}

// chainTangents walks from head toward the tail and sets each tangent from
// its two neighbours, or from the one neighbour at either end. limit bounds
// the number of particles visited; 0 visits the whole chain.
func chainTangents(pool *core.Pool[core.TrailPayload], head int32, limit int, extra func(cur, newer, older int32)) {
	cur := head
	for n := 0; cur != core.NullIndex && n <= pool.Active; n++ {
		if limit > 0 && n >= limit {
			return
		}
		pl := pool.Payload(cur)
		newer, older := pl.Prev, pl.Next
		if newer == core.NullIndex {
			newer = cur
		}
		// A broken chain ends at the first link that does not point back.
		linked := older != core.NullIndex && pool.IsLive(older) && pool.Payload(older).Prev == cur
		if !linked {
			older = cur
		}
		if newer != older {
			pl.Tangent = tangentBetween(pool, newer, older)
			if extra != nil {
				extra(cur, newer, older)
			}
		}
		if !linked {
			return
		}
		cur = pl.Next
	}
}
