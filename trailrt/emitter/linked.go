package emitter

import (
	"fmt"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/tess"
)

// linked is the chain bookkeeping shared by ribbons and anim trails.
type linked struct {
	pool   *core.Pool[core.TrailPayload]
	walker core.Walker

	killByAge      bool
	strictTopology bool
	maxPerChain    int
	everyFrame     bool
	tessellation   tess.Params

	// broken chains stop growing until they drain.
	broken map[int32]bool
	// spawned counts new particles per chain since the last tangent pass.
	spawned map[int32]int
}

type linkedOptions struct {
	killByAge      bool
	strictTopology bool
	maxPerChain    int
	everyFrame     bool
	tessellation   tess.Params
}

func newLinked(pc PoolConfig, opts linkedOptions) linked {
	pool := core.NewPool[core.TrailPayload](pc.InitialCapacity, pc.MaxCapacity)
	pool.GrowthPerTick = pc.GrowthPerTick
	return linked{
		pool:           pool,
		walker:         core.Walker{Pool: pool},
		killByAge:      opts.killByAge,
		strictTopology: opts.strictTopology,
		maxPerChain:    opts.maxPerChain,
		everyFrame:     opts.everyFrame,
		tessellation:   opts.tessellation,
		broken:         make(map[int32]bool),
		spawned:        make(map[int32]int),
	}
}

func (l *linked) ActiveCount() int { return l.pool.Active }

// Validate checks every chain invariant of the pool.
func (l *linked) Validate() error { return l.walker.Validate() }

func (l *linked) validate() error { return l.walker.Validate() }
func (l *linked) strict() bool    { return l.strictTopology }

// ChainLen returns the length of the live chain with index chain.
func (l *linked) ChainLen(chain int32) int {
	head := l.walker.Head(chain)
	if head == core.NullIndex {
		return 0
	}
	return l.walker.Len(head)
}

func (l *linked) expired(p *core.Particle, pl *core.TrailPayload, now float32) bool {
	if p.Expired() {
		return true
	}
	return l.killByAge && p.OneOverMaxLifetime > 0 && (now-pl.SpawnTime)*p.OneOverMaxLifetime > 1
}

// killExpired ages every particle, removes the expired ones with repair and
// purges whatever the repairs force-killed.
func (l *linked) killExpired(b *instance, res *TickResult) {
	pool := l.pool
	pool.BeginTick()

	killed := 0
	for pos := pool.Active - 1; pos >= 0; pos-- {
		slot := pool.Live(pos)
		pl := pool.Payload(slot)
		if pl.IsForceKill() {
			continue
		}
		p := pool.Particle(slot)
		p.Advance(b.dt)
		if !l.expired(p, pl, b.time) {
			continue
		}
		chain := pl.ChainIndex
		if _, err := l.walker.Kill(pos); err != nil {
			l.topologyError(b, chain, err, res)
		}
		killed++
	}
	res.Killed += killed + l.walker.PurgeForceKilled()
}

func (l *linked) topologyError(b *instance, chain int32, err error, res *TickResult) {
	if l.strictTopology {
		panic(fmt.Errorf("chain %d of %s: %w", chain, b.id, err))
	}
	b.log.Warnf("chain %d of %s: %v, chain stops growing", chain, b.id, err)
	l.broken[chain] = true
	res.event(EventTopology, chain, err)
}

// canGrow reports whether chain may take new particles. A broken chain is
// released once none of its particles are left.
func (l *linked) canGrow(chain int32) bool {
	if !l.broken[chain] {
		return true
	}
	for i := 0; i < l.pool.Active; i++ {
		if l.pool.Payload(l.pool.Live(i)).ChainIndex == chain {
			return false
		}
	}
	delete(l.broken, chain)
	return true
}

// budget returns how many of n new particles fit and how many tail particles
// must go first to stay within maxPerChain.
func (l *linked) budget(live, n int) (spawn, prekill int) {
	limit := l.maxPerChain
	if limit <= 0 {
		return n, 0
	}
	if n > limit {
		n = limit
	}
	if over := live + n - limit; over > 0 {
		prekill = over
	}
	return n, prekill
}

// prekill removes count particles from the tail of chain.
func (l *linked) prekill(b *instance, chain int32, count int, res *TickResult) {
	for k := 0; k < count; k++ {
		head := l.walker.Head(chain)
		if head == core.NullIndex {
			return
		}
		tail := l.walker.Tail(head)
		pos, ok := l.pool.PositionOf(tail)
		if !ok {
			l.topologyError(b, chain, fmt.Errorf("%w: no tail behind head %d", core.ErrTopology, head), res)
			return
		}
		if _, err := l.walker.Kill(pos); err != nil {
			l.topologyError(b, chain, err, res)
			return
		}
		res.Killed++
	}
}

// acquireHead takes a free slot and links it as the new head of chain.
func (l *linked) acquireHead(b *instance, chain, head int32, res *TickResult) (int32, bool) {
	slot, ok := l.pool.Acquire()
	if !ok {
		return core.NullIndex, false
	}
	if err := l.walker.InsertAsNewHead(chain, head, slot); err != nil {
		l.topologyError(b, chain, err, res)
		return core.NullIndex, false
	}
	l.spawned[chain]++
	return slot, true
}

// recompute refreshes tangents of every chain. Unless every frame is
// requested only chains that grew are touched, and only their newest part.
func (l *linked) recompute(extra func(cur, newer, older int32)) {
	for _, head := range l.walker.Heads() {
		hp := l.pool.Payload(head)
		limit := 0
		if !l.everyFrame {
			n := l.spawned[hp.ChainIndex]
			if n == 0 || !hp.IsLiveHead() {
				continue
			}
			limit = n + 2
		}
		chainTangents(l.pool, head, limit, extra)
	}
	clear(l.spawned)
}
