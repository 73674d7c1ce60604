package tess

import "sync/atomic"

// SnapshotContainer hands the latest snapshot from the simulation to the
// render side. A nil snapshot means the last tick had nothing to draw.
type SnapshotContainer struct {
	latest atomic.Pointer[ReplaySnapshot]
}

func (c *SnapshotContainer) Update(s *ReplaySnapshot) {
	c.latest.Store(s)
}

func (c *SnapshotContainer) Get() *ReplaySnapshot {
	return c.latest.Load()
}

// Consumer receives snapshots on the render side.
type Consumer interface {
	Consume(s *ReplaySnapshot)
}

type ConsumerFunc func(s *ReplaySnapshot)

func (f ConsumerFunc) Consume(s *ReplaySnapshot) { f(s) }
