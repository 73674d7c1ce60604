package trailfx

import (
	"sync"

	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/google/uuid"
)

// SnapshotHub indexes the snapshot container of every chain emitter by
// emitter ID and fans new snapshots out to subscribers. Readers may call
// Get and Latest from any goroutine.
type SnapshotHub struct {
	mu         sync.RWMutex
	containers map[uuid.UUID]*tess.SnapshotContainer
	consumers  []tess.Consumer
}

func NewSnapshotHub() *SnapshotHub {
	return &SnapshotHub{containers: make(map[uuid.UUID]*tess.SnapshotContainer)}
}

// Subscribe registers c for every snapshot published after this call.
// Consumers run on the simulation goroutine and must not keep the snapshot
// mutable; snapshots are never written after publication.
func (h *SnapshotHub) Subscribe(c tess.Consumer) {
	h.mu.Lock()
	h.consumers = append(h.consumers, c)
	h.mu.Unlock()
}

func (h *SnapshotHub) register(id uuid.UUID, c *tess.SnapshotContainer) {
	h.mu.Lock()
	h.containers[id] = c
	h.mu.Unlock()
}

func (h *SnapshotHub) unregister(id uuid.UUID) {
	h.mu.Lock()
	delete(h.containers, id)
	h.mu.Unlock()
}

// publish stores s as the latest snapshot of emitter id. A nil s clears the
// container and is not passed to consumers.
func (h *SnapshotHub) publish(id uuid.UUID, c *tess.SnapshotContainer, s *tess.ReplaySnapshot) {
	c.Update(s)

	h.mu.RLock()
	if _, ok := h.containers[id]; !ok {
		h.mu.RUnlock()
		h.register(id, c)
		h.mu.RLock()
	}
	consumers := h.consumers
	h.mu.RUnlock()

	if s == nil {
		return
	}
	for _, consumer := range consumers {
		consumer.Consume(s)
	}
}

// Get returns the container of emitter id.
func (h *SnapshotHub) Get(id uuid.UUID) (*tess.SnapshotContainer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.containers[id]
	return c, ok
}

// Latest returns the newest snapshot of emitter id, or nil.
func (h *SnapshotHub) Latest(id uuid.UUID) *tess.ReplaySnapshot {
	if c, ok := h.Get(id); ok {
		return c.Get()
	}
	return nil
}

// Emitters lists the IDs of every emitter that has ticked at least once.
func (h *SnapshotHub) Emitters() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(h.containers))
	for id := range h.containers {
		ids = append(ids, id)
	}
	return ids
}
