package core

import (
	"errors"
	"fmt"
)

var (
	ErrPoolExhausted   = errors.New("particle pool exhausted")
	ErrGrowthThrottled = errors.New("particle pool growth throttled")
)

// Pool is a fixed-stride particle store with a permutation of live slots.
//
// Slots are absolute indices into Particles and Payloads and never move.
// Indices[:Active] lists the live slots; Indices[Active:] the free ones.
// Killing a particle swaps its entry in Indices with the last live entry,
// so the data of every other particle stays where it is.
type Pool[P any] struct {
	Particles []Particle
	Payloads  []P
	Indices   []int32
	Active    int

	// MaxCapacity is the hard limit for Reserve.
	MaxCapacity int
	// GrowthPerTick caps how many slots Reserve may add between BeginTick calls. 0 disables the cap.
	GrowthPerTick int

	positions     []int32 // slot -> position in Indices
	grownThisTick int
	serial        uint32
}

// NewPool creates a pool with capacity slots that may grow up to maxCapacity.
func NewPool[P any](capacity, maxCapacity int) *Pool[P] {
	if capacity <= 0 {
		capacity = 1
	}
	if maxCapacity < capacity {
		maxCapacity = capacity
	}
	p := &Pool[P]{MaxCapacity: maxCapacity}
	p.resize(capacity)
	return p
}

func (p *Pool[P]) Capacity() int  { return len(p.Particles) }
func (p *Pool[P]) FreeCount() int { return len(p.Particles) - p.Active }

// BeginTick resets the per-tick growth budget.
func (p *Pool[P]) BeginTick() {
	p.grownThisTick = 0
}

// Reserve makes sure extra more particles can be acquired.
// On failure the pool is left untouched.
func (p *Pool[P]) Reserve(extra int) error {
	need := p.Active + extra
	current := len(p.Particles)
	if need <= current {
		return nil
	}
	if need > p.MaxCapacity {
		return fmt.Errorf("%w: need %d slots, max %d", ErrPoolExhausted, need, p.MaxCapacity)
	}

	newCap := current * 2
	if newCap < need {
		newCap = need
	}
	if newCap > p.MaxCapacity {
		newCap = p.MaxCapacity
	}
	if p.GrowthPerTick > 0 {
		allowed := p.GrowthPerTick - p.grownThisTick
		if need-current > allowed {
			return fmt.Errorf("%w: need %d more slots, %d left this tick", ErrGrowthThrottled, need-current, allowed)
		}
		if newCap-current > allowed {
			newCap = current + allowed
		}
	}

	p.grownThisTick += newCap - current
	p.resize(newCap)
	return nil
}

func (p *Pool[P]) resize(n int) {
	old := len(p.Particles)

	particles := make([]Particle, n)
	copy(particles, p.Particles)
	payloads := make([]P, n)
	copy(payloads, p.Payloads)
	indices := make([]int32, n)
	copy(indices, p.Indices)
	positions := make([]int32, n)
	copy(positions, p.positions)

	for i := old; i < n; i++ {
		indices[i] = int32(i)
		positions[i] = int32(i)
	}

	p.Particles = particles
	p.Payloads = payloads
	p.Indices = indices
	p.positions = positions
}

// Acquire takes the next free slot, zeroes it and marks it live.
func (p *Pool[P]) Acquire() (int32, bool) {
	if p.Active >= len(p.Particles) {
		return NullIndex, false
	}
	slot := p.Indices[p.Active]
	p.Active++

	var zero P
	p.serial++
	p.Particles[slot] = Particle{Serial: p.serial}
	p.Payloads[slot] = zero
	return slot, true
}

// Live returns the slot at live position i.
func (p *Pool[P]) Live(i int) int32 {
	return p.Indices[i]
}

// PositionOf returns the position of slot in Indices and whether it is live.
func (p *Pool[P]) PositionOf(slot int32) (int, bool) {
	if slot < 0 || int(slot) >= len(p.positions) {
		return -1, false
	}
	pos := int(p.positions[slot])
	return pos, pos < p.Active
}

// IsLive reports whether slot currently holds a live particle.
func (p *Pool[P]) IsLive(slot int32) bool {
	_, ok := p.PositionOf(slot)
	return ok
}

// KillAt frees the particle at live position pos and returns its slot.
func (p *Pool[P]) KillAt(pos int) int32 {
	last := p.Active - 1
	slot := p.Indices[pos]
	moved := p.Indices[last]

	p.Indices[pos], p.Indices[last] = moved, slot
	p.positions[moved] = int32(pos)
	p.positions[slot] = int32(last)
	p.Active--
	return slot
}

// KillSlot frees slot if it is live.
func (p *Pool[P]) KillSlot(slot int32) bool {
	pos, ok := p.PositionOf(slot)
	if !ok {
		return false
	}
	p.KillAt(pos)
	return true
}

// Reset kills every particle. Capacity is kept.
func (p *Pool[P]) Reset() {
	p.Active = 0
}

func (p *Pool[P]) Particle(slot int32) *Particle { return &p.Particles[slot] }
func (p *Pool[P]) Payload(slot int32) *P         { return &p.Payloads[slot] }
