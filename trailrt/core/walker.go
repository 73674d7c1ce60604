package core

import (
	"errors"
	"fmt"
)

// ErrTopology reports a broken chain invariant. It always means an earlier
// bug; callers decide whether to assert or to stop growing the chain.
var ErrTopology = errors.New("chain topology inconsistent")

// Direction selects which link Find follows.
type Direction uint8

const (
	// TowardTail follows Next.
	TowardTail Direction = iota
	// TowardHead follows Prev.
	TowardHead
)

// Predicate selects the particle Find stops at.
type Predicate uint8

const (
	FindAny Predicate = iota
	FindSpawned
	FindInterpolated
	FindStart
	FindEnd
)

// Walker runs chain searches and repairs over a trail pool.
type Walker struct {
	Pool *Pool[TrailPayload]
}

func (w Walker) payload(slot int32) *TrailPayload {
	return &w.Pool.Payloads[slot]
}

func (w Walker) valid(slot int32) bool {
	return slot >= 0 && int(slot) < len(w.Pool.Payloads)
}

func (w Walker) step(slot int32, dir Direction) int32 {
	if dir == TowardHead {
		return w.payload(slot).Prev
	}
	return w.payload(slot).Next
}

func (w Walker) matches(slot int32, pred Predicate) bool {
	pl := w.payload(slot)
	switch pred {
	case FindSpawned:
		return !pl.Interpolated
	case FindInterpolated:
		return pl.Interpolated
	case FindStart:
		return pl.IsHead()
	case FindEnd:
		return pl.IsTail()
	}
	return true
}

// Find walks from start and returns the first particle matching pred.
// It returns false when it runs off the chain.
func (w Walker) Find(start int32, dir Direction, skipStart bool, pred Predicate) (int32, bool) {
	if !w.valid(start) {
		return NullIndex, false
	}
	cur := start
	if skipStart {
		cur = w.step(cur, dir)
	}
	for n := 0; n <= w.Pool.Active; n++ {
		if !w.valid(cur) {
			return NullIndex, false
		}
		if w.matches(cur, pred) {
			return cur, true
		}
		cur = w.step(cur, dir)
	}
	return NullIndex, false
}

// Head returns the live head of chain, ignoring dead trails.
func (w Walker) Head(chain int32) int32 {
	for i := 0; i < w.Pool.Active; i++ {
		slot := w.Pool.Live(i)
		pl := w.payload(slot)
		if pl.ChainIndex == chain && pl.IsLiveHead() {
			return slot
		}
	}
	return NullIndex
}

// Tail returns the oldest particle of the chain whose head is head.
func (w Walker) Tail(head int32) int32 {
	if !w.valid(head) {
		return NullIndex
	}
	tail, ok := w.Find(head, TowardTail, false, FindEnd)
	if !ok {
		return NullIndex
	}
	return tail
}

// Len counts the particles from head to the tail.
func (w Walker) Len(head int32) int {
	n := 0
	for cur := head; w.valid(cur) && n <= w.Pool.Active; cur = w.payload(cur).Next {
		n++
	}
	return n
}

// InsertAsNewHead links slot in front of oldHead. With no old head the new
// particle starts a chain on its own.
func (w Walker) InsertAsNewHead(chain, oldHead, slot int32) error {
	np := w.payload(slot)
	np.ChainIndex = chain
	if oldHead == NullIndex {
		np.Links = NewLinks(TagOnly)
		return nil
	}
	if !w.valid(oldHead) {
		np.Links = NewLinks(TagForceKill)
		return fmt.Errorf("%w: head %d out of range", ErrTopology, oldHead)
	}

	op := w.payload(oldHead)
	switch op.Tag {
	case TagOnly:
		op.SetTag(TagEnd)
	case TagStart:
		op.SetTag(TagMiddle)
	default:
		np.Links = NewLinks(TagForceKill)
		return fmt.Errorf("%w: cannot insert in front of %s particle %d", ErrTopology, op.Tag, oldHead)
	}
	op.SetPrev(slot)
	np.Links = Links{Tag: TagStart, Next: oldHead, Prev: NullIndex}
	return nil
}

// linkedTo reports whether other is a live particle of slot's chain whose
// link in the opposite direction points back at slot. Repairs only touch
// neighbours that pass; a slot freed and reused by another chain does not.
func (w Walker) linkedTo(slot, other int32, dir Direction) bool {
	if !w.valid(other) || !w.Pool.IsLive(other) {
		return false
	}
	op := w.payload(other)
	if op.ChainIndex != w.payload(slot).ChainIndex {
		return false
	}
	if dir == TowardTail {
		return op.Prev == slot
	}
	return op.Next == slot
}

// Repair fixes the neighbours of slot before it is removed.
// A dying middle particle splits the chain: everything from its Next to the
// tail is tagged TagForceKill and removed by PurgeForceKilled. A neighbour
// that does not link back is reported and left untouched.
func (w Walker) Repair(slot int32) error {
	pl := w.payload(slot)
	switch pl.Tag {
	case TagForceKill, TagOnly:
		return nil

	case TagStart, TagDeadTrail:
		if !pl.HasNext() {
			return nil
		}
		if !w.linkedTo(slot, pl.Next, TowardTail) {
			return fmt.Errorf("%w: %s particle %d links to %d, which does not link back", ErrTopology, pl.Tag, slot, pl.Next)
		}
		next := w.payload(pl.Next)
		switch next.Tag {
		case TagMiddle:
			if pl.Tag == TagDeadTrail {
				next.SetTag(TagDeadTrail)
			} else {
				next.SetTag(TagStart)
			}
		case TagEnd:
			if pl.Tag == TagDeadTrail {
				next.SetTag(TagDeadTrail)
			} else {
				next.SetTag(TagOnly)
			}
		case TagForceKill:
		default:
			return fmt.Errorf("%w: head %d followed by %s particle %d", ErrTopology, slot, next.Tag, pl.Next)
		}
		next.SetPrev(NullIndex)
		return nil

	case TagEnd:
		return w.finalizeNewTail(slot, pl.Prev)

	case TagMiddle:
		// The downstream half is orphaned whatever happens upstream.
		tailErr := w.finalizeNewTail(slot, pl.Prev)
		var cascadeErr error
		if w.linkedTo(slot, pl.Next, TowardTail) {
			cascadeErr = w.cascadeForceKill(pl.Next)
		} else {
			cascadeErr = fmt.Errorf("%w: middle particle %d links to %d, which does not link back", ErrTopology, slot, pl.Next)
		}
		return errors.Join(tailErr, cascadeErr)
	}
	return fmt.Errorf("%w: particle %d has unknown tag %d", ErrTopology, slot, pl.Tag)
}

// finalizeNewTail turns prev into the tail of its chain after slot goes away.
func (w Walker) finalizeNewTail(slot, prev int32) error {
	if prev == NullIndex {
		return fmt.Errorf("%w: particle %d has no prev", ErrTopology, slot)
	}
	if !w.linkedTo(slot, prev, TowardHead) {
		return fmt.Errorf("%w: particle %d links to %d, which does not link back", ErrTopology, slot, prev)
	}
	pp := w.payload(prev)
	switch pp.Tag {
	case TagStart:
		pp.SetTag(TagOnly)
	case TagMiddle:
		pp.SetTag(TagEnd)
	case TagDeadTrail:
		// A dead head left on its own renders nothing.
		pp.TriangleCount = 0
	case TagForceKill:
	default:
		return fmt.Errorf("%w: %s particle %d precedes %d", ErrTopology, pp.Tag, prev, slot)
	}
	pp.SetNext(NullIndex)
	return nil
}

// cascadeForceKill tags from and everything after it for removal. It stops
// at the first link that does not point back, so another chain is never
// tagged.
func (w Walker) cascadeForceKill(from int32) error {
	if !w.valid(from) || !w.Pool.IsLive(from) {
		return fmt.Errorf("%w: cascade from dead particle %d", ErrTopology, from)
	}
	cur := from
	for n := 0; ; n++ {
		if n > w.Pool.Active {
			return fmt.Errorf("%w: cascade from %d does not end", ErrTopology, from)
		}
		pl := w.payload(cur)
		next := pl.Next
		pl.SetTag(TagForceKill)
		if next == NullIndex {
			return nil
		}
		if !w.linkedTo(cur, next, TowardTail) {
			return fmt.Errorf("%w: cascade stopped at %d, which does not link back to %d", ErrTopology, next, cur)
		}
		cur = next
	}
}

// Kill repairs the chain around the particle at live position pos and frees it.
// The particle is freed even when the repair reports an error.
func (w Walker) Kill(pos int) (int32, error) {
	slot := w.Pool.Live(pos)
	err := w.Repair(slot)
	w.Pool.KillAt(pos)
	return slot, err
}

// PurgeForceKilled frees every particle tagged TagForceKill and returns how many.
func (w Walker) PurgeForceKilled() int {
	purged := 0
	for pos := w.Pool.Active - 1; pos >= 0; pos-- {
		if w.payload(w.Pool.Live(pos)).IsForceKill() {
			w.Pool.KillAt(pos)
			purged++
		}
	}
	return purged
}

// ForceKillChain tags every particle of the chain starting at head for removal.
func (w Walker) ForceKillChain(head int32) error {
	return w.cascadeForceKill(head)
}

// Heads returns the heads of every chain, dead trails included, in live order.
func (w Walker) Heads() []int32 {
	var heads []int32
	for i := 0; i < w.Pool.Active; i++ {
		slot := w.Pool.Live(i)
		if w.payload(slot).IsHead() {
			heads = append(heads, slot)
		}
	}
	return heads
}

// Validate checks every invariant of every chain in the pool:
// one live head per chain index, mutual links, correct tags along each chain,
// and every non force-killed particle reachable from exactly one head.
func (w Walker) Validate() error {
	liveHeads := make(map[int32]int32)
	visited := make(map[int32]bool)

	for _, head := range w.Heads() {
		hp := w.payload(head)
		if hp.IsLiveHead() {
			if other, dup := liveHeads[hp.ChainIndex]; dup {
				return fmt.Errorf("%w: chain %d has heads %d and %d", ErrTopology, hp.ChainIndex, other, head)
			}
			liveHeads[hp.ChainIndex] = head
		}
		if hp.HasPrev() {
			return fmt.Errorf("%w: head %d has prev %d", ErrTopology, head, hp.Prev)
		}
		if hp.IsOnly() && hp.HasNext() {
			return fmt.Errorf("%w: only particle %d has next %d", ErrTopology, head, hp.Next)
		}
		if hp.IsStart() && !hp.HasNext() {
			return fmt.Errorf("%w: start particle %d has no next", ErrTopology, head)
		}

		cur := head
		for steps := 0; ; steps++ {
			if steps > w.Pool.Active {
				return fmt.Errorf("%w: chain at %d does not terminate", ErrTopology, head)
			}
			if visited[cur] {
				return fmt.Errorf("%w: particle %d reached twice", ErrTopology, cur)
			}
			if !w.Pool.IsLive(cur) {
				return fmt.Errorf("%w: particle %d in chain %d is not live", ErrTopology, cur, hp.ChainIndex)
			}
			visited[cur] = true

			pl := w.payload(cur)
			if pl.ChainIndex != hp.ChainIndex {
				return fmt.Errorf("%w: particle %d belongs to chain %d, reached from chain %d", ErrTopology, cur, pl.ChainIndex, hp.ChainIndex)
			}
			if !pl.HasNext() {
				if cur != head && !pl.IsEnd() {
					return fmt.Errorf("%w: tail %d tagged %s", ErrTopology, cur, pl.Tag)
				}
				break
			}
			if cur != head && !pl.IsMiddle() {
				return fmt.Errorf("%w: interior particle %d tagged %s", ErrTopology, cur, pl.Tag)
			}
			next := pl.Next
			if !w.valid(next) {
				return fmt.Errorf("%w: particle %d links to %d", ErrTopology, cur, next)
			}
			if w.payload(next).Prev != cur {
				return fmt.Errorf("%w: %d.next=%d but %d.prev=%d", ErrTopology, cur, next, next, w.payload(next).Prev)
			}
			cur = next
		}
	}

	for i := 0; i < w.Pool.Active; i++ {
		slot := w.Pool.Live(i)
		if w.payload(slot).IsForceKill() {
			continue
		}
		if !visited[slot] {
			return fmt.Errorf("%w: particle %d is not reachable from any head", ErrTopology, slot)
		}
	}
	return nil
}
