package trailfx

import (
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

// Queries visit every entity carrying all of their component types.
// Map stops as soon as the callback returns false. Component pointers are
// only valid inside the callback.
type Query1[A any] struct{ ecs *Ecs }
type Query2[A, B any] struct{ ecs *Ecs }
type Query3[A, B, C any] struct{ ecs *Ecs }

func MakeQuery1[A any](cmd *Commands) Query1[A]             { return Query1[A]{ecs: cmd.app.ecs} }
func MakeQuery2[A, B any](cmd *Commands) Query2[A, B]       { return Query2[A, B]{ecs: cmd.app.ecs} }
func MakeQuery3[A, B, C any](cmd *Commands) Query3[A, B, C] { return Query3[A, B, C]{ecs: cmd.app.ecs} }

func eachUntil(ecs *Ecs, f filter.LayoutFilter, m func(*donburi.Entry) bool) {
	stopped := false
	donburi.NewQuery(f).Each(ecs.world, func(e *donburi.Entry) {
		if stopped {
			return
		}
		if !m(e) {
			stopped = true
		}
	})
}

func (q Query1[A]) Map(m func(EntityId, *A) bool) {
	ca := componentTypeOf[A]()
	eachUntil(q.ecs, filter.Contains(ca), func(e *donburi.Entry) bool {
		return m(entityIdOf(e), ca.Get(e))
	})
}

func (q Query1[A]) Count() int {
	return donburi.NewQuery(filter.Contains(componentTypeOf[A]())).Count(q.ecs.world)
}

func (q Query2[A, B]) Map(m func(EntityId, *A, *B) bool) {
	ca, cb := componentTypeOf[A](), componentTypeOf[B]()
	eachUntil(q.ecs, filter.Contains(ca, cb), func(e *donburi.Entry) bool {
		return m(entityIdOf(e), ca.Get(e), cb.Get(e))
	})
}

func (q Query3[A, B, C]) Map(m func(EntityId, *A, *B, *C) bool) {
	ca, cb, cc := componentTypeOf[A](), componentTypeOf[B](), componentTypeOf[C]()
	eachUntil(q.ecs, filter.Contains(ca, cb, cc), func(e *donburi.Entry) bool {
		return m(entityIdOf(e), ca.Get(e), cb.Get(e), cc.Get(e))
	})
}

// GetComponent returns entity's T, or false if it has none.
func GetComponent[T any](cmd *Commands, entityId EntityId) (*T, bool) {
	entry, ok := cmd.app.ecs.entry(entityId)
	if !ok {
		return nil, false
	}
	ct := componentTypeOf[T]()
	if !entry.HasComponent(ct) {
		return nil, false
	}
	return ct.Get(entry), true
}
