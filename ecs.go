package trailfx

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/yohamta/donburi"
)

// EntityId is stable for the lifetime of an entity. It is assigned when the
// entity is queued, before it exists in the world.
type EntityId uint64

// Ecs stores entities in a donburi world. Components must be registered
// with RegisterComponent before they are added to an entity.
type Ecs struct {
	world donburi.World

	idGeneratorLock sync.Mutex
	entityIdCounter EntityId

	entities map[EntityId]donburi.Entity
}

// entityIdComponent maps a donburi entry back to its EntityId.
var entityIdComponent = donburi.NewComponentType[EntityId]()

type componentBinding struct {
	ctype donburi.IComponentType
	set   func(e *donburi.Entry, value any)
	get   func(e *donburi.Entry) any
}

var (
	componentRegistryLock sync.RWMutex
	componentRegistry     = map[reflect.Type]componentBinding{}
)

// RegisterComponent makes T usable as a component and returns its donburi
// type. Registering the same T twice returns the first registration.
func RegisterComponent[T any]() *donburi.ComponentType[T] {
	t := reflect.TypeFor[T]()

	componentRegistryLock.Lock()
	defer componentRegistryLock.Unlock()
	if b, ok := componentRegistry[t]; ok {
		return b.ctype.(*donburi.ComponentType[T])
	}

	ct := donburi.NewComponentType[T]()
	componentRegistry[t] = componentBinding{
		ctype: ct,
		set: func(e *donburi.Entry, value any) {
			switch v := value.(type) {
			case T:
				ct.SetValue(e, v)
			case *T:
				ct.SetValue(e, *v)
			}
		},
		get: func(e *donburi.Entry) any { return *ct.Get(e) },
	}
	return ct
}

func componentTypeOf[T any]() *donburi.ComponentType[T] {
	b := bindingFor(reflect.TypeFor[T]())
	return b.ctype.(*donburi.ComponentType[T])
}

func bindingFor(t reflect.Type) componentBinding {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	componentRegistryLock.RLock()
	b, ok := componentRegistry[t]
	componentRegistryLock.RUnlock()
	if !ok {
		panic(fmt.Sprintf("component %s is not registered", t))
	}
	return b
}

func MakeEcs() Ecs {
	return Ecs{
		world:    donburi.NewWorld(),
		entities: make(map[EntityId]donburi.Entity),
	}
}

// World exposes the underlying donburi world, e.g. for event subscriptions.
func (ecs *Ecs) World() donburi.World { return ecs.world }

func (ecs *Ecs) nextEntityId() EntityId {
	ecs.idGeneratorLock.Lock()
	defer ecs.idGeneratorLock.Unlock()
	ecs.entityIdCounter++
	return ecs.entityIdCounter
}

func (ecs *Ecs) addEntity(components ...any) EntityId {
	return ecs.insertEntity(ecs.nextEntityId(), components...)
}

func (ecs *Ecs) insertEntity(entityId EntityId, components ...any) EntityId {
	types := []donburi.IComponentType{entityIdComponent}
	bindings := make([]componentBinding, len(components))
	for i, c := range components {
		bindings[i] = bindingFor(reflect.TypeOf(c))
		types = append(types, bindings[i].ctype)
	}

	entity := ecs.world.Create(types...)
	entry := ecs.world.Entry(entity)
	entityIdComponent.SetValue(entry, entityId)
	for i, c := range components {
		bindings[i].set(entry, c)
	}
	ecs.entities[entityId] = entity
	return entityId
}

func (ecs *Ecs) entry(entityId EntityId) (*donburi.Entry, bool) {
	entity, ok := ecs.entities[entityId]
	if !ok || !ecs.world.Valid(entity) {
		return nil, false
	}
	return ecs.world.Entry(entity), true
}

func (ecs *Ecs) hasEntity(entityId EntityId) bool {
	_, ok := ecs.entry(entityId)
	return ok
}

func (ecs *Ecs) removeEntity(entityId EntityId) {
	entity, ok := ecs.entities[entityId]
	if !ok {
		return
	}
	if ecs.world.Valid(entity) {
		ecs.world.Remove(entity)
	}
	delete(ecs.entities, entityId)
}

func (ecs *Ecs) addComponents(entityId EntityId, components ...any) {
	entry, ok := ecs.entry(entityId)
	if !ok {
		return
	}
	for _, c := range components {
		b := bindingFor(reflect.TypeOf(c))
		if !entry.HasComponent(b.ctype) {
			entry.AddComponent(b.ctype)
		}
		b.set(entry, c)
	}
}

func (ecs *Ecs) removeComponents(entityId EntityId, components ...any) {
	entry, ok := ecs.entry(entityId)
	if !ok {
		return
	}
	for _, c := range components {
		b := bindingFor(reflect.TypeOf(c))
		if entry.HasComponent(b.ctype) {
			entry.RemoveComponent(b.ctype)
		}
	}
}

func (ecs *Ecs) allComponents(entityId EntityId) []any {
	entry, ok := ecs.entry(entityId)
	if !ok {
		return nil
	}
	componentRegistryLock.RLock()
	defer componentRegistryLock.RUnlock()

	var res []any
	for _, b := range componentRegistry {
		if entry.HasComponent(b.ctype) {
			res = append(res, b.get(entry))
		}
	}
	return res
}

func entityIdOf(entry *donburi.Entry) EntityId {
	return *entityIdComponent.Get(entry)
}
