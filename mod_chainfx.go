package trailfx

import (
	"fmt"
	"runtime"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/emitter"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/google/uuid"
	"github.com/yohamta/donburi/features/events"
	"golang.org/x/sync/errgroup"
)

// ChainEvent is published for every emitter event: a chain losing its
// source, throttled spawning, or a repaired topology error.
type ChainEvent struct {
	Entity    EntityId
	EmitterID uuid.UUID
	Kind      core.Kind
	Frame     uint64
	Event     emitter.Event
}

// ChainTickStats is published once per emitter per frame.
type ChainTickStats struct {
	Entity    EntityId
	EmitterID uuid.UUID
	Kind      core.Kind
	Frame     uint64
	Sequence  uint64
	Time      float32

	Active    int
	Spawned   int
	Killed    int
	Throttled bool
	Reject    tess.RejectReason

	Vertices  int32
	Indices   int32
	Triangles int32
	Chains    int32
}

var (
	ChainEventType      = events.NewEventType[ChainEvent]()
	ChainStatsEventType = events.NewEventType[ChainTickStats]()
)

// ChainFXModule runs every ChainEmitterComponent once per frame:
//
//	PreUpdate   transformHierarchySystem         move attached effects
//	PreUpdate   sparkSystem, chainSourceSystem   sample sources sequentially
//	Update      chainTickSystem                  tick emitters in parallel
//	PostUpdate  chainPublishSystem               publish snapshots and events
//	PostUpdate  chainEventSystem                 deliver events to subscribers
//	PostUpdate  lifetimeSystem                   despawn expired effects
type ChainFXModule struct {
	// Workers bounds parallel emitter ticks. 0 means GOMAXPROCS.
	Workers int
}

type chainJob struct {
	eid       EntityId
	chain     emitter.Chain
	container *tess.SnapshotContainer
	owner     emitter.Transform
	enabled   bool
	res       emitter.TickResult
}

// chainFrame carries the work of one frame from PreUpdate to PostUpdate.
// Component pointers do not survive a stage, so jobs hold what they need.
type chainFrame struct {
	workers int
	jobs    []chainJob
}

func (m ChainFXModule) Install(app *App, cmd *Commands) {
	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cmd.AddResources(&chainFrame{workers: workers})
	if _, ok := Resource[SnapshotHub](app); !ok {
		cmd.AddResources(NewSnapshotHub())
	}
	if _, ok := Resource[Time](app); !ok {
		TimeModule{}.Install(app, cmd)
	}

	HierarchyModule{}.Install(app, cmd)
	cmd.UseSystem(System(sparkSystem).InStage(PreUpdate))
	cmd.UseSystem(System(chainSourceSystem).InStage(PreUpdate))
	cmd.UseSystem(System(chainTickSystem).InStage(Update))
	cmd.UseSystem(System(chainPublishSystem).InStage(PostUpdate))
	cmd.UseSystem(System(chainEventSystem).InStage(PostUpdate))
	LifecycleModule{}.Install(app, cmd)
}

// chainSourceSystem samples every binding and queues one job per emitter.
// Sampling reads the ECS, so it stays on the main goroutine.
func chainSourceSystem(frame *chainFrame, cmd *Commands) {
	frame.jobs = frame.jobs[:0]

	names := make(map[string]EntityId)
	MakeQuery1[NameComponent](cmd).Map(func(eid EntityId, n *NameComponent) bool {
		names[n.Name] = eid
		return true
	})

	MakeQuery2[TransformComponent, ChainEmitterComponent](cmd).Map(func(eid EntityId, tr *TransformComponent, ce *ChainEmitterComponent) bool {
		if ce.Chain == nil {
			return true
		}
		if ce.Container == nil {
			ce.Container = &tess.SnapshotContainer{}
		}
		job := chainJob{
			eid:       eid,
			chain:     ce.Chain,
			container: ce.Container,
			owner:     tr.emitterTransform(),
			enabled:   ce.Enabled,
		}
		if ce.Enabled {
			sampleChain(cmd, names, eid, tr, ce)
		}
		frame.jobs = append(frame.jobs, job)
		return true
	})
}

func sampleChain(cmd *Commands, names map[string]EntityId, eid EntityId, tr *TransformComponent, ce *ChainEmitterComponent) {
	switch c := ce.Chain.(type) {
	case *emitter.Ribbon:
		if ce.Source.Method == SourceOwner {
			c.Source = nil
			return
		}
		ce.source = sampleBinding(cmd, names, ce.source, ce.Source, c.Config().MaxTrailCount)
		c.Source = ce.source

	case *emitter.Beam:
		cfg := c.Config()
		ce.source = sampleBinding(cmd, names, ce.source, ce.Source, cfg.BeamCount)
		ce.target = sampleBinding(cmd, names, ce.target, ce.Target, cfg.BeamCount)
		c.Source, c.Target = ce.source, ce.target

	case *emitter.AnimTrail:
		if ce.sockets == nil {
			ce.sockets = &sampledSockets{}
		}
		cfg := c.Config()
		sockets, _ := GetComponent[SocketsComponent](cmd, eid)
		first, ok1 := socketPoint(*tr, sockets, cfg.FirstSocket)
		second, ok2 := socketPoint(*tr, sockets, cfg.SecondSocket)
		*ce.sockets = sampledSockets{first: first, second: second, ok: ok1 && ok2}
		c.Sockets = ce.sockets
	}
}

func sampleBinding(cmd *Commands, names map[string]EntityId, s *sampledSource, b SourceBinding, chains int) *sampledSource {
	if s == nil {
		s = newSampledSource(b)
	}
	s.resize(chains)

	switch b.Method {
	case SourceOwner:
		s.fill(sourceSample{status: emitter.SourceUnavailable})

	case SourceUser:
		if b.User != nil {
			for i := range s.samples {
				pt, status := b.User.Resolve(int32(i))
				s.samples[i] = sourceSample{point: pt, status: status}
			}
			break
		}
		s.fill(sourceSample{point: b.Point, status: emitter.SourceOK})

	case SourceEntity:
		target, ok := names[b.EntityName]
		var tr *TransformComponent
		if ok {
			tr, ok = GetComponent[TransformComponent](cmd, target)
		}
		if !ok {
			s.fill(sourceSample{status: emitter.SourceLost})
			break
		}
		pt := tr.sourcePoint()
		if b.Socket != "" {
			sockets, _ := GetComponent[SocketsComponent](cmd, target)
			if pt, ok = socketPoint(*tr, sockets, b.Socket); !ok {
				s.fill(sourceSample{status: emitter.SourceUnavailable})
				break
			}
		}
		s.fill(sourceSample{point: pt, status: emitter.SourceOK})

	case SourceParticle:
		target, ok := names[b.Emitter]
		var em *SparkEmitterComponent
		if ok {
			em, ok = GetComponent[SparkEmitterComponent](cmd, target)
		}
		if !ok {
			s.fill(sourceSample{status: emitter.SourceLost})
			break
		}
		s.sampleParticles(em, b.Selection)
	}
	return s
}

// chainTickSystem ticks every emitter. Emitters share no state, so each
// runs on its own goroutine; a strict topology panic is re-raised here.
func chainTickSystem(t *Time, frame *chainFrame) {
	dt := t.Seconds()

	var g errgroup.Group
	g.SetLimit(frame.workers)
	for i := range frame.jobs {
		job := &frame.jobs[i]
		if !job.enabled {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					if e, ok := r.(error); ok {
						err = fmt.Errorf("entity %d: %w", job.eid, e)
					} else {
						err = fmt.Errorf("entity %d: %v", job.eid, r)
					}
				}
			}()
			job.res = emitter.Tick(job.chain, job.owner, dt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(err)
	}
}

func chainPublishSystem(hub *SnapshotHub, frame *chainFrame, t *Time, cmd *Commands) {
	world := cmd.World()
	seen := make(map[uuid.UUID]bool, len(frame.jobs))

	for i := range frame.jobs {
		job := &frame.jobs[i]
		id := job.chain.ID()
		seen[id] = true
		if !job.enabled {
			continue
		}
		res := &job.res
		// A rejected tick stores nil so readers stop drawing the old geometry.
		hub.publish(id, job.container, res.Snapshot)
		for _, ev := range res.Events {
			ChainEventType.Publish(world, ChainEvent{
				Entity:    job.eid,
				EmitterID: id,
				Kind:      job.chain.Kind(),
				Frame:     t.Frame,
				Event:     ev,
			})
		}

		stats := ChainTickStats{
			Entity:    job.eid,
			EmitterID: id,
			Kind:      job.chain.Kind(),
			Frame:     t.Frame,
			Active:    job.chain.ActiveCount(),
			Spawned:   res.Spawned,
			Killed:    res.Killed,
			Throttled: res.Throttled,
			Reject:    res.Reject,
		}
		if s := res.Snapshot; s != nil {
			stats.Sequence, stats.Time = s.Sequence, s.Time
			stats.Vertices, stats.Indices, stats.Triangles = s.VertexCount, s.IndexCount, s.TriangleCount
			stats.Chains = s.ChainCount()
		}
		ChainStatsEventType.Publish(world, stats)
		job.res = emitter.TickResult{}
	}

	for _, id := range hub.Emitters() {
		if !seen[id] {
			hub.unregister(id)
		}
	}
}

func chainEventSystem(cmd *Commands) {
	world := cmd.World()
	ChainEventType.ProcessEvents(world)
	ChainStatsEventType.ProcessEvents(world)
}
