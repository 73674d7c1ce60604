package trailfx

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/emitter"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// SourceMethod says what a chain follows.
type SourceMethod uint8

const (
	// SourceOwner follows the entity that owns the emitter.
	SourceOwner SourceMethod = iota
	// SourceEntity follows another entity, found by name.
	SourceEntity
	// SourceParticle follows the sparks of a SparkEmitterComponent, one per chain.
	SourceParticle
	// SourceUser follows Point, or User when set.
	SourceUser
)

var sourceMethodNames = []string{"owner", "entity", "particle", "user"}

func (m SourceMethod) String() string {
	if int(m) < len(sourceMethodNames) {
		return sourceMethodNames[m]
	}
	return "unknown"
}

func (m *SourceMethod) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	for i, name := range sourceMethodNames {
		if strings.EqualFold(s, name) {
			*m = SourceMethod(i)
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown source method %q", value.Line, s)
}

// ParticleSelection picks which spark a free chain attaches to.
type ParticleSelection uint8

const (
	SelectSequential ParticleSelection = iota
	SelectRandom
)

func (s *ParticleSelection) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case "", "sequential":
		*s = SelectSequential
	case "random":
		*s = SelectRandom
	default:
		return fmt.Errorf("line %d: unknown particle selection %q", value.Line, name)
	}
	return nil
}

// SourceBinding tells the chain systems where a chain's source comes from.
type SourceBinding struct {
	Method SourceMethod `yaml:"method"`
	// EntityName names the followed entity for SourceEntity.
	EntityName string `yaml:"entity"`
	// Socket optionally narrows SourceEntity to one of the entity's sockets.
	Socket string `yaml:"socket"`
	// Emitter names the entity holding the SparkEmitterComponent for SourceParticle.
	Emitter   string            `yaml:"emitter"`
	Selection ParticleSelection `yaml:"selection"`
	Seed      int64             `yaml:"seed"`

	Point emitter.SourcePoint    `yaml:"-"`
	User  emitter.SourceResolver `yaml:"-"`
}

type sourceSample struct {
	point  emitter.SourcePoint
	status emitter.SourceStatus
}

// sampledSource is what the emitters see during a tick: the samples taken
// by chainSourceSystem at the start of the frame. It never touches the ECS,
// so emitters can tick in parallel.
type sampledSource struct {
	samples []sourceSample

	// SourceParticle state
	tracked []uint32
	rng     *rand.Rand
}

func newSampledSource(b SourceBinding) *sampledSource {
	return &sampledSource{rng: rand.New(rand.NewSource(b.Seed))}
}

func (s *sampledSource) Resolve(chainIndex int32) (emitter.SourcePoint, emitter.SourceStatus) {
	if chainIndex < 0 || int(chainIndex) >= len(s.samples) {
		return emitter.SourcePoint{}, emitter.SourceUnavailable
	}
	sm := s.samples[chainIndex]
	return sm.point, sm.status
}

func (s *sampledSource) resize(chains int) {
	if len(s.samples) != chains {
		s.samples = make([]sourceSample, chains)
	}
	for len(s.tracked) < chains {
		s.tracked = append(s.tracked, 0)
	}
	s.tracked = s.tracked[:chains]
}

func (s *sampledSource) fill(sm sourceSample) {
	for i := range s.samples {
		s.samples[i] = sm
	}
}

// sampleParticles assigns each chain one live spark and keeps it until the
// spark dies. A chain whose spark died reports SourceLost for one frame and
// attaches to a new spark on the next.
func (s *sampledSource) sampleParticles(em *SparkEmitterComponent, sel ParticleSelection) {
	live := em.Particles()
	taken := make(map[uint32]bool, len(s.tracked))
	for _, serial := range s.tracked {
		if serial != 0 {
			taken[serial] = true
		}
	}

	next := 0
	for i := range s.samples {
		if serial := s.tracked[i]; serial != 0 {
			if p, ok := em.Particle(serial); ok {
				s.samples[i] = particleSample(p)
				continue
			}
			s.tracked[i] = 0
			delete(taken, serial)
			s.samples[i] = sourceSample{status: emitter.SourceLost}
			continue
		}

		var pick *SparkParticle
		switch sel {
		case SelectRandom:
			var free []int
			for k := range live {
				if !taken[live[k].Serial] {
					free = append(free, k)
				}
			}
			if len(free) > 0 {
				pick = &live[free[s.rng.Intn(len(free))]]
			}
		default:
			for ; next < len(live); next++ {
				if !taken[live[next].Serial] {
					pick = &live[next]
					break
				}
			}
		}
		if pick == nil {
			s.samples[i] = sourceSample{status: emitter.SourceLost}
			continue
		}
		s.tracked[i] = pick.Serial
		taken[pick.Serial] = true
		s.samples[i] = particleSample(*pick)
	}
}

func particleSample(p SparkParticle) sourceSample {
	return sourceSample{
		point: emitter.SourcePoint{
			Position: p.Position,
			Tangent:  core.SafeNormalize(p.Velocity, mgl32.Vec3{}),
			Serial:   p.Serial,
		},
		status: emitter.SourceOK,
	}
}

// sampledSockets is the SocketResolver handed to anim trails.
type sampledSockets struct {
	first, second emitter.SourcePoint
	ok            bool
}

func (s *sampledSockets) Sockets() (emitter.SourcePoint, emitter.SourcePoint, bool) {
	return s.first, s.second, s.ok
}

// socketPoint resolves a named socket of an entity to a world-space point.
func socketPoint(tr TransformComponent, sockets *SocketsComponent, name string) (emitter.SourcePoint, bool) {
	if sockets == nil {
		return emitter.SourcePoint{}, false
	}
	sock, ok := sockets.Sockets[name]
	if !ok {
		return emitter.SourcePoint{}, false
	}
	rot := tr.rotation()
	if sock.Rotation != (mgl32.Quat{}) {
		rot = rot.Mul(sock.Rotation)
	}
	pt := TransformComponent{Position: tr.ToWorld(sock.Offset), Rotation: rot}.sourcePoint()
	return pt, true
}
