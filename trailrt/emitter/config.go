package emitter

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults holds the built-in parameters of every emitter kind.
type Defaults struct {
	Ribbon    RibbonConfig    `yaml:"ribbon"`
	AnimTrail AnimTrailConfig `yaml:"anim_trail"`
	Beam      BeamConfig      `yaml:"beam"`
}

var defaults = mustParseDefaults()

func mustParseDefaults() Defaults {
	var d Defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		panic(fmt.Sprintf("emitter: parsing embedded defaults: %v", err))
	}
	return d
}

// DefaultRibbonConfig returns a fresh copy of the built-in ribbon parameters.
func DefaultRibbonConfig() RibbonConfig {
	c := defaults.Ribbon
	c.SourceOffsets = append([]mgl32.Vec3(nil), c.SourceOffsets...)
	c.Spawn.Bursts = append([]Burst(nil), c.Spawn.Bursts...)
	return c
}

func DefaultAnimTrailConfig() AnimTrailConfig {
	c := defaults.AnimTrail
	c.Spawn.Bursts = append([]Burst(nil), c.Spawn.Bursts...)
	return c
}

func DefaultBeamConfig() BeamConfig {
	c := defaults.Beam
	c.Spawn.Bursts = append([]Burst(nil), c.Spawn.Bursts...)
	return c
}

// PoolConfig sizes the particle pool of one emitter.
type PoolConfig struct {
	InitialCapacity int `yaml:"initial_capacity"`
	MaxCapacity     int `yaml:"max_capacity"`
	// GrowthPerTick caps how many slots may be added per tick. 0 is unlimited.
	GrowthPerTick int `yaml:"growth_per_tick"`
}

func (c *PoolConfig) validate(log Logger) {
	if c.InitialCapacity < 1 {
		c.InitialCapacity = 1
	}
	if c.MaxCapacity < c.InitialCapacity {
		log.Warnf("pool max_capacity %d below initial_capacity %d, raising", c.MaxCapacity, c.InitialCapacity)
		c.MaxCapacity = c.InitialCapacity
	}
	if c.GrowthPerTick < 0 {
		c.GrowthPerTick = 0
	}
}

type SpawnPerUnit struct {
	Enabled    bool    `yaml:"enabled"`
	UnitScalar float32 `yaml:"unit_scalar"`
	// TangentScalar scales the extra spawns caused by the source turning.
	TangentScalar float32 `yaml:"tangent_scalar"`
}

// RibbonConfig configures a Ribbon.
type RibbonConfig struct {
	MaxTrailCount int `yaml:"max_trail_count"`
	// MaxParticleInTrailCount caps each chain. 0 is unlimited.
	MaxParticleInTrailCount int `yaml:"max_particles_per_trail"`

	Pool  PoolConfig  `yaml:"pool"`
	Spawn SpawnConfig `yaml:"spawn"`

	SpawnPerUnit                   SpawnPerUnit `yaml:"spawn_per_unit"`
	TangentRecalculationEveryFrame bool         `yaml:"tangent_recalculation_every_frame"`
	Tessellation                   tess.Params  `yaml:"tessellation"`

	KillByAge bool `yaml:"kill_by_age"`
	// DeadTrailsOnSourceLoss keeps a chain rendering as a dead trail when its
	// source is lost. When false the chain is removed at once.
	DeadTrailsOnSourceLoss bool `yaml:"dead_trails_on_source_loss"`
	// SourceOffsets are per chain, in the source's local space.
	SourceOffsets []mgl32.Vec3 `yaml:"source_offsets"`

	StartSize  mgl32.Vec3 `yaml:"start_size"`
	StartColor mgl32.Vec4 `yaml:"start_color"`

	StrictTopology bool       `yaml:"strict_topology"`
	Render         tess.Flags `yaml:"render"`
	IndexBits      int        `yaml:"index_bits"`
}

// Validate clamps invalid values and logs what it changed.
func (c *RibbonConfig) Validate(log Logger) {
	if log == nil {
		log = nopLogger{}
	}
	if c.MaxTrailCount < 1 {
		log.Warnf("ribbon max_trail_count %d clamped to 1", c.MaxTrailCount)
		c.MaxTrailCount = 1
	}
	if c.MaxParticleInTrailCount < 0 {
		c.MaxParticleInTrailCount = 0
	}
	if c.SpawnPerUnit.Enabled && c.SpawnPerUnit.UnitScalar <= 0 {
		log.Warnf("ribbon spawn_per_unit.unit_scalar %v invalid, disabling per-unit spawning", c.SpawnPerUnit.UnitScalar)
		c.SpawnPerUnit.Enabled = false
	}
	validateTessellation(&c.Tessellation, log)
	c.Pool.validate(log)
}

// AnimTrailConfig configures an AnimTrail.
type AnimTrailConfig struct {
	FirstSocket  string `yaml:"first_socket"`
	SecondSocket string `yaml:"second_socket"`
	// MinSpawnVelocity is in units per second. Slower motion moves the head
	// instead of adding a sample.
	MinSpawnVelocity float32 `yaml:"min_spawn_velocity"`

	MaxParticleInTrailCount int `yaml:"max_particles_per_trail"`

	Pool  PoolConfig  `yaml:"pool"`
	Spawn SpawnConfig `yaml:"spawn"`

	TangentRecalculationEveryFrame bool        `yaml:"tangent_recalculation_every_frame"`
	Tessellation                   tess.Params `yaml:"tessellation"`
	KillByAge                      bool        `yaml:"kill_by_age"`

	StartColor mgl32.Vec4 `yaml:"start_color"`

	StrictTopology bool       `yaml:"strict_topology"`
	Render         tess.Flags `yaml:"render"`
	IndexBits      int        `yaml:"index_bits"`
}

func (c *AnimTrailConfig) Validate(log Logger) {
	if log == nil {
		log = nopLogger{}
	}
	if c.MinSpawnVelocity < 0 {
		c.MinSpawnVelocity = 0
	}
	if c.MaxParticleInTrailCount < 0 {
		c.MaxParticleInTrailCount = 0
	}
	validateTessellation(&c.Tessellation, log)
	c.Pool.validate(log)
}

func validateTessellation(p *tess.Params, log Logger) {
	if p.Sheets < 1 {
		log.Warnf("tessellation sheets %d clamped to 1", p.Sheets)
		p.Sheets = 1
	}
	if p.DistanceStep < 0 {
		p.DistanceStep = 0
	}
	if p.TangentStep < 0 {
		p.TangentStep = 0
	}
	if p.WidthStep < 0 {
		p.WidthStep = 0
	}
	if p.MaxInterp < 0 {
		p.MaxInterp = 0
	}
}

// EndpointMethod says where a beam end comes from.
type EndpointMethod uint8

const (
	// EndpointDefault uses the owner: its position for the source, a point
	// Distance along its forward axis for the target.
	EndpointDefault EndpointMethod = iota
	EndpointEntity
	EndpointParticle
	EndpointUser
)

var endpointNames = []string{"default", "entity", "particle", "user"}

func (m EndpointMethod) String() string {
	if int(m) < len(endpointNames) {
		return endpointNames[m]
	}
	return "unknown"
}

func (m *EndpointMethod) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	for i, name := range endpointNames {
		if strings.EqualFold(s, name) {
			*m = EndpointMethod(i)
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown beam endpoint method %q", value.Line, s)
}

type TaperMethod uint8

const (
	TaperNone TaperMethod = iota
	// TaperFull tapers over the full source to target length.
	TaperFull
	// TaperPartial tapers over the part of the beam that has travelled so far.
	TaperPartial
)

var taperNames = []string{"none", "full", "partial"}

func (m TaperMethod) String() string {
	if int(m) < len(taperNames) {
		return taperNames[m]
	}
	return "unknown"
}

func (m *TaperMethod) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	for i, name := range taperNames {
		if strings.EqualFold(s, name) {
			*m = TaperMethod(i)
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown taper method %q", value.Line, s)
}

type NoiseConfig struct {
	// Points is the number of noise points between source and target.
	Points    int     `yaml:"points"`
	Strength  float32 `yaml:"strength"`
	Speed     float32 `yaml:"speed"`
	Frequency float32 `yaml:"frequency"`
	// Tessellation is the number of segments between two noise points.
	Tessellation int   `yaml:"tessellation"`
	Seed         int64 `yaml:"seed"`
	// LockEnds fades the noise out toward source and target.
	LockEnds bool `yaml:"lock_ends"`
}

type TaperConfig struct {
	Method TaperMethod `yaml:"method"`
	// Factor is the width multiplier reached at the target.
	Factor float32 `yaml:"factor"`
	Scale  float32 `yaml:"scale"`
	Ease   string  `yaml:"ease"`
}

// BeamConfig configures a Beam.
type BeamConfig struct {
	BeamCount int  `yaml:"beam_count"`
	AlwaysOn  bool `yaml:"always_on"`
	Sheets    int  `yaml:"sheets"`
	// InterpolationPoints is the segment count of a beam without noise.
	InterpolationPoints int `yaml:"interpolation_points"`

	Pool  PoolConfig  `yaml:"pool"`
	Spawn SpawnConfig `yaml:"spawn"`

	Noise NoiseConfig `yaml:"noise"`
	Taper TaperConfig `yaml:"taper"`

	SourceMethod EndpointMethod `yaml:"source_method"`
	TargetMethod EndpointMethod `yaml:"target_method"`
	Distance     float32        `yaml:"distance"`
	// Speed is in units per second. 0 reaches the target at once.
	Speed float32 `yaml:"speed"`

	StartSize  mgl32.Vec3 `yaml:"start_size"`
	StartColor mgl32.Vec4 `yaml:"start_color"`

	Render    tess.Flags `yaml:"render"`
	IndexBits int        `yaml:"index_bits"`
}

func (c *BeamConfig) Validate(log Logger) {
	if log == nil {
		log = nopLogger{}
	}
	if c.BeamCount < 1 {
		log.Warnf("beam beam_count %d clamped to 1", c.BeamCount)
		c.BeamCount = 1
	}
	if c.Sheets < 1 {
		c.Sheets = 1
	}
	if c.InterpolationPoints < 1 {
		c.InterpolationPoints = 1
	}
	if c.Noise.Points < 0 {
		c.Noise.Points = 0
	}
	if c.Noise.Points > core.MaxBeamNoisePoints {
		log.Warnf("beam noise points %d clamped to %d", c.Noise.Points, core.MaxBeamNoisePoints)
		c.Noise.Points = core.MaxBeamNoisePoints
	}
	if c.Noise.Tessellation < 1 {
		c.Noise.Tessellation = 1
	}
	if c.Taper.Scale == 0 {
		c.Taper.Scale = 1
	}
	if c.Speed < 0 {
		c.Speed = 0
	}
	if c.Pool.InitialCapacity < c.BeamCount {
		c.Pool.InitialCapacity = c.BeamCount
	}
	c.Pool.validate(log)
}
