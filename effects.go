package trailfx

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gekko3d/trailfx/trailrt/emitter"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownEffectKind = errors.New("unknown effect kind")
	ErrUnknownEffect     = errors.New("unknown effect")
)

// EffectSpec is one named emitter in an effect file. Only the section
// matching Kind is read; keys it leaves out keep the built-in defaults.
type EffectSpec struct {
	Name     string     `yaml:"name"`
	Kind     string     `yaml:"kind"`
	Disabled bool       `yaml:"disabled"`
	Position mgl32.Vec3 `yaml:"position"`
	// Lifetime despawns the effect after that many seconds. 0 keeps it.
	Lifetime float32       `yaml:"lifetime"`
	Source   SourceBinding `yaml:"source"`
	Target   SourceBinding `yaml:"target"`

	Ribbon    yaml.Node `yaml:"ribbon"`
	AnimTrail yaml.Node `yaml:"anim_trail"`
	Beam      yaml.Node `yaml:"beam"`
}

// EffectLibrary is a parsed effect file.
type EffectLibrary struct {
	Effects []EffectSpec `yaml:"effects"`
}

func normalizeKind(kind string) string {
	return strings.ReplaceAll(strings.ToLower(kind), "_", "")
}

// LoadEffects reads and validates an effect file.
func LoadEffects(path string) (*EffectLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading effects: %w", err)
	}
	lib, err := ParseEffects(data)
	if err != nil {
		return nil, fmt.Errorf("loading effects %s: %w", path, err)
	}
	return lib, nil
}

// ParseEffects decodes an effect file and builds every effect once so that
// config errors surface at load time.
func ParseEffects(data []byte) (*EffectLibrary, error) {
	var lib EffectLibrary
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parsing effects: %w", err)
	}

	seen := make(map[string]bool, len(lib.Effects))
	for i, spec := range lib.Effects {
		if spec.Name == "" {
			return nil, fmt.Errorf("effect %d has no name", i)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("effect %q defined twice", spec.Name)
		}
		seen[spec.Name] = true
		if _, err := spec.Build(nil); err != nil {
			return nil, err
		}
	}
	return &lib, nil
}

// Find returns the effect called name.
func (lib *EffectLibrary) Find(name string) (*EffectSpec, error) {
	for i := range lib.Effects {
		if lib.Effects[i].Name == name {
			return &lib.Effects[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
}

func decodeOver(node *yaml.Node, out any) error {
	if node.Kind == 0 {
		return nil
	}
	return node.Decode(out)
}

// Build creates a fresh emitter instance for the effect.
func (spec *EffectSpec) Build(log Logger) (emitter.Chain, error) {
	var elog emitter.Logger
	if log != nil {
		elog = log
	}

	switch normalizeKind(spec.Kind) {
	case "ribbon":
		cfg := emitter.DefaultRibbonConfig()
		if err := decodeOver(&spec.Ribbon, &cfg); err != nil {
			return nil, fmt.Errorf("effect %q: %w", spec.Name, err)
		}
		r, err := emitter.NewRibbon(cfg, elog)
		if err != nil {
			return nil, fmt.Errorf("effect %q: %w", spec.Name, err)
		}
		return r, nil

	case "animtrail":
		cfg := emitter.DefaultAnimTrailConfig()
		if err := decodeOver(&spec.AnimTrail, &cfg); err != nil {
			return nil, fmt.Errorf("effect %q: %w", spec.Name, err)
		}
		a, err := emitter.NewAnimTrail(cfg, elog)
		if err != nil {
			return nil, fmt.Errorf("effect %q: %w", spec.Name, err)
		}
		return a, nil

	case "beam":
		cfg := emitter.DefaultBeamConfig()
		if err := decodeOver(&spec.Beam, &cfg); err != nil {
			return nil, fmt.Errorf("effect %q: %w", spec.Name, err)
		}
		b, err := emitter.NewBeam(cfg, elog)
		if err != nil {
			return nil, fmt.Errorf("effect %q: %w", spec.Name, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("effect %q: %w %q", spec.Name, ErrUnknownEffectKind, spec.Kind)
}

func (spec *EffectSpec) emitterComponents(cmd *Commands) ([]any, error) {
	chain, err := spec.Build(Named(cmd.Logger(), spec.Name))
	if err != nil {
		return nil, err
	}
	ce := NewChainEmitter(chain, spec.Source)
	ce.Target = spec.Target
	ce.Enabled = !spec.Disabled

	comps := []any{NameComponent{Name: spec.Name}, ce}
	if spec.Lifetime > 0 {
		comps = append(comps, LifetimeComponent{TimeLeft: spec.Lifetime})
	}
	return comps, nil
}

// SpawnEffects queues one entity per effect, placed relative to owner.
// The entities exist after the current stage ends.
func SpawnEffects(cmd *Commands, lib *EffectLibrary, owner TransformComponent) ([]EntityId, error) {
	ids := make([]EntityId, 0, len(lib.Effects))
	for i := range lib.Effects {
		spec := &lib.Effects[i]
		comps, err := spec.emitterComponents(cmd)
		if err != nil {
			return ids, err
		}
		tr := TransformComponent{
			Position: owner.ToWorld(spec.Position),
			Rotation: owner.rotation(),
			Scale:    owner.scale(),
		}
		ids = append(ids, cmd.AddEntity(append(comps, tr)...))
	}
	return ids, nil
}

// AttachEffects is SpawnEffects for a moving owner: every effect becomes a
// child of parent and follows it, offset by its Position.
func AttachEffects(cmd *Commands, lib *EffectLibrary, parent EntityId) ([]EntityId, error) {
	var ptr TransformComponent
	if tr, ok := GetComponent[TransformComponent](cmd, parent); ok {
		ptr = *tr
	}
	ids := make([]EntityId, 0, len(lib.Effects))
	for i := range lib.Effects {
		spec := &lib.Effects[i]
		comps, err := spec.emitterComponents(cmd)
		if err != nil {
			return ids, err
		}
		local := LocalTransformComponent{Position: spec.Position}
		comps = append(comps, Parent{Entity: parent}, local, childTransform(ptr, local))
		ids = append(ids, cmd.AddEntity(comps...))
	}
	return ids, nil
}
