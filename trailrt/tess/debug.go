package tess

import (
	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/go-gl/mathgl/mgl32"
)

type DebugType int

const (
	DebugLine DebugType = iota
	DebugPoint
)

// DebugPrimitive is a wireframe helper drawn on top of the chain geometry.
// For DebugLine, Position is the start.
type DebugPrimitive struct {
	Type     DebugType
	Color    [4]float32
	Position mgl32.Vec3
	LineEnd  mgl32.Vec3
}

var (
	ColorTangent       = [4]float32{1, 1, 0, 1}
	ColorSpawn         = [4]float32{0, 1, 0, 1}
	ColorInterpolated  = [4]float32{0, 0.5, 1, 1}
	ColorTessellation  = [4]float32{1, 0, 1, 1}
	ColorBeamEndpoints = [4]float32{1, 0.5, 0, 1}
)

// TangentDisplayTime scales a tangent (units per second) into a line length.
const TangentDisplayTime = 0.1

func NewDebugLine(start, end mgl32.Vec3, color [4]float32) DebugPrimitive {
	return DebugPrimitive{Type: DebugLine, Position: start, LineEnd: end, Color: color}
}

func NewDebugPoint(p mgl32.Vec3, color [4]float32) DebugPrimitive {
	return DebugPrimitive{Type: DebugPoint, Position: p, LineEnd: p, Color: color}
}

// TrailDebug builds the debug primitives requested by f. It must run after
// EstimateTrails so tessellation markers match the rendered segments.
func TrailDebug(pool *core.Pool[core.TrailPayload], f Flags) []DebugPrimitive {
	if !f.Debug() {
		return nil
	}
	var out []DebugPrimitive
	for i := 0; i < pool.Active; i++ {
		slot := pool.Live(i)
		p := pool.Particle(slot)
		pl := pool.Payload(slot)
		if pl.IsForceKill() {
			continue
		}

		if f.RenderTangents {
			out = append(out, NewDebugLine(p.Position, p.Position.Add(pl.Tangent.Mul(TangentDisplayTime)), ColorTangent))
		}
		if f.RenderSpawnPoints {
			color := ColorSpawn
			if pl.Interpolated {
				color = ColorInterpolated
			}
			out = append(out, NewDebugPoint(p.Position, color))
		}
		if f.RenderTessellation && pl.HasNext() && pl.RenderingInterpCount > 1 {
			q := pool.Particle(pl.Next)
			ql := pool.Payload(pl.Next)
			dt := pl.SpawnTime - ql.SpawnTime
			t0 := ql.Tangent.Mul(dt)
			t1 := pl.Tangent.Mul(dt)
			for k := int32(1); k < pl.RenderingInterpCount; k++ {
				s := float32(k) / float32(pl.RenderingInterpCount)
				out = append(out, NewDebugPoint(core.CubicInterp(q.Position, t0, p.Position, t1, s), ColorTessellation))
			}
		}
	}
	return out
}

// BeamDebug marks beam endpoints, their tangents and the noise points.
func BeamDebug(pool *core.Pool[core.BeamPayload], f Flags) []DebugPrimitive {
	if !f.Debug() {
		return nil
	}
	var out []DebugPrimitive
	for i := 0; i < pool.Active; i++ {
		pl := pool.Payload(pool.Live(i))
		if f.RenderSpawnPoints {
			out = append(out,
				NewDebugPoint(pl.Source, ColorBeamEndpoints),
				NewDebugPoint(pl.Target, ColorBeamEndpoints),
			)
		}
		if f.RenderTangents {
			out = append(out,
				NewDebugLine(pl.Source, pl.Source.Add(pl.SourceTangent.Mul(pl.SourceStrength)), ColorTangent),
				NewDebugLine(pl.Target, pl.Target.Add(pl.TargetTangent.Mul(pl.TargetStrength)), ColorTangent),
			)
		}
		if f.RenderTessellation {
			for n := int32(0); n < pl.NoiseCount && n < core.MaxBeamNoisePoints; n++ {
				out = append(out, NewDebugPoint(pl.Noise[n], ColorTessellation))
			}
		}
	}
	return out
}
