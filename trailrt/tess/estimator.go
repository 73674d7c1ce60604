// Package tess turns chain pools into render-ready geometry counts and
// hands them to the render side as immutable snapshots.
package tess

import (
	"math"

	"github.com/gekko3d/trailfx/trailrt/core"
)

// Params controls how many interpolated points are generated between two
// neighbouring chain particles. A zero step disables its term.
type Params struct {
	DistanceStep float32 `yaml:"distance_step"`
	// TangentStep is in degrees of tangent change per extra point.
	TangentStep    float32 `yaml:"tangent_step"`
	WidthStep      float32 `yaml:"width_step"`
	MaxInterp      int32   `yaml:"max_interp"`
	Sheets         int32   `yaml:"sheets"`
	TilingDistance float32 `yaml:"tiling_distance"`
}

func (p Params) sheets() int32 {
	if p.Sheets < 1 {
		return 1
	}
	return p.Sheets
}

func roundCount(v float32) int32 {
	return int32(math.Round(float64(v)))
}

// InterpCount returns the number of rendered segments between the newer
// particle a and the older particle b. The terms are rounded separately and
// added; the result is at least 1.
func InterpCount(a, b *core.Particle, pa, pb *core.TrailPayload, prm Params) int32 {
	var n int32
	if prm.DistanceStep > 0 {
		n += roundCount(a.Position.Sub(b.Position).Len() / prm.DistanceStep)
	}
	if prm.TangentStep > 0 {
		n += roundCount(core.AngleBetween(pa.Tangent, pb.Tangent) / prm.TangentStep)
	}
	if prm.WidthStep > 0 {
		n += roundCount(float32(math.Abs(float64(a.Width()-b.Width()))) / prm.WidthStep)
	}
	if n < 1 {
		n = 1
	}
	if prm.MaxInterp > 0 && n > prm.MaxInterp {
		n = prm.MaxInterp
	}
	return n
}

// Strip is the geometry of one chain: a single triangle strip running
// through every sheet, with sheets joined by degenerate triangles.
type Strip struct {
	ChainIndex int32
	Head       int32
	Segments   int32
	Vertices   int32
	Triangles  int32
	Indices    int32
}

// Totals aggregates the strips of one emitter.
type Totals struct {
	VertexCount   int32
	IndexCount    int32
	TriangleCount int32
	Strips        []Strip
}

func (t Totals) ChainCount() int32 {
	return int32(len(t.Strips))
}

func (t *Totals) add(s Strip) {
	t.VertexCount += s.Vertices
	t.TriangleCount += s.Triangles
	t.IndexCount += s.Indices
	t.Strips = append(t.Strips, s)
}

// StripCounts returns the geometry of a strip with segments segments
// repeated over sheets sheets. Each strip is drawn on its own, so it needs
// two more indices than it has triangles.
func StripCounts(segments, sheets int32) (vertices, triangles, indices int32) {
	if segments < 1 {
		return 0, 0, 0
	}
	if sheets < 1 {
		sheets = 1
	}
	vertices = 2 * (segments + 1) * sheets
	triangles = 2*segments*sheets + 4*(sheets-1)
	indices = triangles + 2
	return vertices, triangles, indices
}

// EstimateTrails walks every chain from head to tail once and writes the
// per-particle RenderingInterpCount, TessellationPoints, TiledU and the
// per-head TriangleCount. Chains that resolve to no segments are skipped.
func EstimateTrails(pool *core.Pool[core.TrailPayload], prm Params) Totals {
	w := core.Walker{Pool: pool}
	sheets := prm.sheets()

	var totals Totals
	for _, head := range w.Heads() {
		var segments int32
		var dist float32

		cur := head
		for steps := 0; steps <= pool.Active; steps++ {
			pl := pool.Payload(cur)
			pl.TriangleCount = 0
			if prm.TilingDistance > 0 {
				pl.TiledU = dist / prm.TilingDistance
			} else {
				pl.TiledU = 0
			}

			next := pl.Next
			if next == core.NullIndex || !pool.IsLive(next) || !linksBack(pool, cur, next) {
				pl.RenderingInterpCount = 0
				pl.TessellationPoints = 0
				break
			}

			a, b := pool.Particle(cur), pool.Particle(next)
			interp := InterpCount(a, b, pl, pool.Payload(next), prm)
			pl.RenderingInterpCount = interp
			pl.TessellationPoints = interp
			segments += interp
			dist += a.Position.Sub(b.Position).Len()
			cur = next
		}

		if segments == 0 {
			continue
		}
		vertices, triangles, indices := StripCounts(segments, sheets)
		hp := pool.Payload(head)
		hp.TriangleCount = triangles
		totals.add(Strip{
			ChainIndex: hp.ChainIndex,
			Head:       head,
			Segments:   segments,
			Vertices:   vertices,
			Triangles:  triangles,
			Indices:    indices,
		})
	}
	return totals
}

// linksBack reports whether next belongs to cur's chain and points back at
// it. A walk stops at the first link that does not.
func linksBack(pool *core.Pool[core.TrailPayload], cur, next int32) bool {
	np := pool.Payload(next)
	return np.Prev == cur && np.ChainIndex == pool.Payload(cur).ChainIndex
}

// EstimateBeams treats every live beam as its own strip of Steps segments.
// Beams with no length render nothing.
func EstimateBeams(pool *core.Pool[core.BeamPayload], sheets int32) Totals {
	var totals Totals
	for i := 0; i < pool.Active; i++ {
		slot := pool.Live(i)
		pl := pool.Payload(slot)
		pl.TriangleCount = 0
		if pl.Length*pl.TravelRatio <= core.TangentEpsilon {
			continue
		}
		segments := pl.Steps
		if segments < 1 {
			segments = 1
		}
		vertices, triangles, indices := StripCounts(segments, sheets)
		pl.TriangleCount = triangles
		totals.add(Strip{
			ChainIndex: pl.BeamIndex,
			Head:       slot,
			Segments:   segments,
			Vertices:   vertices,
			Triangles:  triangles,
			Indices:    indices,
		})
	}
	return totals
}
