package tess

import (
	"math"
	"slices"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/google/uuid"
)

// IndexFormat is the index width the consumer builds its buffers with.
type IndexFormat uint8

const (
	Index32 IndexFormat = iota
	Index16
)

// IndexFormatForBits maps 16 to Index16 and anything else to Index32.
func IndexFormatForBits(bits int) IndexFormat {
	if bits == 16 {
		return Index16
	}
	return Index32
}

// MaxIndexCount is the largest index count the format can address.
func (f IndexFormat) MaxIndexCount() int64 {
	if f == Index16 {
		return math.MaxUint16
	}
	return math.MaxUint32
}

func (f IndexFormat) Stride() int {
	if f == Index16 {
		return 2
	}
	return 4
}

// Flags are emitter-wide render toggles passed through to the consumer.
type Flags struct {
	RenderGeometry     bool `yaml:"geometry"`
	RenderSpawnPoints  bool `yaml:"spawn_points"`
	RenderTangents     bool `yaml:"tangents"`
	RenderTessellation bool `yaml:"tessellation"`
}

// Debug reports whether any debug geometry is requested.
func (f Flags) Debug() bool {
	return f.RenderSpawnPoints || f.RenderTangents || f.RenderTessellation
}

// RejectReason says why a tick produced no snapshot. None of them are errors.
type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectTooFewParticles
	RejectNoTriangles
	RejectIndexOverflow
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectTooFewParticles:
		return "too few particles"
	case RejectNoTriangles:
		return "no triangles"
	case RejectIndexOverflow:
		return "index overflow"
	}
	return "unknown"
}

// Header identifies the emitter and tick a snapshot was taken from.
type Header struct {
	EmitterID uuid.UUID
	Kind      core.Kind
	Sequence  uint64
	Time      float32
	Flags     Flags
	Format    IndexFormat
	Sheets    int32
}

// ReplaySnapshot is the per-tick copy of an emitter handed to the render side.
// It is never modified after it is returned; consumers must treat it as read-only.
type ReplaySnapshot struct {
	Header

	ActiveCount int
	// Indices lists the live slots. Particles and Trails/Beams are indexed by slot.
	Indices   []int32
	Particles []core.Particle
	Trails    []core.TrailPayload
	Beams     []core.BeamPayload

	VertexCount   int32
	IndexCount    int32
	TriangleCount int32
	Strips        []Strip

	Debug []DebugPrimitive
}

func (s *ReplaySnapshot) ChainCount() int32 {
	return int32(len(s.Strips))
}

// ChainTriangles sums triangles per chain index.
func (s *ReplaySnapshot) ChainTriangles() map[int32]int32 {
	out := make(map[int32]int32, len(s.Strips))
	for _, st := range s.Strips {
		out[st.ChainIndex] += st.Triangles
	}
	return out
}

func accept(totals Totals, format IndexFormat) RejectReason {
	if totals.TriangleCount == 0 {
		return RejectNoTriangles
	}
	if int64(totals.IndexCount) > format.MaxIndexCount() {
		return RejectIndexOverflow
	}
	return RejectNone
}

// TrailSnapshot estimates tessellation for pool and, if the result is
// renderable, copies the pool into a new snapshot. The estimate writes into
// the payloads first so the copy carries the final counts.
func TrailSnapshot(h Header, pool *core.Pool[core.TrailPayload], prm Params) (*ReplaySnapshot, RejectReason) {
	if pool.Active < 2 {
		return nil, RejectTooFewParticles
	}
	h.Sheets = prm.sheets()

	totals := EstimateTrails(pool, prm)
	if reason := accept(totals, h.Format); reason != RejectNone {
		return nil, reason
	}

	s := &ReplaySnapshot{
		Header:        h,
		ActiveCount:   pool.Active,
		Indices:       slices.Clone(pool.Indices[:pool.Active]),
		Particles:     slices.Clone(pool.Particles),
		Trails:        slices.Clone(pool.Payloads),
		VertexCount:   totals.VertexCount,
		IndexCount:    totals.IndexCount,
		TriangleCount: totals.TriangleCount,
		Strips:        totals.Strips,
		Debug:         TrailDebug(pool, h.Flags),
	}
	return s, RejectNone
}

// BeamSnapshot is TrailSnapshot for beams. A single beam is renderable.
func BeamSnapshot(h Header, pool *core.Pool[core.BeamPayload]) (*ReplaySnapshot, RejectReason) {
	if pool.Active < 1 {
		return nil, RejectTooFewParticles
	}
	if h.Sheets < 1 {
		h.Sheets = 1
	}

	totals := EstimateBeams(pool, h.Sheets)
	if reason := accept(totals, h.Format); reason != RejectNone {
		return nil, reason
	}

	s := &ReplaySnapshot{
		Header:        h,
		ActiveCount:   pool.Active,
		Indices:       slices.Clone(pool.Indices[:pool.Active]),
		Particles:     slices.Clone(pool.Particles),
		Beams:         slices.Clone(pool.Payloads),
		VertexCount:   totals.VertexCount,
		IndexCount:    totals.IndexCount,
		TriangleCount: totals.TriangleCount,
		Strips:        totals.Strips,
		Debug:         BeamDebug(pool, h.Flags),
	}
	return s, RejectNone
}

// StripRange locates one chain inside the consumer's vertex and index buffers.
type StripRange struct {
	ChainIndex  int32
	FirstVertex int32
	VertexCount int32
	FirstIndex  int32
	IndexCount  int32
}

// Layout packs the strips of s back to back in snapshot order.
func Layout(s *ReplaySnapshot) []StripRange {
	out := make([]StripRange, 0, len(s.Strips))
	var vertex, index int32
	for _, st := range s.Strips {
		out = append(out, StripRange{
			ChainIndex:  st.ChainIndex,
			FirstVertex: vertex,
			VertexCount: st.Vertices,
			FirstIndex:  index,
			IndexCount:  st.Indices,
		})
		vertex += st.Vertices
		index += st.Indices
	}
	return out
}
