package trailfx

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/yohamta/donburi"
	"gonum.org/v1/gonum/stat"
)

// ChainStatsRecord is one CSV row: one emitter, one frame.
type ChainStatsRecord struct {
	Frame     uint64  `csv:"frame"`
	Entity    uint64  `csv:"entity"`
	EmitterID string  `csv:"emitter_id"`
	Kind      string  `csv:"kind"`
	Time      float32 `csv:"time"`
	Active    int     `csv:"active"`
	Spawned   int     `csv:"spawned"`
	Killed    int     `csv:"killed"`
	Throttled bool    `csv:"throttled"`
	Reject    string  `csv:"reject"`
	Vertices  int32   `csv:"vertices"`
	Indices   int32   `csv:"indices"`
	Triangles int32   `csv:"triangles"`
	Chains    int32   `csv:"chains"`
}

func recordFromStats(s ChainTickStats) ChainStatsRecord {
	return ChainStatsRecord{
		Frame:     s.Frame,
		Entity:    uint64(s.Entity),
		EmitterID: s.EmitterID.String(),
		Kind:      s.Kind.String(),
		Time:      s.Time,
		Active:    s.Active,
		Spawned:   s.Spawned,
		Killed:    s.Killed,
		Throttled: s.Throttled,
		Reject:    s.Reject.String(),
		Vertices:  s.Vertices,
		Indices:   s.Indices,
		Triangles: s.Triangles,
		Chains:    s.Chains,
	}
}

// TelemetrySummary describes the records currently in the window.
type TelemetrySummary struct {
	Records         int
	MeanTriangles   float64
	StdDevTriangles float64
	P95Triangles    float64
	MeanVertices    float64
	MaxActive       int
	ThrottledFrames int
	Rejected        int
}

// Telemetry collects ChainTickStats into a rolling window and optionally
// streams them as CSV.
type Telemetry struct {
	mu            sync.Mutex
	window        int
	records       []ChainStatsRecord
	out           io.Writer
	headerWritten bool
	log           Logger
}

func NewTelemetry(out io.Writer, window int, log Logger) *Telemetry {
	if window <= 0 {
		window = 600
	}
	if log == nil {
		log = NewNopLogger()
	}
	return &Telemetry{window: window, out: out, log: log}
}

func (t *Telemetry) Record(s ChainTickStats) {
	rec := recordFromStats(s)

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.records) == t.window {
		t.records = slices.Delete(t.records, 0, 1)
	}
	t.records = append(t.records, rec)

	if err := t.write(rec); err != nil {
		t.log.Warnf("telemetry: %v", err)
	}
}

func (t *Telemetry) write(rec ChainStatsRecord) error {
	if t.out == nil {
		return nil
	}
	records := []ChainStatsRecord{rec}
	if !t.headerWritten {
		if err := gocsv.Marshal(records, t.out); err != nil {
			return fmt.Errorf("writing chain stats: %w", err)
		}
		t.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, t.out); err != nil {
		return fmt.Errorf("writing chain stats: %w", err)
	}
	return nil
}

// Records returns a copy of the window.
func (t *Telemetry) Records() []ChainStatsRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.records)
}

func (t *Telemetry) Summary() TelemetrySummary {
	records := t.Records()
	sum := TelemetrySummary{Records: len(records)}
	if len(records) == 0 {
		return sum
	}

	tris := make([]float64, len(records))
	verts := make([]float64, len(records))
	for i, r := range records {
		tris[i] = float64(r.Triangles)
		verts[i] = float64(r.Vertices)
		sum.MaxActive = max(sum.MaxActive, r.Active)
		if r.Throttled {
			sum.ThrottledFrames++
		}
		if r.Reject != "none" {
			sum.Rejected++
		}
	}
	sum.MeanTriangles, sum.StdDevTriangles = stat.MeanStdDev(tris, nil)
	sum.MeanVertices = stat.Mean(verts, nil)

	slices.Sort(tris)
	sum.P95Triangles = stat.Quantile(0.95, stat.Empirical, tris, nil)
	return sum
}

// TelemetryModule records every emitter's per-frame stats. Out may be nil.
type TelemetryModule struct {
	Out    io.Writer
	Window int
}

func (m TelemetryModule) Install(app *App, cmd *Commands) {
	t := NewTelemetry(m.Out, m.Window, Named(app.Logger(), "telemetry"))
	cmd.AddResources(t)
	ChainStatsEventType.Subscribe(cmd.World(), func(_ donburi.World, s ChainTickStats) {
		t.Record(s)
	})
}
