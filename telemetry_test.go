package trailfx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gekko3d/trailfx/trailrt/core"
	"github.com/gekko3d/trailfx/trailrt/tess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetry_WindowAndSummary(t *testing.T) {
	var out bytes.Buffer
	tel := NewTelemetry(&out, 4, nil)

	for i := 1; i <= 6; i++ {
		tel.Record(ChainTickStats{
			Frame:     uint64(i),
			Kind:      core.KindBeam,
			Active:    i,
			Triangles: int32(10 * i),
			Vertices:  int32(20 * i),
			Throttled: i == 6,
			Reject:    tess.RejectNone,
		})
	}

	recs := tel.Records()
	require.Len(t, recs, 4)
	assert.Equal(t, uint64(3), recs[0].Frame)
	assert.Equal(t, "beam", recs[0].Kind)

	sum := tel.Summary()
	assert.Equal(t, 4, sum.Records)
	assert.InDelta(t, 45, sum.MeanTriangles, 1e-9)
	assert.InDelta(t, 90, sum.MeanVertices, 1e-9)
	assert.InDelta(t, 12.909944, sum.StdDevTriangles, 1e-5)
	assert.Equal(t, float64(60), sum.P95Triangles)
	assert.Equal(t, 6, sum.MaxActive)
	assert.Equal(t, 1, sum.ThrottledFrames)
	assert.Zero(t, sum.Rejected)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 7, "one header and every record, not just the window")
	assert.True(t, strings.HasPrefix(lines[0], "frame,entity,emitter_id,kind"))
}

func TestTelemetry_EmptySummary(t *testing.T) {
	tel := NewTelemetry(nil, 0, nil)
	assert.Equal(t, TelemetrySummary{}, tel.Summary())
	tel.Record(ChainTickStats{Reject: tess.RejectNoTriangles})
	assert.Equal(t, 1, tel.Summary().Rejected)
}
