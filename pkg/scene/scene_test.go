package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkrenderer/darkrenderer/pkg/task"
)

func testScene() *Scene {
	return &Scene{
		TriangleIDs: []int32{0, 3},
		Triangles: []float64{
			0, 0, 1, 2, 0, 1, 0, 2, 1,
			0, 0, 3, 2, 0, 3, 0, 2, 3,
		},
	}
}

func TestEdgeCodecExplicitRays(t *testing.T) {
	want := testScene()
	want.Rays = []float64{0.5, 0.5, 0, 0, 0, 1, 1, 1, 0, 0, 0, -1}

	got, err := ParseEdge(AppendEdge(nil, want))
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, 2, got.NumRays())
}

func TestEdgeCodecCamera(t *testing.T) {
	want := testScene()
	want.Camera = &Camera{
		HRes: 4, VRes: 2,
		Eye:  [3]float64{0, 5, 5},
		Look: [3]float64{0, 0, 0.3},
		Up:   [3]float64{0, 0, 1},
		Dist: 200, PSize: 0.5,
	}

	got, err := ParseEdge(AppendEdge(nil, want))
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, 8, got.NumRays())
}

func TestCloudCodec(t *testing.T) {
	want := testScene()

	got, err := ParseCloud(AppendCloud(nil, want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestParseEdgeRejectsRayMismatch(t *testing.T) {
	s := testScene()
	s.Rays = []float64{0.5, 0.5, 0, 0, 0, 1}
	payload := AppendEdge(nil, s)

	// truncate one float off the end
	payload = payload[:len(payload)-2]
	_, err := ParseEdge(payload)
	require.Error(t, err)
}

func TestParseCloudRejectsTrailing(t *testing.T) {
	payload := AppendCloud(nil, testScene())
	payload = append(payload, " 1.0"...)
	_, err := ParseCloud(payload)
	require.Error(t, err)
}

func TestParseRejectsNegativeCounts(t *testing.T) {
	// negative counts must fail cleanly, not blow up on allocation
	for _, payload := range []string{"-1", "-1 0"} {
		_, err := ParseCloud([]byte(payload))
		require.Error(t, err, payload)
	}
	for _, payload := range []string{"-1 0", "0 -1", "-1 -1"} {
		_, err := ParseEdge([]byte(payload))
		require.Error(t, err, payload)
	}
}

func TestCameraRays(t *testing.T) {
	c := &Camera{
		HRes: 3, VRes: 2,
		Eye:  [3]float64{0, 0, 10},
		Look: [3]float64{0, 0, 0},
		Up:   [3]float64{0, 1, 0},
		Dist: 5, PSize: 1,
	}

	rays := c.Rays()
	require.Len(t, rays, 3*2*task.RayStride)

	for i := 0; i < 6; i++ {
		base := i * task.RayStride
		// all rays share the eye as origin
		require.Equal(t, []float64{0, 0, 10}, rays[base:base+3])
		// directions are unit-length
		d := rays[base+3 : base+6]
		n := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
		require.InDelta(t, 1.0, n, 1e-12)
		// looking from +z toward the origin
		require.Negative(t, d[2])
	}
}
