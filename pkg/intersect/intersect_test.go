package intersect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkrenderer/darkrenderer/pkg/task"
)

// unit triangle in the z=1 plane
var unitTri = []float64{
	0, 0, 1,
	2, 0, 1,
	0, 2, 1,
}

func TestComputeHit(t *testing.T) {
	// ray from origin straight up through the triangle
	rays := []float64{0.5, 0.5, 0, 0, 0, 1}

	ids, dists := Compute(rays, []int32{42}, unitTri)
	require.Equal(t, []int32{42}, ids)
	require.InDelta(t, 1.0, dists[0], 1e-12)
}

func TestComputeMiss(t *testing.T) {
	// pointing away from the triangle
	rays := []float64{0.5, 0.5, 0, 0, 0, -1}

	ids, dists := Compute(rays, []int32{42}, unitTri)
	require.Equal(t, []int32{-1}, ids)
	require.Equal(t, task.MaxDistance, dists[0])
}

func TestComputeParallelRay(t *testing.T) {
	// parallel to the triangle plane, determinant ~ 0
	rays := []float64{0.5, 0.5, 0, 1, 0, 0}

	ids, _ := Compute(rays, []int32{42}, unitTri)
	require.Equal(t, []int32{-1}, ids)
}

func TestComputeClosestOfMany(t *testing.T) {
	// two stacked triangles; the lower one must win
	tris := append(append([]float64{}, unitTri...),
		0, 0, 3,
		2, 0, 3,
		0, 2, 3,
	)
	rays := []float64{0.5, 0.5, 0, 0, 0, 1}

	ids, dists := Compute(rays, []int32{7, 9}, tris)
	require.Equal(t, []int32{7}, ids)
	require.InDelta(t, 1.0, dists[0], 1e-12)
}

func TestComputeParallelMatchesSerial(t *testing.T) {
	var rays []float64
	for i := 0; i < 37; i++ {
		x := float64(i%5) * 0.3
		y := float64(i/5) * 0.25
		rays = append(rays, x, y, 0, 0, 0, 1)
	}

	wantIDs, wantDists := Compute(rays, []int32{42}, unitTri)
	gotIDs, gotDists := ComputeParallel(rays, []int32{42}, unitTri, 4)

	require.Equal(t, wantIDs, gotIDs)
	require.Equal(t, wantDists, gotDists)
}
