// Package intersect implements the Möller–Trumbore ray-triangle intersection
// kernel used by the local tracers. Rays are flat float64 buffers of
// origin xyz + direction xyz; triangles are flat buffers of three vertices.
package intersect

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/darkrenderer/darkrenderer/pkg/task"
)

const (
	epsilon   = 1e-5
	triStride = 9
)

type vec3 struct{ x, y, z float64 }

func (a vec3) sub(b vec3) vec3 {
	return vec3{a.x - b.x, a.y - b.y, a.z - b.z}
}

func (a vec3) dot(b vec3) float64 {
	return a.x*b.x + a.y*b.y + a.z*b.z
}

func (a vec3) cross(b vec3) vec3 {
	return vec3{
		a.y*b.z - a.z*b.y,
		a.z*b.x - a.x*b.z,
		a.x*b.y - a.y*b.x,
	}
}

func at(buf []float64, base int) vec3 {
	return vec3{buf[base], buf[base+1], buf[base+2]}
}

// Compute intersects every ray against every triangle and reports, per ray,
// the global ID of the closest hit triangle and its distance. Misses yield
// -1 and task.MaxDistance.
func Compute(rays []float64, triangleIDs []int32, triangles []float64) ([]int32, []float64) {
	numRays := len(rays) / task.RayStride
	ids := make([]int32, numRays)
	dists := make([]float64, numRays)
	computeRange(rays, triangleIDs, triangles, 0, numRays, ids, dists)
	return ids, dists
}

// ComputeParallel is Compute with the ray range fanned out across worker
// goroutines. workers <= 0 selects GOMAXPROCS.
func ComputeParallel(rays []float64, triangleIDs []int32, triangles []float64, workers int) ([]int32, []float64) {
	numRays := len(rays) / task.RayStride
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > numRays {
		workers = numRays
	}
	if workers <= 1 {
		return Compute(rays, triangleIDs, triangles)
	}

	ids := make([]int32, numRays)
	dists := make([]float64, numRays)

	var g errgroup.Group
	share := numRays / workers
	for w := 0; w < workers; w++ {
		from, to := w*share, (w+1)*share
		if w == workers-1 {
			to = numRays
		}
		g.Go(func() error {
			computeRange(rays, triangleIDs, triangles, from, to, ids, dists)
			return nil
		})
	}
	_ = g.Wait() // workers write disjoint ranges and never fail
	return ids, dists
}

func computeRange(rays []float64, triangleIDs []int32, triangles []float64, from, to int, ids []int32, dists []float64) {
	numTris := len(triangles) / triStride
	for r := from; r < to; r++ {
		base := r * task.RayStride
		origin := at(rays, base)
		dir := at(rays, base+3)

		closest := int32(-1)
		closestDist := task.MaxDistance
		for t := 0; t < numTris; t++ {
			if d, ok := moller(origin, dir, triangles, t*triStride); ok && d < closestDist {
				closestDist = d
				closest = triangleIDs[t]
			}
		}
		ids[r] = closest
		dists[r] = closestDist
	}
}

// moller returns the hit distance of one ray against one triangle.
func moller(origin, dir vec3, triangles []float64, base int) (float64, bool) {
	v0 := at(triangles, base)
	v1 := at(triangles, base+3)
	v2 := at(triangles, base+6)

	edge1 := v1.sub(v0)
	edge2 := v2.sub(v0)

	h := dir.cross(edge2)
	a := edge1.dot(h)
	if a > -epsilon && a < epsilon {
		return 0, false
	}

	f := 1.0 / a
	s := origin.sub(v0)
	u := f * s.dot(h)
	if u < 0.0 || u > 1.0 {
		return 0, false
	}

	q := s.cross(edge1)
	v := f * dir.dot(q)
	if v < 0.0 || u+v > 1.0 {
		return 0, false
	}

	t := f * edge2.dot(q)
	if t <= epsilon || t >= task.MaxDistance {
		return 0, false
	}
	return t, true
}
