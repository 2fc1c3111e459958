package scene

import (
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/darkrenderer/darkrenderer/pkg/task"
)

// Camera is a pinhole camera. Rays are generated row-major over the pixel
// grid, one per pixel, so the i-th ray belongs to pixel
// (i % hres, i / hres).
type Camera struct {
	HRes, VRes int
	Eye        [3]float64
	Look       [3]float64
	Up         [3]float64
	Dist       float64
	PSize      float64
}

func parseCamera(fields []string) (*Camera, error) {
	if len(fields) != 13 {
		return nil, errors.Errorf("camera block carries %d tokens, want 13", len(fields))
	}
	hres, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, errors.Wrap(err, "parsing hres")
	}
	vres, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Wrap(err, "parsing vres")
	}
	vals, err := parseFloats(fields[2:])
	if err != nil {
		return nil, errors.Wrap(err, "parsing camera floats")
	}

	c := &Camera{HRes: hres, VRes: vres, Dist: vals[9], PSize: vals[10]}
	copy(c.Eye[:], vals[0:3])
	copy(c.Look[:], vals[3:6])
	copy(c.Up[:], vals[6:9])
	return c, nil
}

func (c *Camera) append(b []byte) []byte {
	b = append(b, ' ')
	b = append(b, camMarker...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(c.HRes), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(c.VRes), 10)
	b = appendFloats(b, c.Eye[:])
	b = appendFloats(b, c.Look[:])
	b = appendFloats(b, c.Up[:])
	b = appendFloats(b, []float64{c.Dist, c.PSize})
	return b
}

// Rays generates one ray per pixel: origin at the eye point, direction
// through the pixel center on the view plane, normalized.
func (c *Camera) Rays() []float64 {
	w := normalize(sub(c.Eye, c.Look))
	u := normalize(neg(cross(c.Up, w)))
	v := cross(w, u)

	out := make([]float64, 0, c.HRes*c.VRes*task.RayStride)
	for r := 0; r < c.VRes; r++ {
		for col := 0; col < c.HRes; col++ {
			xv := c.PSize * (float64(col) - float64(c.HRes)/2)
			yv := c.PSize * (float64(r) - float64(c.VRes)/2)

			dir := [3]float64{}
			for i := 0; i < 3; i++ {
				dir[i] = xv*u[i] + yv*v[i] - c.Dist*w[i]
			}
			dir = normalize(dir)

			out = append(out, c.Eye[0], c.Eye[1], c.Eye[2], dir[0], dir[1], dir[2])
		}
	}
	return out
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func neg(a [3]float64) [3]float64 {
	return [3]float64{-a[0], -a[1], -a[2]}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(a [3]float64) [3]float64 {
	n := math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
	return [3]float64{a[0] / n, a[1] / n, a[2] / n}
}
