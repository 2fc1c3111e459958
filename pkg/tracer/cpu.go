package tracer

import (
	"github.com/pkg/errors"

	"github.com/darkrenderer/darkrenderer/pkg/intersect"
	"github.com/darkrenderer/darkrenderer/pkg/task"
)

// CPU runs the intersection kernel in-process, optionally fanned out across
// cores.
type CPU struct {
	base
	multicore bool

	triangleIDs []int32
	triangles   []float64
}

// NewCPU builds a CPU tracer. multicore selects the data-parallel kernel.
func NewCPU(multicore bool) *CPU {
	return &CPU{base: newBase(task.KindCPU), multicore: multicore}
}

func (c *CPU) SetScene(triangleIDs []int32, triangles []float64) error {
	c.triangleIDs = triangleIDs
	c.triangles = triangles
	if c.state == stateInit {
		c.advance(stateArmed)
	}
	return nil
}

func (c *CPU) Compute(rays []float64) ([]int32, []float64, error) {
	if c.triangleIDs == nil {
		return nil, nil, errors.New("no scene set")
	}
	if c.multicore {
		ids, dists := intersect.ComputeParallel(rays, c.triangleIDs, c.triangles, 0)
		return ids, dists, nil
	}
	ids, dists := intersect.Compute(rays, c.triangleIDs, c.triangles)
	return ids, dists, nil
}

func (c *CPU) Run(opts RunOptions) {
	runLocal(c, &c.base, opts)
}

func (c *CPU) Close() error {
	return nil
}
