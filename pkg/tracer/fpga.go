package tracer

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/darkrenderer/darkrenderer/pkg/fpga"
	"github.com/darkrenderer/darkrenderer/pkg/task"
)

// defaultPollInterval is how often accelerators are polled for completion.
const defaultPollInterval = 200 * time.Millisecond

// FPGA drives one or more intersection accelerators. Each Compute splits the
// ray buffer into equal shares, one per accelerator, kicks all of them off
// and polls until every core reports done.
type FPGA struct {
	base
	accels       []fpga.Accelerator
	pollInterval time.Duration
}

// NewFPGA wraps the given accelerators. The accelerators are owned by this
// tracer's worker and released on Close.
func NewFPGA(accels []fpga.Accelerator) *FPGA {
	return &FPGA{
		base:         newBase(task.KindFPGA),
		accels:       accels,
		pollInterval: defaultPollInterval,
	}
}

func (f *FPGA) SetScene(triangleIDs []int32, triangles []float64) error {
	for i, a := range f.accels {
		if err := a.SetScene(triangleIDs, triangles); err != nil {
			return errors.Wrapf(err, "uploading scene to accelerator %d", i)
		}
	}
	if f.state == stateInit {
		f.advance(stateArmed)
	}
	return nil
}

func (f *FPGA) Compute(rays []float64) ([]int32, []float64, error) {
	numRays := len(rays) / task.RayStride
	if len(f.accels) == 0 {
		return nil, nil, errors.New("no accelerators configured")
	}

	// equal shares by ray count, last accelerator takes the remainder
	share := numRays / len(f.accels)
	started := make([]fpga.Accelerator, 0, len(f.accels))
	for i, a := range f.accels {
		from := i * share
		to := from + share
		if i == len(f.accels)-1 {
			to = numRays
		}
		if from >= to {
			continue
		}
		if err := a.Start(rays[from*task.RayStride : to*task.RayStride]); err != nil {
			return nil, nil, errors.Wrapf(err, "starting accelerator %d", i)
		}
		started = append(started, a)
	}

	for {
		done := true
		for _, a := range started {
			if !a.IsDone() {
				done = false
				break
			}
		}
		if done {
			break
		}
		time.Sleep(f.pollInterval)
	}

	ids := make([]int32, 0, numRays)
	dists := make([]float64, 0, numRays)
	for _, a := range started {
		aIDs, aDists := a.Results()
		ids = append(ids, aIDs...)
		dists = append(dists, aDists...)
	}
	return ids, dists, nil
}

func (f *FPGA) Run(opts RunOptions) {
	runLocal(f, &f.base, opts)
}

func (f *FPGA) Close() error {
	var errs error
	for _, a := range f.accels {
		errs = multierr.Append(errs, a.Close())
	}
	return errs
}
