package fpga

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/darkrenderer/darkrenderer/pkg/intersect"
)

// Simulator implements Accelerator in software on top of the CPU kernel. It
// completes asynchronously like the real core, after an optional artificial
// delay, so the tracer's start/poll/collect path is exercised unchanged.
type Simulator struct {
	Delay time.Duration

	mtx         sync.Mutex
	triangleIDs []int32
	triangles   []float64
	running     bool
	done        bool
	outIDs      []int32
	outDists    []float64
}

var _ Accelerator = (*Simulator)(nil)

// NewSimulator builds a simulated accelerator. delay is the artificial
// compute latency per Start; zero completes on the first poll.
func NewSimulator(delay time.Duration) *Simulator {
	return &Simulator{Delay: delay}
}

func (s *Simulator) SetScene(triangleIDs []int32, triangles []float64) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.running {
		return errors.New("accelerator busy")
	}
	s.triangleIDs = triangleIDs
	s.triangles = triangles
	return nil
}

func (s *Simulator) Start(rays []float64) error {
	s.mtx.Lock()
	if s.running {
		s.mtx.Unlock()
		return errors.New("accelerator busy")
	}
	if s.triangleIDs == nil {
		s.mtx.Unlock()
		return errors.New("no scene uploaded")
	}
	s.running = true
	s.done = false
	s.mtx.Unlock()

	go func() {
		ids, dists := intersect.Compute(rays, s.triangleIDs, s.triangles)
		if s.Delay > 0 {
			time.Sleep(s.Delay)
		}

		s.mtx.Lock()
		s.outIDs, s.outDists = ids, dists
		s.running = false
		s.done = true
		s.mtx.Unlock()
	}()
	return nil
}

func (s *Simulator) IsDone() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.done
}

func (s *Simulator) Results() ([]int32, []float64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.outIDs, s.outDists
}

func (s *Simulator) Close() error {
	return nil
}
