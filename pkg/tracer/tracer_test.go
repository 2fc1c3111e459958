package tracer

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/darkrenderer/darkrenderer/pkg/fpga"
	"github.com/darkrenderer/darkrenderer/pkg/intersect"
	"github.com/darkrenderer/darkrenderer/pkg/queue"
	"github.com/darkrenderer/darkrenderer/pkg/task"
)

// unit triangle in the z=1 plane
var (
	testTriIDs = []int32{42}
	testTris   = []float64{0, 0, 1, 2, 0, 1, 0, 2, 1}
)

func hitRay() []float64 {
	return []float64{0.5, 0.5, 0, 0, 0, 1}
}

func makeTasks(n, raysPer int) []*task.Task {
	tasks := make([]*task.Task, n)
	for i := range tasks {
		var rays []float64
		for r := 0; r < raysPer; r++ {
			rays = append(rays, hitRay()...)
		}
		tasks[i] = &task.Task{ID: uint64(i), Rays: rays}
	}
	return tasks
}

func runOpts(f *queue.Fabric) (RunOptions, chan *task.Result, chan task.TracerSummary) {
	results := make(chan *task.Result, 256)
	reports := make(chan task.TracerSummary, 8)
	return RunOptions{Results: results, Reports: reports, Fabric: f}, results, reports
}

func TestCPURunProcessesAllTasks(t *testing.T) {
	f := queue.Populate(makeTasks(4, 3), 1)
	opts, results, reports := runOpts(f)

	c := NewCPU(false)
	require.NoError(t, c.SetScene(testTriIDs, testTris))
	c.Run(opts)

	summary := <-reports
	require.Equal(t, task.KindCPU, summary.Kind)
	require.EqualValues(t, 4, summary.TasksProcessed)

	close(results)
	seen := map[uint64]bool{}
	for res := range results {
		require.Len(t, res.TriangleIDs, 3)
		require.Len(t, res.Distances, 3)
		require.Equal(t, int32(42), res.TriangleIDs[0])
		seen[res.TaskID] = true
	}
	require.Len(t, seen, 4)
}

func TestCPUMulticoreMatchesSingle(t *testing.T) {
	single := NewCPU(false)
	multi := NewCPU(true)
	require.NoError(t, single.SetScene(testTriIDs, testTris))
	require.NoError(t, multi.SetScene(testTriIDs, testTris))

	rays := makeTasks(1, 64)[0].Rays
	ids1, d1, err := single.Compute(rays)
	require.NoError(t, err)
	ids2, d2, err := multi.Compute(rays)
	require.NoError(t, err)
	require.Equal(t, ids1, ids2)
	require.Equal(t, d1, d2)
}

func TestCPUComputeWithoutScene(t *testing.T) {
	_, _, err := NewCPU(false).Compute(hitRay())
	require.Error(t, err)
}

// failing fails every compute call.
type failing struct {
	base
}

func (f *failing) SetScene([]int32, []float64) error { return nil }
func (f *failing) Compute([]float64) ([]int32, []float64, error) {
	return nil, nil, errors.New("boom")
}
func (f *failing) Run(opts RunOptions) { runLocal(f, &f.base, opts) }
func (f *failing) Close() error        { return nil }

func TestComputeFailureKillsWorkerButReports(t *testing.T) {
	f := queue.Populate(makeTasks(5, 1), 1)
	opts, results, reports := runOpts(f)

	tr := &failing{base: newBase(task.KindCPU)}
	tr.Run(opts)

	summary := <-reports
	require.EqualValues(t, 0, summary.TasksProcessed)
	require.Empty(t, results)
}

func TestFPGASplitsAcrossAccelerators(t *testing.T) {
	accels := []fpga.Accelerator{
		fpga.NewSimulator(0),
		fpga.NewSimulator(0),
	}
	tr := NewFPGA(accels)
	tr.pollInterval = time.Millisecond
	require.NoError(t, tr.SetScene(testTriIDs, testTris))

	// 5 rays over 2 accelerators: shares of 2 and 3
	rays := makeTasks(1, 5)[0].Rays
	ids, dists, err := tr.Compute(rays)
	require.NoError(t, err)

	wantIDs, wantDists := intersect.Compute(rays, testTriIDs, testTris)
	require.Equal(t, wantIDs, ids)
	require.Equal(t, wantDists, dists)
	require.NoError(t, tr.Close())
}

func TestFPGAFewerRaysThanAccelerators(t *testing.T) {
	accels := []fpga.Accelerator{
		fpga.NewSimulator(0),
		fpga.NewSimulator(0),
		fpga.NewSimulator(0),
	}
	tr := NewFPGA(accels)
	tr.pollInterval = time.Millisecond
	require.NoError(t, tr.SetScene(testTriIDs, testTris))

	ids, dists, err := tr.Compute(hitRay())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Len(t, dists, 1)
	require.NoError(t, tr.Close())
}

func TestFactoryBuildsConfiguredTracers(t *testing.T) {
	cfg := Config{
		CPU:   CPUConfig{Active: true, Mode: "multicore", Factor: 0.5},
		FPGA:  FPGAConfig{Active: true, Mode: "multi", Factor: 0.25},
		Cloud: CloudConfig{Active: true, IP: "127.0.0.1", Port: 5001, Factor: 0.25},
	}

	tracers, err := New(cfg, false, 0)
	require.NoError(t, err)
	require.Len(t, tracers, 3)
	require.Equal(t, task.KindCloud, tracers[0].Kind())
	require.Equal(t, task.KindCPU, tracers[1].Kind())
	require.Equal(t, task.KindFPGA, tracers[2].Kind())
	require.Equal(t, []float64{0.25, 0.5, 0.25}, cfg.Factors())
}

func TestFactoryRejectsEmpty(t *testing.T) {
	_, err := New(Config{}, false, 0)
	require.Error(t, err)
}
