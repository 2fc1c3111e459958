// Package tracer implements the workers that drain the queue fabric: the
// local CPU and FPGA tracers and the cloud tracer that offloads batches to a
// remote peer. All three satisfy the same contract and run one worker
// goroutine per tracer.
package tracer

import (
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"

	"github.com/darkrenderer/darkrenderer/pkg/queue"
	"github.com/darkrenderer/darkrenderer/pkg/task"
	"github.com/darkrenderer/darkrenderer/pkg/util/log"
)

var (
	metricTasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darkrenderer",
		Name:      "tracer_tasks_processed_total",
		Help:      "Total tasks computed per tracer kind.",
	}, []string{"tracer"})
	metricComputeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darkrenderer",
		Name:      "tracer_compute_failures_total",
		Help:      "Total compute calls that failed and killed their worker.",
	}, []string{"tracer"})
)

// Tracer consumes tasks and produces results. SetScene is idempotent per
// session and must be called before Run; Compute is synchronous; Run is the
// worker loop and is called on its own goroutine.
type Tracer interface {
	Kind() task.TracerKind
	SetScene(triangleIDs []int32, triangles []float64) error
	Compute(rays []float64) ([]int32, []float64, error)
	Run(opts RunOptions)
	Close() error
}

// RunOptions carries the session plumbing into a worker loop.
type RunOptions struct {
	Results chan<- *task.Result
	Reports chan<- task.TracerSummary
	Fabric  *queue.Fabric
	Primary int
	Steal   bool

	// CloudStreaming selects the cloud tracer's pipelined mode for this
	// session. Local tracers ignore it.
	CloudStreaming bool
}

// Worker lifecycle states.
type state int

const (
	stateInit state = iota
	stateArmed
	stateRunning
	stateDraining
	stateReporting
	stateDone
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateArmed:
		return "armed"
	case stateRunning:
		return "running"
	case stateDraining:
		return "draining"
	case stateReporting:
		return "reporting"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// base carries the bookkeeping shared by every tracer implementation.
type base struct {
	kind      task.TracerKind
	state     state
	processed atomic.Int64
}

func newBase(kind task.TracerKind) base {
	return base{kind: kind}
}

func (b *base) Kind() task.TracerKind {
	return b.kind
}

func (b *base) advance(to state) {
	level.Debug(log.Logger).Log("msg", "tracer state change", "tracer", b.kind, "from", b.state, "to", to)
	b.state = to
}

func (b *base) summary() task.TracerSummary {
	return task.TracerSummary{Kind: b.kind, TasksProcessed: b.processed.Load()}
}

// runLocal is the worker loop shared by the CPU and FPGA tracers: pull,
// compute, push, until the fabric is drained. A compute failure kills the
// worker; its pending tasks are lost and the session completes without them.
func runLocal(t Tracer, b *base, opts RunOptions) {
	src := opts.Fabric.Source(opts.Primary, opts.Steal)

	for {
		tk, ok := src.Next()
		if !ok {
			break
		}
		if b.state == stateArmed {
			b.advance(stateRunning)
		}

		ids, dists, err := t.Compute(tk.Rays)
		if err != nil {
			metricComputeFailures.WithLabelValues(string(b.kind)).Inc()
			level.Error(log.Logger).Log("msg", "compute failed, worker exiting", "tracer", b.kind, "task", tk.ID, "err", err)
			break
		}

		opts.Results <- &task.Result{TaskID: tk.ID, TriangleIDs: ids, Distances: dists}
		b.processed.Inc()
		metricTasksProcessed.WithLabelValues(string(b.kind)).Inc()

		if b.state == stateRunning && src.PastPrimary() {
			b.advance(stateDraining)
		}
	}

	b.advance(stateReporting)
	opts.Reports <- b.summary()
	b.advance(stateDone)
}
