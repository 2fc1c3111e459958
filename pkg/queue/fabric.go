// Package queue implements the task queue fabric feeding tracer workers: one
// FIFO per tracer under multiqueue routing, a single shared FIFO otherwise,
// with optional work-stealing across queues.
//
// End of stream is signalled by closing the queues rather than by in-band
// sentinel values; a worker terminates once it has observed closure on every
// queue it reads from, which preserves the exactly-once and termination
// guarantees under stealing with no sentinel accounting.
package queue

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/darkrenderer/darkrenderer/pkg/task"
)

var (
	metricTasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "darkrenderer",
		Name:      "queue_tasks_enqueued_total",
		Help:      "Total tasks routed into the fabric.",
	})
	metricTasksStolen = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "darkrenderer",
		Name:      "queue_tasks_stolen_total",
		Help:      "Total tasks pulled from a queue other than the worker's primary.",
	})
	metricQueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "darkrenderer",
		Name:      "queue_length",
		Help:      "Tasks currently buffered per queue.",
	}, []string{"queue"})
)

// Fabric is the set of FIFOs for one session. Populate builds a sealed
// fabric from a known task list (edge); NewBounded + Push + CloseAll feed it
// incrementally (cloud).
type Fabric struct {
	queues []chan *task.Task
	next   int
}

// Populate builds a fabric of k queues holding every task. With k > 1 task
// IDs are routed round-robin (id mod k); with k == 1 all tasks share one
// FIFO. The queues are closed before returning: the session enqueues
// everything up front, workers only drain.
func Populate(tasks []*task.Task, k int) *Fabric {
	if k < 1 {
		k = 1
	}

	counts := make([]int, k)
	for _, t := range tasks {
		counts[int(t.ID)%k]++
	}

	f := &Fabric{queues: make([]chan *task.Task, k)}
	for i := range f.queues {
		f.queues[i] = make(chan *task.Task, counts[i])
	}
	for _, t := range tasks {
		f.queues[int(t.ID)%k] <- t
		metricTasksEnqueued.Inc()
	}
	for i, q := range f.queues {
		close(q)
		metricQueueLength.WithLabelValues(queueLabel(i)).Set(float64(counts[i]))
	}
	return f
}

// NewBounded builds an open fabric of k queues with the given buffer per
// queue. Push blocks when a queue is full, which is the backpressure on the
// producer.
func NewBounded(k, depth int) *Fabric {
	if k < 1 {
		k = 1
	}
	if depth < 1 {
		depth = 1
	}
	f := &Fabric{queues: make([]chan *task.Task, k)}
	for i := range f.queues {
		f.queues[i] = make(chan *task.Task, depth)
	}
	return f
}

// Push routes one task round-robin across the queues.
func (f *Fabric) Push(t *task.Task) {
	idx := f.next
	f.queues[idx] <- t
	f.next = (idx + 1) % len(f.queues)
	metricTasksEnqueued.Inc()
	metricQueueLength.WithLabelValues(queueLabel(idx)).Inc()
}

// CloseAll seals an open fabric; every reader observes end of stream.
func (f *Fabric) CloseAll() {
	for _, q := range f.queues {
		close(q)
	}
}

// Len is the number of queues.
func (f *Fabric) Len() int {
	return len(f.queues)
}

// Source is one worker's view of the fabric: its primary queue first, then,
// when stealing is allowed, the remaining queues in index order. A Source is
// used by a single goroutine.
type Source struct {
	fabric  *Fabric
	order   []int
	pos     int
	primary int
}

// Source builds the drain order for the worker owning the given primary
// queue.
func (f *Fabric) Source(primary int, steal bool) *Source {
	if primary >= len(f.queues) {
		primary = 0
	}
	order := []int{primary}
	if steal {
		for i := range f.queues {
			if i != primary {
				order = append(order, i)
			}
		}
	}
	return &Source{fabric: f, order: order, primary: primary}
}

// Next pulls the next task, blocking until one arrives or the current queue
// closes. It returns false once every queue in the drain order is exhausted.
func (s *Source) Next() (*task.Task, bool) {
	for s.pos < len(s.order) {
		idx := s.order[s.pos]
		t, ok := <-s.fabric.queues[idx]
		if !ok {
			s.pos++
			continue
		}
		if idx != s.primary {
			metricTasksStolen.Inc()
		}
		metricQueueLength.WithLabelValues(queueLabel(idx)).Dec()
		return t, true
	}
	return nil, false
}

// PastPrimary reports whether the source has exhausted its primary queue and
// moved on to stealing.
func (s *Source) PastPrimary() bool {
	return s.pos > 0
}

func queueLabel(i int) string {
	return strconv.Itoa(i)
}
