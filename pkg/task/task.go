// Package task holds the work units moved between the edge, its tracers and
// the cloud peer, plus the text codec they travel in.
package task

// RayStride is the number of float64 attributes per ray: origin xyz then
// direction xyz.
const RayStride = 6

// MaxDistance is the "no hit" distance sentinel. Triangle IDs use -1.
const MaxDistance = 1e9

// Task is a contiguous batch of rays to intersect. Immutable once enqueued.
type Task struct {
	ID   uint64
	Rays []float64
}

// RayCount is the number of rays carried by the task.
func (t *Task) RayCount() int {
	return len(t.Rays) / RayStride
}

// Member records one task folded into a SuperTask.
type Member struct {
	TaskID   uint64
	RayCount int
}

// SuperTask batches tasks into one cloud round trip. Rays concatenates the
// member tasks' rays in member order.
type SuperTask struct {
	ID      uint64
	Members []Member
	Rays    []float64
}

// Append folds one task into the batch.
func (s *SuperTask) Append(t *Task) {
	s.Members = append(s.Members, Member{TaskID: t.ID, RayCount: t.RayCount()})
	s.Rays = append(s.Rays, t.Rays...)
}

// Result is the outcome of intersecting one task. TriangleIDs and Distances
// have one entry per ray; -1 / MaxDistance mark a miss.
type Result struct {
	TaskID      uint64
	TriangleIDs []int32
	Distances   []float64
}

// TracerKind identifies a tracer implementation in summaries and metrics.
type TracerKind string

const (
	KindCPU   TracerKind = "cpu"
	KindFPGA  TracerKind = "fpga"
	KindCloud TracerKind = "cloud"
)

// TracerSummary is the per-worker diagnostic emitted at end of stream.
type TracerSummary struct {
	Kind           TracerKind
	TasksProcessed int64
}
