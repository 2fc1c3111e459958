package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/darkrenderer/darkrenderer/pkg/task"
)

func makeTasks(n int) []*task.Task {
	tasks := make([]*task.Task, n)
	for i := range tasks {
		tasks[i] = &task.Task{ID: uint64(i), Rays: []float64{0, 0, 0, 0, 0, 1}}
	}
	return tasks
}

func drain(s *Source) []uint64 {
	var ids []uint64
	for {
		t, ok := s.Next()
		if !ok {
			return ids
		}
		ids = append(ids, t.ID)
	}
}

func TestSingleQueueDeliversAllInOrder(t *testing.T) {
	f := Populate(makeTasks(10), 1)

	ids := drain(f.Source(0, false))
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, ids)
}

func TestMultiQueueRoundRobinRouting(t *testing.T) {
	// 6 tasks over 2 queues: queue 0 gets 0,2,4; queue 1 gets 1,3,5
	f := Populate(makeTasks(6), 2)

	require.Equal(t, []uint64{0, 2, 4}, drain(f.Source(0, false)))
	require.Equal(t, []uint64{1, 3, 5}, drain(f.Source(1, false)))
}

func TestNoStealingStopsAtPrimary(t *testing.T) {
	f := Populate(makeTasks(6), 2)

	ids := drain(f.Source(0, false))
	require.Equal(t, []uint64{0, 2, 4}, ids)

	// the other queue is untouched
	require.Equal(t, []uint64{1, 3, 5}, drain(f.Source(1, false)))
}

func TestStealingDrainsOtherQueues(t *testing.T) {
	f := Populate(makeTasks(6), 3)

	// worker 1 with stealing sees its own queue first, then 0 and 2
	ids := drain(f.Source(1, true))
	require.Equal(t, []uint64{1, 4, 0, 3, 2, 5}, ids)
}

func TestConcurrentWorkersConsumeExactlyOnce(t *testing.T) {
	const numTasks = 100
	f := Populate(makeTasks(numTasks), 2)

	var (
		mtx  sync.Mutex
		seen = map[uint64]int{}
		wg   sync.WaitGroup
	)
	slowCount := atomic.NewInt64(0)

	worker := func(primary int, slow bool) {
		defer wg.Done()
		src := f.Source(primary, true)
		for {
			tk, ok := src.Next()
			if !ok {
				return
			}
			if slow {
				time.Sleep(500 * time.Microsecond)
				slowCount.Inc()
			}
			mtx.Lock()
			seen[tk.ID]++
			mtx.Unlock()
		}
	}

	wg.Add(2)
	go worker(0, false)
	go worker(1, true) // 2x-ish slower per task
	wg.Wait()

	require.Len(t, seen, numTasks)
	for id, n := range seen {
		require.Equal(t, 1, n, "task %d consumed %d times", id, n)
	}
	// the fast worker stole some of the slow worker's share
	require.Less(t, slowCount.Load(), int64(numTasks/2))
}

func TestBoundedFabricPushAndClose(t *testing.T) {
	f := NewBounded(1, 4)

	done := make(chan []uint64)
	go func() {
		done <- drain(f.Source(0, false))
	}()

	for _, tk := range makeTasks(9) {
		f.Push(tk)
	}
	f.CloseAll()

	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8}, <-done)
}

func TestBoundedFabricRoundRobin(t *testing.T) {
	f := NewBounded(2, 8)
	for _, tk := range makeTasks(5) {
		f.Push(tk)
	}
	f.CloseAll()

	require.Equal(t, []uint64{0, 2, 4}, drain(f.Source(0, false)))
	require.Equal(t, []uint64{1, 3}, drain(f.Source(1, false)))
	require.Equal(t, 2, f.Len())
}
