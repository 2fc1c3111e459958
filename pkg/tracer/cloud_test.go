package tracer

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkrenderer/darkrenderer/pkg/frame"
	"github.com/darkrenderer/darkrenderer/pkg/queue"
	"github.com/darkrenderer/darkrenderer/pkg/task"
)

// fakePeer answers task and supertask frames with miss results until END.
type fakePeer struct {
	conn *frame.Conn

	tasks  int
	supers int
	gotEnd bool
}

func (p *fakePeer) serve(t *testing.T) {
	for {
		payload, err := p.conn.Recv(false)
		if err == io.EOF {
			return
		}
		require.NoError(t, err)

		if string(payload) == frame.MsgEnd {
			p.gotEnd = true
			return
		}

		if task.IsSuper(payload) {
			super, err := task.DecodeSuperTask(payload)
			require.NoError(t, err)
			p.supers++

			members := make([]*task.Result, 0, len(super.Members))
			for _, m := range super.Members {
				members = append(members, missResult(m.TaskID, m.RayCount))
			}
			require.NoError(t, p.conn.Send(task.EncodeSuperResult(super.ID, members), false))
			continue
		}

		tk, err := task.DecodeTask(payload)
		require.NoError(t, err)
		p.tasks++
		require.NoError(t, p.conn.Send(task.EncodeResult(missResult(tk.ID, tk.RayCount())), false))
	}
}

func missResult(id uint64, n int) *task.Result {
	res := &task.Result{
		TaskID:      id,
		TriangleIDs: make([]int32, n),
		Distances:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		res.TriangleIDs[i] = -1
		res.Distances[i] = task.MaxDistance
	}
	return res
}

// tcpPair returns two ends of a loopback TCP connection; unlike net.Pipe the
// kernel buffers writes, so pipelined bursts do not deadlock the test.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	accepted, err := ln.Accept()
	require.NoError(t, err)

	t.Cleanup(func() {
		dialed.Close()
		accepted.Close()
	})
	return dialed, accepted
}

func startCloud(t *testing.T, chunkSize int) (*Cloud, *fakePeer, chan struct{}) {
	local, remote := tcpPair(t)

	c := NewCloud("unused", chunkSize, false, 0)
	c.conn = frame.New(local, 0)
	c.advance(stateArmed)

	peer := &fakePeer{conn: frame.New(remote, 0)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		peer.serve(t)
	}()
	return c, peer, done
}

func TestCloudStreaming(t *testing.T) {
	// 10 tasks, window 4: bursts of 4, 4, 2
	c, peer, done := startCloud(t, 4)
	f := queue.Populate(makeTasks(10, 2), 1)
	opts, results, reports := runOpts(f)

	c.Run(RunOptions{
		Results:        opts.Results,
		Reports:        opts.Reports,
		Fabric:         f,
		CloudStreaming: true,
	})
	<-done

	summary := <-reports
	require.Equal(t, task.KindCloud, summary.Kind)
	require.EqualValues(t, 10, summary.TasksProcessed)
	require.Equal(t, 10, peer.tasks)
	require.Zero(t, peer.supers)
	require.True(t, peer.gotEnd)

	close(results)
	var count int
	for res := range results {
		require.Len(t, res.TriangleIDs, 2)
		count++
	}
	require.Equal(t, 10, count)
}

func TestCloudBatchedUnboundedChunk(t *testing.T) {
	// chunk 0 drains everything pending into one SuperTask
	c, peer, done := startCloud(t, 0)
	f := queue.Populate(makeTasks(7, 1), 1)
	opts, _, reports := runOpts(f)
	opts.Fabric = f

	c.Run(opts)
	<-done

	summary := <-reports
	require.EqualValues(t, 7, summary.TasksProcessed)
	require.Equal(t, 1, peer.supers)
	require.Zero(t, peer.tasks)
	require.True(t, peer.gotEnd)
}

func TestCloudBatchedChunked(t *testing.T) {
	c, peer, done := startCloud(t, 3)
	f := queue.Populate(makeTasks(8, 1), 1)
	opts, results, reports := runOpts(f)

	c.Run(opts)
	<-done

	summary := <-reports
	require.EqualValues(t, 8, summary.TasksProcessed)
	// batches of 3, 3, 2
	require.Equal(t, 3, peer.supers)
	require.True(t, peer.gotEnd)

	close(results)
	seen := map[uint64]bool{}
	for res := range results {
		seen[res.TaskID] = true
	}
	require.Len(t, seen, 8)
}

func TestCloudPeerFailureDropsRemainingTasks(t *testing.T) {
	local, remote := tcpPair(t)

	c := NewCloud("unused", 2, false, 0)
	c.conn = frame.New(local, 0)
	c.advance(stateArmed)

	peerConn := frame.New(remote, 0)
	go func() {
		// answer the first supertask, then hang up mid-session
		payload, err := peerConn.Recv(false)
		if err != nil {
			return
		}
		super, err := task.DecodeSuperTask(payload)
		if err != nil {
			return
		}
		members := make([]*task.Result, 0, len(super.Members))
		for _, m := range super.Members {
			members = append(members, missResult(m.TaskID, m.RayCount))
		}
		_ = peerConn.Send(task.EncodeSuperResult(super.ID, members), false)
		peerConn.Close()
	}()

	f := queue.Populate(makeTasks(6, 1), 1)
	opts, results, reports := runOpts(f)
	c.Run(opts)

	// only the first batch of 2 made it; the worker still reported
	summary := <-reports
	require.EqualValues(t, 2, summary.TasksProcessed)
	require.Len(t, results, 2)
}
