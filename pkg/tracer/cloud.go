package tracer

import (
	"context"
	"math"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/darkrenderer/darkrenderer/pkg/frame"
	"github.com/darkrenderer/darkrenderer/pkg/queue"
	"github.com/darkrenderer/darkrenderer/pkg/scene"
	"github.com/darkrenderer/darkrenderer/pkg/task"
	"github.com/darkrenderer/darkrenderer/pkg/util/log"
)

// Cloud acts as a tracer locally but delegates computation to a remote cloud
// peer over a single TCP session owned by the worker. Batched mode round-trips
// SuperTasks; streaming mode pipelines individual tasks with an in-flight
// window bounded by the chunk size.
type Cloud struct {
	base

	addr      string
	chunkSize int
	compress  bool
	recvChunk int

	conn    *frame.Conn
	batchID uint64
}

// NewCloud builds a cloud tracer for the given peer address. chunkSize <= 0
// means unbounded: drain everything pending into one batch.
func NewCloud(addr string, chunkSize int, compress bool, recvChunk int) *Cloud {
	return &Cloud{
		base:      newBase(task.KindCloud),
		addr:      addr,
		chunkSize: chunkSize,
		compress:  compress,
		recvChunk: recvChunk,
	}
}

// SetScene dials the peer and ships the scene. Idempotent per session.
func (c *Cloud) SetScene(triangleIDs []int32, triangles []float64) error {
	if c.conn != nil {
		return nil
	}

	conn, err := frame.Dial(context.Background(), c.addr, c.recvChunk)
	if err != nil {
		return errors.Wrap(err, "connecting to cloud")
	}

	payload := scene.AppendCloud(nil, &scene.Scene{TriangleIDs: triangleIDs, Triangles: triangles})
	if err := conn.Send(payload, c.compress); err != nil {
		conn.Close()
		return errors.Wrap(err, "sending scene to cloud")
	}

	c.conn = conn
	if c.state == stateInit {
		c.advance(stateArmed)
	}
	return nil
}

// Compute round-trips a single ad-hoc task. The worker loop uses the batched
// and streaming paths instead; this covers the synchronous contract.
func (c *Cloud) Compute(rays []float64) ([]int32, []float64, error) {
	if c.conn == nil {
		return nil, nil, errors.New("no cloud session")
	}
	if err := c.conn.Send(task.EncodeTask(&task.Task{Rays: rays}), c.compress); err != nil {
		return nil, nil, errors.Wrap(err, "sending task to cloud")
	}
	payload, err := c.conn.Recv(c.compress)
	if err != nil {
		return nil, nil, errors.Wrap(err, "receiving result from cloud")
	}
	res, err := task.DecodeResult(payload)
	if err != nil {
		return nil, nil, err
	}
	return res.TriangleIDs, res.Distances, nil
}

func (c *Cloud) Run(opts RunOptions) {
	src := opts.Fabric.Source(opts.Primary, opts.Steal)

	var err error
	if opts.CloudStreaming {
		err = c.runStreaming(src, opts)
	} else {
		err = c.runBatched(src, opts)
	}

	// Any network error is fatal for this worker only: drop remaining
	// tasks, keep the session alive for the other tracers.
	if err != nil {
		level.Error(log.Logger).Log("msg", "cloud tracer aborting", "err", err)
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
	} else if c.conn != nil {
		if err := c.conn.Send([]byte(frame.MsgEnd), c.compress); err != nil {
			level.Warn(log.Logger).Log("msg", "sending END to cloud failed", "err", err)
		}
	}

	c.advance(stateReporting)
	opts.Reports <- c.summary()
	c.advance(stateDone)
}

func (c *Cloud) limit() int {
	if c.chunkSize <= 0 {
		return math.MaxInt
	}
	return c.chunkSize
}

// pull gathers up to limit tasks from the source, tracking worker state.
func (c *Cloud) pull(src *queue.Source, limit int) []*task.Task {
	var tasks []*task.Task
	for len(tasks) < limit {
		tk, ok := src.Next()
		if !ok {
			break
		}
		if c.state == stateArmed {
			c.advance(stateRunning)
		}
		tasks = append(tasks, tk)
		if c.state == stateRunning && src.PastPrimary() {
			c.advance(stateDraining)
		}
	}
	return tasks
}

func (c *Cloud) runBatched(src *queue.Source, opts RunOptions) error {
	for {
		tasks := c.pull(src, c.limit())
		if len(tasks) == 0 {
			return nil
		}

		super := &task.SuperTask{ID: c.batchID}
		c.batchID++
		for _, tk := range tasks {
			super.Append(tk)
		}

		if err := c.conn.Send(task.EncodeSuperTask(super), c.compress); err != nil {
			return errors.Wrap(err, "sending supertask")
		}
		payload, err := c.conn.Recv(c.compress)
		if err != nil {
			return errors.Wrap(err, "receiving supertask response")
		}
		id, results, err := task.DecodeSuperResult(payload)
		if err != nil {
			return err
		}
		if id != super.ID {
			return errors.Errorf("supertask response %d does not match request %d", id, super.ID)
		}

		for _, res := range results {
			opts.Results <- res
			c.processed.Inc()
			metricTasksProcessed.WithLabelValues(string(c.kind)).Inc()
		}

		if len(tasks) < c.limit() {
			return nil
		}
	}
}

func (c *Cloud) runStreaming(src *queue.Source, opts RunOptions) error {
	for {
		tasks := c.pull(src, c.limit())
		if len(tasks) == 0 {
			return nil
		}

		// burst sends, then matching receives
		for _, tk := range tasks {
			if err := c.conn.Send(task.EncodeTask(tk), c.compress); err != nil {
				return errors.Wrapf(err, "streaming task %d", tk.ID)
			}
		}
		for range tasks {
			payload, err := c.conn.Recv(c.compress)
			if err != nil {
				return errors.Wrap(err, "receiving streamed result")
			}
			res, err := task.DecodeResult(payload)
			if err != nil {
				return err
			}
			opts.Results <- res
			c.processed.Inc()
			metricTasksProcessed.WithLabelValues(string(c.kind)).Inc()
		}

		if len(tasks) < c.limit() {
			return nil
		}
	}
}

// Shutdown asks the cloud peer to exit. Used when the edge receives
// EXIT_ALL; it runs outside any worker, on a connection of its own.
func (c *Cloud) Shutdown(ctx context.Context) error {
	conn, err := frame.Dial(ctx, c.addr, c.recvChunk)
	if err != nil {
		return errors.Wrap(err, "connecting to cloud for shutdown")
	}
	defer conn.Close()
	return conn.Send([]byte(frame.MsgExit), c.compress)
}

func (c *Cloud) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
