package cloud

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/darkrenderer/darkrenderer/pkg/frame"
	"github.com/darkrenderer/darkrenderer/pkg/queue"
	"github.com/darkrenderer/darkrenderer/pkg/scene"
	"github.com/darkrenderer/darkrenderer/pkg/task"
	"github.com/darkrenderer/darkrenderer/pkg/tracer"
	"github.com/darkrenderer/darkrenderer/pkg/util/log"
)

// reply is the response owed for one received frame. Replies are answered in
// arrival order, matching the edge's request pipeline.
type reply struct {
	super   bool
	superID uint64
	members []uint64
}

// handleSession serves one edge connection start to finish. It reports
// whether the edge asked the cloud to shut down.
func (c *Cloud) handleSession(conn *frame.Conn) (shutdown bool) {
	start := time.Now()
	logger := kitlog.With(log.Logger, "session", uuid.New().String())
	compress := c.netCfg.Compression

	defer conn.Close()

	payload, err := conn.Recv(compress)
	if err != nil {
		level.Error(logger).Log("msg", "receiving handshake failed", "err", err)
		metricSessions.WithLabelValues("error").Inc()
		return false
	}

	if string(payload) == frame.MsgExit {
		level.Info(logger).Log("msg", "edge requested shutdown")
		metricSessions.WithLabelValues("shutdown").Inc()
		return true
	}

	level.Info(logger).Log("msg", "scene frame received", "size", humanize.Bytes(uint64(len(payload))))
	sc, err := scene.ParseCloud(payload)
	if err != nil {
		level.Error(logger).Log("msg", "malformed scene", "err", err)
		metricSessions.WithLabelValues("error").Inc()
		return false
	}

	shutdown, err = c.serve(logger, conn, sc)
	if err != nil {
		level.Error(logger).Log("msg", "session aborted", "err", err)
		metricSessions.WithLabelValues("error").Inc()
		return shutdown
	}

	level.Info(logger).Log("msg", "session complete", "duration", time.Since(start))
	metricSessions.WithLabelValues("success").Inc()
	return shutdown
}

// serve runs the receive/compute/respond pipeline for one armed scene. Tasks
// flow into a single bounded queue shared by the local tracers; a full queue
// blocks the receive loop, which is the backpressure toward the edge.
func (c *Cloud) serve(logger kitlog.Logger, conn *frame.Conn, sc *scene.Scene) (shutdown bool, err error) {
	tracers, err := tracer.New(localTracerConfig(c.cfg), c.netCfg.Compression, c.netCfg.RecvBufferSize)
	if err != nil {
		return false, err
	}
	defer func() {
		var errs error
		for _, tr := range tracers {
			errs = multierr.Append(errs, tr.Close())
		}
		if errs != nil {
			level.Warn(logger).Log("msg", "closing tracers", "err", errs)
		}
	}()

	fabric := queue.NewBounded(1, c.cfg.QueueDepth)
	results := make(chan *task.Result, len(tracers)*4)
	reports := make(chan task.TracerSummary, len(tracers))

	var wg sync.WaitGroup
	running := 0
	for _, tr := range tracers {
		if err := tr.SetScene(sc.TriangleIDs, sc.Triangles); err != nil {
			level.Error(logger).Log("msg", "set_scene failed, dropping tracer", "tracer", tr.Kind(), "err", err)
			continue
		}

		wg.Add(1)
		running++
		go func(tr tracer.Tracer) {
			defer wg.Done()
			tr.Run(tracer.RunOptions{Results: results, Reports: reports, Fabric: fabric})
		}(tr)
	}
	if running == 0 {
		fabric.CloseAll()
		return false, errors.New("no tracer survived scene upload")
	}

	go func() {
		wg.Wait()
		close(results)
		close(reports)
	}()

	pending := make(chan reply, 64)
	respDone := make(chan error, 1)
	go func() {
		respDone <- c.respond(conn, results, pending)
	}()

	recvErr := c.receive(conn, fabric, pending, &shutdown)

	fabric.CloseAll()
	close(pending)
	sendErr := <-respDone

	for s := range reports {
		level.Info(logger).Log("msg", "tracer report", "tracer", s.Kind, "tasks", s.TasksProcessed)
	}

	if recvErr != nil {
		return shutdown, errors.Wrap(recvErr, "receiving from edge")
	}
	return shutdown, sendErr
}

// receive decodes task frames into the fabric until END, EXIT or a transport
// error, pushing one reply descriptor per frame. The descriptor goes out
// before the member tasks: the responder must be draining results while a
// batch larger than the fabric is still being fed, or the pipeline wedges
// with the fabric full, the workers blocked on the results channel and the
// responder still waiting for the descriptor.
func (c *Cloud) receive(conn *frame.Conn, fabric *queue.Fabric, pending chan<- reply, shutdown *bool) error {
	for {
		payload, err := conn.Recv(c.netCfg.Compression)
		if err != nil {
			return err
		}

		switch string(payload) {
		case frame.MsgEnd:
			return nil
		case frame.MsgExit:
			*shutdown = true
			return nil
		}

		if task.IsSuper(payload) {
			s, err := task.DecodeSuperTask(payload)
			if err != nil {
				return err
			}
			ids := make([]uint64, 0, len(s.Members))
			for _, m := range s.Members {
				ids = append(ids, m.TaskID)
			}
			pending <- reply{super: true, superID: s.ID, members: ids}

			offset := 0
			for _, m := range s.Members {
				fabric.Push(&task.Task{
					ID:   m.TaskID,
					Rays: s.Rays[offset*task.RayStride : (offset+m.RayCount)*task.RayStride],
				})
				offset += m.RayCount
			}
			continue
		}

		t, err := task.DecodeTask(payload)
		if err != nil {
			return err
		}
		pending <- reply{members: []uint64{t.ID}}
		fabric.Push(t)
	}
}

// respond answers reply descriptors in order, matching results by task id. On
// a send failure it keeps consuming so the workers can finish, but stops
// emitting.
func (c *Cloud) respond(conn *frame.Conn, results <-chan *task.Result, pending <-chan reply) error {
	ready := make(map[uint64]*task.Result)
	var sendErr error

	waitFor := func(id uint64) *task.Result {
		for {
			if r, ok := ready[id]; ok {
				delete(ready, id)
				return r
			}
			r, ok := <-results
			if !ok {
				return nil
			}
			ready[r.TaskID] = r
		}
	}

	for rep := range pending {
		members := make([]*task.Result, 0, len(rep.members))
		for _, id := range rep.members {
			r := waitFor(id)
			if r == nil {
				// the owning worker died; its result will never arrive
				if sendErr == nil {
					sendErr = errors.Errorf("no result for task %d", id)
				}
				break
			}
			members = append(members, r)
		}
		if sendErr != nil || len(members) < len(rep.members) {
			continue
		}

		payload := task.EncodeResult(members[0])
		if rep.super {
			payload = task.EncodeSuperResult(rep.superID, members)
		}
		if err := conn.Send(payload, c.netCfg.Compression); err != nil {
			sendErr = err
		}
	}

	// let the closer run down
	for range results {
	}
	return sendErr
}
