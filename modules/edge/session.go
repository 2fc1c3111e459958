package edge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/darkrenderer/darkrenderer/pkg/frame"
	"github.com/darkrenderer/darkrenderer/pkg/queue"
	"github.com/darkrenderer/darkrenderer/pkg/scene"
	"github.com/darkrenderer/darkrenderer/pkg/task"
	"github.com/darkrenderer/darkrenderer/pkg/tracer"
	"github.com/darkrenderer/darkrenderer/pkg/util/log"
)

// sessionOptions is the per-session copy of the scheduling knobs, seeded
// from config and overridden by the client's CONFIG frame.
type sessionOptions struct {
	taskSize   int
	chunkSize  int
	multiqueue bool
	steal      bool
	streaming  bool
}

func (e *Edge) sessionOptions() sessionOptions {
	p := e.cfg.Processing
	return sessionOptions{
		taskSize:   p.TaskSize,
		chunkSize:  p.Cloud.TaskChunkSize,
		multiqueue: p.Multiqueue,
		steal:      p.TaskSteal,
		streaming:  p.Cloud.Streaming,
	}
}

// applyConfigFrame folds a "CONFIG key value ..." frame into the options.
// Unknown keys are ignored.
func (opts *sessionOptions) applyConfigFrame(payload string) {
	fields := strings.Fields(payload)
	for i := 1; i < len(fields); i++ {
		value := ""
		if i+1 < len(fields) {
			value = fields[i+1]
		}

		switch fields[i] {
		case "TSIZE":
			if v, err := strconv.Atoi(value); err == nil {
				opts.taskSize = v
				i++
			}
		case "TCHUNKSIZE":
			if v, err := strconv.Atoi(value); err == nil {
				opts.chunkSize = v
				i++
			}
		case "MULTIQUEUE":
			if v, err := strconv.Atoi(value); err == nil {
				opts.multiqueue = v != 0
				i++
			}
		case "STEAL":
			if v, err := strconv.Atoi(value); err == nil {
				opts.steal = v != 0
				i++
			}
		case "STREAM":
			opts.streaming = true
		}
	}
}

// handleSession serves one client connection start to finish. It reports
// whether the client asked the edge to shut down.
func (e *Edge) handleSession(ctx context.Context, conn *frame.Conn) (shutdown bool) {
	start := time.Now()
	logger := kitlog.With(log.Logger, "session", uuid.New().String())
	compress := e.netCfg.Compression

	defer func() {
		conn.Close()
		metricSessionDuration.Observe(time.Since(start).Seconds())
	}()

	// Handshake: EXIT_*, or CONFIG followed by the scene, or the scene
	// directly.
	payload, err := conn.Recv(compress)
	if err != nil {
		level.Error(logger).Log("msg", "receiving handshake failed", "err", err)
		metricSessions.WithLabelValues("error").Inc()
		return false
	}

	msg := string(payload)
	switch {
	case strings.HasPrefix(msg, frame.MsgExitEdge):
		level.Info(logger).Log("msg", "client requested edge shutdown")
		metricSessions.WithLabelValues("shutdown").Inc()
		return true
	case strings.HasPrefix(msg, frame.MsgExitAll):
		level.Info(logger).Log("msg", "client requested full shutdown")
		e.propagateExit(ctx)
		metricSessions.WithLabelValues("shutdown").Inc()
		return true
	}

	opts := e.sessionOptions()
	if strings.HasPrefix(msg, frame.MsgConfig) {
		opts.applyConfigFrame(msg)
		if payload, err = conn.Recv(compress); err != nil {
			level.Error(logger).Log("msg", "receiving scene failed", "err", err)
			metricSessions.WithLabelValues("error").Inc()
			return false
		}
	}

	level.Info(logger).Log("msg", "scene frame received", "size", humanize.Bytes(uint64(len(payload))))
	sc, err := scene.ParseEdge(payload)
	if err != nil {
		level.Error(logger).Log("msg", "malformed scene", "err", err)
		metricSessions.WithLabelValues("error").Inc()
		return false
	}

	if err := e.compute(logger, conn, sc, opts); err != nil {
		level.Error(logger).Log("msg", "session aborted", "err", err)
		metricSessions.WithLabelValues("error").Inc()
		return false
	}

	level.Info(logger).Log("msg", "session complete", "duration", time.Since(start))
	metricSessions.WithLabelValues("success").Inc()
	return false
}

// compute runs the partition/dispatch/collect pipeline for one parsed scene.
func (e *Edge) compute(logger kitlog.Logger, conn *frame.Conn, sc *scene.Scene, opts sessionOptions) error {
	rays := sc.Rays
	if sc.Camera != nil {
		rays = sc.Camera.Rays()
	}

	tasks := task.Partition(rays, opts.taskSize)

	tracerCfg := e.cfg.Processing.TracerConfig()
	tracerCfg.Cloud.TaskChunkSize = opts.chunkSize
	tracers, err := tracer.New(tracerCfg, e.netCfg.Compression, e.netCfg.RecvBufferSize)
	if err != nil {
		return err
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

	numQueues := 1
	if opts.multiqueue {
		numQueues = len(tracers)
	}
	fabric := queue.Populate(tasks, numQueues)

	level.Info(logger).Log(
		"msg", "dispatching",
		"tasks", len(tasks),
		"queues", numQueues,
		"tracers", len(tracers),
		"steal", opts.steal,
		"streaming", opts.streaming,
	)

	results := make(chan *task.Result, len(tracers)*4)
	reports := make(chan task.TracerSummary, len(tracers))

	var wg sync.WaitGroup
	for i, tr := range tracers {
		if err := tr.SetScene(sc.TriangleIDs, sc.Triangles); err != nil {
			// this worker never runs; the session completes without it
			level.Error(logger).Log("msg", "set_scene failed, dropping tracer", "tracer", tr.Kind(), "err", err)
			continue
		}

		primary := 0
		if opts.multiqueue {
			primary = i
		}
		runOpts := tracer.RunOptions{
			Results:        results,
			Reports:        reports,
			Fabric:         fabric,
			Primary:        primary,
			Steal:          opts.steal,
			CloudStreaming: opts.streaming,
		}

		wg.Add(1)
		go func(tr tracer.Tracer) {
			defer wg.Done()
			tr.Run(runOpts)
		}(tr)
	}

	// the closer stands in for per-worker end-of-stream sentinels
	go func() {
		wg.Wait()
		close(results)
		close(reports)
	}()

	// Emit results in arrival order; the client orders by task id. On a
	// send failure keep draining so the workers can finish, but stop
	// emitting.
	var sendErr error
	emitted := 0
	for res := range results {
		if sendErr != nil {
			continue
		}
		if err := conn.Send(task.EncodeResult(res), e.netCfg.Compression); err != nil {
			sendErr = err
			continue
		}
		emitted++
	}
	if sendErr != nil {
		return sendErr
	}

	report := buildReport(reports, emitted, len(tasks))
	level.Info(logger).Log("msg", "session report", "report", report)
	return conn.Send([]byte(report), e.netCfg.Compression)
}

func buildReport(reports <-chan task.TracerSummary, emitted, tasks int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processing report: %d/%d tasks |", emitted, tasks)
	for s := range reports {
		fmt.Fprintf(&b, " %s: %d tasks |", s.Kind, s.TasksProcessed)
	}
	return b.String()
}
