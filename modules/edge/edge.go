// Package edge implements the edge node: it accepts one client session at a
// time, partitions the scene's rays into tasks, fans them out across the
// configured tracers through the queue fabric and streams results back to
// the client in arrival order.
package edge

import (
	"context"
	"net"
	"strconv"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/darkrenderer/darkrenderer/pkg/frame"
	"github.com/darkrenderer/darkrenderer/pkg/tracer"
	"github.com/darkrenderer/darkrenderer/pkg/util/log"
)

var (
	metricSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darkrenderer",
		Name:      "edge_sessions_total",
		Help:      "Total client sessions served, by outcome.",
	}, []string{"outcome"})
	metricSessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "darkrenderer",
		Name:      "edge_session_duration_seconds",
		Help:      "Wall time of one client session, accept to teardown.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})
)

// Edge serves client sessions. One session at a time; the listener stays
// open between sessions.
type Edge struct {
	services.Service

	cfg    Config
	netCfg frame.Config

	listener net.Listener
}

// New builds the edge service.
func New(cfg Config, netCfg frame.Config) (*Edge, error) {
	if _, err := tracer.New(cfg.Processing.TracerConfig(), netCfg.Compression, netCfg.RecvBufferSize); err != nil {
		return nil, errors.Wrap(err, "validating tracer config")
	}

	e := &Edge{cfg: cfg, netCfg: netCfg}
	e.Service = services.NewBasicService(e.starting, e.running, e.stopping)
	return e, nil
}

func (e *Edge) starting(_ context.Context) error {
	addr := net.JoinHostPort(e.cfg.IP, strconv.Itoa(e.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	e.listener = listener

	level.Info(log.Logger).Log("msg", "edge listening", "addr", addr)
	return nil
}

func (e *Edge) running(ctx context.Context) error {
	// unblock Accept when the service is asked to stop
	go func() {
		<-ctx.Done()
		e.listener.Close()
	}()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accepting client")
		}

		shutdown := e.handleSession(ctx, frame.New(conn, e.netCfg.RecvBufferSize))
		if shutdown {
			return nil
		}
	}
}

func (e *Edge) stopping(_ error) error {
	if e.listener != nil {
		return e.listener.Close()
	}
	return nil
}

// propagateExit forwards EXIT to the configured cloud peer. Called on
// EXIT_ALL before the edge shuts down.
func (e *Edge) propagateExit(ctx context.Context) {
	cloud := e.cfg.Processing.Cloud
	if !cloud.Active {
		return
	}

	addr := net.JoinHostPort(cloud.IP, strconv.Itoa(cloud.Port))
	peer := tracer.NewCloud(addr, cloud.TaskChunkSize, e.netCfg.Compression, e.netCfg.RecvBufferSize)
	if err := peer.Shutdown(ctx); err != nil {
		level.Error(log.Logger).Log("msg", "propagating EXIT to cloud failed", "addr", addr, "err", err)
	}
}
