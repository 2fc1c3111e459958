// Package cloud implements the cloud node, the remote peer of the edge's
// cloud tracer: it receives a scene, answers task and SuperTask frames with
// matching result frames, and runs its own local tracers behind the same
// queue fabric the edge uses.
package cloud

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

var metricSessions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "darkrenderer",
	Name:      "cloud_sessions_total",
	Help:      "Total edge sessions served, by outcome.",
}, []string{"outcome"})

// Cloud serves edge sessions, one at a time.
type Cloud struct {
	services.Service

	cfg    Config
	netCfg frame.Config

	listener net.Listener
}

// New builds the cloud service.
func New(cfg Config, netCfg frame.Config) (*Cloud, error) {
	// the cloud always runs a CPU tracer, whatever the config says
	cfg.Processing.CPU.Active = true

	if _, err := tracer.New(localTracerConfig(cfg), netCfg.Compression, netCfg.RecvBufferSize); err != nil {
		return nil, errors.Wrap(err, "validating tracer config")
	}

	c := &Cloud{cfg: cfg, netCfg: netCfg}
	c.Service = services.NewBasicService(c.starting, c.running, c.stopping)
	return c, nil
}

func localTracerConfig(cfg Config) tracer.Config {
	return tracer.Config{CPU: cfg.Processing.CPU, FPGA: cfg.Processing.FPGA}
}

func (c *Cloud) starting(_ context.Context) error {
	addr := net.JoinHostPort(c.cfg.IP, strconv.Itoa(c.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	c.listener = listener

	level.Info(log.Logger).Log("msg", "cloud listening", "addr", addr)
	return nil
}

func (c *Cloud) running(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.listener.Close()
	}()

	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accepting edge")
		}

		shutdown := c.handleSession(frame.New(conn, c.netCfg.RecvBufferSize))
		if shutdown {
			return nil
		}
	}
}

func (c *Cloud) stopping(_ error) error {
	if c.listener != nil {
		return c.listener.Close()
	}
	return nil
}
