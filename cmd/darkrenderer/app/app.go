// Package app wires the configuration to the mode the binary runs as and
// owns the process lifecycle around it.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/darkrenderer/darkrenderer/modules/client"
	"github.com/darkrenderer/darkrenderer/modules/cloud"
	"github.com/darkrenderer/darkrenderer/modules/edge"
	"github.com/darkrenderer/darkrenderer/pkg/util/log"
)

// App runs one mode of the renderer.
type App struct {
	cfg Config
}

// New validates the configuration and builds the app.
func New(cfg Config) (*App, error) {
	if !validMode(cfg.Mode) {
		return nil, errors.Errorf("unknown mode %q", cfg.Mode)
	}
	cfg.propagate()
	return &App{cfg: cfg}, nil
}

// Run executes the selected mode until it finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.serveMetrics()

	switch a.cfg.Mode {
	case ModeClient:
		return client.New(a.cfg.Client, a.cfg.Networking).Render(ctx)
	case ModeShutdownEdge:
		return client.New(a.cfg.Client, a.cfg.Networking).ShutdownEdge(ctx)
	case ModeShutdownAll:
		return client.New(a.cfg.Client, a.cfg.Networking).ShutdownAll(ctx)
	case ModeEdge:
		e, err := edge.New(a.cfg.Edge, a.cfg.Networking)
		if err != nil {
			return err
		}
		return a.runService(ctx, e)
	case ModeCloud:
		c, err := cloud.New(a.cfg.Cloud, a.cfg.Networking)
		if err != nil {
			return err
		}
		return a.runService(ctx, c)
	}
	return errors.Errorf("unknown mode %q", a.cfg.Mode)
}

// runService drives a dskit service: start it, stop it when ctx is
// cancelled, and wait for it to come to rest either way.
func (a *App) runService(ctx context.Context, svc services.Service) error {
	if err := services.StartAndAwaitRunning(ctx, svc); err != nil {
		return errors.Wrap(err, "starting service")
	}

	go func() {
		<-ctx.Done()
		svc.StopAsync()
	}()

	return svc.AwaitTerminated(context.Background())
}

// serveMetrics exposes /metrics when an address is configured. The listener
// is best-effort and never blocks the mode from running.
func (a *App) serveMetrics() {
	if a.cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         a.cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	level.Info(log.Logger).Log("msg", "metrics listening", "addr", a.cfg.MetricsAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(log.Logger).Log("msg", "metrics listener failed", "err", err)
		}
	}()
}
