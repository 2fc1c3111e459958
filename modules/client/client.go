// Package client implements the renderer's client side: it loads a scene
// file, submits it to the edge and writes the per-ray hits to disk. It also
// carries the two shutdown operations.
package client

import (
	"bufio"
	"context"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/darkrenderer/darkrenderer/pkg/frame"
	"github.com/darkrenderer/darkrenderer/pkg/scene"
	"github.com/darkrenderer/darkrenderer/pkg/task"
	"github.com/darkrenderer/darkrenderer/pkg/util/log"
)

// reportPrefix marks the final frame of an edge session.
const reportPrefix = "Processing report"

// Client submits render sessions to an edge node.
type Client struct {
	cfg    Config
	netCfg frame.Config
}

// New builds a client.
func New(cfg Config, netCfg frame.Config) *Client {
	return &Client{cfg: cfg, netCfg: netCfg}
}

func (c *Client) edgeAddr() string {
	return net.JoinHostPort(c.cfg.EdgeIP, strconv.Itoa(c.cfg.EdgePort))
}

// Render runs one full session: load, submit, collect, write.
func (c *Client) Render(ctx context.Context) error {
	start := time.Now()

	sc, err := c.loadScene()
	if err != nil {
		return err
	}

	conn, err := frame.Dial(ctx, c.edgeAddr(), c.netCfg.RecvBufferSize)
	if err != nil {
		return err
	}
	defer conn.Close()

	compress := c.netCfg.Compression
	if cf := c.cfg.configFrame(); cf != "" {
		if err := conn.Send([]byte(cf), compress); err != nil {
			return errors.Wrap(err, "sending config frame")
		}
	}

	payload := scene.AppendEdge(nil, sc)
	level.Info(log.Logger).Log("msg", "submitting scene", "rays", sc.NumRays(), "size", humanize.Bytes(uint64(len(payload))))
	if err := conn.Send(payload, compress); err != nil {
		return errors.Wrap(err, "sending scene")
	}

	results, report, err := collect(conn, compress)
	if err != nil {
		return err
	}
	level.Info(log.Logger).Log("msg", "session finished", "report", report, "duration", time.Since(start))

	return writeResults(c.cfg.Output, results)
}

// loadScene reads the input file. Unless the camera is to be shipped as-is,
// rays are generated locally so the edge sees explicit rays.
func (c *Client) loadScene() (*scene.Scene, error) {
	raw, err := os.ReadFile(c.cfg.Input)
	if err != nil {
		return nil, errors.Wrap(err, "reading scene file")
	}
	sc, err := scene.ParseEdge(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing scene file %s", c.cfg.Input)
	}

	if sc.Camera != nil && !c.cfg.SendCam {
		sc.Rays = sc.Camera.Rays()
		sc.Camera = nil
	}
	return sc, nil
}

// collect reads result frames until the report frame arrives and returns
// them ordered by task id.
func collect(conn *frame.Conn, compress bool) ([]*task.Result, string, error) {
	var results []*task.Result
	for {
		payload, err := conn.Recv(compress)
		if err != nil {
			return nil, "", errors.Wrap(err, "receiving results")
		}

		if strings.HasPrefix(string(payload), reportPrefix) {
			sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })
			return results, string(payload), nil
		}

		res, err := task.DecodeResult(payload)
		if err != nil {
			return nil, "", err
		}
		results = append(results, res)
	}
}

// writeResults writes one "<triangle_id> <distance>" line per ray, in ray
// order.
func writeResults(path string, results []*task.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}

	w := bufio.NewWriter(f)
	for _, res := range results {
		for i, id := range res.TriangleIDs {
			w.WriteString(strconv.FormatInt(int64(id), 10))
			w.WriteByte(' ')
			w.WriteString(strconv.FormatFloat(res.Distances[i], 'g', -1, 64))
			w.WriteByte('\n')
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "writing output file")
	}
	return f.Close()
}

// ShutdownEdge asks the edge to stop after this frame.
func (c *Client) ShutdownEdge(ctx context.Context) error {
	return c.sendControl(ctx, frame.MsgExitEdge)
}

// ShutdownAll asks the edge to stop and to propagate the shutdown to its
// cloud peer.
func (c *Client) ShutdownAll(ctx context.Context) error {
	return c.sendControl(ctx, frame.MsgExitAll)
}

func (c *Client) sendControl(ctx context.Context, msg string) error {
	conn, err := frame.Dial(ctx, c.edgeAddr(), c.netCfg.RecvBufferSize)
	if err != nil {
		return err
	}
	defer conn.Close()

	level.Info(log.Logger).Log("msg", "sending control frame", "frame", msg, "addr", c.edgeAddr())
	return conn.Send([]byte(msg), c.netCfg.Compression)
}
