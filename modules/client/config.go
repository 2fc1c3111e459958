package client

import (
	"flag"
	"strconv"
	"strings"

	"github.com/darkrenderer/darkrenderer/pkg/frame"
)

// Config for the client. The scheduling knobs inherit from the shared
// processing section unless set here; the ones that end up set travel in
// the CONFIG frame.
type Config struct {
	EdgeIP   string `json:"edge_ip"`
	EdgePort int    `json:"edge_port"`

	Input   string `json:"input"`
	Output  string `json:"output"`
	SendCam bool   `json:"send_cam"`

	// TaskSize 0 and TaskChunkSize -1 mean "leave it to the edge". Chunk
	// size 0 is meaningful on the wire (one unbounded batch), hence the -1.
	TaskSize      int  `json:"task_size"`
	TaskChunkSize int  `json:"task_chunk_size"`
	Multiqueue    bool `json:"multiqueue"`
	TaskSteal     bool `json:"task_stealing"`
	Streaming     bool `json:"cloud_streaming"`
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.EdgeIP = "127.0.0.1"
	cfg.EdgePort = 5000
	cfg.TaskChunkSize = -1

	f.StringVar(&cfg.Input, prefix+"input", "", "Scene file to render.")
	f.StringVar(&cfg.Output, prefix+"output", "out.txt", "File the per-ray hits are written to.")
}

// configFrame renders the CONFIG frame for the knobs that were set, or ""
// when the edge's defaults stand.
func (cfg *Config) configFrame() string {
	var b strings.Builder
	b.WriteString(frame.MsgConfig)

	if cfg.TaskSize > 0 {
		b.WriteString(" TSIZE ")
		b.WriteString(strconv.Itoa(cfg.TaskSize))
	}
	if cfg.TaskChunkSize >= 0 {
		b.WriteString(" TCHUNKSIZE ")
		b.WriteString(strconv.Itoa(cfg.TaskChunkSize))
	}
	if cfg.Multiqueue {
		b.WriteString(" MULTIQUEUE 1")
	}
	if cfg.TaskSteal {
		b.WriteString(" STEAL 1")
	}
	if cfg.Streaming {
		b.WriteString(" STREAM")
	}

	if b.String() == frame.MsgConfig {
		return ""
	}
	return b.String()
}
