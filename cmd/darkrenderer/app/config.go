package app

import (
	"flag"

	"github.com/darkrenderer/darkrenderer/modules/client"
	"github.com/darkrenderer/darkrenderer/modules/cloud"
	"github.com/darkrenderer/darkrenderer/modules/edge"
	"github.com/darkrenderer/darkrenderer/pkg/frame"
)

// Modes the binary can run as.
const (
	ModeClient       = "client"
	ModeEdge         = "edge"
	ModeCloud        = "cloud"
	ModeShutdownEdge = "shutdown_edge"
	ModeShutdownAll  = "shutdown_all"
)

// Config is the root configuration, loaded from the JSON config file and
// overlaid with CLI flags. The processing section is shared: the edge takes
// all of it, the cloud node its CPU/FPGA half, the client turns the
// scheduling knobs into its CONFIG frame.
type Config struct {
	Mode string `json:"mode"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// MetricsAddr is the listen address of the /metrics endpoint; empty
	// disables it.
	MetricsAddr string `json:"metrics_addr"`

	Networking frame.Config          `json:"networking"`
	Processing edge.ProcessingConfig `json:"processing"`

	Edge   edge.Config   `json:"edge"`
	Cloud  cloud.Config  `json:"cloud"`
	Client client.Config `json:"client"`
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Mode, "mode", ModeClient, "One of client, edge, cloud, shutdown_edge, shutdown_all.")
	f.StringVar(&cfg.LogLevel, "log.level", "info", "Only log messages with the given severity or above. One of debug, info, warn, error.")
	f.StringVar(&cfg.LogFormat, "log.format", "logfmt", "Output log messages in the given format. One of logfmt, json.")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Listen address of the Prometheus /metrics endpoint. Empty disables it.")
	f.BoolVar(&cfg.Client.SendCam, "send-cam", false, "Ship the camera to the edge instead of generating rays locally.")

	cfg.Networking.RegisterFlagsAndApplyDefaults("networking.", f)
	cfg.Processing.RegisterFlagsAndApplyDefaults("", f)
	cfg.Edge.RegisterFlagsAndApplyDefaults("edge.", f)
	cfg.Cloud.RegisterFlagsAndApplyDefaults("cloud.", f)
	cfg.Client.RegisterFlagsAndApplyDefaults("client.", f)
}

// propagate copies the shared processing section into the per-mode configs.
// Client knobs set explicitly in the client section win; the rest inherit
// from the processing section.
func (cfg *Config) propagate() {
	cfg.Edge.Processing = cfg.Processing
	cfg.Cloud.Processing = cloud.ProcessingConfig{CPU: cfg.Processing.CPU, FPGA: cfg.Processing.FPGA}

	if cfg.Client.TaskSize <= 0 {
		cfg.Client.TaskSize = cfg.Processing.TaskSize
	}
	if cfg.Client.TaskChunkSize < 0 {
		cfg.Client.TaskChunkSize = cfg.Processing.Cloud.TaskChunkSize
	}
	cfg.Client.Multiqueue = cfg.Client.Multiqueue || cfg.Processing.Multiqueue
	cfg.Client.TaskSteal = cfg.Client.TaskSteal || cfg.Processing.TaskSteal
	cfg.Client.Streaming = cfg.Client.Streaming || cfg.Processing.Cloud.Streaming
}

func validMode(mode string) bool {
	switch mode {
	case ModeClient, ModeEdge, ModeCloud, ModeShutdownEdge, ModeShutdownAll:
		return true
	}
	return false
}

// CheckConfig warns about suspect configurations for the selected mode.
func (cfg *Config) CheckConfig() []string {
	var warnings []string

	if cfg.Mode == ModeEdge {
		warnings = append(warnings, cfg.Processing.CheckConfig()...)
	}
	if cfg.Mode == ModeClient && cfg.Client.Input == "" {
		warnings = append(warnings, "no scene file set, pass -client.input")
	}
	return warnings
}
