package cloud

import (
	"flag"

	"github.com/darkrenderer/darkrenderer/pkg/tracer"
)

// ProcessingConfig selects the cloud node's local tracers, taken from the
// CPU/FPGA half of the shared processing section. The CPU tracer is always
// on; FPGA is optional.
type ProcessingConfig struct {
	CPU  tracer.CPUConfig  `json:"cpu"`
	FPGA tracer.FPGAConfig `json:"fpga"`
}

// Config for the cloud node.
type Config struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`

	Processing ProcessingConfig `json:"-"`

	// QueueDepth bounds the internal task queue; a full queue blocks the
	// receive loop, which is the backpressure toward the edge.
	QueueDepth int `json:"queue_depth"`
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.IP = "127.0.0.1"
	cfg.Port = 5001
	cfg.QueueDepth = 256
}
