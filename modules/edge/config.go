package edge

import (
	"flag"
	"fmt"
	"math"

	"github.com/darkrenderer/darkrenderer/pkg/tracer"
)

// ProcessingConfig is the scheduling configuration shared by every mode:
// which tracers run and how tasks are cut and routed. The edge consumes all
// of it, the cloud node its CPU/FPGA half, the client turns the knobs into
// its CONFIG frame.
type ProcessingConfig struct {
	CPU   tracer.CPUConfig   `json:"cpu"`
	FPGA  tracer.FPGAConfig  `json:"fpga"`
	Cloud tracer.CloudConfig `json:"cloud"`

	Multiqueue bool `json:"multiqueue"`
	TaskSize   int  `json:"task_size"`
	TaskSteal  bool `json:"task_steal"`
}

// TracerConfig is the factory view of the processing config.
func (cfg *ProcessingConfig) TracerConfig() tracer.Config {
	return tracer.Config{CPU: cfg.CPU, FPGA: cfg.FPGA, Cloud: cfg.Cloud}
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *ProcessingConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.CPU = tracer.CPUConfig{Active: true, Mode: "multicore", Factor: 1}
	cfg.FPGA = tracer.FPGAConfig{Mode: "single"}
	cfg.Cloud = tracer.CloudConfig{TaskChunkSize: 16}

	f.IntVar(&cfg.TaskSize, prefix+"task-size", 1024, "Rays per task.")
	f.IntVar(&cfg.Cloud.TaskChunkSize, prefix+"task-chunk-size", cfg.Cloud.TaskChunkSize, "Tasks per cloud batch or streaming window. 0 drains everything pending into one batch.")
	f.BoolVar(&cfg.Multiqueue, prefix+"multiqueue", false, "One task queue per tracer instead of a single shared queue.")
	f.BoolVar(&cfg.TaskSteal, prefix+"task-stealing", false, "Let a tracer pull from other queues once its own is drained.")
	f.BoolVar(&cfg.Cloud.Streaming, prefix+"cloud-streaming", false, "Pipeline individual tasks to the cloud instead of batching.")
}

// CheckConfig warns about suspect scheduling configurations.
func (cfg *ProcessingConfig) CheckConfig() []string {
	var warnings []string

	if cfg.TaskSteal && !cfg.Multiqueue {
		warnings = append(warnings, "task stealing has no effect without multiqueue")
	}

	if cfg.Multiqueue {
		sum := 0.0
		tc := cfg.TracerConfig()
		for _, f := range tc.Factors() {
			sum += f
		}
		if math.Abs(sum-1.0) > 1e-9 {
			warnings = append(warnings, fmt.Sprintf("tracer processing factors sum to %.3f, not 1.0", sum))
		}
	}
	return warnings
}

// Config for the edge node. Processing comes from the shared processing
// section, not the edge's own.
type Config struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`

	Processing ProcessingConfig `json:"-"`
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.IP = "127.0.0.1"
	cfg.Port = 5000
}
