package tracer

import (
	"fmt"
	"net"
	"strconv"

	"github.com/darkrenderer/darkrenderer/pkg/fpga"
)

// CPUConfig configures the in-process tracer.
type CPUConfig struct {
	Active bool    `json:"active"`
	Mode   string  `json:"mode"` // "single" or "multicore"
	Factor float64 `json:"factor"`
}

// FPGAConfig configures the accelerator-backed tracer. Without hardware the
// factory wires software simulators behind the same driver contract.
type FPGAConfig struct {
	Active    bool    `json:"active"`
	Mode      string  `json:"mode"` // "single" or "multi"
	Factor    float64 `json:"factor"`
	Bitstream string  `json:"bitstream,omitempty"`
}

// CloudConfig configures the offloading tracer.
type CloudConfig struct {
	Active        bool    `json:"active"`
	IP            string  `json:"ip"`
	Port          int     `json:"port"`
	Factor        float64 `json:"factor"`
	TaskChunkSize int     `json:"task_chunk_size"`
	Streaming     bool    `json:"streaming"`
}

// Config selects which tracers a session runs.
type Config struct {
	CPU   CPUConfig   `json:"cpu"`
	FPGA  FPGAConfig  `json:"fpga"`
	Cloud CloudConfig `json:"cloud"`
}

// Factors of the active tracers, for the multiqueue share check.
func (cfg *Config) Factors() []float64 {
	var factors []float64
	if cfg.Cloud.Active {
		factors = append(factors, cfg.Cloud.Factor)
	}
	if cfg.CPU.Active {
		factors = append(factors, cfg.CPU.Factor)
	}
	if cfg.FPGA.Active {
		factors = append(factors, cfg.FPGA.Factor)
	}
	return factors
}

// New builds the session's tracers from config. Order matches queue
// assignment: cloud, then CPU, then FPGA.
func New(cfg Config, compress bool, recvChunk int) ([]Tracer, error) {
	var tracers []Tracer

	if cfg.Cloud.Active {
		addr := net.JoinHostPort(cfg.Cloud.IP, strconv.Itoa(cfg.Cloud.Port))
		tracers = append(tracers, NewCloud(addr, cfg.Cloud.TaskChunkSize, compress, recvChunk))
	}
	if cfg.CPU.Active {
		tracers = append(tracers, NewCPU(cfg.CPU.Mode == "multicore"))
	}
	if cfg.FPGA.Active {
		numAccels := 1
		if cfg.FPGA.Mode == "multi" {
			numAccels = 2
		}
		accels := make([]fpga.Accelerator, numAccels)
		for i := range accels {
			accels[i] = fpga.NewSimulator(0)
		}
		tracers = append(tracers, NewFPGA(accels))
	}

	if len(tracers) == 0 {
		return nil, fmt.Errorf("no tracer configured")
	}
	return tracers, nil
}
