package app

import (
	"flag"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := defaultConfig()

	require.Equal(t, ModeClient, cfg.Mode)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 5000, cfg.Edge.Port)
	require.Equal(t, 5001, cfg.Cloud.Port)
	require.True(t, cfg.Networking.Compression)
	require.True(t, cfg.Processing.CPU.Active)
	require.Equal(t, 1024, cfg.Processing.TaskSize)
	require.Equal(t, 16, cfg.Processing.Cloud.TaskChunkSize)
}

func TestConfigFileOverlay(t *testing.T) {
	cfg := defaultConfig()

	raw := `{
		"mode": "edge",
		"log_level": "debug",
		"networking": {"compression": false},
		"edge": {"port": 6000},
		"processing": {
			"multiqueue": true,
			"cloud": {"active": true, "ip": "10.0.0.2", "port": 6001, "factor": 0.5}
		}
	}`
	require.NoError(t, jsoniter.Unmarshal([]byte(raw), cfg))

	require.Equal(t, ModeEdge, cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.False(t, cfg.Networking.Compression)
	require.Equal(t, 6000, cfg.Edge.Port)
	require.True(t, cfg.Processing.Multiqueue)
	require.True(t, cfg.Processing.Cloud.Active)
	require.Equal(t, "10.0.0.2", cfg.Processing.Cloud.IP)

	// untouched fields keep their defaults
	require.True(t, cfg.Processing.CPU.Active)
	require.Equal(t, 5001, cfg.Cloud.Port)
}

func TestProcessingPropagates(t *testing.T) {
	cfg := defaultConfig()
	cfg.Processing.Multiqueue = true
	cfg.Processing.TaskSize = 64
	cfg.Processing.Cloud.Streaming = true
	cfg.propagate()

	require.Equal(t, cfg.Processing, cfg.Edge.Processing)
	require.Equal(t, cfg.Processing.CPU, cfg.Cloud.Processing.CPU)
	require.Equal(t, cfg.Processing.FPGA, cfg.Cloud.Processing.FPGA)
	require.Equal(t, 64, cfg.Client.TaskSize)
	require.True(t, cfg.Client.Multiqueue)
	require.True(t, cfg.Client.Streaming)
	require.Equal(t, 16, cfg.Client.TaskChunkSize)
}

func TestClientOverridesSurvivePropagation(t *testing.T) {
	cfg := defaultConfig()
	cfg.Processing.TaskSize = 64
	cfg.Client.TaskSize = 7
	// chunk size 0 is a real setting, one unbounded batch
	cfg.Client.TaskChunkSize = 0
	cfg.Client.Streaming = true
	cfg.propagate()

	require.Equal(t, 7, cfg.Client.TaskSize)
	require.Equal(t, 0, cfg.Client.TaskChunkSize)
	require.True(t, cfg.Client.Streaming)
}

func TestCheckConfigWarnings(t *testing.T) {
	cfg := defaultConfig()
	cfg.Mode = ModeEdge
	cfg.Processing.TaskSteal = true
	cfg.Processing.Multiqueue = false
	require.NotEmpty(t, cfg.CheckConfig())

	cfg = defaultConfig()
	cfg.Mode = ModeClient
	cfg.Client.Input = ""
	require.NotEmpty(t, cfg.CheckConfig())

	cfg.Client.Input = "scene.txt"
	require.Empty(t, cfg.CheckConfig())
}

func TestNewRejectsUnknownMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Mode = "federated"
	_, err := New(*cfg)
	require.Error(t, err)
}
