package frame

import "flag"

// Config is the per-deployment networking configuration. Compression is
// per-session and both peers must agree on it.
type Config struct {
	Compression    bool `json:"compression"`
	RecvBufferSize int  `json:"recv_buffer_size"`
}

// RegisterFlagsAndApplyDefaults registers the flags.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.BoolVar(&cfg.Compression, prefix+"compression", true, "Deflate-compress every frame. Both peers must agree.")
	f.IntVar(&cfg.RecvBufferSize, prefix+"recv-buffer-size", DefaultChunkSize, "Max bytes gathered per read while receiving a frame body.")
}
