// Package fpga defines the contract the FPGA tracer drives accelerators
// through, and a software simulator that stands in when no hardware is
// present.
//
// The XIntersect core exposes an AXI-lite register file; the tracer never
// touches it directly, a driver implementing Accelerator does. The map is
// kept here as the hardware contract:
//
//	0x00 AP_CTRL            control/status (start=1, done=4)
//	0x10 I_TNUMBER          triangle count
//	0x18 I_TDATA            triangle buffer physical address
//	0x20 I_TIDS             triangle id buffer physical address
//	0x28 I_RNUMBER          ray count
//	0x30 I_RDATA            ray buffer physical address
//	0x38 O_TIDS             output id buffer physical address
//	0x40 O_TINTERSECTS      output distance buffer physical address
package fpga

// Accelerator is one intersection core. SetScene uploads the triangle
// buffers, Start kicks off a non-blocking computation over a ray buffer, and
// Results may be read once IsDone reports true. An accelerator is owned by
// exactly one worker; Close releases its DMA buffers.
type Accelerator interface {
	SetScene(triangleIDs []int32, triangles []float64) error
	Start(rays []float64) error
	IsDone() bool
	Results() ([]int32, []float64)
	Close() error
}
