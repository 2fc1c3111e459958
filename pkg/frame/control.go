package frame

// Control frames exchanged between tiers. All are plain UTF-8 payloads in
// the standard framing.
const (
	// MsgExitEdge tells the edge to shut its listener.
	MsgExitEdge = "EXIT_EDGE"
	// MsgExitAll tells the edge to propagate MsgExit to its cloud peers and
	// then shut down.
	MsgExitAll = "EXIT_ALL"
	// MsgExit tells the cloud to shut down.
	MsgExit = "EXIT"
	// MsgEnd announces end of session from the cloud tracer to its peer.
	MsgEnd = "END"
	// MsgConfig prefixes the edge session option frame.
	MsgConfig = "CONFIG"
)
