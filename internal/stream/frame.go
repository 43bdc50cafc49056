package stream

// CallHeader is the first value a client writes on a new connection.
// Request carries the unary request of server-streaming methods.
type CallHeader struct {
	Method  string     `cbor:"method"`
	CallID  string     `cbor:"call_id,omitempty"`
	Request RawMessage `cbor:"request,omitempty"`
}

// FrameKind identifies what a Frame carries
type FrameKind string

const (
	// KindMsg carries one message in Payload (both directions)
	KindMsg FrameKind = "msg"
	// KindEnd closes the client's sending side; the server finishes and replies with a status
	KindEnd FrameKind = "end"
	// KindCancel aborts the call from the client side
	KindCancel FrameKind = "cancel"
	// KindStatus is the server's last frame on a call
	KindStatus FrameKind = "status"
)

// Frame is every value after the CallHeader, in both directions
type Frame struct {
	Kind    FrameKind  `cbor:"kind"`
	Payload RawMessage `cbor:"payload,omitempty"`
	Code    Code       `cbor:"code,omitempty"`
	Message string     `cbor:"message,omitempty"`
}
