package kiss

import "context"

// Transport is the byte-stream collaborator L1 frames over: a TCP
// connection to a TNC (TCPTransport) or a serial KISS TNC (SerialTransport).
// L2/L3/L4 never depend on either concrete type.
type Transport interface {
	// Send writes a complete KISS frame. It must not block longer than the
	// underlying write buffer and returns ErrTransportDown if the peer has
	// gone away.
	Send(frame []byte) error

	// Inbound returns a channel of raw bytes read from the transport. The
	// channel is closed when the transport is closed or the peer goes away.
	Inbound() <-chan []byte

	// Close releases the transport's resources.
	Close() error
}

// Dial opens a Transport to addr (host:port) over TCP, typically the local
// TNC's default KISS port, 127.0.0.1:8001.
func Dial(ctx context.Context, addr string) (Transport, error) {
	return DialTCP(ctx, addr)
}
