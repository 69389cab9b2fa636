package tls

import (
	"context"
	"crypto/tls"
	"net"
)

// Conn is the TLS connection contract of the encrypted transport kind.
// Both *crypto/tls.Conn and the utls fingerprinting connection satisfy it,
// so the dialer can negotiate HTTP/2 or HTTP/1 (ALPN) from either.
// A connection returned by a custom DialContext that implements Conn is
// treated as already encrypted.
type Conn interface {
	net.Conn
	// ConnectionState returns basic TLS details about the connection,
	// including the negotiated application protocol.
	ConnectionState() tls.ConnectionState
	// Handshake runs the client handshake if it has not yet been run.
	Handshake() error
	// HandshakeContext runs the client handshake if it has not yet been
	// run, giving up once ctx is done.
	HandshakeContext(ctx context.Context) error
}
