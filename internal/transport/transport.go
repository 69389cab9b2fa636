package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	reqtls "github.com/hwire/hconn/pkg/tls"
)

// Kind is the kind of a Conn.
type Kind uint8

const (
	// KindPlain is a TCP stream.
	KindPlain Kind = iota
	// KindEncrypted is a TLS stream over TCP.
	KindEncrypted
	// KindLocalSocket is a unix domain socket stream.
	KindLocalSocket
	// KindMultiplexed is an HTTP/2 connection handle. It does not support
	// byte-stream operations.
	KindMultiplexed
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "tcp"
	case KindEncrypted:
		return "tls"
	case KindLocalSocket:
		return "unix"
	case KindMultiplexed:
		return "h2"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ErrUnsupported is returned by byte-stream operations on a multiplexed
// handle, and by RoundTrip on byte-stream kinds.
var ErrUnsupported = fmt.Errorf("transport: operation not supported by connection kind: %w", errors.ErrUnsupported)

// Stream is the byte-stream capability used by the HTTP/1 dispatcher.
//
// ReadInto returns 0, nil once the peer has closed its side of the stream.
// Calls block the calling goroutine only; the runtime parks it on the
// network poller until the socket is ready.
type Stream interface {
	ReadInto(p []byte) (int, error)
	WriteFrom(p []byte) (int, error)
	WriteVectored(bufs [][]byte) (int64, error)
	Flush() error
	Shutdown() error
}

// aLongTimeAgo is a non-zero time, far in the past, used for immediate
// cancellation of network operations.
var aLongTimeAgo = time.Unix(1, 0)

// Conn is a pooled connection. Exactly one kind is active per Conn.
type Conn struct {
	kind Kind
	nc   net.Conn
	tls  *tls.ConnectionState
	cc   *http2.ClientConn

	createdAt time.Time
}

var _ Stream = (*Conn)(nil)

// NewPlain wraps a TCP connection.
func NewPlain(nc net.Conn) *Conn {
	return &Conn{kind: KindPlain, nc: nc, createdAt: time.Now()}
}

// NewEncrypted wraps a TLS connection whose handshake has completed.
func NewEncrypted(tc reqtls.Conn) *Conn {
	cs := tc.ConnectionState()
	return &Conn{kind: KindEncrypted, nc: tc, tls: &cs, createdAt: time.Now()}
}

// NewLocalSocket wraps a unix domain socket connection.
func NewLocalSocket(nc net.Conn) *Conn {
	return &Conn{kind: KindLocalSocket, nc: nc, createdAt: time.Now()}
}

// NewMultiplexed wraps an HTTP/2 client connection running over nc.
func NewMultiplexed(cc *http2.ClientConn, nc net.Conn) *Conn {
	c := &Conn{kind: KindMultiplexed, nc: nc, cc: cc, createdAt: time.Now()}
	if tc, ok := nc.(reqtls.Conn); ok {
		cs := tc.ConnectionState()
		c.tls = &cs
	}
	return c
}

// Kind returns the kind of c.
func (c *Conn) Kind() Kind { return c.kind }

// IsMultiplexed reports whether c is an HTTP/2 handle.
func (c *Conn) IsMultiplexed() bool { return c.kind == KindMultiplexed }

// TLSState returns the TLS connection state, or nil for unencrypted kinds.
func (c *Conn) TLSState() *tls.ConnectionState { return c.tls }

// CreatedAt returns when c was established.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// RemoteAddr returns the peer address, if known.
func (c *Conn) RemoteAddr() net.Addr {
	if c.nc == nil {
		return nil
	}
	return c.nc.RemoteAddr()
}

func (c *Conn) ReadInto(p []byte) (int, error) {
	if c.kind == KindMultiplexed {
		return 0, ErrUnsupported
	}
	n, err := c.nc.Read(p)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (c *Conn) WriteFrom(p []byte) (int, error) {
	if c.kind == KindMultiplexed {
		return 0, ErrUnsupported
	}
	return c.nc.Write(p)
}

// WriteVectored writes bufs with a single writev where the kind supports it
// and falls back to one write per buffer otherwise.
func (c *Conn) WriteVectored(bufs [][]byte) (int64, error) {
	switch c.kind {
	case KindMultiplexed:
		return 0, ErrUnsupported
	case KindPlain, KindLocalSocket:
		nb := make(net.Buffers, len(bufs))
		copy(nb, bufs)
		return nb.WriteTo(c.nc)
	}
	var total int64
	for _, b := range bufs {
		for len(b) > 0 {
			n, err := c.nc.Write(b)
			total += int64(n)
			if err != nil {
				return total, err
			}
			if n == 0 {
				return total, io.ErrShortWrite
			}
			b = b[n:]
		}
	}
	return total, nil
}

// Flush is a no-op for the socket kinds, which are unbuffered.
func (c *Conn) Flush() error {
	if c.kind == KindMultiplexed {
		return ErrUnsupported
	}
	return nil
}

// Shutdown closes the write side of the stream. Kinds without half-close
// are closed entirely.
func (c *Conn) Shutdown() error {
	if c.kind == KindMultiplexed {
		return ErrUnsupported
	}
	if cw, ok := c.nc.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.nc.Close()
}

// Close closes c.
func (c *Conn) Close() error {
	if c.kind == KindMultiplexed {
		var err error
		if c.cc != nil {
			err = c.cc.Close()
		}
		if c.nc != nil {
			if cerr := c.nc.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}
		return err
	}
	return c.nc.Close()
}

// Watch interrupts any blocked read or write on c once ctx is done. The
// returned stop function disarms it and reports whether it was still armed.
func (c *Conn) Watch(ctx context.Context) (stop func() bool) {
	if ctx.Done() == nil || c.nc == nil {
		return func() bool { return true }
	}
	return context.AfterFunc(ctx, func() {
		c.nc.SetDeadline(aLongTimeAgo)
	})
}

// RoundTrip sends req over a multiplexed handle.
func (c *Conn) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.kind != KindMultiplexed || c.cc == nil {
		return nil, ErrUnsupported
	}
	return c.cc.RoundTrip(req)
}

// CanTakeRequest reports whether c can serve another exchange. Byte-stream
// kinds always can; an HTTP/2 handle can until it is draining or full.
func (c *Conn) CanTakeRequest() bool {
	if c.kind == KindMultiplexed {
		return c.cc != nil && c.cc.CanTakeNewRequest()
	}
	return true
}
