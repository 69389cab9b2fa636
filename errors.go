package hconn

import (
	"errors"
	"fmt"

	"github.com/hwire/hconn/internal/http1"
	"github.com/hwire/hconn/internal/transport"
	"github.com/hwire/hconn/pkg/body"
)

var (
	// ErrClientClosed is returned by Do once Close was called.
	ErrClientClosed = errors.New("hconn: client closed")
	// ErrNilRequest is returned by Do for a nil request or URL.
	ErrNilRequest = errors.New("hconn: nil request")
	// ErrResponseBodyClosed is returned when reading a closed response body.
	ErrResponseBodyClosed = errors.New("hconn: read on closed response body")
	// ErrUnsupported is returned when an operation does not fit the
	// connection kind, such as a byte-stream operation on HTTP/2.
	ErrUnsupported = transport.ErrUnsupported
	// ErrUnexpectedEOF is returned when the peer closes the connection
	// before a complete message was read.
	ErrUnexpectedEOF = http1.ErrUnexpectedEOF
)

// Phase is the step of an HTTP/1 exchange at which an error happened.
type Phase = http1.Phase

// Error is the error of a failed HTTP/1 exchange.
type Error = http1.Error

// BodyError wraps failures produced by a body.
type BodyError = body.BodyError

const (
	PhaseEncode    = http1.PhaseEncode
	PhaseWriteHead = http1.PhaseWriteHead
	PhaseExpect    = http1.PhaseExpect
	PhaseWriteBody = http1.PhaseWriteBody
	PhaseReadHead  = http1.PhaseReadHead
	PhaseDecode    = http1.PhaseDecode
	PhaseReadBody  = http1.PhaseReadBody
)

// DialError reports a failure to establish a connection.
type DialError struct {
	Network string
	Addr    string
	Err     error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("hconn: dial %s %s: %v", e.Network, e.Addr, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

func kindOf(err error) (http1.Kind, bool) {
	var e *http1.Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsProtocolError reports whether err is a malformed message or framing.
func IsProtocolError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == http1.KindProtocol
}

// IsIOError reports whether err is a transport failure during an exchange.
func IsIOError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == http1.KindIO
}

// IsEOFError reports whether the peer closed the connection mid-message.
func IsEOFError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == http1.KindEOF
}

// IsCanceled reports whether an exchange ended because its context did.
func IsCanceled(err error) bool {
	k, ok := kindOf(err)
	return ok && k == http1.KindCanceled
}

// PhaseOf returns the phase at which err happened, if it came from an
// HTTP/1 exchange.
func PhaseOf(err error) (Phase, bool) {
	var e *http1.Error
	if errors.As(err, &e) {
		return e.Phase, true
	}
	return 0, false
}
