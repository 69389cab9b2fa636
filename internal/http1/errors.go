package http1

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMalformedRequest reports a request head that cannot be encoded.
	ErrMalformedRequest = errors.New("http1: malformed request")
	// ErrMalformedHead reports a response head that does not parse.
	ErrMalformedHead = errors.New("http1: malformed response head")
	// ErrHeadTooLarge reports a response head over the configured limits.
	ErrHeadTooLarge = errors.New("http1: response head too large")
	// ErrMalformedChunk reports invalid chunked framing.
	ErrMalformedChunk = errors.New("http1: malformed chunked encoding")
	// ErrBodyLength reports a request body whose size disagrees with the
	// length announced in its head.
	ErrBodyLength = errors.New("http1: request body length mismatch")
	// ErrUnexpectedEOF is returned when the peer closes the stream before
	// a complete message was read.
	ErrUnexpectedEOF = fmt.Errorf("http1: connection closed before message completed: %w", io.ErrUnexpectedEOF)
	// ErrWriteZero is returned when the stream accepts zero bytes of a
	// non-empty write.
	ErrWriteZero = fmt.Errorf("http1: write accepted zero bytes: %w", io.ErrShortWrite)
)

// Phase is the step of an exchange at which an Error happened.
type Phase uint8

const (
	PhaseEncode Phase = iota
	PhaseWriteHead
	PhaseExpect
	PhaseWriteBody
	PhaseReadHead
	PhaseDecode
	PhaseReadBody
)

func (p Phase) String() string {
	switch p {
	case PhaseEncode:
		return "encode request"
	case PhaseWriteHead:
		return "write request head"
	case PhaseExpect:
		return "await 100-continue"
	case PhaseWriteBody:
		return "write request body"
	case PhaseReadHead:
		return "read response head"
	case PhaseDecode:
		return "decode response"
	case PhaseReadBody:
		return "read response body"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// Kind classifies an Error.
type Kind uint8

const (
	// KindProtocol is a malformed message or framing.
	KindProtocol Kind = iota
	// KindIO is a transport failure.
	KindIO
	// KindEOF is the peer closing the stream mid-message.
	KindEOF
	// KindCanceled is the exchange's context ending.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindIO:
		return "io"
	case KindEOF:
		return "eof"
	case KindCanceled:
		return "canceled"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is returned by Send and by the response body reader.
type Error struct {
	Phase Phase
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("http1: %s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapErr classifies err and tags it with phase. Once ctx is done every
// failure is reported as a cancellation, since the context is what
// interrupted the stream.
func wrapErr(ctx context.Context, phase Phase, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		return &Error{Phase: phase, Kind: KindCanceled, Err: cerr}
	}
	kind := KindIO
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCanceled
	case errors.Is(err, io.ErrUnexpectedEOF):
		kind = KindEOF
	case errors.Is(err, ErrMalformedRequest), errors.Is(err, ErrMalformedHead),
		errors.Is(err, ErrHeadTooLarge), errors.Is(err, ErrMalformedChunk),
		errors.Is(err, ErrBodyLength):
		kind = KindProtocol
	}
	return &Error{Phase: phase, Kind: kind, Err: err}
}
