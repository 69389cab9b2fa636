// Package body provides the byte-stream body used for both outbound request
// content and inbound response content.
//
// A body is a lazy, finite, non-restartable sequence of byte chunks. Every
// producer is consumed through Next until it returns io.EOF. Errors coming
// out of a Body are always *BodyError, whatever the producer returned.
package body

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Producer yields the chunks of a body. Next returns io.EOF once the
// sequence is exhausted. A returned chunk is only valid until the next call.
type Producer interface {
	Next(ctx context.Context) ([]byte, error)
}

// SizeHinter is implemented by producers that know their size in advance.
type SizeHinter interface {
	SizeHint() Size
}

// SizeKind classifies a Size.
type SizeKind uint8

const (
	// SizeNone means there is no body at all.
	SizeNone SizeKind = iota
	// SizeSized means the body is exactly Size.N bytes long.
	SizeSized
	// SizeStream means the length is not known in advance.
	SizeStream
)

// Size is the size hint of a body.
type Size struct {
	Kind SizeKind
	N    int64
}

// None returns the size of an absent body.
func None() Size { return Size{Kind: SizeNone} }

// Sized returns the size of a body of exactly n bytes.
func Sized(n int64) Size { return Size{Kind: SizeSized, N: n} }

// Stream returns the size of a body of unknown length.
func Stream() Size { return Size{Kind: SizeStream} }

// IsEmpty reports whether a body with this size is definitionally empty.
func (s Size) IsEmpty() bool {
	return s.Kind == SizeNone || (s.Kind == SizeSized && s.N == 0)
}

func (s Size) String() string {
	switch s.Kind {
	case SizeNone:
		return "none"
	case SizeSized:
		return fmt.Sprintf("sized(%d)", s.N)
	default:
		return "stream"
	}
}

// BodyError is the uniform error kind of a Body. The producer's original
// error is kept as the cause.
type BodyError struct {
	Err error
}

func (e *BodyError) Error() string {
	return "body: " + e.Err.Error()
}

func (e *BodyError) Unwrap() error { return e.Err }

// Body is the type-erased body. The zero value and a nil *Body are both the
// empty body.
type Body struct {
	p    Producer
	size Size
	done bool
}

// New wraps p. Errors returned by p are converted to *BodyError and p's size
// hint, if any, is forwarded unchanged. Producers without a hint are
// reported as SizeStream.
func New(p Producer) *Body {
	if p == nil {
		return Empty()
	}
	if b, ok := p.(*Body); ok {
		return b
	}
	size := Stream()
	if h, ok := p.(SizeHinter); ok {
		size = h.SizeHint()
	}
	return &Body{p: p, size: size}
}

// Empty returns the explicit empty body.
func Empty() *Body {
	return &Body{size: None(), done: true}
}

// Next returns the next chunk. It returns io.EOF when the body is exhausted;
// any other error is a *BodyError.
func (b *Body) Next(ctx context.Context) ([]byte, error) {
	if b == nil || b.done || b.p == nil {
		return nil, io.EOF
	}
	for {
		chunk, err := b.p.Next(ctx)
		if err != nil {
			b.done = true
			if err == io.EOF {
				return nil, io.EOF
			}
			var be *BodyError
			if errors.As(err, &be) {
				return nil, err
			}
			return nil, &BodyError{Err: err}
		}
		if len(chunk) > 0 {
			return chunk, nil
		}
	}
}

// SizeHint returns the size hint of the wrapped producer.
func (b *Body) SizeHint() Size {
	if b == nil || b.p == nil {
		return None()
	}
	return b.size
}

// IsEmpty reports whether the body is definitionally empty.
func (b *Body) IsEmpty() bool {
	return b.SizeHint().IsEmpty()
}

// Close releases the producer if it holds resources.
func (b *Body) Close() error {
	if b == nil || b.p == nil {
		return nil
	}
	b.done = true
	if c, ok := b.p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
