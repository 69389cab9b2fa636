package http1

import (
	"bytes"
	"context"
	"io"

	"github.com/hwire/hconn/internal/dump"
	"github.com/hwire/hconn/internal/transport"
	"github.com/hwire/hconn/pkg/body"
)

// BodyReader reads the body of a response returned by Send from the same
// stream. It implements body.Producer.
type BodyReader struct {
	s      transport.Stream
	buf    *bytes.Buffer
	chunk  []byte
	coding TransferCoding
	size   body.Size
	dumper *dump.Dumper

	err  error
	done bool
}

// NewBodyReader returns a reader for the body framed by res.
func NewBodyReader(s transport.Stream, res *Result, d *dump.Dumper) *BodyReader {
	r := &BodyReader{
		s:      s,
		buf:    res.Buf,
		chunk:  res.Chunk,
		coding: res.Coding,
		dumper: d,
	}
	switch n := r.coding.Remaining(); {
	case r.coding.IsEOF():
		r.size = body.None()
	case n >= 0:
		r.size = body.Sized(n)
	default:
		r.size = body.Stream()
	}
	if r.chunk == nil {
		r.chunk = make([]byte, DefaultChunkSize)
	}
	return r
}

// Next returns the next piece of body data, or io.EOF once the body is
// complete. The returned slice is valid until the next call.
func (r *BodyReader) Next(ctx context.Context) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	for {
		if r.coding.IsEOF() {
			r.done = true
			return nil, io.EOF
		}
		data, ok, err := r.coding.Decode(r.buf)
		if err != nil {
			return nil, r.fail(ctx, err)
		}
		if ok {
			r.dumper.DumpResponseBody(data)
			return data, nil
		}
		if r.coding.IsEOF() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, r.fail(ctx, err)
		}
		n, err := r.s.ReadInto(r.chunk)
		if err != nil {
			return nil, r.fail(ctx, err)
		}
		if n == 0 {
			if r.coding.IsUntilClose() {
				r.coding = Eof()
				continue
			}
			return nil, r.fail(ctx, ErrUnexpectedEOF)
		}
		r.buf.Write(r.chunk[:n])
	}
}

func (r *BodyReader) fail(ctx context.Context, err error) error {
	r.err = wrapErr(ctx, PhaseReadBody, err)
	return r.err
}

// SizeHint reports the body size known from the response head.
func (r *BodyReader) SizeHint() body.Size { return r.size }

// Done reports whether the body was read to its end without error.
func (r *BodyReader) Done() bool { return r.done }

// Reusable reports whether the stream is positioned at a message boundary:
// the body was fully read and nothing unexpected follows it.
func (r *BodyReader) Reusable() bool {
	return r.done && r.buf.Len() == 0
}
