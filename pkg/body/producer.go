package body

import (
	"context"
	"io"
)

const defaultReadChunk = 16 << 10

// Bytes returns a body producing b as a single chunk.
func Bytes(b []byte) *Body {
	return New(&onceProducer{b: b})
}

// String returns a body producing s as a single chunk.
func String(s string) *Body {
	return Bytes([]byte(s))
}

type onceProducer struct {
	b    []byte
	sent bool
}

func (p *onceProducer) Next(context.Context) ([]byte, error) {
	if p.sent {
		return nil, io.EOF
	}
	p.sent = true
	return p.b, nil
}

func (p *onceProducer) SizeHint() Size { return Sized(int64(len(p.b))) }

// Chunks returns a body producing every chunk in order. The size hint is the
// sum of the chunk lengths.
func Chunks(chunks ...[]byte) *Body {
	var n int64
	for _, c := range chunks {
		n += int64(len(c))
	}
	return New(&chunksProducer{chunks: chunks, size: Sized(n)})
}

type chunksProducer struct {
	chunks [][]byte
	size   Size
}

func (p *chunksProducer) Next(context.Context) ([]byte, error) {
	if len(p.chunks) == 0 {
		return nil, io.EOF
	}
	c := p.chunks[0]
	p.chunks = p.chunks[1:]
	return c, nil
}

func (p *chunksProducer) SizeHint() Size { return p.size }

// Reader returns a body reading from r. A negative size means the length is
// unknown and the body will be sent with chunked framing.
func Reader(r io.Reader, size int64) *Body {
	s := Stream()
	if size >= 0 {
		s = Sized(size)
	}
	return New(&readerProducer{r: r, size: s})
}

type readerProducer struct {
	r    io.Reader
	buf  []byte
	size Size
}

func (p *readerProducer) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.buf == nil {
		p.buf = make([]byte, defaultReadChunk)
	}
	n, err := p.r.Read(p.buf)
	if n > 0 {
		return p.buf[:n], nil
	}
	if err == nil {
		return nil, nil
	}
	return nil, err
}

func (p *readerProducer) SizeHint() Size { return p.size }

func (p *readerProducer) Close() error {
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Func adapts a function into a body with the given size hint.
func Func(fn func(ctx context.Context) ([]byte, error), size Size) *Body {
	return New(&funcProducer{fn: fn, size: size})
}

type funcProducer struct {
	fn   func(ctx context.Context) ([]byte, error)
	size Size
}

func (p *funcProducer) Next(ctx context.Context) ([]byte, error) { return p.fn(ctx) }

func (p *funcProducer) SizeHint() Size { return p.size }

// NewReader returns an io.ReadCloser draining b.
func NewReader(ctx context.Context, b *Body) io.ReadCloser {
	return &bodyReader{ctx: ctx, b: b}
}

type bodyReader struct {
	ctx  context.Context
	b    *Body
	rest []byte
}

func (r *bodyReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		chunk, err := r.b.Next(r.ctx)
		if err != nil {
			return 0, err
		}
		r.rest = chunk
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

func (r *bodyReader) Close() error { return r.b.Close() }
