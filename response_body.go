package hconn

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/hwire/hconn/pkg/body"
)

var errClosedEarly = errors.New("response body closed before end")

// connSource is the raw body of one exchange. It settles the fate of the
// connection exactly once: done(nil) after a clean end of body, done(err)
// on failure or early close.
type connSource struct {
	src  body.Producer
	once sync.Once
	done func(err error)
}

func (s *connSource) Next(ctx context.Context) ([]byte, error) {
	chunk, err := s.src.Next(ctx)
	switch {
	case err == io.EOF:
		s.finish(nil)
	case err != nil:
		s.finish(err)
	}
	return chunk, err
}

func (s *connSource) SizeHint() body.Size {
	if h, ok := s.src.(body.SizeHinter); ok {
		return h.SizeHint()
	}
	return body.Stream()
}

func (s *connSource) Close() error {
	s.finish(errClosedEarly)
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *connSource) finish(err error) {
	s.once.Do(func() {
		if s.done != nil {
			s.done(err)
		}
	})
}

// ResponseBody is the body of a Response. It can be consumed as chunks with
// Next or as an io.Reader, but not both. It is not safe for concurrent use.
type ResponseBody struct {
	ctx    context.Context
	b      *body.Body
	rd     io.Reader
	closed bool
}

func newResponseBody(ctx context.Context, b *body.Body) *ResponseBody {
	return &ResponseBody{ctx: ctx, b: b}
}

// Next returns the next chunk of the body, or io.EOF at its end.
func (rb *ResponseBody) Next(ctx context.Context) ([]byte, error) {
	if rb.closed {
		return nil, ErrResponseBodyClosed
	}
	return rb.b.Next(ctx)
}

// Read reads the body using the context of the exchange.
func (rb *ResponseBody) Read(p []byte) (int, error) {
	if rb.closed {
		return 0, ErrResponseBodyClosed
	}
	if rb.rd == nil {
		rb.rd = body.NewReader(rb.ctx, rb.b)
	}
	return rb.rd.Read(p)
}

// SizeHint reports the body size known from the response head. Decoded
// bodies are always of unknown size.
func (rb *ResponseBody) SizeHint() body.Size {
	return rb.b.SizeHint()
}

// Close releases the body. A body closed before its end takes the
// connection down with it.
func (rb *ResponseBody) Close() error {
	if rb.closed {
		return nil
	}
	rb.closed = true
	return rb.b.Close()
}
