package http1

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/hwire/hconn/internal/dump"
	"github.com/hwire/hconn/internal/header"
	"github.com/hwire/hconn/internal/netutil"
	"github.com/hwire/hconn/internal/transport"
	"github.com/hwire/hconn/pkg/body"
)

// Options tunes a single exchange. The zero value uses the defaults.
type Options struct {
	MaxHeadBytes int
	MaxHeaders   int
	ChunkSize    int
	Dumper       *dump.Dumper
	// OnInformational is called with every interim 1xx response that is
	// skipped while waiting for the final one.
	OnInformational func(*ResponseHead)
}

func (o Options) withDefaults() Options {
	if o.MaxHeadBytes <= 0 {
		o.MaxHeadBytes = DefaultMaxHeadBytes
	}
	if o.MaxHeaders <= 0 {
		o.MaxHeaders = DefaultMaxHeaders
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// Result is the outcome of Send: the final response head and everything
// needed to read its body from the same stream.
type Result struct {
	Head *ResponseHead
	// Buf holds response bytes already read past the head.
	Buf *bytes.Buffer
	// Chunk is the scratch buffer for further reads.
	Chunk []byte
	// Coding frames the response body.
	Coding TransferCoding
	// Close is set when the connection must not be reused.
	Close bool
	// BodyErr is the failure that cut the request body short, if any. The
	// response was still read; the connection is marked Close.
	BodyErr error
}

// Send performs one HTTP/1.1 exchange on s: it writes the head of req and
// its body, honouring Expect: 100-continue, and reads up to the end of the
// final response head.
//
// The body of the response is left on the stream; read it with NewBodyReader.
// Send fills in a Host header derived from req.URL when none is set, and
// drops an Expect header when req has no body.
//
// Once ctx is done, failures are reported with KindCanceled. Send does not
// interrupt blocked I/O itself; the caller arms that on the connection.
func Send(ctx context.Context, s transport.Stream, req *Request, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	setHost(req)

	expect := req.Header.Get(header.Expect) != ""
	if expect && req.Body.IsEmpty() {
		req.Header.Del(header.Expect)
		expect = false
	}

	c := newCodec(opts)
	// Outbound bytes are staged in out; in collects what is read. Keeping
	// them apart means a response that arrives while the body is still
	// being written is never mistaken for output.
	out, in := new(bytes.Buffer), new(bytes.Buffer)
	encoder, err := c.EncodeHead(out, req)
	if err != nil {
		return nil, wrapErr(ctx, PhaseEncode, err)
	}
	if req.Method == http.MethodHead {
		c.SetHeadMethod()
	}
	if err := writeAll(s, out); err != nil {
		return nil, wrapErr(ctx, PhaseWriteHead, err)
	}

	chunk := make([]byte, opts.ChunkSize)
	if expect {
		if err := s.Flush(); err != nil {
			return nil, wrapErr(ctx, PhaseExpect, err)
		}
		head, decoder, err := readHead(ctx, s, in, chunk, c, PhaseExpect, opts.OnInformational, true)
		if err != nil {
			return nil, err
		}
		if head.StatusCode != http.StatusContinue {
			// Final answer before the body was sent. The peer still
			// expects the announced body, so the stream cannot be reused.
			if !encoder.IsEOF() {
				c.SetClose()
			}
			return finish(c, head, decoder, in, chunk, nil), nil
		}
	}

	var bodyErr error
	if err := sendBody(ctx, s, &encoder, req.Body, out, opts.Dumper); err != nil {
		c.SetClose()
		out.Reset()
		bodyErr = wrapErr(ctx, PhaseWriteBody, err)
	}

	head, decoder, err := readHead(ctx, s, in, chunk, c, PhaseReadHead, opts.OnInformational, false)
	if err != nil {
		return nil, err
	}
	return finish(c, head, decoder, in, chunk, bodyErr), nil
}

func finish(c *codec, head *ResponseHead, decoder TransferCoding, buf *bytes.Buffer, chunk []byte, bodyErr error) *Result {
	if c.IsHeadMethod() {
		decoder = Eof()
	}
	return &Result{
		Head:    head,
		Buf:     buf,
		Chunk:   chunk,
		Coding:  decoder,
		Close:   c.IsConnectionClosed(),
		BodyErr: bodyErr,
	}
}

// setHost derives the Host header from req.URL unless one is present. The
// port is left out when it is the default port of the URL's scheme.
func setHost(req *Request) {
	if _, ok := req.Header[header.Host]; ok || req.URL == nil {
		return
	}
	host := req.URL.Hostname()
	if host == "" {
		return
	}
	port := req.URL.Port()
	if port != "" && port != netutil.DefaultPort(req.URL.Scheme) {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	req.Header.Set(header.Host, host)
}

// writeAll writes the contents of buf to s, advancing buf by what each
// write accepted.
func writeAll(s transport.Stream, buf *bytes.Buffer) error {
	for buf.Len() > 0 {
		n, err := s.WriteFrom(buf.Bytes())
		buf.Next(n)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrWriteZero
		}
	}
	return nil
}

func sendBody(ctx context.Context, s transport.Stream, encoder *TransferCoding, b *body.Body, buf *bytes.Buffer, d *dump.Dumper) error {
	if !encoder.IsEOF() {
		for {
			chunk, err := b.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			d.DumpRequestBody(chunk)
			if err := encoder.Encode(chunk, buf); err != nil {
				return err
			}
			if err := writeAll(s, buf); err != nil {
				return err
			}
		}
		if err := encoder.EncodeEOF(buf); err != nil {
			return err
		}
		if err := writeAll(s, buf); err != nil {
			return err
		}
	}
	return s.Flush()
}

// readHead reads from s until buf holds a complete response head. Bytes
// already in buf are decoded before anything is read. Interim responses are
// passed to onInterim and skipped, except 100 Continue while stopAtContinue
// is set.
func readHead(ctx context.Context, s transport.Stream, buf *bytes.Buffer, chunk []byte, c *codec,
	phase Phase, onInterim func(*ResponseHead), stopAtContinue bool) (*ResponseHead, TransferCoding, error) {
	for {
		if buf.Len() > 0 {
			head, coding, ok, err := c.DecodeHead(buf)
			if err != nil {
				return nil, Eof(), wrapErr(ctx, PhaseDecode, err)
			}
			if ok {
				interim := head.IsInformational() && head.StatusCode != http.StatusSwitchingProtocols
				if !interim || (stopAtContinue && head.StatusCode == http.StatusContinue) {
					return head, coding, nil
				}
				if onInterim != nil {
					onInterim(head)
				}
				continue
			}
		}
		n, err := s.ReadInto(chunk)
		if err != nil {
			return nil, Eof(), wrapErr(ctx, phase, err)
		}
		if n == 0 {
			return nil, Eof(), wrapErr(ctx, phase, ErrUnexpectedEOF)
		}
		buf.Write(chunk[:n])
	}
}
