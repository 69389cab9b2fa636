// Package compress decodes Content-Encoding of response bodies.
package compress

import (
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// AcceptEncoding lists every coding NewCompressReader understands, in the
// form sent in an Accept-Encoding header.
const AcceptEncoding = "gzip, deflate, br, zstd"

// maxTrailing bounds how much is read from the body after the compressed
// stream has ended.
const maxTrailing = 4 << 10

// opener starts decoding src. The returned reader is closed, if it is an
// io.Closer, when the Reader is.
type opener func(src io.Reader) (io.Reader, error)

var openers = map[string]opener{
	"gzip":    openGzip,
	"x-gzip":  openGzip,
	"deflate": openDeflate,
	"br":      openBrotli,
	"zstd":    openZstd,
}

// Reader decodes a body compressed with a single content coding. The
// decompressor is set up on the first Read, so a body closed unread never
// pays for it. Errors are sticky; after Close every Read fails with
// fs.ErrClosed.
type Reader struct {
	coding string
	src    io.ReadCloser
	open   opener
	dec    io.Reader
	err    error
}

// NewCompressReader returns a reader decoding body according to
// contentEncoding, or nil when the coding is not supported. Stacked
// codings ("gzip, br") are not decoded.
func NewCompressReader(body io.ReadCloser, contentEncoding string) *Reader {
	coding := strings.ToLower(strings.TrimSpace(contentEncoding))
	open, ok := openers[coding]
	if !ok {
		return nil
	}
	return &Reader{coding: coding, src: body, open: open}
}

// Coding returns the normalized content coding r decodes.
func (r *Reader) Coding() string {
	return r.coding
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.dec == nil {
		dec, err := r.open(r.src)
		if err != nil {
			r.err = fmt.Errorf("compress: reading %s header: %w", r.coding, err)
			return 0, r.err
		}
		r.dec = dec
	}
	n, err := r.dec.Read(p)
	switch {
	case err == io.EOF:
		// Decoders stop at the end of the compressed stream, which may come
		// before src reports its own end. Consume what is left (a trailer
		// the decoder did not ask for, or just EOF) so the body is finished.
		io.CopyN(io.Discard, r.src, maxTrailing)
		r.err = io.EOF
	case err != nil:
		r.err = err
	}
	return n, err
}

// Close releases the decompressor and closes the underlying body.
func (r *Reader) Close() error {
	if c, ok := r.dec.(io.Closer); ok {
		c.Close()
	}
	r.err = fs.ErrClosed
	return r.src.Close()
}
