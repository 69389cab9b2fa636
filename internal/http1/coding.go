package http1

import (
	"bytes"
	"fmt"
	"strconv"
)

// maxChunkLine bounds a chunk-size line, extensions included, and each
// trailer line.
const maxChunkLine = 4096

type codingKind uint8

const (
	codingEOF codingKind = iota
	codingLength
	codingChunked
	codingUntilClose
)

type chunkState uint8

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataEnd
	chunkTrailer
)

// TransferCoding frames a message body. The encoder side frames request
// bodies chunk by chunk; the decoder side extracts response body data from
// a read buffer. A TransferCoding is stateful and serves one message.
type TransferCoding struct {
	kind      codingKind
	remaining int64

	state    chunkState
	trailers int
}

// Eof returns the coding of a message without a body, or whose body has
// been fully processed.
func Eof() TransferCoding { return TransferCoding{kind: codingEOF} }

// Length returns a coding for a body of exactly n bytes.
func Length(n int64) TransferCoding {
	if n <= 0 {
		return Eof()
	}
	return TransferCoding{kind: codingLength, remaining: n}
}

// Chunked returns a chunked transfer coding.
func Chunked() TransferCoding { return TransferCoding{kind: codingChunked} }

// UntilClose returns the coding of a response body delimited by the peer
// closing the connection.
func UntilClose() TransferCoding { return TransferCoding{kind: codingUntilClose} }

// IsEOF reports whether no body bytes remain to be processed.
func (c *TransferCoding) IsEOF() bool {
	return c.kind == codingEOF
}

// IsChunked reports whether c is chunked.
func (c *TransferCoding) IsChunked() bool { return c.kind == codingChunked }

// IsUntilClose reports whether c is delimited by connection close.
func (c *TransferCoding) IsUntilClose() bool { return c.kind == codingUntilClose }

// Remaining returns the bytes left in a length-delimited body, or -1 when
// the length is not known in advance.
func (c *TransferCoding) Remaining() int64 {
	switch c.kind {
	case codingEOF:
		return 0
	case codingLength:
		return c.remaining
	}
	return -1
}

func (c *TransferCoding) String() string {
	switch c.kind {
	case codingEOF:
		return "eof"
	case codingLength:
		return fmt.Sprintf("length(%d)", c.remaining)
	case codingChunked:
		return "chunked"
	case codingUntilClose:
		return "until-close"
	}
	return fmt.Sprintf("coding(%d)", uint8(c.kind))
}

// Encode appends chunk to buf in c's framing.
func (c *TransferCoding) Encode(chunk []byte, buf *bytes.Buffer) error {
	if len(chunk) == 0 {
		return nil
	}
	switch c.kind {
	case codingEOF:
		return fmt.Errorf("%w: %d bytes past the end of the body", ErrBodyLength, len(chunk))
	case codingLength:
		if int64(len(chunk)) > c.remaining {
			return fmt.Errorf("%w: %d bytes past the announced length", ErrBodyLength, int64(len(chunk))-c.remaining)
		}
		buf.Write(chunk)
		c.remaining -= int64(len(chunk))
	case codingChunked:
		var size [16]byte
		buf.Write(strconv.AppendInt(size[:0], int64(len(chunk)), 16))
		buf.WriteString("\r\n")
		buf.Write(chunk)
		buf.WriteString("\r\n")
	case codingUntilClose:
		buf.Write(chunk)
	}
	return nil
}

// EncodeEOF appends the end-of-body marker to buf and reports an error if
// the body ended short of its announced length.
func (c *TransferCoding) EncodeEOF(buf *bytes.Buffer) error {
	switch c.kind {
	case codingLength:
		if c.remaining > 0 {
			return fmt.Errorf("%w: body ended %d bytes short", ErrBodyLength, c.remaining)
		}
	case codingChunked:
		buf.WriteString("0\r\n\r\n")
	}
	c.kind = codingEOF
	return nil
}

// Decode extracts the next piece of body data from buf. It returns
// ok=false when buf holds no complete piece; the caller then checks IsEOF
// to tell a finished body from one that needs more input. The returned
// slice aliases buf and is valid until buf is next modified.
func (c *TransferCoding) Decode(buf *bytes.Buffer) (data []byte, ok bool, err error) {
	switch c.kind {
	case codingEOF:
		return nil, false, nil
	case codingLength:
		if buf.Len() == 0 {
			return nil, false, nil
		}
		n := int64(buf.Len())
		if n > c.remaining {
			n = c.remaining
		}
		data = buf.Next(int(n))
		c.remaining -= n
		if c.remaining == 0 {
			c.kind = codingEOF
		}
		return data, true, nil
	case codingUntilClose:
		if buf.Len() == 0 {
			return nil, false, nil
		}
		return buf.Next(buf.Len()), true, nil
	}
	return c.decodeChunked(buf)
}

func (c *TransferCoding) decodeChunked(buf *bytes.Buffer) ([]byte, bool, error) {
	for {
		switch c.state {
		case chunkSize:
			line, ok, err := nextLine(buf)
			if !ok || err != nil {
				return nil, false, err
			}
			if i := bytes.IndexByte(line, ';'); i >= 0 {
				line = line[:i]
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				return nil, false, fmt.Errorf("%w: empty chunk size", ErrMalformedChunk)
			}
			n, err := strconv.ParseInt(string(line), 16, 64)
			if err != nil || n < 0 {
				return nil, false, fmt.Errorf("%w: invalid chunk size %q", ErrMalformedChunk, line)
			}
			if n == 0 {
				c.state = chunkTrailer
				continue
			}
			c.remaining = n
			c.state = chunkData
		case chunkData:
			if buf.Len() == 0 {
				return nil, false, nil
			}
			n := int64(buf.Len())
			if n > c.remaining {
				n = c.remaining
			}
			data := buf.Next(int(n))
			c.remaining -= n
			if c.remaining == 0 {
				c.state = chunkDataEnd
			}
			return data, true, nil
		case chunkDataEnd:
			if buf.Len() < 2 {
				if buf.Len() == 1 && buf.Bytes()[0] != '\r' {
					return nil, false, fmt.Errorf("%w: missing CRLF after chunk data", ErrMalformedChunk)
				}
				return nil, false, nil
			}
			if crlf := buf.Next(2); crlf[0] != '\r' || crlf[1] != '\n' {
				return nil, false, fmt.Errorf("%w: missing CRLF after chunk data", ErrMalformedChunk)
			}
			c.state = chunkSize
		case chunkTrailer:
			line, ok, err := nextLine(buf)
			if !ok || err != nil {
				return nil, false, err
			}
			if len(line) == 0 {
				c.kind = codingEOF
				return nil, false, nil
			}
			// Trailer fields are read and dropped.
			c.trailers++
			if c.trailers > DefaultMaxHeaders {
				return nil, false, fmt.Errorf("%w: too many trailer fields", ErrMalformedChunk)
			}
		}
	}
}

// nextLine consumes one CRLF or LF terminated line from buf and returns it
// without its terminator.
func nextLine(buf *bytes.Buffer) ([]byte, bool, error) {
	i := bytes.IndexByte(buf.Bytes(), '\n')
	if i < 0 {
		if buf.Len() > maxChunkLine {
			return nil, false, fmt.Errorf("%w: line too long", ErrMalformedChunk)
		}
		return nil, false, nil
	}
	if i > maxChunkLine {
		return nil, false, fmt.Errorf("%w: line too long", ErrMalformedChunk)
	}
	line := buf.Next(i + 1)
	return bytes.TrimSuffix(line[:i], []byte("\r")), true, nil
}
