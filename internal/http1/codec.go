package http1

import (
	"bytes"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/hwire/hconn/internal/dump"
	"github.com/hwire/hconn/internal/header"
	"github.com/hwire/hconn/pkg/body"
)

const (
	// DefaultMaxHeadBytes is the default limit on the size of a response
	// head, status line and terminating blank line included.
	DefaultMaxHeadBytes = 64 << 10
	// DefaultMaxHeaders is the default limit on response header fields.
	DefaultMaxHeaders = 128
	// DefaultChunkSize is the default size of the read scratch buffer.
	DefaultChunkSize = 4096
)

// Request is an outbound HTTP/1.1 request.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   *body.Body

	// Target overrides the request-target of the request line. It defaults
	// to URL.RequestURI().
	Target string
}

// ResponseHead is a decoded status line and header block.
type ResponseHead struct {
	Proto      string // "HTTP/1.1"
	ProtoMajor int
	ProtoMinor int
	StatusCode int
	Reason     string
	Header     http.Header
}

// IsInformational reports whether h is a 1xx interim response.
func (h *ResponseHead) IsInformational() bool {
	return h.StatusCode >= 100 && h.StatusCode < 200
}

type connType uint8

const (
	connKeepAlive connType = iota
	connClose
	// connCloseForced is sticky: decoding a later head cannot undo it.
	connCloseForced
)

// codec holds the per-exchange protocol state: whether the connection must
// close afterwards and whether the request was HEAD. A codec serves exactly
// one exchange.
type codec struct {
	conn         connType
	reqClose     bool
	isHead       bool
	maxHeadBytes int
	maxHeaders   int
	dumper       *dump.Dumper
}

func newCodec(opts Options) *codec {
	return &codec{
		maxHeadBytes: opts.MaxHeadBytes,
		maxHeaders:   opts.MaxHeaders,
		dumper:       opts.Dumper,
	}
}

// IsConnectionClosed reports whether the connection must be closed once the
// exchange is over.
func (c *codec) IsConnectionClosed() bool { return c.conn != connKeepAlive }

// IsHeadMethod reports whether the request was HEAD.
func (c *codec) IsHeadMethod() bool { return c.isHead }

// SetHeadMethod marks the request as HEAD; decoded responses carry no body.
func (c *codec) SetHeadMethod() { c.isHead = true }

// SetClose forces the connection to close after the exchange.
func (c *codec) SetClose() { c.conn = connCloseForced }

func validMethod(m string) bool {
	return len(m) > 0 && strings.IndexFunc(m, func(r rune) bool {
		return !httpguts.IsTokenRune(r)
	}) == -1
}

// methodExpectsBody reports whether an empty body must still be announced
// with Content-Length: 0.
func methodExpectsBody(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// EncodeHead appends the request line and headers of req to buf and
// returns the coding the body must be framed with.
func (c *codec) EncodeHead(buf *bytes.Buffer, req *Request) (TransferCoding, error) {
	if !validMethod(req.Method) {
		return Eof(), fmt.Errorf("%w: invalid method %q", ErrMalformedRequest, req.Method)
	}
	target := req.Target
	if target == "" {
		if req.URL == nil {
			return Eof(), fmt.Errorf("%w: nil URL", ErrMalformedRequest)
		}
		target = req.URL.RequestURI()
	}
	if strings.ContainsAny(target, " \r\n") {
		return Eof(), fmt.Errorf("%w: invalid request target %q", ErrMalformedRequest, target)
	}

	coding, framing, err := requestFraming(req)
	if err != nil {
		return Eof(), err
	}
	if httpguts.HeaderValuesContainsToken(req.Header[header.Connection], "close") {
		c.reqClose = true
		c.conn = connClose
	}

	start := buf.Len()
	buf.WriteString(req.Method)
	buf.WriteByte(' ')
	buf.WriteString(target)
	buf.WriteString(" HTTP/1.1\r\n")

	if hosts := req.Header[header.Host]; len(hosts) > 0 {
		if !httpguts.ValidHostHeader(hosts[0]) {
			return Eof(), fmt.Errorf("%w: invalid Host header %q", ErrMalformedRequest, hosts[0])
		}
		writeField(buf, header.Host, hosts[0])
	}

	kvs := make([]header.KeyValues, 0, len(req.Header))
	for k, vs := range req.Header {
		if k == header.HeaderOrderKey {
			continue
		}
		switch textproto.CanonicalMIMEHeaderKey(k) {
		case header.Host, header.ContentLength, header.TransferEncoding:
			continue
		}
		if !httpguts.ValidHeaderFieldName(k) {
			return Eof(), fmt.Errorf("%w: invalid header field name %q", ErrMalformedRequest, k)
		}
		for _, v := range vs {
			if !httpguts.ValidHeaderFieldValue(v) {
				return Eof(), fmt.Errorf("%w: invalid header field value for %q", ErrMalformedRequest, k)
			}
		}
		kvs = append(kvs, header.KeyValues{Key: k, Values: vs})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	header.SortKeyValues(kvs, req.Header[header.HeaderOrderKey])
	for _, kv := range kvs {
		for _, v := range kv.Values {
			writeField(buf, kv.Key, v)
		}
	}
	if framing != "" {
		buf.WriteString(framing)
	}
	buf.WriteString("\r\n")
	c.dumper.DumpRequestHeader(buf.Bytes()[start:])
	return coding, nil
}

func writeField(buf *bytes.Buffer, k, v string) {
	buf.WriteString(k)
	buf.WriteString(": ")
	buf.WriteString(strings.TrimSpace(v))
	buf.WriteString("\r\n")
}

// requestFraming picks the body coding of req and the header line that
// announces it. Caller-supplied Content-Length is honoured only for bodies
// of unknown size; Transfer-Encoding is always decided here.
func requestFraming(req *Request) (TransferCoding, string, error) {
	size := req.Body.SizeHint()
	switch size.Kind {
	case body.SizeSized:
		if size.N > 0 {
			return Length(size.N), "Content-Length: " + strconv.FormatInt(size.N, 10) + "\r\n", nil
		}
	case body.SizeStream:
		if cl := req.Header.Get(header.ContentLength); cl != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
			if err != nil || n < 0 {
				return Eof(), "", fmt.Errorf("%w: invalid Content-Length %q", ErrMalformedRequest, cl)
			}
			return Length(n), "Content-Length: " + strconv.FormatInt(n, 10) + "\r\n", nil
		}
		return Chunked(), "Transfer-Encoding: chunked\r\n", nil
	}
	if methodExpectsBody(req.Method) {
		return Eof(), "Content-Length: 0\r\n", nil
	}
	return Eof(), "", nil
}

// DecodeHead parses a response head from the front of buf. It returns
// ok=false, consuming nothing, while buf does not yet hold a complete head.
// On success the head is consumed from buf and the body coding is
// returned.
func (c *codec) DecodeHead(buf *bytes.Buffer) (head *ResponseHead, coding TransferCoding, ok bool, err error) {
	data := buf.Bytes()
	end := bytes.Index(data, []byte("\r\n\r\n"))
	if end < 0 {
		if len(data) > c.maxHeadBytes {
			return nil, Eof(), false, fmt.Errorf("%w: over %d bytes", ErrHeadTooLarge, c.maxHeadBytes)
		}
		return nil, Eof(), false, nil
	}
	if end+4 > c.maxHeadBytes {
		return nil, Eof(), false, fmt.Errorf("%w: over %d bytes", ErrHeadTooLarge, c.maxHeadBytes)
	}

	lines := strings.Split(string(data[:end]), "\r\n")
	head, err = parseStatusLine(lines[0])
	if err != nil {
		return nil, Eof(), false, err
	}
	if len(lines)-1 > c.maxHeaders {
		return nil, Eof(), false, fmt.Errorf("%w: over %d header fields", ErrHeadTooLarge, c.maxHeaders)
	}
	head.Header = make(http.Header, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, Eof(), false, fmt.Errorf("%w: obsolete line folding", ErrMalformedHead)
		}
		k, v, found := strings.Cut(line, ":")
		if !found || !httpguts.ValidHeaderFieldName(k) {
			return nil, Eof(), false, fmt.Errorf("%w: invalid header line %q", ErrMalformedHead, line)
		}
		v = strings.Trim(v, " \t")
		if !httpguts.ValidHeaderFieldValue(v) {
			return nil, Eof(), false, fmt.Errorf("%w: invalid value for header %q", ErrMalformedHead, k)
		}
		k = textproto.CanonicalMIMEHeaderKey(k)
		head.Header[k] = append(head.Header[k], v)
	}

	coding, err = c.responseCoding(head)
	if err != nil {
		return nil, Eof(), false, err
	}
	c.dumper.DumpResponseHeader(data[:end+4])
	buf.Next(end + 4)
	return head, coding, true, nil
}

func parseStatusLine(line string) (*ResponseHead, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, fmt.Errorf("%w: invalid status line %q", ErrMalformedHead, line)
	}
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok || major != 1 {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrMalformedHead, proto)
	}
	code, reason, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return nil, fmt.Errorf("%w: invalid status code %q", ErrMalformedHead, code)
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return nil, fmt.Errorf("%w: invalid status code %q", ErrMalformedHead, code)
	}
	return &ResponseHead{
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		StatusCode: status,
		Reason:     reason,
	}, nil
}

// responseCoding decides the body coding of head and updates the
// connection state from its headers and version.
func (c *codec) responseCoding(head *ResponseHead) (TransferCoding, error) {
	h := head.Header
	closing := c.reqClose
	if head.ProtoMinor == 0 {
		closing = closing || !httpguts.HeaderValuesContainsToken(h[header.Connection], "keep-alive")
	} else {
		closing = closing || httpguts.HeaderValuesContainsToken(h[header.Connection], "close")
	}

	var coding TransferCoding
	switch {
	case head.StatusCode == http.StatusSwitchingProtocols:
		// Upgrades are not supported; the connection is no longer HTTP/1.
		coding, closing = Eof(), true
	case head.IsInformational(), head.StatusCode == http.StatusNoContent,
		head.StatusCode == http.StatusNotModified, c.isHead:
		coding = Eof()
	case len(h[header.TransferEncoding]) > 0:
		te := strings.Split(strings.Join(h[header.TransferEncoding], ","), ",")
		if strings.EqualFold(strings.TrimSpace(te[len(te)-1]), "chunked") {
			coding = Chunked()
		} else {
			coding, closing = UntilClose(), true
		}
		// A message with both framings is ambiguous; never reuse the
		// connection it arrived on.
		if len(h[header.ContentLength]) > 0 {
			closing = true
			h.Del(header.ContentLength)
		}
	case len(h[header.ContentLength]) > 0:
		n, err := parseContentLength(h[header.ContentLength])
		if err != nil {
			return Eof(), err
		}
		coding = Length(n)
	default:
		coding, closing = UntilClose(), true
	}

	if c.conn != connCloseForced {
		c.conn = connKeepAlive
		if closing {
			c.conn = connClose
		}
	}
	return coding, nil
}

func parseContentLength(values []string) (int64, error) {
	first := strings.TrimSpace(values[0])
	for _, v := range values[1:] {
		if strings.TrimSpace(v) != first {
			return 0, fmt.Errorf("%w: conflicting Content-Length values", ErrMalformedHead)
		}
	}
	n, err := strconv.ParseInt(first, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid Content-Length %q", ErrMalformedHead, first)
	}
	return n, nil
}
