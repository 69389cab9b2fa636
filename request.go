package hconn

import (
	"fmt"
	"net/http"
	urlpkg "net/url"

	"github.com/hwire/hconn/internal/header"
	"github.com/hwire/hconn/pkg/body"
)

// Request is an outbound request.
type Request struct {
	Method string
	URL    *urlpkg.URL
	Header http.Header
	Body   *body.Body
	// SocketPath is the unix socket file dialed for unix:// URLs. The URL
	// host, if any, only names the Host header.
	SocketPath string
}

// NewRequest returns a Request for method and rawURL. A nil b sends no body.
func NewRequest(method, rawURL string, b *body.Body) (*Request, error) {
	u, err := urlpkg.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("hconn: parsing request URL: %w", err)
	}
	if method == "" {
		method = http.MethodGet
	}
	if b == nil {
		b = body.Empty()
	}
	return &Request{
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
	}, nil
}

// SetHeader set a header for the request.
func (r *Request) SetHeader(key, value string) *Request {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
	return r
}

// SetHeaderOrder sets the order in which the given headers are written,
// ahead of all others. Host is always written first.
func (r *Request) SetHeaderOrder(keys ...string) *Request {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header[header.HeaderOrderKey] = append([]string(nil), keys...)
	return r
}

// SetBody set the request body.
func (r *Request) SetBody(b *body.Body) *Request {
	r.Body = b
	return r
}

// SetSocketPath set the unix socket file for unix:// URLs.
func (r *Request) SetSocketPath(path string) *Request {
	r.SocketPath = path
	return r
}

// EnableExpectContinue asks the server to confirm with 100 Continue before
// the body is sent. It has no effect on requests without a body.
func (r *Request) EnableExpectContinue() *Request {
	return r.SetHeader(header.Expect, "100-continue")
}

// EnableCloseConnection asks for the connection to be closed once the
// exchange is over.
func (r *Request) EnableCloseConnection() *Request {
	return r.SetHeader(header.Connection, "close")
}
