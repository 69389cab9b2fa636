package hconn

import (
	"net/http"
	"testing"

	"github.com/hwire/hconn/internal/header"
	"github.com/hwire/hconn/internal/tests"
	"github.com/hwire/hconn/pkg/body"
)

func TestNewRequest(t *testing.T) {
	r, err := NewRequest("", "http://example.com/a?b=c", nil)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, http.MethodGet, r.Method)
	tests.AssertEqual(t, "/a?b=c", r.URL.RequestURI())
	tests.AssertEqual(t, true, r.Body.IsEmpty())

	_, err = NewRequest(http.MethodGet, "http://[::1", nil)
	tests.AssertErrorContains(t, err, "parsing request URL")
}

func TestRequestSetters(t *testing.T) {
	r, err := NewRequest(http.MethodPost, "unix:///v1/info", body.String("x"))
	tests.AssertNoError(t, err)
	r.SetHeader("X-Foo", "bar").
		SetHeaderOrder("X-Foo", "Content-Length").
		SetSocketPath("/run/app.sock").
		EnableExpectContinue().
		EnableCloseConnection()

	tests.AssertEqual(t, "bar", r.Header.Get("X-Foo"))
	tests.AssertEqual(t, []string{"X-Foo", "Content-Length"}, r.Header[header.HeaderOrderKey])
	tests.AssertEqual(t, "/run/app.sock", r.SocketPath)
	tests.AssertEqual(t, "100-continue", r.Header.Get("Expect"))
	tests.AssertEqual(t, "close", r.Header.Get("Connection"))

	r.SetBody(body.Bytes([]byte("hello")))
	tests.AssertEqual(t, body.Sized(5), r.Body.SizeHint())

	var nilHeader Request
	nilHeader.SetHeader("A", "b")
	tests.AssertEqual(t, "b", nilHeader.Header.Get("A"))
}
