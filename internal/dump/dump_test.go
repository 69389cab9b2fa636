package dump

import (
	"bytes"
	"testing"

	"github.com/hwire/hconn/internal/tests"
)

func TestDumperParts(t *testing.T) {
	var all, body bytes.Buffer
	d := NewDumper(Options{
		Output:            &all,
		RequestBodyOutput: &body,
		RequestHeader:     true,
		RequestBody:       true,
		ResponseBody:      true,
	})
	d.DumpRequestHeader([]byte("GET / HTTP/1.1\r\n\r\n"))
	d.DumpRequestBody([]byte("ping"))
	d.DumpResponseHeader([]byte("HTTP/1.1 200 OK\r\n\r\n"))
	d.DumpResponseBody([]byte("pong"))

	tests.AssertEqual(t, "GET / HTTP/1.1\r\n\r\npong", all.String())
	tests.AssertEqual(t, "ping", body.String())
}

func TestNilDumper(t *testing.T) {
	var d *Dumper
	d.DumpRequestHeader([]byte("x"))
	d.DumpResponseBody([]byte("x"))
	d.DumpDefault([]byte("x"))
}

func TestAsyncDumper(t *testing.T) {
	var buf bytes.Buffer
	opt := All(&buf)
	opt.Async = true
	d := NewDumper(opt)
	done := make(chan struct{})
	go func() {
		d.Start()
		close(done)
	}()
	p := []byte("abc")
	d.DumpRequestBody(p)
	p[0] = 'x'
	d.Stop()
	<-done
	tests.AssertEqual(t, "abc", buf.String())
}
