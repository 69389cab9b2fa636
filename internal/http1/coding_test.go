package http1

import (
	"bytes"
	"testing"

	"github.com/hwire/hconn/internal/tests"
)

func TestChunkedEncode(t *testing.T) {
	var buf bytes.Buffer
	c := Chunked()
	tests.AssertNoError(t, c.Encode([]byte("hello"), &buf))
	tests.AssertNoError(t, c.Encode(nil, &buf))
	tests.AssertNoError(t, c.Encode(bytes.Repeat([]byte("a"), 26), &buf))
	tests.AssertNoError(t, c.EncodeEOF(&buf))
	tests.AssertEqual(t, "5\r\nhello\r\n1a\r\n"+string(bytes.Repeat([]byte("a"), 26))+"\r\n0\r\n\r\n", buf.String())
	tests.AssertEqual(t, true, c.IsEOF())
}

func TestLengthEncode(t *testing.T) {
	var buf bytes.Buffer
	c := Length(5)
	tests.AssertNoError(t, c.Encode([]byte("hel"), &buf))
	tests.AssertNoError(t, c.Encode([]byte("lo"), &buf))
	tests.AssertNoError(t, c.EncodeEOF(&buf))
	tests.AssertEqual(t, "hello", buf.String())

	over := Length(2)
	tests.AssertErrorIs(t, over.Encode([]byte("abc"), &buf), ErrBodyLength)

	short := Length(4)
	tests.AssertNoError(t, short.Encode([]byte("ab"), &buf))
	tests.AssertErrorIs(t, short.EncodeEOF(&buf), ErrBodyLength)

	none := Eof()
	tests.AssertErrorIs(t, none.Encode([]byte("x"), &buf), ErrBodyLength)
}

// decodeAll feeds raw to c in pieces of the given size and collects the
// decoded body.
func decodeAll(t *testing.T, c TransferCoding, raw string, piece int) (string, error) {
	t.Helper()
	var out []byte
	var buf bytes.Buffer
	in := []byte(raw)
	for {
		data, ok, err := c.Decode(&buf)
		if err != nil {
			return string(out), err
		}
		if ok {
			out = append(out, data...)
			continue
		}
		if c.IsEOF() {
			return string(out), nil
		}
		if len(in) == 0 {
			t.Fatalf("input exhausted before end of body, got %q", out)
		}
		n := piece
		if n > len(in) {
			n = len(in)
		}
		buf.Write(in[:n])
		in = in[n:]
	}
}

func TestChunkedDecode(t *testing.T) {
	raw := "5\r\nhello\r\n6;name=val\r\n world\r\nA \r\n0123456789\r\n0\r\nX-Trailer: 1\r\n\r\n"
	for _, piece := range []int{1, 2, 3, 7, 64} {
		got, err := decodeAll(t, Chunked(), raw, piece)
		tests.AssertNoError(t, err)
		tests.AssertEqual(t, "hello world0123456789", got)
	}
}

func TestChunkedDecodeLeavesFollowingBytes(t *testing.T) {
	c := Chunked()
	buf := bytes.NewBufferString("3\r\nabc\r\n0\r\n\r\nHTTP/1.1")
	data, ok, err := c.Decode(buf)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, true, ok)
	tests.AssertEqual(t, "abc", string(data))
	_, ok, err = c.Decode(buf)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, false, ok)
	tests.AssertEqual(t, true, c.IsEOF())
	tests.AssertEqual(t, "HTTP/1.1", buf.String())
}

func TestChunkedDecodeErrors(t *testing.T) {
	for _, raw := range []string{
		"zz\r\nabc\r\n",
		"\r\n",
		"3\r\nabcXY",
		"-1\r\n",
	} {
		_, err := decodeAll(t, Chunked(), raw+"0\r\n\r\n", 64)
		tests.AssertErrorIs(t, err, ErrMalformedChunk)
	}
}

func TestLengthDecode(t *testing.T) {
	got, err := decodeAll(t, Length(11), "hello world", 4)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "hello world", got)

	c := Length(3)
	buf := bytes.NewBufferString("abcdef")
	data, ok, _ := c.Decode(buf)
	tests.AssertEqual(t, true, ok)
	tests.AssertEqual(t, "abc", string(data))
	tests.AssertEqual(t, true, c.IsEOF())
	tests.AssertEqual(t, "def", buf.String())
}
