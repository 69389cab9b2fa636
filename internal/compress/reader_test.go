package compress

import (
	"bytes"
	"io"
	"io/fs"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/hwire/hconn/internal/tests"
)

const payload = "the quick brown fox jumps over the lazy dog"

func encodeWith(t *testing.T, newWriter func(io.Writer) (io.WriteCloser, error)) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	w, err := newWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(payload))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return io.NopCloser(&buf)
}

func newGzip(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil }

func newDeflate(w io.Writer) (io.WriteCloser, error) {
	fw, err := flate.NewWriter(w, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	return fw, nil
}

func newBrotli(w io.Writer) (io.WriteCloser, error) { return brotli.NewWriter(w), nil }

func newZstd(w io.Writer) (io.WriteCloser, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return zw, nil
}

func TestNewCompressReader(t *testing.T) {
	writers := map[string]func(io.Writer) (io.WriteCloser, error){
		"gzip":    newGzip,
		"deflate": newDeflate,
		"br":      newBrotli,
		"zstd":    newZstd,
	}
	for name, nw := range writers {
		t.Run(name, func(t *testing.T) {
			r := NewCompressReader(encodeWith(t, nw), name)
			tests.AssertNotNil(t, r)
			b, err := io.ReadAll(r)
			tests.AssertNoError(t, err)
			tests.AssertEqual(t, payload, string(b))
			tests.AssertNoError(t, r.Close())
			_, err = r.Read(make([]byte, 1))
			if err == nil {
				t.Error("read after close succeeded")
			}
		})
	}
}

func TestNewCompressReaderUnknown(t *testing.T) {
	tests.AssertIsNil(t, NewCompressReader(io.NopCloser(bytes.NewReader(nil)), "compress"))
	tests.AssertIsNil(t, NewCompressReader(io.NopCloser(bytes.NewReader(nil)), "gzip, br"))
	tests.AssertNotNil(t, NewCompressReader(io.NopCloser(bytes.NewReader(nil)), " GZIP "))
}

func TestReaderInvalidInputIsSticky(t *testing.T) {
	r := NewCompressReader(io.NopCloser(bytes.NewReader([]byte("plain text"))), "gzip")
	_, err := r.Read(make([]byte, 8))
	tests.AssertErrorContains(t, err, "reading gzip header")
	_, err2 := r.Read(make([]byte, 8))
	tests.AssertEqual(t, err, err2)
}

func TestReaderCoding(t *testing.T) {
	r := NewCompressReader(io.NopCloser(bytes.NewReader(nil)), "X-Gzip")
	tests.AssertEqual(t, "x-gzip", r.Coding())
	// closing an unread body never touches the decompressor
	tests.AssertNoError(t, r.Close())
	_, err := r.Read(make([]byte, 1))
	tests.AssertErrorIs(t, err, fs.ErrClosed)
}

// eofTracker hides io.ByteReader so decoders buffer their input, and
// records whether the end of the body was observed.
type eofTracker struct {
	r      io.Reader
	sawEOF bool
}

func (e *eofTracker) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.sawEOF = true
	}
	return n, err
}

func (e *eofTracker) Close() error { return nil }

func TestReaderConsumesBodyEnd(t *testing.T) {
	writers := map[string]func(io.Writer) (io.WriteCloser, error){
		"gzip":    newGzip,
		"deflate": newDeflate,
		"br":      newBrotli,
		"zstd":    newZstd,
	}
	for coding, newWriter := range writers {
		t.Run(coding, func(t *testing.T) {
			src := &eofTracker{r: encodeWith(t, newWriter)}
			r := NewCompressReader(src, coding)
			got, err := io.ReadAll(r)
			tests.AssertNoError(t, err)
			tests.AssertEqual(t, payload, string(got))
			tests.AssertEqual(t, true, src.sawEOF)
			_, err = r.Read(make([]byte, 1))
			tests.AssertErrorIs(t, err, io.EOF)
		})
	}
}

func TestReaderDropsTrailingBytes(t *testing.T) {
	var buf bytes.Buffer
	w, _ := newDeflate(&buf)
	w.Write([]byte(payload))
	w.Close()
	buf.WriteString("junk after the stream")
	src := &eofTracker{r: &buf}
	got, err := io.ReadAll(NewCompressReader(src, "deflate"))
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, payload, string(got))
	tests.AssertEqual(t, true, src.sawEOF)
}
