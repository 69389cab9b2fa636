package compress

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func openGzip(src io.Reader) (io.Reader, error) {
	return gzip.NewReader(src)
}

func openDeflate(src io.Reader) (io.Reader, error) {
	return flate.NewReader(src), nil
}

func openBrotli(src io.Reader) (io.Reader, error) {
	return brotli.NewReader(src), nil
}

// A single decoder goroutine is enough for one response body.
func openZstd(src io.Reader) (io.Reader, error) {
	d, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}
