package body

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/hwire/hconn/internal/tests"
)

type customErr struct{ code int }

func (e customErr) Error() string { return "custom failure" }

type failingProducer struct {
	n int
}

func (p *failingProducer) Next(context.Context) ([]byte, error) {
	if p.n == 0 {
		return nil, customErr{code: 7}
	}
	p.n--
	return []byte("x"), nil
}

func (p *failingProducer) SizeHint() Size { return Sized(42) }

func drain(t *testing.T, b *Body) (string, error) {
	t.Helper()
	var sb strings.Builder
	for {
		chunk, err := b.Next(context.Background())
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.Write(chunk)
	}
}

func TestEmptyBody(t *testing.T) {
	for _, b := range []*Body{Empty(), nil, {}} {
		tests.AssertEqual(t, None(), b.SizeHint())
		tests.AssertEqual(t, true, b.IsEmpty())
		_, err := b.Next(context.Background())
		tests.AssertEqual(t, io.EOF, err)
	}
}

func TestBytesBody(t *testing.T) {
	b := String("hello")
	tests.AssertEqual(t, Sized(5), b.SizeHint())
	s, err := drain(t, b)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "hello", s)

	// non-restartable
	_, err = b.Next(context.Background())
	tests.AssertEqual(t, io.EOF, err)

	tests.AssertEqual(t, true, Bytes(nil).IsEmpty())
}

func TestChunksBody(t *testing.T) {
	b := Chunks([]byte("ab"), nil, []byte("cd"))
	tests.AssertEqual(t, Sized(4), b.SizeHint())
	s, err := drain(t, b)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "abcd", s)
}

func TestReaderBody(t *testing.T) {
	b := Reader(strings.NewReader("streamed"), -1)
	tests.AssertEqual(t, Stream(), b.SizeHint())
	s, err := drain(t, b)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "streamed", s)

	tests.AssertEqual(t, Sized(3), Reader(strings.NewReader("abc"), 3).SizeHint())
}

func TestErrorConversionKeepsCause(t *testing.T) {
	b := New(&failingProducer{n: 2})
	tests.AssertEqual(t, Sized(42), b.SizeHint())

	s, err := drain(t, b)
	tests.AssertEqual(t, "xx", s)
	var be *BodyError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BodyError, got %T", err)
	}
	var ce customErr
	if !errors.As(err, &ce) {
		t.Fatalf("cause lost: %v", err)
	}
	tests.AssertEqual(t, 7, ce.code)

	_, err = b.Next(context.Background())
	tests.AssertEqual(t, io.EOF, err)
}

func TestNewDoesNotDoubleWrap(t *testing.T) {
	b := String("x")
	tests.AssertEqual(t, true, New(b) == b)
}

func TestProducerWithoutHintIsStream(t *testing.T) {
	b := New(producerFunc(func(context.Context) ([]byte, error) { return nil, io.EOF }))
	tests.AssertEqual(t, Stream(), b.SizeHint())
}

type producerFunc func(context.Context) ([]byte, error)

func (f producerFunc) Next(ctx context.Context) ([]byte, error) { return f(ctx) }

func TestReaderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := Reader(strings.NewReader("abc"), 3)
	_, err := b.Next(ctx)
	tests.AssertEqual(t, true, errors.Is(err, context.Canceled))
}

func TestNewReader(t *testing.T) {
	r := NewReader(context.Background(), Chunks([]byte("foo"), []byte("bar")))
	data, err := io.ReadAll(r)
	tests.AssertNoError(t, err)
	tests.AssertEqual(t, "foobar", string(data))
	tests.AssertNoError(t, r.Close())
}
