package tests

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
)

// ErrInjected is returned by a Stream when a scripted failure fires.
var ErrInjected = errors.New("tests: injected failure")

// Stream is an in-memory byte stream. Reads are served from the scripted
// Reads in order; an empty entry, or running out of entries, yields a
// zero-byte read (end of stream). Writes are collected in Written.
type Stream struct {
	mu sync.Mutex

	Reads   [][]byte
	Written bytes.Buffer

	// FailWriteAfter makes every write fail once more than this many bytes
	// have been written. Negative disables it.
	FailWriteAfter int
	// FailWriteCall makes the write call with this number, counting from
	// one, fail. Later writes succeed again. Zero disables it.
	FailWriteCall int
	// ZeroWrite makes writes report zero bytes without an error.
	ZeroWrite bool

	ReadCalls  int
	WriteCalls int
	Flushes    int
	Shutdowns  int
	closed     bool
}

// NewStream returns a Stream serving the given reads.
func NewStream(reads ...string) *Stream {
	s := &Stream{FailWriteAfter: -1}
	for _, r := range reads {
		s.Reads = append(s.Reads, []byte(r))
	}
	return s
}

func (s *Stream) ReadInto(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadCalls++
	if len(s.Reads) == 0 {
		return 0, nil
	}
	next := s.Reads[0]
	n := copy(p, next)
	if n < len(next) {
		s.Reads[0] = next[n:]
	} else {
		s.Reads = s.Reads[1:]
	}
	return n, nil
}

func (s *Stream) WriteFrom(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteCalls++
	if s.ZeroWrite {
		return 0, nil
	}
	if s.FailWriteCall > 0 && s.WriteCalls == s.FailWriteCall {
		return 0, ErrInjected
	}
	if s.FailWriteAfter >= 0 && s.Written.Len()+len(p) > s.FailWriteAfter {
		return 0, ErrInjected
	}
	return s.Written.Write(p)
}

func (s *Stream) WriteVectored(bufs [][]byte) (int64, error) {
	var total int64
	for _, b := range bufs {
		n, err := s.WriteFrom(b)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Stream) Flush() error {
	s.mu.Lock()
	s.Flushes++
	s.mu.Unlock()
	return nil
}

func (s *Stream) Shutdown() error {
	s.mu.Lock()
	s.Shutdowns++
	s.mu.Unlock()
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// WrittenString returns everything written so far.
func (s *Stream) WrittenString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Written.String()
}

// NewLocalListener returns a TCP listener on a random loopback port.
func NewLocalListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		ln, err = net.Listen("tcp6", "[::1]:0")
	}
	if err != nil {
		t.Fatal(err)
	}
	return ln
}
