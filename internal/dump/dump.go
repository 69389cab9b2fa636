package dump

import (
	"io"
	"sync"
)

// Options controls the dump behavior.
type Options struct {
	// Output receives every enabled part that has no dedicated output.
	Output               io.Writer
	RequestHeaderOutput  io.Writer
	RequestBodyOutput    io.Writer
	ResponseHeaderOutput io.Writer
	ResponseBodyOutput   io.Writer

	RequestHeader  bool
	RequestBody    bool
	ResponseHeader bool
	ResponseBody   bool

	// Async hands dumped bytes to a background goroutine started by Start.
	Async bool
}

// All returns Options dumping every part of an exchange to output.
func All(output io.Writer) Options {
	return Options{
		Output:         output,
		RequestHeader:  true,
		RequestBody:    true,
		ResponseHeader: true,
		ResponseBody:   true,
	}
}

func pick(specific, fallback io.Writer) io.Writer {
	if specific != nil {
		return specific
	}
	return fallback
}

// Dumper is the dump tool. A nil *Dumper dumps nothing.
type Dumper struct {
	opt  Options
	ch   chan *dumpTask
	once sync.Once
}

type dumpTask struct {
	Data   []byte
	Output io.Writer
}

// NewDumper create a new Dumper.
func NewDumper(opt Options) *Dumper {
	return &Dumper{
		opt: opt,
		ch:  make(chan *dumpTask, 20),
	}
}

// Options returns the options d was created with.
func (d *Dumper) Options() Options {
	return d.opt
}

func (d *Dumper) DumpTo(p []byte, output io.Writer) {
	if d == nil || len(p) == 0 || output == nil {
		return
	}
	if d.opt.Async {
		b := make([]byte, len(p))
		copy(b, p)
		d.ch <- &dumpTask{Data: b, Output: output}
		return
	}
	output.Write(p)
}

func (d *Dumper) DumpDefault(p []byte) {
	if d == nil {
		return
	}
	d.DumpTo(p, d.opt.Output)
}

func (d *Dumper) DumpRequestHeader(p []byte) {
	if d == nil || !d.opt.RequestHeader {
		return
	}
	d.DumpTo(p, pick(d.opt.RequestHeaderOutput, d.opt.Output))
}

func (d *Dumper) DumpRequestBody(p []byte) {
	if d == nil || !d.opt.RequestBody {
		return
	}
	d.DumpTo(p, pick(d.opt.RequestBodyOutput, d.opt.Output))
}

func (d *Dumper) DumpResponseHeader(p []byte) {
	if d == nil || !d.opt.ResponseHeader {
		return
	}
	d.DumpTo(p, pick(d.opt.ResponseHeaderOutput, d.opt.Output))
}

func (d *Dumper) DumpResponseBody(p []byte) {
	if d == nil || !d.opt.ResponseBody {
		return
	}
	d.DumpTo(p, pick(d.opt.ResponseBodyOutput, d.opt.Output))
}

// Start drains queued dumps until Stop is called. It only matters for
// async dumpers and is meant to run in its own goroutine.
func (d *Dumper) Start() {
	for t := range d.ch {
		if t == nil {
			return
		}
		t.Output.Write(t.Data)
	}
}

// Stop ends a running Start once the queued dumps are written.
func (d *Dumper) Stop() {
	d.once.Do(func() {
		d.ch <- nil
	})
}
