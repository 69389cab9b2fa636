package hconn

import (
	"io"
	"os"

	"github.com/hwire/hconn/internal/dump"
)

// DumpOptions controls the dump behavior.
type DumpOptions struct {
	Output         io.Writer
	RequestHeader  bool
	RequestBody    bool
	ResponseHeader bool
	ResponseBody   bool
	Async          bool
}

// Clone return a copy of DumpOptions
func (do *DumpOptions) Clone() *DumpOptions {
	if do == nil {
		return nil
	}
	d := *do
	return &d
}

func newDefaultDumpOptions() *DumpOptions {
	return &DumpOptions{
		Output:         os.Stdout,
		RequestBody:    true,
		ResponseBody:   true,
		ResponseHeader: true,
		RequestHeader:  true,
	}
}

func newDumper(opt *DumpOptions) *dump.Dumper {
	if opt == nil {
		opt = newDefaultDumpOptions()
	}
	output := opt.Output
	if output == nil {
		output = os.Stderr
	}
	return dump.NewDumper(dump.Options{
		Output:         output,
		RequestHeader:  opt.RequestHeader,
		RequestBody:    opt.RequestBody,
		ResponseHeader: opt.ResponseHeader,
		ResponseBody:   opt.ResponseBody,
		Async:          opt.Async,
	})
}
