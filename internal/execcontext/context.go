// Package execcontext carries the context and output streams a command
// invocation runs with, so command logic stays testable against
// buffers instead of writing to the process's stdout directly.
package execcontext

import (
	"context"
	"fmt"
	"io"
)

// RunContext bundles the cancellation context with the writers command
// output goes to. It implements io.Writer over StdOut so it can be
// passed anywhere a writer is expected.
type RunContext struct {
	Context context.Context
	StdOut  io.Writer
	StdErr  io.Writer
}

func (rc RunContext) Write(p []byte) (n int, err error) {
	return rc.StdOut.Write(p)
}

func (rc RunContext) Printf(format string, v ...any) {
	fmt.Fprintf(rc.StdOut, format, v...)
}
