package streamview

import (
	"context"

	"golang.org/x/net/trace"
)

// TrimPolicy governs how a stream view reacts to a TrimmedException
// encountered while filling its read queue (spec §4.B, §7).
type TrimPolicy int

const (
	// PropagateTrimmed surfaces the trim as an error to the caller.
	PropagateTrimmed TrimPolicy = iota
	// IgnoreTrimmed converts a trim encountered mid-walk into a
	// terminating "nothing more to yield" signal: fillReadQueue returns
	// whatever it already queued, and subsequent Next calls eventually
	// return (nil, nil) once the queues drain.
	IgnoreTrimmed
)

// addTrace records a breadcrumb against ctx's trace.Trace, if one is
// attached, matching the teacher's consumer.addTrace / broker.addTrace
// helpers.
func addTrace(ctx context.Context, format string, args ...interface{}) {
	if tr, ok := trace.FromContext(ctx); ok {
		tr.LazyPrintf(format, args...)
	}
}
