// Package sink delivers lines of text to wherever a run's output goes.
package sink

//go:generate mockgen -source=sink.go -destination=mock_sink.go -package=sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Sink accepts lines of text.
type Sink interface {
	WriteLine(ctx context.Context, line string) error
}

// WriterSink writes each line, newline terminated, to an [io.Writer].
// Writes are serialized so lines from concurrent callers never interleave.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a [WriterSink] writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// WriteLine implements [Sink].
func (s *WriterSink) WriteLine(_ context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintln(s.w, line)

	return err
}

// Multi writes every line to each of its sinks, in order.
type Multi []Sink

// WriteLine implements [Sink]. Every sink is tried; failures are aggregated.
func (m Multi) WriteLine(ctx context.Context, line string) error {
	var merr *multierror.Error

	for _, s := range m {
		if err := s.WriteLine(ctx, line); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	return merr.ErrorOrNil()
}

// Discard drops every line.
var Discard Sink = discard{}

type discard struct{}

func (discard) WriteLine(context.Context, string) error { return nil }
