package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/vaani/internal/pipeline"
	"github.com/MrWong99/vaani/pkg/audio"
)

// consoleSink prints each stage of a run as one line.
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

var _ pipeline.Sink = (*consoleSink)(nil)

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{w: w}
}

func (c *consoleSink) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *consoleSink) Capture(_ context.Context, capture audio.Capture) {
	c.printf("capture      %d bytes (%s)", capture.Len(), capture.Ext()[1:])
}

func (c *consoleSink) StageStarted(_ context.Context, stage pipeline.Stage) {
	c.printf("%-12s …", stage)
}

func (c *consoleSink) StageText(_ context.Context, stage pipeline.Stage, text string) {
	c.printf("%-12s %q", stage, text)
}

func (c *consoleSink) Audio(_ context.Context, data []byte, encoding string) {
	c.printf("%-12s %d bytes (%s)", pipeline.StageSynthesis, len(data), encoding)
}

func (c *consoleSink) StageFailed(_ context.Context, err *pipeline.StageError) {
	c.printf("%s", err.Message())
}
