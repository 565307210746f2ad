package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes formatted entries to stderr.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleOutput returns an output bound to os.Stderr.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{w: os.Stderr} }

func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.w == nil {
		o.w = os.Stderr
	}
	_, err := o.w.Write(formatted)
	return err
}

func (o *ConsoleOutput) Close() error { return nil }

// WriterOutput writes to an arbitrary writer; tests use it with a bytes.Buffer.
type WriterOutput struct {
	mu sync.Mutex
	W  io.Writer
}

func NewWriterOutput(w io.Writer) *WriterOutput { return &WriterOutput{W: w} }

func (o *WriterOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.W.Write(formatted)
	return err
}

func (o *WriterOutput) Close() error {
	if c, ok := o.W.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NullOutput discards everything.
type NullOutput struct{}

func (NullOutput) Write(*Entry, []byte) error { return nil }
func (NullOutput) Close() error               { return nil }
