/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: emitter.go
Description: Session emitters. Sessions hand every event to an Emitter and never wait on
the result: a failed emission is counted and the read loop carries on. Provides a buffered
channel emitter (blocking or drop-on-full), a writer emitter that renders records through
a Formatter, a function adapter and a fan-out.
*/

package logcat

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

var (
	// ErrEmitterClosed is returned when emitting into a closed emitter
	ErrEmitterClosed = errors.New("emitter closed")
	// ErrBufferFull is returned when a drop-on-full emitter discards an event
	ErrBufferFull = errors.New("emitter buffer full")
)

// DefaultBufferSize is the channel capacity used when none is configured
const DefaultBufferSize = 1024

// Emitter delivers session events to a consumer
type Emitter interface {
	Emit(event Event) error
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(Event) error

func (f EmitterFunc) Emit(event Event) error { return f(event) }

// Formatter renders a record for display
type Formatter interface {
	Format(record Record) string
}

// ChannelEmitter buffers events on a channel for a consumer goroutine.
// With dropOnFull a slow consumer loses events instead of stalling sessions.
type ChannelEmitter struct {
	ch         chan Event
	done       chan struct{}
	dropOnFull bool
	dropped    atomic.Int64

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewChannelEmitter creates a channel emitter with the given capacity
func NewChannelEmitter(size int, dropOnFull bool) *ChannelEmitter {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &ChannelEmitter{
		ch:         make(chan Event, size),
		done:       make(chan struct{}),
		dropOnFull: dropOnFull,
	}
}

// Emit queues the event
func (c *ChannelEmitter) Emit(event Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrEmitterClosed
	}

	if c.dropOnFull {
		select {
		case c.ch <- event:
			return nil
		default:
			c.dropped.Add(1)
			return ErrBufferFull
		}
	}

	select {
	case c.ch <- event:
		return nil
	case <-c.done:
		return ErrEmitterClosed
	}
}

// Events returns the channel consumers read from. It is closed by Close.
func (c *ChannelEmitter) Events() <-chan Event { return c.ch }

// Dropped returns how many events were discarded because the buffer was full
func (c *ChannelEmitter) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting events and closes the events channel. Blocked
// emitters are released first.
func (c *ChannelEmitter) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		close(c.ch)
		c.mu.Unlock()
	})
	return nil
}

// WriterEmitter renders records through a Formatter, one line per event.
// Errors are written to errOut.
type WriterEmitter struct {
	mu        sync.Mutex
	out       io.Writer
	errOut    io.Writer
	formatter Formatter
}

// NewWriterEmitter creates a writer emitter. errOut defaults to out.
func NewWriterEmitter(out, errOut io.Writer, formatter Formatter) *WriterEmitter {
	if errOut == nil {
		errOut = out
	}
	return &WriterEmitter{out: out, errOut: errOut, formatter: formatter}
}

// Emit writes the event
func (w *WriterEmitter) Emit(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch event.Name {
	case EventLogLine:
		if event.Record == nil {
			return nil
		}
		_, err := io.WriteString(w.out, w.formatter.Format(*event.Record)+"\n")
		return err
	case EventLogError:
		_, err := fmt.Fprintf(w.errOut, "[%s] %s: %s\n", event.Serial, event.Name, event.Message)
		return err
	default:
		return fmt.Errorf("unknown event %q", event.Name)
	}
}

// MultiEmitter fans each event out to every emitter
type MultiEmitter []Emitter

// Emit delivers to all emitters and joins their errors
func (m MultiEmitter) Emit(event Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
