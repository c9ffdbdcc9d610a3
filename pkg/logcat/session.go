/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session.go
Description: Live logcat session for one device. Spawns `adb logcat -v threadtime`,
reads its output line by line on a dedicated goroutine, and parses, resolves, enriches
and emits each line in read order. Every exit path (end of stream, cancellation, spawn
failure) releases the child process and closes Done.
*/

package logcat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/akaylee-logcat/pkg/adb"
	"github.com/kleascm/akaylee-logcat/pkg/process"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyStarted is returned when Start is called twice on one session
var ErrAlreadyStarted = errors.New("session already started")

const readBufferSize = 64 * 1024

// State is the lifecycle state of a session
type State int32

const (
	StateIdle State = iota
	StateSpawning
	StateStreaming
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawning:
		return "spawning"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool { return s == StateClosed || s == StateFailed }

// SessionStats is a snapshot of a session's counters
type SessionStats struct {
	SessionID     string                `json:"session_id"`
	Serial        string                `json:"serial"`
	State         string                `json:"state"`
	StartedAt     time.Time             `json:"started_at"`
	EndedAt       time.Time             `json:"ended_at"`
	LinesRead     int64                 `json:"lines_read"`
	Records       int64                 `json:"records"`
	Dropped       int64                 `json:"dropped"`
	EmitFailures  int64                 `json:"emit_failures"`
	ResolveErrors int64                 `json:"resolve_errors"`
	Resolver      process.ResolverStats `json:"resolver"`
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSessionLogger sets the logger used by the session and its resolver
func WithSessionLogger(logger *logrus.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResolverOptions passes options through to the session's resolver
func WithResolverOptions(opts ...process.ResolverOption) SessionOption {
	return func(s *Session) { s.resolverOpts = append(s.resolverOpts, opts...) }
}

// Session streams one device's log
type Session struct {
	id           string
	serial       string
	streamer     adb.Streamer
	resolver     *process.Resolver
	resolverOpts []process.ResolverOption
	emitter      Emitter
	logger       *logrus.Logger

	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	cancel    context.CancelFunc
	stopped   bool
	startedAt time.Time
	endedAt   time.Time
	err       error

	linesRead     atomic.Int64
	records       atomic.Int64
	dropped       atomic.Int64
	emitFailures  atomic.Int64
	resolveErrors atomic.Int64
}

// NewSession creates an idle session for serial. The session owns a fresh
// resolver fed by source.
func NewSession(serial string, streamer adb.Streamer, source process.Source, emitter Emitter, opts ...SessionOption) *Session {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Session{
		id:       uuid.New().String(),
		serial:   serial,
		streamer: streamer,
		emitter:  emitter,
		logger:   discard,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	resolverOpts := append([]process.ResolverOption{process.WithLogger(s.logger)}, s.resolverOpts...)
	s.resolver = process.NewResolver(serial, source, resolverOpts...)
	return s
}

// ID returns the session's unique identifier
func (s *Session) ID() string { return s.id }

// Serial returns the device serial
func (s *Session) Serial() string { return s.serial }

// State returns the current lifecycle state
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has ended and its child is reaped
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the spawn error or the child's exit error once Done is closed
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start spawns the log stream and returns as soon as the reader goroutine is
// running. ctx bounds the whole session; cancelling it stops the stream.
// A spawn failure emits a log-error event, fails the session and is returned.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSpawning)) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		s.finish(StateClosed, nil)
		return context.Canceled
	}
	s.cancel = cancel
	s.startedAt = time.Now()
	s.mu.Unlock()

	fields := s.fields()
	s.logger.WithFields(fields).Debug("Session spawning")

	proc, err := s.streamer.Stream(ctx, adb.LogcatArgs(s.serial)...)
	if err != nil {
		cancel()
		s.logger.WithFields(fields).WithError(err).Error("Session failed to spawn logcat")
		s.emit(Event{Name: EventLogError, Message: fmt.Sprintf("unable to start adb logcat: %v", err)})
		s.finish(StateFailed, err)
		return fmt.Errorf("start session %s: %w", s.serial, err)
	}

	s.state.Store(int32(StateStreaming))
	s.logger.WithFields(fields).Info("Session streaming")

	go s.run(ctx, cancel, proc)
	return nil
}

// Stop cancels the session and waits until the child has been reaped.
// Stopping an idle session closes it without spawning anything.
func (s *Session) Stop() {
	if s.state.CompareAndSwap(int32(StateIdle), int32(StateClosed)) {
		s.finish(StateClosed, nil)
		return
	}

	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-s.done
}

// run is the reader loop. It owns proc until it returns.
func (s *Session) run(ctx context.Context, cancel context.CancelFunc, proc adb.Process) {
	defer cancel()

	stdout := proc.Stdout()
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// unblocks a pending read while a descendant still holds the pipe
			_ = stdout.Close()
		case <-stopWatch:
		}
	}()

	reader := bufio.NewReaderSize(stdout, readBufferSize)
	for ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if line != "" && ctx.Err() == nil {
			s.handle(ctx, line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.WithFields(s.fields()).WithError(err).Warn("Session read failed")
			}
			break
		}
	}
	close(stopWatch)
	// Wait requires the pipe drained or closed; a cancel between reads leaves it open
	_ = stdout.Close()

	waitErr := proc.Wait()
	if ctx.Err() != nil {
		// killed on request; the exit status carries no information
		waitErr = nil
	}
	if waitErr != nil {
		s.logger.WithFields(s.fields()).WithError(waitErr).Warn("Logcat exited with error")
	}
	s.finish(StateClosed, waitErr)
	s.logger.WithFields(s.fields()).WithField("lines", s.linesRead.Load()).Info("Session closed")
}

// handle turns one raw line into at most one emitted record
func (s *Session) handle(ctx context.Context, line string) {
	s.linesRead.Add(1)

	entry, ok := Parse(line)
	if !ok {
		s.dropped.Add(1)
		return
	}

	pkg, err := s.resolver.Resolve(ctx, entry.PID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.resolveErrors.Add(1)
	}

	record := Enrich(s.serial, entry, pkg)
	if s.emit(Event{Name: EventLogLine, Record: &record}) {
		s.records.Add(1)
	}
}

// emit stamps and delivers an event; failures are counted, never propagated
func (s *Session) emit(event Event) bool {
	if s.emitter == nil {
		return false
	}
	event.SessionID = s.id
	event.Serial = s.serial
	event.Time = time.Now()

	if err := s.emitter.Emit(event); err != nil {
		s.emitFailures.Add(1)
		s.logger.WithFields(s.fields()).WithError(err).Debug("Emit failed")
		return false
	}
	return true
}

func (s *Session) finish(state State, err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.endedAt = time.Now()
		s.err = err
		s.mu.Unlock()
		s.state.Store(int32(state))
		close(s.done)
	})
}

func (s *Session) fields() logrus.Fields {
	return logrus.Fields{
		"session_id": s.id,
		"serial":     s.serial,
		"state":      s.State().String(),
	}
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	started, ended := s.startedAt, s.endedAt
	s.mu.Unlock()

	return SessionStats{
		SessionID:     s.id,
		Serial:        s.serial,
		State:         s.State().String(),
		StartedAt:     started,
		EndedAt:       ended,
		LinesRead:     s.linesRead.Load(),
		Records:       s.records.Load(),
		Dropped:       s.dropped.Load(),
		EmitFailures:  s.emitFailures.Load(),
		ResolveErrors: s.resolveErrors.Load(),
		Resolver:      s.resolver.Stats(),
	}
}
