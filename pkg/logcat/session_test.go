/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session_test.go
Description: Tests for the session lifecycle: ordered enrichment, drop accounting, spawn
failures, cancellation mid-stream and reaping of a real child process.
*/

package logcat

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kleascm/akaylee-logcat/pkg/adb"
	"github.com/kleascm/akaylee-logcat/pkg/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lineA = "06-01 12:00:01.123   100   101 I Alpha: first"
	lineB = "06-01 12:00:01.124   200   201 W Beta: second"
	lineC = "06-01 12:00:01.125   100   102 E Alpha: third"
)

// fakeProcess serves stdout from an in-memory pipe
type fakeProcess struct {
	stdout  *io.PipeReader
	exited  chan struct{}
	waitErr error
}

func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdout }

func (p *fakeProcess) Wait() error {
	<-p.exited
	return p.waitErr
}

// fakeStreamer writes lines to every spawned process. With hold the process
// stays alive until its context is cancelled.
type fakeStreamer struct {
	lines   []string
	hold    bool
	waitErr error
	failFor map[string]error

	mu    sync.Mutex
	calls [][]string
}

func (f *fakeStreamer) Stream(ctx context.Context, args ...string) (adb.Process, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	if len(args) > 1 {
		if err, ok := f.failFor[args[1]]; ok {
			return nil, err
		}
	}

	pr, pw := io.Pipe()
	proc := &fakeProcess{stdout: pr, exited: make(chan struct{}), waitErr: f.waitErr}
	go func() {
		defer close(proc.exited)
		defer pw.Close()
		for _, line := range f.lines {
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
		if f.hold {
			<-ctx.Done()
		}
	}()
	return proc, nil
}

func (f *fakeStreamer) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// tableSource returns successive tables, repeating the last one
type tableSource struct {
	mu     sync.Mutex
	tables []process.Table
	err    error
	calls  int
}

func (s *tableSource) Snapshot(_ context.Context, _ string) (process.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.tables) == 0 {
		return process.Table{}, nil
	}
	i := s.calls - 1
	if i >= len(s.tables) {
		i = len(s.tables) - 1
	}
	return s.tables[i], nil
}

// recorder is a concurrency-safe Emitter that keeps every event
type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Emit(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish", s.Serial())
	}
}

func TestSessionStreamsInOrder(t *testing.T) {
	streamer := &fakeStreamer{lines: []string{
		lineA,
		"garbage",
		lineB,
		lineC,
		"--------- beginning of main",
	}}
	source := &tableSource{tables: []process.Table{
		{"100": "com.alpha"},
		{"100": "com.alpha", "200": "com.beta"},
	}}
	rec := &recorder{}

	session := NewSession("emulator-5554", streamer, source, rec)
	assert.Equal(t, StateIdle, session.State())
	assert.NotEmpty(t, session.ID())

	require.NoError(t, session.Start(context.Background()))
	waitDone(t, session)

	assert.Equal(t, StateClosed, session.State())
	assert.NoError(t, session.Err())
	assert.Equal(t, [][]string{adb.LogcatArgs("emulator-5554")}, streamer.Calls())

	events := rec.Events()
	require.Len(t, events, 3)
	want := []struct{ tag, msg, pkg string }{
		{"Alpha", "first", "com.alpha"},
		{"Beta", "second", "com.beta"},
		{"Alpha", "third", "com.alpha"},
	}
	for i, w := range want {
		event := events[i]
		assert.Equal(t, EventLogLine, event.Name)
		assert.Equal(t, session.ID(), event.SessionID)
		assert.Equal(t, "emulator-5554", event.Serial)
		assert.False(t, event.Time.IsZero())
		require.NotNil(t, event.Record)
		assert.Equal(t, "emulator-5554", event.Record.Serial)
		assert.Equal(t, w.tag, event.Record.Tag)
		assert.Equal(t, w.msg, event.Record.Message)
		assert.Equal(t, w.pkg, event.Record.Package)
	}

	stats := session.Stats()
	assert.Equal(t, int64(5), stats.LinesRead)
	assert.Equal(t, int64(3), stats.Records)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.Equal(t, int64(2), stats.Resolver.Snapshots)
	assert.Equal(t, int64(1), stats.Resolver.Hits)
	assert.Equal(t, "closed", stats.State)
	assert.False(t, stats.EndedAt.Before(stats.StartedAt))
}

func TestSessionUnknownPID(t *testing.T) {
	streamer := &fakeStreamer{lines: []string{lineA}}
	rec := &recorder{}

	session := NewSession("abc", streamer, &tableSource{}, rec)
	require.NoError(t, session.Start(context.Background()))
	waitDone(t, session)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "", events[0].Record.Package)
	assert.Equal(t, int64(0), session.Stats().ResolveErrors)
}

func TestSessionSnapshotFailureStillEmits(t *testing.T) {
	streamer := &fakeStreamer{lines: []string{lineA, lineB}}
	source := &tableSource{err: errors.New("ps failed")}
	rec := &recorder{}

	session := NewSession("abc", streamer, source, rec,
		WithResolverOptions(process.WithRetryAfter(time.Hour)))
	require.NoError(t, session.Start(context.Background()))
	waitDone(t, session)

	require.Len(t, rec.Events(), 2)
	stats := session.Stats()
	assert.Equal(t, int64(1), stats.ResolveErrors)
	assert.Equal(t, int64(1), stats.Resolver.Snapshots, "back-off suppresses the second snapshot")
}

func TestSessionSpawnFailure(t *testing.T) {
	spawnErr := &adb.ToolError{Tool: "adb", Args: adb.LogcatArgs("abc"), Err: exec.ErrNotFound}
	streamer := &fakeStreamer{failFor: map[string]error{"abc": spawnErr}}
	rec := &recorder{}

	session := NewSession("abc", streamer, &tableSource{}, rec)
	err := session.Start(context.Background())
	require.Error(t, err)
	assert.True(t, adb.IsToolError(err))

	waitDone(t, session)
	assert.Equal(t, StateFailed, session.State())
	assert.ErrorIs(t, session.Err(), exec.ErrNotFound)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].IsError())
	assert.Equal(t, "abc", events[0].Serial)
	assert.True(t, strings.HasPrefix(events[0].Message, "unable to start adb logcat: "), events[0].Message)
}

func TestSessionStartTwice(t *testing.T) {
	session := NewSession("abc", &fakeStreamer{hold: true}, &tableSource{}, &recorder{})
	require.NoError(t, session.Start(context.Background()))
	assert.ErrorIs(t, session.Start(context.Background()), ErrAlreadyStarted)
	session.Stop()
	assert.Equal(t, StateClosed, session.State())
}

func TestSessionStopIdle(t *testing.T) {
	streamer := &fakeStreamer{}
	session := NewSession("abc", streamer, &tableSource{}, &recorder{})

	session.Stop()
	waitDone(t, session)
	assert.Equal(t, StateClosed, session.State())
	assert.ErrorIs(t, session.Start(context.Background()), ErrAlreadyStarted)
	assert.Empty(t, streamer.Calls())

	session.Stop()
}

func TestSessionStopMidStream(t *testing.T) {
	streamer := &fakeStreamer{lines: []string{lineA, lineB}, hold: true}
	source := &tableSource{tables: []process.Table{{"100": "com.alpha", "200": "com.beta"}}}
	rec := &recorder{}

	session := NewSession("abc", streamer, source, rec)
	require.NoError(t, session.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.Len() == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateStreaming, session.State())

	stopped := make(chan struct{})
	go func() {
		session.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, StateClosed, session.State())
	assert.NoError(t, session.Err(), "cancelled sessions do not report the kill status")
	assert.Equal(t, 2, rec.Len())

	session.Stop()
}

func TestSessionParentContextCancel(t *testing.T) {
	streamer := &fakeStreamer{lines: []string{lineA}, hold: true}
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession("abc", streamer, &tableSource{}, rec)
	require.NoError(t, session.Start(ctx))
	require.Eventually(t, func() bool { return rec.Len() == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	waitDone(t, session)
	assert.Equal(t, StateClosed, session.State())
}

func TestSessionExitError(t *testing.T) {
	exitErr := errors.New("exit status 255")
	streamer := &fakeStreamer{lines: []string{lineA}, waitErr: exitErr}

	session := NewSession("abc", streamer, &tableSource{}, &recorder{})
	require.NoError(t, session.Start(context.Background()))
	waitDone(t, session)

	assert.Equal(t, StateClosed, session.State())
	assert.ErrorIs(t, session.Err(), exitErr)
}

// chattyProcess writes lines until its reader is closed and only exits
// once that has happened
type chattyProcess struct {
	stdout    *io.PipeReader
	closed    chan struct{}
	closeOnce sync.Once
}

func (p *chattyProcess) Stdout() io.ReadCloser { return p }

func (p *chattyProcess) Read(b []byte) (int, error) { return p.stdout.Read(b) }

func (p *chattyProcess) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return p.stdout.Close()
}

func (p *chattyProcess) Wait() error {
	<-p.closed
	return nil
}

type chattyStreamer struct{}

func (chattyStreamer) Stream(_ context.Context, _ ...string) (adb.Process, error) {
	pr, pw := io.Pipe()
	proc := &chattyProcess{stdout: pr, closed: make(chan struct{})}
	go func() {
		defer pw.Close()
		for {
			if _, err := io.WriteString(pw, lineA+"\n"); err != nil {
				return
			}
		}
	}()
	return proc, nil
}

func TestSessionStopClosesOutputBeforeWait(t *testing.T) {
	source := &tableSource{tables: []process.Table{{"100": "com.alpha"}}}

	for i := 0; i < 40; i++ {
		rec := &recorder{}
		session := NewSession("abc", chattyStreamer{}, source, rec)
		require.NoError(t, session.Start(context.Background()))
		require.Eventually(t, func() bool { return rec.Len() > 0 }, 5*time.Second, time.Millisecond)

		stopped := make(chan struct{})
		go func() {
			session.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Fatalf("Stop did not return on iteration %d", i)
		}
		assert.Equal(t, StateClosed, session.State())
	}
}

// blockingSource parks every snapshot until its context is cancelled
type blockingSource struct {
	entered chan struct{}
	once    sync.Once
}

func (s *blockingSource) Snapshot(ctx context.Context, _ string) (process.Table, error) {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSessionNoRecordAfterStop(t *testing.T) {
	streamer := &fakeStreamer{lines: []string{lineA}, hold: true}
	source := &blockingSource{entered: make(chan struct{})}
	rec := &recorder{}

	session := NewSession("abc", streamer, source, rec)
	require.NoError(t, session.Start(context.Background()))
	select {
	case <-source.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("line never reached the resolver")
	}

	session.Stop()
	assert.Equal(t, 0, rec.Len(), "a line in flight at Stop is not emitted")
	stats := session.Stats()
	assert.Equal(t, int64(1), stats.LinesRead)
	assert.Equal(t, int64(0), stats.Records)
	assert.Equal(t, int64(0), stats.ResolveErrors)
}

func TestSessionEmitFailuresAreCounted(t *testing.T) {
	streamer := &fakeStreamer{lines: []string{lineA, lineB, lineC}}
	rec := &recorder{err: ErrBufferFull}

	session := NewSession("abc", streamer, &tableSource{}, rec)
	require.NoError(t, session.Start(context.Background()))
	waitDone(t, session)

	stats := session.Stats()
	assert.Equal(t, int64(3), stats.LinesRead)
	assert.Equal(t, int64(3), stats.EmitFailures)
	assert.Equal(t, int64(0), stats.Records)
}

func TestSessionReapsRealProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "fake-adb")
	body := "#!/bin/sh\necho '" + lineA + "'\necho '" + lineB + "'\nexec sleep 30\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))

	client := adb.NewClient(script, time.Second)
	source := &tableSource{tables: []process.Table{{"100": "com.alpha", "200": "com.beta"}}}
	rec := &recorder{}

	session := NewSession("emulator-5554", client, source, rec)
	require.NoError(t, session.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	session.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateClosed, session.State())

	events := rec.Events()
	assert.Equal(t, "com.alpha", events[0].Record.Package)
	assert.Equal(t, "com.beta", events[1].Record.Package)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateClosed.Terminal())
	assert.False(t, StateSpawning.Terminal())
}
