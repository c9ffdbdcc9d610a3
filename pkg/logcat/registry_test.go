/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: registry_test.go
Description: Tests for the per-serial session registry.
*/

package logcat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kleascm/akaylee-logcat/pkg/adb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type endLog struct {
	mu    sync.Mutex
	ended map[string]State
}

func (l *endLog) hook(s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended == nil {
		l.ended = make(map[string]State)
	}
	l.ended[s.Serial()] = s.State()
}

func (l *endLog) get() map[string]State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]State, len(l.ended))
	for k, v := range l.ended {
		out[k] = v
	}
	return out
}

func TestRegistryStartAndDuplicate(t *testing.T) {
	registry := NewRegistry(&fakeStreamer{hold: true}, &tableSource{}, &recorder{})

	first, err := registry.Start(context.Background(), "abc")
	require.NoError(t, err)

	again, err := registry.Start(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Same(t, first, again)

	assert.Equal(t, []string{"abc"}, registry.Serials())
	assert.Same(t, first, registry.Get("abc"))

	require.NoError(t, registry.Stop("abc"))
	assert.Nil(t, registry.Get("abc"))
	assert.Equal(t, StateClosed, first.State())
	registry.Wait()
}

func TestRegistryStopUnknown(t *testing.T) {
	registry := NewRegistry(&fakeStreamer{}, &tableSource{}, &recorder{})
	assert.ErrorIs(t, registry.Stop("missing"), ErrNoSession)
}

func TestRegistryIndependentSessions(t *testing.T) {
	spawnErr := &adb.ToolError{Tool: "adb", Err: errors.New("device offline")}
	streamer := &fakeStreamer{
		lines:   []string{lineA},
		hold:    true,
		failFor: map[string]error{"broken": spawnErr},
	}
	rec := &recorder{}
	ends := &endLog{}
	registry := NewRegistry(streamer, &tableSource{}, rec, OnSessionEnd(ends.hook))

	one, err := registry.Start(context.Background(), "one")
	require.NoError(t, err)
	two, err := registry.Start(context.Background(), "two")
	require.NoError(t, err)

	_, err = registry.Start(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, adb.IsToolError(err))

	assert.Equal(t, []string{"one", "two"}, registry.Serials())
	assert.Equal(t, StateStreaming, one.State())
	assert.Equal(t, StateStreaming, two.State())

	// both healthy sessions keep streaming after the failure
	require.Eventually(t, func() bool { return rec.Len() == 3 }, 5*time.Second, 5*time.Millisecond)

	perSerial := map[string]int{}
	for _, event := range rec.Events() {
		perSerial[event.Serial]++
	}
	assert.Equal(t, map[string]int{"one": 1, "two": 1, "broken": 1}, perSerial)

	registry.StopAll()
	assert.Empty(t, registry.Serials())
	assert.Equal(t, map[string]State{
		"one":    StateClosed,
		"two":    StateClosed,
		"broken": StateFailed,
	}, ends.get())
}

func TestRegistrySessionEndsOnItsOwn(t *testing.T) {
	ends := &endLog{}
	registry := NewRegistry(&fakeStreamer{lines: []string{lineA}}, &tableSource{}, &recorder{}, OnSessionEnd(ends.hook))

	session, err := registry.Start(context.Background(), "abc")
	require.NoError(t, err)
	waitDone(t, session)
	registry.Wait()

	assert.Empty(t, registry.Serials())
	assert.Equal(t, map[string]State{"abc": StateClosed}, ends.get())

	// the serial can be streamed again once the previous session ended
	next, err := registry.Start(context.Background(), "abc")
	require.NoError(t, err)
	assert.NotEqual(t, session.ID(), next.ID())
	registry.StopAll()
}
