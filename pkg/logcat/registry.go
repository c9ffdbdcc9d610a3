/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: registry.go
Description: Registry of live sessions keyed by device serial. Sessions start and stop
independently; the registry lock guards only the map, never a spawn, so devices do not
serialise behind each other. Finished sessions remove themselves.
*/

package logcat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/kleascm/akaylee-logcat/pkg/adb"
	"github.com/kleascm/akaylee-logcat/pkg/process"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSessionActive is returned when a serial already has a live session
	ErrSessionActive = errors.New("session already active")
	// ErrNoSession is returned when stopping a serial without a session
	ErrNoSession = errors.New("no active session")
)

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithSessionOptions applies opts to every session the registry creates
func WithSessionOptions(opts ...SessionOption) RegistryOption {
	return func(r *Registry) { r.sessionOpts = append(r.sessionOpts, opts...) }
}

// WithRegistryLogger sets the registry's logger
func WithRegistryLogger(logger *logrus.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// OnSessionEnd registers a hook called once per session after it ends,
// including sessions that failed to spawn
func OnSessionEnd(hook func(*Session)) RegistryOption {
	return func(r *Registry) { r.onEnd = hook }
}

// Registry tracks one session per serial
type Registry struct {
	streamer    adb.Streamer
	source      process.Source
	emitter     Emitter
	sessionOpts []SessionOption
	logger      *logrus.Logger
	onEnd       func(*Session)

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry. All sessions share emitter.
func NewRegistry(streamer adb.Streamer, source process.Source, emitter Emitter, opts ...RegistryOption) *Registry {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	r := &Registry{
		streamer: streamer,
		source:   source,
		emitter:  emitter,
		logger:   discard,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates and starts a session for serial. If serial already has a
// live session it is returned together with ErrSessionActive.
func (r *Registry) Start(ctx context.Context, serial string) (*Session, error) {
	r.mu.Lock()
	if existing, ok := r.sessions[serial]; ok {
		r.mu.Unlock()
		return existing, ErrSessionActive
	}
	session := NewSession(serial, r.streamer, r.source, r.emitter, r.sessionOpts...)
	r.sessions[serial] = session
	r.wg.Add(1)
	r.mu.Unlock()

	if err := session.Start(ctx); err != nil {
		r.remove(serial, session)
		r.ended(session)
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"serial":     serial,
		"session_id": session.ID(),
	}).Info("Session registered")

	go func() {
		<-session.Done()
		r.remove(serial, session)
		r.ended(session)
	}()
	return session, nil
}

// Stop stops the session for serial and waits for it to end
func (r *Registry) Stop(serial string) error {
	session := r.Get(serial)
	if session == nil {
		return fmt.Errorf("stop %s: %w", serial, ErrNoSession)
	}
	session.Stop()
	r.remove(serial, session)
	return nil
}

// StopAll stops every session concurrently and waits for all end hooks
func (r *Registry) StopAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
	r.Wait()
}

// Wait blocks until every session started so far has ended and its end hook ran
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Get returns the live session for serial, or nil
func (r *Registry) Get(serial string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[serial]
}

// Serials returns the serials with live sessions, sorted
func (r *Registry) Serials() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	serials := make([]string, 0, len(r.sessions))
	for serial := range r.sessions {
		serials = append(serials, serial)
	}
	sort.Strings(serials)
	return serials
}

// remove deletes serial only if it still maps to session
func (r *Registry) remove(serial string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[serial] == session {
		delete(r.sessions, serial)
	}
}

func (r *Registry) ended(session *Session) {
	defer r.wg.Done()
	r.logger.WithFields(logrus.Fields{
		"serial":     session.Serial(),
		"session_id": session.ID(),
		"state":      session.State().String(),
	}).Debug("Session ended")
	if r.onEnd != nil {
		r.onEnd(session)
	}
}
