/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: resolver.go
Description: PID to package-name resolver for one device session. Holds a single process
table built lazily on first use; a lookup miss triggers one full re-snapshot which replaces
the table wholesale. Snapshot failures suppress further refreshes for a short back-off.
*/

package process

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRetryAfter is how long refreshes are suppressed after a failed snapshot
const DefaultRetryAfter = 5 * time.Second

// ResolverStats summarises cache behaviour
type ResolverStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Snapshots int64 `json:"snapshots"`
	Failures  int64 `json:"failures"`
	Entries   int   `json:"entries"`
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithRetryAfter sets the back-off applied after a failed snapshot
func WithRetryAfter(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.retryAfter = d }
}

// WithLogger sets the resolver's logger
func WithLogger(logger *logrus.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// SnapshotHook is told about every successful refresh
type SnapshotHook func(serial, pid string, entries int, took time.Duration)

// WithSnapshotHook reports refreshes to hook instead of the resolver's logger
func WithSnapshotHook(hook SnapshotHook) ResolverOption {
	return func(r *Resolver) { r.onSnapshot = hook }
}

// Resolver resolves PIDs to package names for a single serial.
// It is owned by one session; the mutex only protects concurrent readers of
// Stats and Len.
type Resolver struct {
	serial     string
	source     Source
	retryAfter time.Duration
	logger     *logrus.Logger
	onSnapshot SnapshotHook
	now        func() time.Time

	mu      sync.Mutex
	table   Table
	loaded  bool
	retryAt time.Time
	stats   ResolverStats
}

// NewResolver creates a resolver whose table is filled on first Resolve
func NewResolver(serial string, source Source, opts ...ResolverOption) *Resolver {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	r := &Resolver{
		serial:     serial,
		source:     source,
		retryAfter: DefaultRetryAfter,
		logger:     discard,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the package owning pid. A hit performs no I/O. A miss takes
// one fresh snapshot, replaces the table and looks again; a PID still absent
// resolves to "". A snapshot error is returned and the old table is kept.
func (r *Resolver) Resolve(ctx context.Context, pid string) (string, error) {
	r.mu.Lock()
	if r.loaded {
		if pkg, ok := r.table.Lookup(pid); ok {
			r.stats.Hits++
			r.mu.Unlock()
			return pkg, nil
		}
		r.stats.Misses++
	}
	if !r.retryAt.IsZero() && r.now().Before(r.retryAt) {
		r.mu.Unlock()
		return "", nil
	}
	r.mu.Unlock()

	start := r.now()
	table, err := r.source.Snapshot(ctx, r.serial)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Snapshots++
	if err != nil {
		r.stats.Failures++
		r.retryAt = r.now().Add(r.retryAfter)
		r.logger.WithFields(logrus.Fields{
			"serial":      r.serial,
			"pid":         pid,
			"retry_after": r.retryAfter,
		}).WithError(err).Warn("Process snapshot failed")
		return "", err
	}

	r.table = table
	r.loaded = true
	r.retryAt = time.Time{}
	took := r.now().Sub(start)
	if r.onSnapshot != nil {
		r.onSnapshot(r.serial, pid, len(table), took)
	} else {
		r.logger.WithFields(logrus.Fields{
			"serial":   r.serial,
			"pid":      pid,
			"entries":  len(table),
			"duration": took,
		}).Debug("Process table refreshed")
	}

	pkg, _ := table.Lookup(pid)
	return pkg, nil
}

// Len returns the number of entries in the current table
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}

// Stats returns a copy of the resolver counters
func (r *Resolver) Stats() ResolverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	stats.Entries = len(r.table)
	return stats
}
