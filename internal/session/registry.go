// Package session owns the live platform connections of our automated
// identities and the pool that hands them out.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/ArafathHabib/telegpbuyer2/internal/errors"
	"github.com/ArafathHabib/telegpbuyer2/internal/platform"
)

type entry struct {
	client platform.Client
	// sem admits one call sequence at a time.
	sem chan struct{}
}

// Registry maps session ids to live connections. A connection is used by at
// most one caller at a time.
type Registry struct {
	mu          sync.RWMutex
	entries     map[int64]*entry
	callTimeout time.Duration
	locker      Locker
	logger      logrus.FieldLogger
}

func NewRegistry(callTimeout time.Duration, logger logrus.FieldLogger) *Registry {
	return &Registry{
		entries:     make(map[int64]*entry),
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// SetLocker adds a cross-process lock taken after the local semaphore.
func (r *Registry) SetLocker(l Locker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locker = l
}

// Register stores c under id. A connection it replaces is dropped but not
// closed: both address the same gateway session, and closing one detaches it.
func (r *Registry) Register(id int64, c platform.Client) {
	r.mu.Lock()
	r.entries[id] = &entry{client: c, sem: make(chan struct{}, 1)}
	r.mu.Unlock()
}

// Deregister drops and closes the connection for id. Unknown ids are ignored.
func (r *Registry) Deregister(id int64) {
	r.mu.Lock()
	old := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if old != nil {
		r.close(id, old.client)
	}
}

func (r *Registry) Registered(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// WithConnection runs fn with exclusive use of the session's connection.
// Every platform call made through the client handed to fn is bounded by the
// registry's call timeout. Returns ErrSessionNotRegistered when the session
// holds no live connection.
func (r *Registry) WithConnection(ctx context.Context, id int64, fn func(ctx context.Context, c platform.Client) error) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	locker := r.locker
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %d: %w", id, appErrors.ErrSessionNotRegistered)
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	if locker != nil {
		release, err := locker.Obtain(ctx, id)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.WithField("session_id", id).WithError(err).Warn("release session lock")
			}
		}()
	}

	return fn(ctx, withTimeout(e.client, r.callTimeout))
}

// Close drops every connection without closing it. Gateway sessions are
// shared with other processes and stay attached; only Deregister, on
// retirement, detaches a session.
func (r *Registry) Close() {
	r.mu.Lock()
	r.entries = make(map[int64]*entry)
	r.mu.Unlock()
}

func (r *Registry) close(id int64, c platform.Client) {
	closer, ok := c.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		r.logger.WithField("session_id", id).WithError(err).Warn("close session connection")
	}
}
