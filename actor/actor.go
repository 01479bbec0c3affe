// Package actor gives a single sqlite handle to one dedicated goroutine
// and lets everything else reach it through a channel of closures, so
// every write against the store is serialized without an explicit lock.
package actor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bushi.sh/bushi/core/db"
)

// ErrActorGone is returned by SubmitSync/SubmitAsync once the actor has
// been closed.
var ErrActorGone = errors.New("actor: closed")

// DefaultQueueCapacity bounds how many units may be in flight (submitted
// but not yet run) before a submitter blocks.
const DefaultQueueCapacity = 128

// Unit is one piece of work run against the store's *sql.DB on the
// actor's dedicated goroutine. Its result (whatever shape the caller
// wants) and error are returned to the submitter only; a failing unit
// never stops the actor.
type Unit func(ctx context.Context, conn *sql.DB) (any, error)

type request struct {
	ctx   context.Context
	unit  Unit
	reply chan response
}

type response struct {
	value any
	err   error
}

// DbActor owns a *sql.DB and runs every Unit submitted to it, strictly in
// submission order, on a single goroutine.
type DbActor struct {
	conn     *sql.DB
	requests chan request
	done     chan struct{}
	logger   *slog.Logger

	queueCapacity int

	// mu guards the transition to closed. A submitter holds the read
	// side while enqueuing so Close (which takes the write side before
	// closing requests) can never close the channel out from under an
	// in-flight send.
	mu     sync.RWMutex
	closed bool
}

// Open opens the store at dbPath (applying pragmas and schema, with
// bootstrap retry, via db.Open, using busyTimeout for the SQLITE_BUSY
// wait) and starts its actor goroutine.
func Open(dbPath string, busyTimeout time.Duration, opts ...Option) (*DbActor, error) {
	conn, err := db.Open(dbPath, busyTimeout)
	if err != nil {
		return nil, err
	}
	return New(conn, opts...), nil
}

// Option configures a DbActor at construction time.
type Option func(*DbActor)

// WithLogger overrides the default (slog.Default()) logger a failing
// unit's error is reported through.
func WithLogger(logger *slog.Logger) Option {
	return func(a *DbActor) { a.logger = logger }
}

// WithQueueCapacity overrides DefaultQueueCapacity, the number of
// submitted-but-not-yet-run units a submitter can enqueue before
// blocking.
func WithQueueCapacity(capacity int) Option {
	return func(a *DbActor) { a.queueCapacity = capacity }
}

// New starts an actor goroutine over an already-open conn. The caller
// keeps ownership of conn's lifetime via Close.
func New(conn *sql.DB, opts ...Option) *DbActor {
	a := &DbActor{
		conn:          conn,
		done:          make(chan struct{}),
		logger:        slog.Default(),
		queueCapacity: DefaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.requests = make(chan request, a.queueCapacity)
	go a.run()
	return a
}

func (a *DbActor) run() {
	defer close(a.done)
	for req := range a.requests {
		value, err := req.unit(req.ctx, a.conn)
		if err != nil {
			a.logger.Error("unit failed", "err", err)
		}
		req.reply <- response{value: value, err: err}
	}
}

// SubmitSync enqueues unit and blocks until it has run, returning its
// result. ctx passed to the unit is context.Background().
func (a *DbActor) SubmitSync(unit Unit) (any, error) {
	reply, err := a.enqueue(context.Background(), unit)
	if err != nil {
		return nil, err
	}
	resp := <-reply
	return resp.value, resp.err
}

// SubmitAsync enqueues unit and suspends the calling goroutine until it
// has run or ctx is done, whichever comes first. A ctx cancellation while
// waiting for a queue slot, or while waiting for the result, both return
// ctx.Err() — the unit itself may still run to completion on the actor's
// goroutine in the latter case, since there is no way to recall work
// already handed off.
func (a *DbActor) SubmitAsync(ctx context.Context, unit Unit) (any, error) {
	reply, err := a.enqueue(ctx, unit)
	if err != nil {
		return nil, err
	}
	select {
	case resp := <-reply:
		return resp.value, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *DbActor) enqueue(ctx context.Context, unit Unit) (chan response, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrActorGone
	}

	reply := make(chan response, 1)
	select {
	case a.requests <- request{ctx: ctx, unit: unit, reply: reply}:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new units, closes the submission channel once
// any in-flight enqueue has completed, and waits for the goroutine to
// drain and exit. Units already enqueued still run; calls made after
// Close returns fail with ErrActorGone.
func (a *DbActor) Close() error {
	a.mu.Lock()
	a.closed = true
	close(a.requests)
	a.mu.Unlock()

	<-a.done
	if err := a.conn.Close(); err != nil {
		return fmt.Errorf("actor: closing store: %w", err)
	}
	return nil
}
