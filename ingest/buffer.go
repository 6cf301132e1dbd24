package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/datatrails/groveauth/store"
)

// ErrBufferFull is returned by Buffer.Queue when the buffer is at capacity.
var ErrBufferFull = errors.New("ingest: validation buffer is full")

// ErrMaxAttemptsReached is returned by Buffer.Next when an operation has
// come back Retry as many times as the buffer's attempt budget (spec
// §4.6: "fails with MaxAttemptsReached after N attempts").
var ErrMaxAttemptsReached = errors.New("ingest: max ingest attempts reached")

type queuedOp struct {
	headerBytes []byte
	body        []byte
	attempts    int
}

// Buffer wraps Ingest with the out-of-order buffering behaviour spec §4.6
// describes: operations that come back Retry are pushed to the tail of an
// internal FIFO and re-attempted later, bounded by a per-operation attempt
// budget equal to the buffer's capacity (the worst case where every
// operation arrives in exactly reverse dependency order).
type Buffer struct {
	mu       sync.Mutex
	st       store.Store
	capacity int
	maxAttempts int
	queue    []queuedOp
	notify   chan struct{}
}

// NewBuffer creates a Buffer with the given capacity. Its per-operation
// attempt budget is set to the same value (per spec §6,
// ingest_max_attempts defaults to the buffer size); see WithMaxAttempts.
func NewBuffer(st store.Store, capacity int) *Buffer {
	return &Buffer{
		st:          st,
		capacity:    capacity,
		maxAttempts: capacity,
		notify:      make(chan struct{}, 1),
	}
}

// WithMaxAttempts overrides the default attempt budget (capacity).
func (b *Buffer) WithMaxAttempts(n int) *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxAttempts = n
	return b
}

// Queue pushes a freshly received operation onto the buffer.
func (b *Buffer) Queue(headerBytes, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) >= b.capacity {
		return ErrBufferFull
	}
	b.queue = append(b.queue, queuedOp{headerBytes: headerBytes, body: body})
	return nil
}

// Next pops the head of the buffer and attempts to ingest it. On Retry it
// is pushed back to the tail with its attempt counter incremented; once
// that counter reaches the configured budget, Next returns
// ErrMaxAttemptsReached for that operation instead of re-queuing it
// forever.
func (b *Buffer) Next(ctx context.Context) (Outcome, error) {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return Outcome{}, nil
	}
	head := b.queue[0]
	b.queue = b.queue[1:]
	b.mu.Unlock()

	outcome, err := Ingest(ctx, b.st, head.headerBytes, head.body)
	if err != nil {
		return Outcome{}, err
	}

	if outcome.Status == Retry {
		head.attempts++
		if head.attempts >= b.maxAttempts {
			return Outcome{}, fmt.Errorf("%w: operation %s", ErrMaxAttemptsReached, outcome.Operation.Hash)
		}
		b.mu.Lock()
		b.queue = append(b.queue, head)
		b.mu.Unlock()
		return outcome, nil
	}

	b.wake()
	return outcome, nil
}

// Len reports how many operations are currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Wait blocks until a completion is signalled by Next, or ctx is
// cancelled. Callers typically loop: Next(); if nothing completed,
// Wait(ctx).
func (b *Buffer) Wait(ctx context.Context) error {
	select {
	case <-b.notify:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Buffer) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
