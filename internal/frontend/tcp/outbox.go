package tcp

import (
	"errors"
	"sync"
)

var (
	// ErrOutboxClosed is returned by Push after Close.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrOutboxFull is returned by Push when the buffer has no room.
	ErrOutboxFull = errors.New("outbox full")
)

// DefaultOutboxSize is used when a non-positive size is requested.
const DefaultOutboxSize = 256

// Outbox is the bounded queue of encoded messages waiting for a
// connection's writer goroutine.
type Outbox struct {
	messages chan string
	mu       sync.Mutex
	closed   bool
}

// NewOutbox creates an Outbox holding at most size messages.
//
// Postcondition: Returns an open Outbox.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{messages: make(chan string, size)}
}

// Push enqueues msg without blocking.
//
// Postcondition: msg is queued, or ErrOutboxClosed / ErrOutboxFull is returned.
func (o *Outbox) Push(msg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.messages <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Messages returns the receive side drained by the writer goroutine. It is
// closed by Close.
func (o *Outbox) Messages() <-chan string {
	return o.messages
}

// Close stops further pushes and closes the Messages channel. Queued
// messages remain readable.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.messages)
	}
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	return len(o.messages)
}
