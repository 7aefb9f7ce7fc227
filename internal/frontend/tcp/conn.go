// Package tcp accepts client connections on an endpoint, gates and
// handshakes them, and gives each one an encrypted message pipe with a
// dedicated writer goroutine.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/protocol"
	"github.com/cory-johannsen/uno/internal/transport"
)

// Conn is one handshaken client connection. Messages are read by the owning
// handler goroutine; outbound messages from any goroutine go through Send.
type Conn struct {
	id      string
	channel *transport.Channel
	outbox  *Outbox
	logger  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps a ready channel and starts its writer goroutine.
//
// Precondition: ch has completed its handshake.
// Postcondition: The writer runs until Close or the first write failure.
func NewConn(id string, ch *transport.Channel, outboxSize int, logger *zap.Logger) *Conn {
	c := &Conn{
		id:      id,
		channel: ch,
		outbox:  NewOutbox(outboxSize),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// ID returns the connection id used in logs.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.channel.Conn().RemoteAddr() }

// Logger returns the connection-scoped logger.
func (c *Conn) Logger() *zap.Logger { return c.logger }

// Done is closed once the connection has been closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Read blocks for the next inbound message. Any error means the connection
// is unusable.
func (c *Conn) Read(ctx context.Context) (string, error) {
	return c.channel.ReadMessage(ctx)
}

// Send queues msg for the writer goroutine without blocking. A peer whose
// outbox overflows is disconnected.
func (c *Conn) Send(msg protocol.Message) error {
	err := c.outbox.Push(msg.Encode())
	if errors.Is(err, ErrOutboxFull) {
		c.logger.Warn("outbox overflow, disconnecting", zap.Int("queued", c.outbox.Len()))
		c.Close()
	}
	if err != nil {
		return fmt.Errorf("sending %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Conn) writeLoop() {
	for text := range c.outbox.Messages() {
		if err := c.channel.WriteMessage(context.Background(), text); err != nil {
			c.logger.Debug("write failed", zap.Error(err))
			c.Close()
			return
		}
	}
}

// Close discards queued messages and closes the socket. It is idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.outbox.Close()
		_ = c.channel.Close()
	})
}
