package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cory-johannsen/uno/internal/protocol"
	"github.com/cory-johannsen/uno/internal/transport"
)

var (
	clientKeyOnce sync.Once
	clientKey     *rsa.PrivateKey
)

// ClientKey returns an RSA key shared by every test client in the process.
func ClientKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	clientKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		clientKey = k
	})
	return clientKey
}

// Client is a protocol test client speaking the encrypted framed transport.
type Client struct {
	ch *transport.Channel
	t  testing.TB
}

// Dial connects to addr and performs the client side of the handshake.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a ready Client or fails the test.
func Dial(t testing.TB, addr string) *Client {
	t.Helper()
	c, err := TryDial(t, addr)
	if err != nil {
		t.Fatalf("connecting to %s: %v", addr, err)
	}
	return c
}

// TryDial is Dial but returns handshake failures instead of failing the test.
func TryDial(t testing.TB, addr string) (*Client, error) {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	ch := transport.NewChannel(conn, transport.Options{})
	t.Cleanup(func() { _ = ch.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.ClientHandshake(ctx, ClientKey(t)); err != nil {
		return nil, err
	}

	t.Logf("client connected to %s [%s]", addr, time.Since(start))
	return &Client{ch: ch, t: t}, nil
}

// Send writes msg.
func (c *Client) Send(msg protocol.Message) {
	c.t.Helper()
	c.SendRaw(msg.Encode())
}

// SendRaw writes text without encoding it.
func (c *Client) SendRaw(text string) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.ch.WriteMessage(ctx, text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Read returns the next message decoded against f.
func (c *Client) Read(f protocol.Family, timeout time.Duration) protocol.Message {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	text, err := c.ch.ReadMessage(ctx)
	if err != nil {
		c.t.Fatalf("reading message: %v", err)
	}
	msg, err := protocol.Decode(text, f)
	if err != nil {
		c.t.Fatalf("decoding %q: %v", text, err)
	}
	return msg
}

// ReadUntil skips messages until one of type want arrives.
//
// Postcondition: Returns the matching message, or fails on timeout.
func (c *Client) ReadUntil(want protocol.Type, timeout time.Duration) protocol.Message {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %s", want)
		}
		msg := c.Read(protocol.SessionFamily, remaining)
		if msg.Type == want {
			return msg
		}
	}
}

// ExpectClosed fails unless the server closes the connection within timeout.
func (c *Client) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		if _, err := c.ch.ReadMessage(ctx); err != nil {
			if ctx.Err() != nil {
				c.t.Fatalf("connection still open after %s", timeout)
			}
			return
		}
	}
}

// Close closes the connection.
func (c *Client) Close() {
	_ = c.ch.Close()
}
