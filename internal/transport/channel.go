package transport

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// TestWord is the plaintext the server sends to prove both sides share the key.
const TestWord = "Success"

// State is the handshake progress of a Channel.
type State int

const (
	StateUnkeyed State = iota
	StateKeyExchanged
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnkeyed:
		return "unkeyed"
	case StateKeyExchanged:
		return "key_exchanged"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrHandshakeFailed wraps every handshake failure and is returned by message
// I/O on a channel whose handshake did not complete.
var ErrHandshakeFailed = errors.New("handshake failed")

// ErrHandshakeStarted is returned by a second handshake attempt on the same channel.
var ErrHandshakeStarted = errors.New("handshake already started")

// Options tunes a Channel.
type Options struct {
	// MaxFrameBytes caps inbound frames. Zero uses DefaultMaxFrameBytes.
	MaxFrameBytes int
	// ReadTimeout is the idle limit for one inbound message. Zero disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds one outbound frame. Zero disables it.
	WriteTimeout time.Duration
}

// Channel is an encrypted, framed message pipe over one connection.
// Reads must come from a single goroutine; writes may be concurrent.
type Channel struct {
	conn net.Conn
	opts Options

	wmu sync.Mutex

	mu      sync.Mutex
	state   State
	started bool
	err     error
	cipher  *SessionCipher
	ready   chan struct{}
}

// NewChannel wraps conn. No bytes are exchanged until a handshake is run.
//
// Precondition: conn must be open.
func NewChannel(conn net.Conn, opts Options) *Channel {
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	return &Channel{
		conn:  conn,
		opts:  opts,
		ready: make(chan struct{}),
	}
}

// State returns the current handshake state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Conn returns the underlying connection.
func (c *Channel) Conn() net.Conn { return c.conn }

// Close closes the underlying connection and releases any waiter.
func (c *Channel) Close() error {
	c.finish(nil, errors.New("channel closed"))
	return c.conn.Close()
}

func (c *Channel) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrHandshakeStarted
	}
	c.started = true
	return nil
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// finish records the outcome exactly once and wakes message I/O waiters.
func (c *Channel) finish(sc *SessionCipher, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.ready:
		return
	default:
	}
	if err != nil {
		c.state = StateFailed
		c.err = err
	} else {
		c.state = StateReady
		c.cipher = sc
	}
	close(c.ready)
}

// bindContext makes blocking conn I/O return once ctx ends.
func (c *Channel) bindContext(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
}

// ServerHandshake runs the server side of the key exchange: read the client's
// PKCS#1 RSA public key, send the OAEP-wrapped AES key then IV, send the
// encrypted test word and verify the client's encrypted echo.
//
// Postcondition: State is StateReady on nil error and StateFailed otherwise.
func (c *Channel) ServerHandshake(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	stop := c.bindContext(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}
	sc, err := c.serverExchange()
	stop()
	_ = c.conn.SetDeadline(time.Time{})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	c.finish(sc, err)
	return err
}

func (c *Channel) serverExchange() (*SessionCipher, error) {
	der, err := ReadFrame(c.conn, c.opts.MaxFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("reading client key: %w", err)
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing client key: %w", err)
	}

	key, iv, err := GenerateSessionKey()
	if err != nil {
		return nil, err
	}
	sc, err := NewSessionCipher(key, iv)
	if err != nil {
		return nil, err
	}
	for _, part := range [][]byte{key, iv} {
		wrapped, err := EncryptOAEP(pub, part)
		if err != nil {
			return nil, fmt.Errorf("wrapping session key: %w", err)
		}
		if err := c.writeRaw(wrapped); err != nil {
			return nil, err
		}
	}
	c.setState(StateKeyExchanged)

	if err := c.writeRaw(sc.Encrypt([]byte(TestWord))); err != nil {
		return nil, err
	}
	echo, err := ReadFrame(c.conn, c.opts.MaxFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("reading test word: %w", err)
	}
	plain, err := sc.Decrypt(echo)
	if err != nil {
		return nil, fmt.Errorf("decrypting test word: %w", err)
	}
	if subtle.ConstantTimeCompare(plain, []byte(TestWord)) != 1 {
		return nil, errors.New("test word mismatch")
	}
	return sc, nil
}

// ClientHandshake runs the client side of the key exchange with priv.
//
// Postcondition: State is StateReady on nil error and StateFailed otherwise.
func (c *Channel) ClientHandshake(ctx context.Context, priv *rsa.PrivateKey) error {
	if err := c.begin(); err != nil {
		return err
	}
	stop := c.bindContext(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}
	sc, err := c.clientExchange(priv)
	stop()
	_ = c.conn.SetDeadline(time.Time{})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	c.finish(sc, err)
	return err
}

func (c *Channel) clientExchange(priv *rsa.PrivateKey) (*SessionCipher, error) {
	if err := c.writeRaw(x509.MarshalPKCS1PublicKey(&priv.PublicKey)); err != nil {
		return nil, err
	}
	var parts [2][]byte
	for i := range parts {
		wrapped, err := ReadFrame(c.conn, c.opts.MaxFrameBytes)
		if err != nil {
			return nil, fmt.Errorf("reading session key: %w", err)
		}
		if parts[i], err = DecryptOAEP(priv, wrapped); err != nil {
			return nil, fmt.Errorf("unwrapping session key: %w", err)
		}
	}
	sc, err := NewSessionCipher(parts[0], parts[1])
	if err != nil {
		return nil, err
	}
	c.setState(StateKeyExchanged)

	ct, err := ReadFrame(c.conn, c.opts.MaxFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("reading test word: %w", err)
	}
	word, err := sc.Decrypt(ct)
	if err != nil {
		return nil, fmt.Errorf("decrypting test word: %w", err)
	}
	if subtle.ConstantTimeCompare(word, []byte(TestWord)) != 1 {
		return nil, errors.New("test word mismatch")
	}
	if err := c.writeRaw(sc.Encrypt([]byte(TestWord))); err != nil {
		return nil, err
	}
	return sc, nil
}

func (c *Channel) writeRaw(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	return WriteFrame(c.conn, payload)
}

// awaitReady blocks until the handshake has an outcome.
func (c *Channel) awaitReady(ctx context.Context) (*SessionCipher, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		if errors.Is(c.err, ErrHandshakeFailed) {
			return nil, c.err
		}
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, c.err)
	}
	return c.cipher, nil
}

// ReadMessage blocks for the next message and returns its decrypted text.
//
// Postcondition: returns an error wrapping ErrHandshakeFailed if the handshake
// failed; any framing or decryption error is fatal to the connection.
func (c *Channel) ReadMessage(ctx context.Context) (string, error) {
	sc, err := c.awaitReady(ctx)
	if err != nil {
		return "", err
	}
	stop := c.bindContext(ctx)
	defer stop()
	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	ct, err := ReadFrame(c.conn, c.opts.MaxFrameBytes)
	if err != nil {
		return "", err
	}
	plain, err := sc.Decrypt(ct)
	if err != nil {
		return "", fmt.Errorf("decrypting message: %w", err)
	}
	return string(plain), nil
}

// WriteMessage encrypts msg and writes it as one frame.
func (c *Channel) WriteMessage(ctx context.Context, msg string) error {
	sc, err := c.awaitReady(ctx)
	if err != nil {
		return err
	}
	return c.writeRaw(sc.Encrypt([]byte(msg)))
}
