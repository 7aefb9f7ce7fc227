package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/config"
	"github.com/cory-johannsen/uno/internal/observability"
	"github.com/cory-johannsen/uno/internal/transport"
)

// Handler runs the message loop of one connection. Returning ends the
// connection.
type Handler interface {
	Serve(ctx context.Context, conn *Conn) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn *Conn) error

// Serve calls f.
func (f HandlerFunc) Serve(ctx context.Context, conn *Conn) error { return f(ctx, conn) }

// Admitter decides whether a freshly accepted connection may proceed.
type Admitter interface {
	Admit(addr net.Addr) bool
}

// Acceptor listens on one endpoint, admits and handshakes each connection
// and hands it to a Handler on its own goroutine.
type Acceptor struct {
	endpoint  string
	cfg       config.ListenerConfig
	transport config.TransportConfig
	gate      Admitter
	handler   Handler
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	running  bool
}

// NewAcceptor creates an Acceptor for the named endpoint.
//
// Precondition: cfg and tcfg are valid; gate, handler and logger are non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(endpoint string, cfg config.ListenerConfig, tcfg config.TransportConfig, gate Admitter, handler Handler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		endpoint:  endpoint,
		cfg:       cfg,
		transport: tcfg,
		gate:      gate,
		handler:   handler,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start is ListenAndServe, so an Acceptor can run under server.Lifecycle.
func (a *Acceptor) Start() error { return a.ListenAndServe() }

// ListenAndServe accepts connections until Stop is called.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("acceptor listening",
		zap.String("endpoint", a.endpoint),
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		raw, err := listener.Accept()
		if err != nil {
			if a.ctx.Err() != nil {
				return nil
			}
			a.logger.Error("accepting connection", zap.Error(err))
			continue
		}

		// Stop holds mu after cancelling, so no Add can follow its Wait.
		a.mu.Lock()
		if a.ctx.Err() != nil {
			a.mu.Unlock()
			_ = raw.Close()
			return nil
		}
		a.wg.Add(1)
		a.mu.Unlock()
		go a.handleConn(raw)
	}
}

// handleConn admits, handshakes and serves one connection.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	start := time.Now()

	if !a.gate.Admit(raw.RemoteAddr()) {
		_ = raw.Close()
		return
	}

	id := uuid.NewString()
	logger := observability.ConnLogger(a.logger, a.endpoint, id, raw.RemoteAddr().String())
	logger.Info("client connected")

	ch := transport.NewChannel(raw, transport.Options{
		MaxFrameBytes: a.transport.MaxFrameBytes,
		ReadTimeout:   a.cfg.ReadTimeout,
		WriteTimeout:  a.cfg.WriteTimeout,
	})

	hctx, cancel := a.ctx, context.CancelFunc(func() {})
	if a.cfg.HandshakeTimeout > 0 {
		hctx, cancel = context.WithTimeout(a.ctx, a.cfg.HandshakeTimeout)
	}
	err := ch.ServerHandshake(hctx)
	cancel()
	if err != nil {
		logger.Warn("handshake failed", zap.Error(err))
		_ = ch.Close()
		return
	}

	conn := NewConn(id, ch, a.transport.OutboxSize, logger)
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if err := a.handler.Serve(a.ctx, conn); err != nil {
		logger.Debug("session ended",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	logger.Info("session ended cleanly", zap.Duration("duration", time.Since(start)))
}

// Stop closes the listener, cancels every connection and waits for their
// goroutines to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.cancel()

	a.mu.Lock()
	listener := a.listener
	wasRunning := a.running
	a.running = false
	a.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	a.wg.Wait()
	if wasRunning {
		a.logger.Info("acceptor stopped", zap.String("endpoint", a.endpoint))
	}
}

// Addr returns the listening address, or the empty string before listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning reports whether the acceptor is accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
