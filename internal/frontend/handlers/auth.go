// Package handlers provides the per-connection session loops for the
// authentication and gameplay endpoints.
package handlers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/auth"
	"github.com/cory-johannsen/uno/internal/frontend/tcp"
	"github.com/cory-johannsen/uno/internal/protocol"
)

// AuthService defines the account operations required by AuthHandler.
type AuthService interface {
	Login(ctx context.Context, username, password string) (protocol.LoginResult, string)
	Register(ctx context.Context, username, password, email string) protocol.RegisterResult
	VerifyTwoFA(ctx context.Context, username, code string) protocol.TwoFAResult
}

// AuthHandler implements tcp.Handler for the authentication endpoint. Each
// request is answered with exactly one response on the same connection.
type AuthHandler struct {
	accounts AuthService
	robots   auth.Intn
	logger   *zap.Logger
}

// NewAuthHandler creates an AuthHandler backed by accounts.
//
// Precondition: accounts, robots, and logger must be non-nil.
// Postcondition: Returns an AuthHandler ready to serve connections.
func NewAuthHandler(accounts AuthService, robots auth.Intn, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		robots:   robots,
		logger:   logger,
	}
}

// Serve implements tcp.Handler. It answers requests until the peer
// disconnects or ctx is cancelled.
//
// Postcondition: Returns the error that ended the connection.
func (h *AuthHandler) Serve(ctx context.Context, conn *tcp.Conn) error {
	start := time.Now()
	logger := conn.Logger()
	defer func() {
		logger.Info("auth session ended", zap.Duration("session_duration", time.Since(start)))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading message: %w", err)
		}
		msg, err := protocol.Decode(text, protocol.AuthFamily)
		if err != nil {
			logger.Debug("dropping undecodable message", zap.Error(err))
			continue
		}
		reply, ok := h.dispatch(ctx, logger, msg)
		if !ok {
			continue
		}
		if err := conn.Send(reply); err != nil {
			return err
		}
	}
}

// dispatch computes the reply to msg. ok is false when msg gets no reply.
func (h *AuthHandler) dispatch(ctx context.Context, logger *zap.Logger, msg protocol.Message) (reply protocol.Message, ok bool) {
	switch msg.Type {
	case protocol.LoginRequest:
		return h.handleLogin(ctx, logger, msg), true
	case protocol.RegisterRequest:
		return h.handleRegister(ctx, logger, msg), true
	case protocol.TwoFARequest:
		return h.handleTwoFA(ctx, logger, msg), true
	case protocol.NotARobotRequest:
		return h.handleNotARobot(), true
	default:
		logger.Debug("ignoring message", zap.String("type", string(msg.Type)))
		return protocol.Message{}, false
	}
}

func (h *AuthHandler) handleLogin(ctx context.Context, logger *zap.Logger, msg protocol.Message) protocol.Message {
	if err := msg.Expect(2); err != nil {
		logger.Debug("malformed login", zap.Error(err))
		return protocol.New(protocol.LoginResponse, string(protocol.LoginUnknownError), "")
	}
	username := msg.Param(0)
	start := time.Now()
	result, token := h.accounts.Login(ctx, username, msg.Param(1))
	logger.Info("login",
		zap.String("username", username),
		zap.String("result", string(result)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return protocol.New(protocol.LoginResponse, string(result), token)
}

func (h *AuthHandler) handleRegister(ctx context.Context, logger *zap.Logger, msg protocol.Message) protocol.Message {
	if err := msg.Expect(3); err != nil {
		logger.Debug("malformed register", zap.Error(err))
		return protocol.New(protocol.RegisterResponse, string(protocol.RegisterUnknownError))
	}
	username := msg.Param(0)
	result := h.accounts.Register(ctx, username, msg.Param(1), msg.Param(2))
	logger.Info("register",
		zap.String("username", username),
		zap.String("result", string(result)),
	)
	return protocol.New(protocol.RegisterResponse, string(result))
}

func (h *AuthHandler) handleTwoFA(ctx context.Context, logger *zap.Logger, msg protocol.Message) protocol.Message {
	if err := msg.Expect(2); err != nil {
		logger.Debug("malformed 2fa", zap.Error(err))
		return protocol.New(protocol.TwoFAResponse, string(protocol.TwoFANone))
	}
	username := msg.Param(0)
	result := h.accounts.VerifyTwoFA(ctx, username, msg.Param(1))
	logger.Info("2fa",
		zap.String("username", username),
		zap.String("result", string(result)),
	)
	return protocol.New(protocol.TwoFAResponse, string(result))
}

func (h *AuthHandler) handleNotARobot() protocol.Message {
	tiles := auth.RobotTiles(h.robots)
	params := make([]string, 0, len(tiles)+1)
	params = append(params, protocol.NotARobotSquares)
	for _, set := range tiles {
		params = append(params, protocol.FormatBool(set))
	}
	return protocol.New(protocol.NotARobotResponse, params...)
}
