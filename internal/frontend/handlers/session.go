package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/frontend/tcp"
	"github.com/cory-johannsen/uno/internal/game/lobby"
	"github.com/cory-johannsen/uno/internal/protocol"
	"github.com/cory-johannsen/uno/internal/storage"
)

// TokenChecker validates session tokens issued by the authentication endpoint.
type TokenChecker interface {
	Check(username, token string) bool
}

// StatsStore defines the stats lookup required by SessionHandler.
type StatsStore interface {
	Stats(ctx context.Context, username string) (storage.Stats, error)
}

// SessionHandler implements tcp.Handler for the gameplay endpoint. A
// connection must authenticate with a token before anything else is
// processed; once seated in a lobby its game messages are routed there.
type SessionHandler struct {
	tokens  TokenChecker
	lobbies *lobby.Manager
	stats   StatsStore
	logger  *zap.Logger
}

// NewSessionHandler creates a SessionHandler.
//
// Precondition: tokens, lobbies, stats, and logger must be non-nil.
// Postcondition: Returns a SessionHandler ready to serve connections.
func NewSessionHandler(tokens TokenChecker, lobbies *lobby.Manager, stats StatsStore, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		tokens:  tokens,
		lobbies: lobbies,
		stats:   stats,
		logger:  logger,
	}
}

// session is the state of one gameplay connection. It is a lobby.Member.
// All fields are owned by the Serve goroutine.
type session struct {
	conn          *tcp.Conn
	logger        *zap.Logger
	username      string
	authenticated bool
	browsing      bool
	joined        *lobby.Lobby
}

// Name implements lobby.Member.
func (s *session) Name() string { return s.username }

// Send implements lobby.Sender.
func (s *session) Send(msg protocol.Message) error { return s.conn.Send(msg) }

// Serve implements tcp.Handler.
//
// Postcondition: on return the session is unsubscribed from lobby updates
// and has left any lobby it joined.
func (h *SessionHandler) Serve(ctx context.Context, conn *tcp.Conn) error {
	start := time.Now()
	s := &session{conn: conn, logger: conn.Logger()}
	defer func() {
		h.release(s)
		s.logger.Info("gameplay session ended",
			zap.String("username", s.username),
			zap.Duration("session_duration", time.Since(start)),
		)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading message: %w", err)
		}
		msg, err := protocol.Decode(text, protocol.SessionFamily)
		if err != nil {
			s.logger.Debug("dropping undecodable message", zap.Error(err))
			continue
		}
		if err := h.dispatch(ctx, s, msg); err != nil {
			return err
		}
	}
}

func (h *SessionHandler) dispatch(ctx context.Context, s *session, msg protocol.Message) error {
	if s.joined != nil && !s.joined.Seats(s) {
		s.logger.Info("match concluded, seat released", zap.Int("lobby_id", s.joined.ID()))
		s.joined = nil
	}
	if msg.Type == protocol.AuthenticationRequest {
		h.authenticate(s, msg)
		return nil
	}
	if !s.authenticated {
		s.logger.Debug("dropping unauthenticated message", zap.String("type", string(msg.Type)))
		return nil
	}
	if s.joined != nil {
		if protocol.GameFamily.Has(msg.Type) {
			s.joined.Handle(ctx, s, msg)
		} else {
			s.logger.Debug("ignoring message in lobby", zap.String("type", string(msg.Type)))
		}
		return nil
	}

	switch msg.Type {
	case protocol.JoinedLobbySelection:
		if !s.browsing {
			s.browsing = true
			h.lobbies.Subscribe(s)
		}
		return nil
	case protocol.CreateLobby:
		return s.Send(h.createLobby(s, msg))
	case protocol.JoinLobby:
		h.joinLobby(s, msg)
		return nil
	case protocol.GetStatsRequest:
		return h.getStats(ctx, s, msg)
	default:
		s.logger.Debug("ignoring message", zap.String("type", string(msg.Type)))
		return nil
	}
}

// authenticate re-evaluates the connection's identity on every attempt. A
// seated session keeps its identity so the lobby's view of it stays stable.
func (h *SessionHandler) authenticate(s *session, msg protocol.Message) {
	if s.joined != nil {
		s.logger.Debug("ignoring re-authentication while seated")
		return
	}
	if err := msg.Expect(2); err != nil {
		s.authenticated = false
		s.logger.Debug("malformed authentication", zap.Error(err))
		return
	}
	username := msg.Param(0)
	s.authenticated = h.tokens.Check(username, msg.Param(1))
	if !s.authenticated {
		s.logger.Info("authentication refused", zap.String("username", username))
		return
	}
	s.username = username
	s.logger = s.conn.Logger().With(zap.String("username", username))
	s.logger.Info("authenticated")
}

// createLobby accepts either a full lobby record or a bare name. The host is
// always the session's own username.
func (h *SessionHandler) createLobby(s *session, msg protocol.Message) protocol.Message {
	var name string
	switch len(msg.Params) {
	case protocol.LobbySummaryArity:
		req, err := protocol.ParseLobbySummary(msg.Params)
		if err != nil {
			s.logger.Debug("malformed create lobby", zap.Error(err))
			return protocol.New(protocol.CreateLobby, string(protocol.JoinFailed))
		}
		name = req.Name
	case 1:
		name = msg.Param(0)
	default:
		s.logger.Debug("malformed create lobby", zap.Int("params", len(msg.Params)))
		return protocol.New(protocol.CreateLobby, string(protocol.JoinFailed))
	}
	if name == "" {
		return protocol.New(protocol.CreateLobby, string(protocol.JoinFailed))
	}

	summary := h.lobbies.Create(name, s.username)
	s.logger.Info("lobby created", zap.Int("lobby_id", summary.ID), zap.String("lobby_name", name))
	return protocol.New(protocol.CreateLobby, append([]string{string(protocol.JoinSuccess)}, summary.Fields()...)...)
}

// joinLobby seats the session. The manager sends the JoinLobby reply.
func (h *SessionHandler) joinLobby(s *session, msg protocol.Message) {
	id, err := strconv.Atoi(msg.Param(0))
	if err != nil {
		s.logger.Debug("malformed join lobby", zap.String("id", msg.Param(0)))
		_ = s.Send(protocol.New(protocol.JoinLobby, string(protocol.JoinLobbyNotFound)))
		return
	}
	// A seated player gets no list pushes, including the one its own join causes.
	if s.browsing {
		h.lobbies.Unsubscribe(s)
	}
	l, result := h.lobbies.Join(s, id)
	s.logger.Info("join lobby", zap.Int("lobby_id", id), zap.String("result", string(result)))
	if result != protocol.JoinSuccess {
		if s.browsing {
			h.lobbies.Subscribe(s)
		}
		return
	}
	s.browsing = false
	s.joined = l
}

func (h *SessionHandler) getStats(ctx context.Context, s *session, msg protocol.Message) error {
	username := msg.Param(0)
	if username == "" {
		username = s.username
	}
	st, err := h.stats.Stats(ctx, username)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		st = storage.Stats{}
	case err != nil:
		s.logger.Error("loading stats", zap.String("player", username), zap.Error(err))
		return nil
	}
	return s.Send(protocol.New(protocol.GetStatsResponse, strconv.Itoa(st.Won), strconv.Itoa(st.Lost)))
}

func (h *SessionHandler) release(s *session) {
	if s.browsing {
		h.lobbies.Unsubscribe(s)
	}
	if s.joined != nil {
		// Departure handling must run even when shutdown cancelled ctx.
		h.lobbies.Leave(context.Background(), s.joined, s)
		s.joined = nil
	}
}
