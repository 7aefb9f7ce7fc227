package handlers

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/uno/internal/auth"
	"github.com/cory-johannsen/uno/internal/config"
	"github.com/cory-johannsen/uno/internal/frontend/tcp"
	"github.com/cory-johannsen/uno/internal/game/lobby"
	"github.com/cory-johannsen/uno/internal/protocol"
	"github.com/cory-johannsen/uno/internal/storage/sqlite"
	"github.com/cory-johannsen/uno/internal/testutil"
)

const waitFor = 5 * time.Second

type admitAll struct{}

func (admitAll) Admit(net.Addr) bool { return true }

// seqSource returns values from a fixed cycle.
type seqSource struct {
	mu   sync.Mutex
	vals []int
	i    int
}

func (s *seqSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v % n
}

// outbox records verification mails.
type outbox struct {
	mu   sync.Mutex
	sent map[string]string
}

func (o *outbox) Send(_ context.Context, to, _, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sent == nil {
		o.sent = make(map[string]string)
	}
	o.sent[to] = body
	return nil
}

// code returns the most recent verification code mailed to addr.
func (o *outbox) code(t *testing.T, addr string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	body, ok := o.sent[addr]
	require.True(t, ok, "no mail to %s", addr)
	_, code, ok := strings.Cut(body, ": ")
	require.True(t, ok)
	return code
}

// stack is a running authentication and gameplay server pair.
type stack struct {
	repo     *sqlite.UserRepository
	tokens   *auth.Authenticator
	mail     *outbox
	lobbies  *lobby.Manager
	authAddr string
	gameAddr string
}

func startAcceptor(t *testing.T, endpoint string, handler tcp.Handler) *tcp.Acceptor {
	t.Helper()
	cfg := config.ListenerConfig{
		Host:             "127.0.0.1",
		Port:             0,
		HandshakeTimeout: waitFor,
		WriteTimeout:     waitFor,
	}
	acc := tcp.NewAcceptor(endpoint, cfg, config.TransportConfig{MaxFrameBytes: 1 << 16, OutboxSize: 256}, admitAll{}, handler, zaptest.NewLogger(t))
	errCh := make(chan error, 1)
	go func() { errCh <- acc.ListenAndServe() }()
	t.Cleanup(func() {
		acc.Stop()
		require.NoError(t, <-errCh)
	})
	require.Eventually(t, func() bool { return acc.IsRunning() && acc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	return acc
}

func startStack(t *testing.T) *stack {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "uno.db"))
	require.NoError(t, err)
	repo := sqlite.NewUserRepository(db)
	t.Cleanup(func() { _ = repo.Close() })

	s := &stack{
		repo:   repo,
		tokens: auth.NewAuthenticator(0),
		mail:   &outbox{},
	}
	svc := auth.NewService(repo, s.mail, s.tokens, 5*time.Minute, logger)
	s.lobbies = lobby.NewManager(config.GameConfig{MaxPlayers: 4, HandSize: 7}, &seqSource{vals: []int{0, 3, 1, 4, 1, 5, 9, 2, 6}}, repo, logger)

	s.authAddr = startAcceptor(t, "auth", NewAuthHandler(svc, &seqSource{vals: []int{0}}, logger)).Addr()
	s.gameAddr = startAcceptor(t, "gameplay", NewSessionHandler(s.tokens, s.lobbies, repo, logger)).Addr()
	return s
}

// signUp registers, confirms and logs in username, returning its token.
func (s *stack) signUp(t *testing.T, username string) string {
	t.Helper()
	email := username + "@example.com"
	c := testutil.Dial(t, s.authAddr)
	defer c.Close()

	c.Send(protocol.New(protocol.RegisterRequest, username, "Passw0rd", email))
	require.Equal(t, []string{"TwoFactorAuthenticationSent"}, c.Read(protocol.AuthFamily, waitFor).Params)

	c.Send(protocol.New(protocol.TwoFARequest, username, s.mail.code(t, email)))
	require.Equal(t, []string{"Success"}, c.Read(protocol.AuthFamily, waitFor).Params)

	c.Send(protocol.New(protocol.LoginRequest, username, "Passw0rd"))
	resp := c.Read(protocol.AuthFamily, waitFor)
	require.Equal(t, protocol.LoginResponse, resp.Type)
	require.Equal(t, "Success", resp.Param(0))
	return resp.Param(1)
}

// player signs username up and opens an authenticated gameplay connection.
func (s *stack) player(t *testing.T, username string) *testutil.Client {
	t.Helper()
	token := s.signUp(t, username)
	c := testutil.Dial(t, s.gameAddr)
	c.Send(protocol.New(protocol.AuthenticationRequest, username, token))
	return c
}

// createLobby creates a lobby from c and returns its id.
func createLobby(t *testing.T, c *testutil.Client, name string) string {
	t.Helper()
	c.Send(protocol.New(protocol.CreateLobby, "0", name, "ignored", "0"))
	resp := c.ReadUntil(protocol.CreateLobby, waitFor)
	require.Len(t, resp.Params, 5)
	require.Equal(t, "Success", resp.Param(0))
	return resp.Param(1)
}

// signUpAgain logs an existing user in and returns a fresh token.
func (s *stack) signUpAgain(t *testing.T, username string) string {
	t.Helper()
	c := testutil.Dial(t, s.authAddr)
	defer c.Close()
	c.Send(protocol.New(protocol.LoginRequest, username, "Passw0rd"))
	resp := c.Read(protocol.AuthFamily, waitFor)
	require.Equal(t, "Success", resp.Param(0))
	return resp.Param(1)
}
