package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/uno/internal/protocol"
	"github.com/cory-johannsen/uno/internal/testutil"
)

func TestUnauthenticatedMessagesDropped(t *testing.T) {
	s := startStack(t)
	token := s.signUp(t, "alice")
	c := testutil.Dial(t, s.gameAddr)

	c.Send(protocol.New(protocol.GetStatsRequest, "alice"))
	c.Send(protocol.New(protocol.AuthenticationRequest, "alice", "wrong-token-123"))
	c.Send(protocol.New(protocol.GetStatsRequest, "alice"))
	c.Send(protocol.New(protocol.AuthenticationRequest, "alice", token))
	c.Send(protocol.New(protocol.CreateLobby, "first"))

	// Only the request sent after a passing attempt is answered.
	resp := c.Read(protocol.SessionFamily, waitFor)
	assert.Equal(t, protocol.CreateLobby, resp.Type)
	assert.Equal(t, "first", resp.Param(2))
}

func TestFailedReauthenticationRevokesSession(t *testing.T) {
	s := startStack(t)
	c := s.player(t, "alice")

	c.Send(protocol.New(protocol.AuthenticationRequest, "alice", "not-the-token!!"))
	c.Send(protocol.New(protocol.GetStatsRequest, "alice"))
	c.Send(protocol.New(protocol.AuthenticationRequest, "mallory", "not-the-token!!"))
	c.Send(protocol.New(protocol.CreateLobby, "dropped"))
	c.Send(protocol.New(protocol.NotARobotRequest))

	c.Send(protocol.New(protocol.AuthenticationRequest, "alice", s.signUpAgain(t, "alice")))
	c.Send(protocol.New(protocol.CreateLobby, "kept"))
	resp := c.Read(protocol.SessionFamily, waitFor)
	assert.Equal(t, protocol.CreateLobby, resp.Type)
	assert.Equal(t, "kept", resp.Param(2))
}

func TestCreateLobbyUsesSessionAsHost(t *testing.T) {
	s := startStack(t)
	c := s.player(t, "alice")

	c.Send(protocol.New(protocol.CreateLobby, "7", "table", "mallory", "3"))
	resp := c.Read(protocol.SessionFamily, waitFor)
	assert.Equal(t, protocol.New(protocol.CreateLobby, "Success", "0", "table", "alice", "0"), resp)

	c.Send(protocol.New(protocol.CreateLobby, "x", "table", "alice", "0"))
	assert.Equal(t, protocol.New(protocol.CreateLobby, "Failed"), c.Read(protocol.SessionFamily, waitFor))

	c.Send(protocol.New(protocol.CreateLobby, "a", "b"))
	assert.Equal(t, protocol.New(protocol.CreateLobby, "Failed"), c.Read(protocol.SessionFamily, waitFor))
}

func TestBrowserSeesLobbyList(t *testing.T) {
	s := startStack(t)
	browser := s.player(t, "alice")
	host := s.player(t, "bob")

	browser.Send(protocol.New(protocol.JoinedLobbySelection))
	initial := browser.ReadUntil(protocol.LobbyList, waitFor)
	assert.Empty(t, initial.Params)

	createLobby(t, host, "table")
	update := browser.ReadUntil(protocol.LobbyList, waitFor)
	lobbies, err := protocol.ParseLobbyList(update.Params)
	require.NoError(t, err)
	require.Len(t, lobbies, 1)
	assert.Equal(t, protocol.LobbySummary{ID: 0, Name: "table", Host: "bob", PlayerCount: 0}, lobbies[0])
}

func TestJoinLobbyReplies(t *testing.T) {
	s := startStack(t)
	c := s.player(t, "alice")

	c.Send(protocol.New(protocol.JoinLobby, "42"))
	assert.Equal(t, protocol.New(protocol.JoinLobby, "LobbyNotFound"), c.Read(protocol.SessionFamily, waitFor))

	c.Send(protocol.New(protocol.JoinLobby, "forty-two"))
	assert.Equal(t, protocol.New(protocol.JoinLobby, "LobbyNotFound"), c.Read(protocol.SessionFamily, waitFor))

	id := createLobby(t, c, "table")
	c.Send(protocol.New(protocol.JoinLobby, id))
	assert.Equal(t, protocol.New(protocol.JoinLobby, "Success"), c.Read(protocol.SessionFamily, waitFor))
}

func TestGameStartsWhenAllReady(t *testing.T) {
	s := startStack(t)

	// The host creates on one connection and joins on another.
	creator := s.player(t, "alice")
	id := createLobby(t, creator, "table")
	creator.Close()

	alice := s.player(t, "alice2")
	bob := s.player(t, "bob")
	alice.Send(protocol.New(protocol.JoinLobby, id))
	assert.Equal(t, protocol.New(protocol.JoinLobby, "Success"), alice.Read(protocol.SessionFamily, waitFor))
	bob.Send(protocol.New(protocol.JoinLobby, id))
	assert.Equal(t, protocol.New(protocol.JoinLobby, "Success"), bob.Read(protocol.SessionFamily, waitFor))

	joined := alice.ReadUntil(protocol.PlayerJoinedPregame, waitFor)
	info, err := protocol.ParsePlayerInfo(joined.Params)
	require.NoError(t, err)
	assert.Equal(t, "bob", info.Name)

	alice.Send(protocol.New(protocol.PlayerReadyUnready, "True"))
	ready := bob.ReadUntil(protocol.PlayerReadyUnready, waitFor)
	info, err = protocol.ParsePlayerInfo(ready.Params)
	require.NoError(t, err)
	assert.Equal(t, "alice2", info.Name)
	assert.True(t, info.Ready)

	bob.Send(protocol.New(protocol.PlayerReadyUnready, "True"))
	for _, c := range []*testutil.Client{alice, bob} {
		c.ReadUntil(protocol.GameStarted, waitFor)
		top := c.ReadUntil(protocol.NewCardOnStack, waitFor)
		require.Len(t, top.Params, 1)
	}

	l, ok := s.lobbies.Get(0)
	require.True(t, ok)
	assert.Equal(t, 108-14-1, l.PileSize())
}

func TestSeatedSessionIgnoresLobbyBrowsing(t *testing.T) {
	s := startStack(t)
	c := s.player(t, "alice")
	id := createLobby(t, c, "table")
	c.Send(protocol.New(protocol.JoinLobby, id))
	c.ReadUntil(protocol.JoinLobby, waitFor)

	c.Send(protocol.New(protocol.CreateLobby, "second"))
	c.Send(protocol.New(protocol.JoinLobby, id))
	c.Send(protocol.New(protocol.PlayerReadyUnready, "True"))

	// Ready with a single player does not start; nothing is sent back.
	require.Eventually(t, func() bool { return s.lobbies.Count() == 1 }, waitFor, 10*time.Millisecond)
	require.Never(t, func() bool { return s.lobbies.Count() != 1 }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestDisconnectLeavesLobby(t *testing.T) {
	s := startStack(t)
	alice := s.player(t, "alice")
	bob := s.player(t, "bob")
	id := createLobby(t, alice, "table")

	alice.Send(protocol.New(protocol.JoinLobby, id))
	alice.ReadUntil(protocol.JoinLobby, waitFor)
	bob.Send(protocol.New(protocol.JoinLobby, id))
	bob.ReadUntil(protocol.JoinLobby, waitFor)
	alice.ReadUntil(protocol.PlayerJoinedPregame, waitFor)

	bob.Close()
	left := alice.ReadUntil(protocol.PlayerLeftPregame, waitFor)
	info, err := protocol.ParsePlayerInfo(left.Params)
	require.NoError(t, err)
	assert.Equal(t, "bob", info.Name)

	alice.Close()
	require.Eventually(t, func() bool { return s.lobbies.Count() == 0 }, waitFor, 10*time.Millisecond)
}

func TestConcludedMatchReleasesSeat(t *testing.T) {
	s := startStack(t)
	alice := s.player(t, "alice")
	bob := s.player(t, "bob")
	id := createLobby(t, alice, "table")

	alice.Send(protocol.New(protocol.JoinLobby, id))
	alice.ReadUntil(protocol.JoinLobby, waitFor)
	bob.Send(protocol.New(protocol.JoinLobby, id))
	bob.ReadUntil(protocol.JoinLobby, waitFor)
	alice.Send(protocol.New(protocol.PlayerReadyUnready, "True"))
	bob.Send(protocol.New(protocol.PlayerReadyUnready, "True"))
	alice.ReadUntil(protocol.GameStarted, waitFor)

	bob.Close()
	alice.ReadUntil(protocol.PlayerWon, waitFor)
	require.Eventually(t, func() bool { return s.lobbies.Count() == 0 }, waitFor, 10*time.Millisecond)

	// Unseated, the winner can browse and query again.
	alice.Send(protocol.New(protocol.GetStatsRequest, "alice"))
	assert.Equal(t, protocol.New(protocol.GetStatsResponse, "1", "0"), alice.ReadUntil(protocol.GetStatsResponse, waitFor))
	next := createLobby(t, alice, "rematch")
	assert.Equal(t, "1", next)
}

func TestGetStats(t *testing.T) {
	s := startStack(t)
	c := s.player(t, "alice")
	require.NoError(t, s.repo.IncrementWonTimes(context.Background(), "alice"))
	require.NoError(t, s.repo.IncrementWonTimes(context.Background(), "alice"))
	require.NoError(t, s.repo.IncrementLostTimes(context.Background(), "alice"))

	c.Send(protocol.New(protocol.GetStatsRequest, "alice"))
	assert.Equal(t, protocol.New(protocol.GetStatsResponse, "2", "1"), c.Read(protocol.SessionFamily, waitFor))

	c.Send(protocol.New(protocol.GetStatsRequest, "nobody"))
	assert.Equal(t, protocol.New(protocol.GetStatsResponse, "0", "0"), c.Read(protocol.SessionFamily, waitFor))
}

func TestJoiningBrowserStopsReceivingLists(t *testing.T) {
	s := startStack(t)
	alice := s.player(t, "alice")
	bob := s.player(t, "bob")

	alice.Send(protocol.New(protocol.JoinedLobbySelection))
	alice.ReadUntil(protocol.LobbyList, waitFor)
	id := createLobby(t, bob, "table")
	alice.ReadUntil(protocol.LobbyList, waitFor)

	alice.Send(protocol.New(protocol.JoinLobby, id))
	assert.Equal(t, protocol.New(protocol.JoinLobby, "Success"), alice.Read(protocol.SessionFamily, waitFor))

	bob.Send(protocol.New(protocol.JoinLobby, id))
	bob.ReadUntil(protocol.JoinLobby, waitFor)
	next := alice.Read(protocol.SessionFamily, waitFor)
	assert.Equal(t, protocol.PlayerJoinedPregame, next.Type)
}
