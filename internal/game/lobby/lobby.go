// Package lobby hosts game lobbies: the registry players browse and join,
// and the per-lobby turn state machine that runs a match.
package lobby

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/game/card"
	"github.com/cory-johannsen/uno/internal/protocol"
)

// State is the phase of a lobby.
type State int

const (
	// Forming lobbies accept players and ready toggles.
	Forming State = iota
	// Active lobbies are running a match.
	Active
	// Concluded lobbies have a winner and accept no further actions.
	Concluded
)

func (s State) String() string {
	switch s {
	case Forming:
		return "forming"
	case Active:
		return "active"
	case Concluded:
		return "concluded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	drawTwoPenalty  = 2
	wildDrawPenalty = 4
	unoPenalty      = 4

	statsTimeout = 5 * time.Second
)

// Recorder persists match outcomes.
type Recorder interface {
	IncrementWonTimes(ctx context.Context, username string) error
	IncrementLostTimes(ctx context.Context, username string) error
}

// Lobby is one game table. All methods are safe for concurrent use; every
// action holds the lobby mutex for its whole duration.
type Lobby struct {
	id         int
	name       string
	host       string
	maxPlayers int
	handSize   int
	created    time.Time

	src    card.Source
	stats  Recorder
	logger *zap.Logger

	// onChange is called without the mutex held whenever joinability changes.
	onChange func()

	mu       sync.Mutex
	state    State
	seated   bool
	players  []*player
	nextSeat int
	turn     int
	dir      int
	pile     []card.Card
	top      card.Card
	active   card.Color
	pending  card.Card
	jeopardy *player
}

func newLobby(id int, name, host string, maxPlayers, handSize int, created time.Time, src card.Source, stats Recorder, logger *zap.Logger) *Lobby {
	return &Lobby{
		id:         id,
		name:       name,
		host:       host,
		maxPlayers: maxPlayers,
		handSize:   handSize,
		created:    created,
		src:        src,
		stats:      stats,
		logger:     logger.With(zap.Int("lobby_id", id)),
		dir:        1,
	}
}

// ID returns the lobby id.
func (l *Lobby) ID() int { return l.id }

// State returns the current phase.
func (l *Lobby) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Summary returns the record shown in lobby lists.
func (l *Lobby) Summary() protocol.LobbySummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryLocked()
}

func (l *Lobby) summaryLocked() protocol.LobbySummary {
	return protocol.LobbySummary{ID: l.id, Name: l.name, Host: l.host, PlayerCount: len(l.players)}
}

// Seats reports whether m holds a seat here. Seats are released once a
// match concludes.
func (l *Lobby) Seats(m Member) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.find(m) != nil
}

// PlayerCount returns the number of seated players.
func (l *Lobby) PlayerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// PileSize returns the number of cards left in the draw pile.
func (l *Lobby) PileSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pile)
}

// joinResultLocked reports whether one more player could be seated.
func (l *Lobby) joinResultLocked() protocol.JoinResult {
	switch {
	case l.state != Forming:
		return protocol.JoinGameInProgress
	case len(l.players) >= l.maxPlayers:
		return protocol.JoinLobbyFull
	}
	return protocol.JoinSuccess
}

func (l *Lobby) find(m Member) *player {
	for _, p := range l.players {
		if p.member == m {
			return p
		}
	}
	return nil
}

func (l *Lobby) send(p *player, msg protocol.Message) {
	if err := p.member.Send(msg); err != nil {
		l.logger.Debug("dropping push", zap.Int("player_id", p.id), zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

func (l *Lobby) broadcast(msg protocol.Message) {
	for _, p := range l.players {
		l.send(p, msg)
	}
}

func (l *Lobby) broadcastExcept(except *player, msg protocol.Message) {
	for _, p := range l.players {
		if p != except {
			l.send(p, msg)
		}
	}
}

// add seats m and introduces it to the players already present. m is sent
// the JoinLobby reply before any lobby push.
//
// Postcondition: on JoinSuccess, m is seated with a fresh lobby-scoped id.
func (l *Lobby) add(m Member) protocol.JoinResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := l.joinResultLocked()
	if l.find(m) != nil {
		res = protocol.JoinFailed
	}
	if err := m.Send(protocol.New(protocol.JoinLobby, string(res))); err != nil {
		l.logger.Debug("dropping join reply", zap.Error(err))
	}
	if res != protocol.JoinSuccess {
		return res
	}

	p := &player{id: l.nextSeat, member: m}
	l.nextSeat++
	for _, other := range l.players {
		l.send(p, protocol.New(protocol.PlayerJoinedPregame, other.info().Fields()...))
		l.send(other, protocol.New(protocol.PlayerJoinedPregame, p.info().Fields()...))
	}
	l.players = append(l.players, p)
	l.seated = true
	l.logger.Info("player joined", zap.String("username", m.Name()), zap.Int("player_id", p.id))
	return protocol.JoinSuccess
}

// Remove unseats m. Leaving a running match counts as a loss; the last
// player left in a match wins it.
//
// Postcondition: m is no longer seated and the turn, if any, belongs to a
// seated player.
func (l *Lobby) Remove(ctx context.Context, m Member) {
	l.mu.Lock()
	changed := l.removeLocked(ctx, m)
	l.mu.Unlock()
	if changed && l.onChange != nil {
		l.onChange()
	}
}

func (l *Lobby) removeLocked(ctx context.Context, m Member) bool {
	idx := slices.IndexFunc(l.players, func(p *player) bool { return p.member == m })
	if idx < 0 {
		return false
	}
	leaver := l.players[idx]
	l.players = slices.Delete(l.players, idx, idx+1)
	l.broadcast(protocol.New(protocol.PlayerLeftPregame, leaver.info().Fields()...))
	l.logger.Info("player left", zap.String("username", m.Name()), zap.Stringer("state", l.state))

	switch l.state {
	case Forming:
		l.maybeStart()
		return true
	case Concluded:
		return true
	}

	l.recordLoss(ctx, leaver)
	if l.jeopardy == leaver {
		l.clearJeopardy()
	}
	if len(l.players) == 1 {
		l.win(ctx, l.players[0])
		return true
	}

	switch {
	case idx < l.turn:
		l.turn--
	case idx == l.turn:
		l.pending = card.None
		if l.dir > 0 {
			l.turn = idx % len(l.players)
		} else {
			l.turn = (idx - 1 + len(l.players)) % len(l.players)
		}
		l.send(l.players[l.turn], protocol.New(protocol.YourTurn))
	}
	return true
}

// Handle applies one gameplay message from m. Messages from players who are
// not seated, that are out of turn or that name cards the player does not
// hold are dropped.
func (l *Lobby) Handle(ctx context.Context, m Member, msg protocol.Message) {
	l.mu.Lock()
	changed := l.handleLocked(ctx, m, msg)
	l.mu.Unlock()
	if changed && l.onChange != nil {
		l.onChange()
	}
}

func (l *Lobby) handleLocked(ctx context.Context, m Member, msg protocol.Message) bool {
	p := l.find(m)
	if p == nil {
		return false
	}
	switch msg.Type {
	case protocol.PlayerReadyUnready:
		return l.setReady(p, msg)
	case protocol.TakeRandomCard:
		return l.takeRandom(p)
	case protocol.PlaceCard:
		return l.place(ctx, p, msg)
	case protocol.ColorSwitch:
		return l.colorSwitch(ctx, p, msg)
	case protocol.CallUno:
		l.callUno(p)
	default:
		l.logger.Debug("ignoring message", zap.String("type", string(msg.Type)))
	}
	return false
}

func (l *Lobby) setReady(p *player, msg protocol.Message) bool {
	if l.state != Forming || msg.Expect(1) != nil {
		return false
	}
	ready, err := protocol.ParseBool(msg.Param(0))
	if err != nil {
		return false
	}
	p.ready = ready
	l.broadcastExcept(p, protocol.New(protocol.PlayerReadyUnready, p.info().Fields()...))
	return l.maybeStart()
}

// maybeStart begins the match once at least two players are seated and all
// of them are ready.
func (l *Lobby) maybeStart() bool {
	if l.state != Forming || len(l.players) < 2 {
		return false
	}
	for _, p := range l.players {
		if !p.ready {
			return false
		}
	}
	l.start()
	return true
}

func (l *Lobby) start() {
	l.state = Active
	l.dir = 1
	l.pending = card.None
	l.jeopardy = nil
	l.pile = card.NewDeck()
	card.Shuffle(l.pile, l.src)
	l.broadcast(protocol.New(protocol.GameStarted))

	for _, p := range l.players {
		p.hand = nil
		for range l.handSize {
			l.deal(p)
		}
	}

	l.top = l.revealStart()
	l.active = l.top.Color
	l.broadcast(protocol.New(protocol.NewCardOnStack, l.top.String()))

	l.turn = l.src.Intn(len(l.players))
	l.send(l.players[l.turn], protocol.New(protocol.YourTurn))
	l.logger.Info("game started",
		zap.Int("players", len(l.players)),
		zap.Stringer("top", l.top),
		zap.Int("first_player_id", l.players[l.turn].id),
	)
}

// revealStart removes a random coloured number card from the pile. Other
// cards are never taken, which is the same as redrawing until one fits.
func (l *Lobby) revealStart() card.Card {
	for {
		var candidates []int
		for i, c := range l.pile {
			if c.Kind == card.KindNumber {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			l.refill()
			continue
		}
		i := candidates[l.src.Intn(len(candidates))]
		c := l.pile[i]
		l.pile = slices.Delete(l.pile, i, i+1)
		return c
	}
}

// refill adds a fresh shuffled deck without the card currently on top.
func (l *Lobby) refill() {
	fresh := card.NewDeck()
	if i := slices.Index(fresh, l.top); i >= 0 {
		fresh = slices.Delete(fresh, i, i+1)
	}
	card.Shuffle(fresh, l.src)
	l.pile = append(l.pile, fresh...)
}

// deal moves a random pile card into p's hand.
//
// Postcondition: the pile is never left empty.
func (l *Lobby) deal(p *player) {
	if len(l.pile) == 0 {
		l.refill()
	}
	i := l.src.Intn(len(l.pile))
	c := l.pile[i]
	l.pile = slices.Delete(l.pile, i, i+1)
	p.hand = append(p.hand, c)

	l.send(p, protocol.New(protocol.TakeCard, c.String()))
	l.broadcastExcept(p, protocol.New(protocol.EnemyAddCard, p.info().Fields()...))
	if len(l.pile) == 0 {
		l.refill()
	}
}

func (l *Lobby) next(i int) int {
	n := len(l.players)
	return ((i+l.dir)%n + n) % n
}

func (l *Lobby) advance() {
	l.turn = l.next(l.turn)
	l.send(l.players[l.turn], protocol.New(protocol.YourTurn))
}

func (l *Lobby) hasTurn(p *player) bool {
	return l.state == Active && l.players[l.turn] == p
}

func (l *Lobby) takeRandom(p *player) bool {
	if !l.hasTurn(p) || l.pending != card.None {
		return false
	}
	l.clearJeopardy()
	l.deal(p)
	l.advance()
	return false
}

func (l *Lobby) place(ctx context.Context, p *player, msg protocol.Message) bool {
	if !l.hasTurn(p) || l.pending != card.None || msg.Expect(1) != nil {
		return false
	}
	c, err := card.Parse(msg.Param(0))
	if err != nil || !c.Playable() || !p.holds(c) || !c.CanPlayOn(l.top, l.active) {
		l.logger.Debug("rejecting placement", zap.Int("player_id", p.id), zap.String("card", msg.Param(0)))
		return false
	}

	chosen := card.ColorNone
	if c.IsWild() && len(msg.Params) > 1 {
		if chosen, err = card.ParseColor(msg.Param(1)); err != nil {
			return false
		}
	}
	return l.play(ctx, p, c, chosen)
}

// play removes c from p's hand and resolves it. A Wild without a colour is
// held pending until the player names one. A Wild_Draw always resolves at
// once; without a colour the next player may follow with any card.
func (l *Lobby) play(ctx context.Context, p *player, c card.Card, chosen card.Color) bool {
	l.clearJeopardy()
	p.take(c)
	l.broadcastExcept(p, protocol.New(protocol.EnemyRemoveCard, p.info().Fields()...))
	if len(p.hand) == 0 {
		l.top = c
		l.broadcast(protocol.New(protocol.NewCardOnStack, c.String()))
		l.win(ctx, p)
		return true
	}
	if len(p.hand) == 1 {
		l.jeopardy = p
		l.broadcast(protocol.New(protocol.EnableUno))
	}

	if c.IsWild() {
		l.pending = c
		if chosen != card.ColorNone || c.Kind == card.KindWildDraw {
			l.resolveWild(chosen)
		}
		return false
	}

	l.top = c
	l.active = c.Color
	l.broadcast(protocol.New(protocol.NewCardOnStack, c.String()))
	switch c.Kind {
	case card.KindDraw:
		l.penalize(l.players[l.next(l.turn)], drawTwoPenalty)
		l.turn = l.next(l.turn)
	case card.KindSkip:
		l.turn = l.next(l.turn)
	case card.KindReverse:
		l.dir = -l.dir
	}
	l.advance()
	return false
}

func (l *Lobby) penalize(p *player, n int) {
	for range n {
		l.deal(p)
	}
}

// resolveWild completes the pending wild with colour c, which is ColorNone
// only for a Wild_Draw placed without one.
func (l *Lobby) resolveWild(c card.Color) {
	w := l.pending
	l.pending = card.None
	l.top = w
	l.active = c
	l.broadcast(protocol.New(protocol.NewCardOnStack, w.String()))
	if c != card.ColorNone {
		l.broadcast(protocol.New(protocol.ColorSwitch, c.String()))
	}
	if w.Kind == card.KindWildDraw {
		l.penalize(l.players[l.next(l.turn)], wildDrawPenalty)
		l.turn = l.next(l.turn)
	}
	l.advance()
}

// colorSwitch names the colour of a pending wild. With no wild pending, a
// player holding a Wild plays it with the named colour in one step.
func (l *Lobby) colorSwitch(ctx context.Context, p *player, msg protocol.Message) bool {
	if !l.hasTurn(p) || msg.Expect(1) != nil {
		return false
	}
	c, err := card.ParseColor(msg.Param(0))
	if err != nil {
		return false
	}
	if l.pending != card.None {
		l.resolveWild(c)
		return false
	}
	if !p.holds(card.Wild) {
		return false
	}
	return l.play(ctx, p, card.Wild, c)
}

// callUno settles the current jeopardy. A call by anyone else costs the
// jeopardised player the penalty; a call by that player declares Uno.
func (l *Lobby) callUno(p *player) {
	if l.state != Active || l.jeopardy == nil {
		return
	}
	target := l.jeopardy
	l.clearJeopardy()
	if target != p {
		l.logger.Info("uno called out", zap.Int("caller_id", p.id), zap.Int("target_id", target.id))
		l.penalize(target, unoPenalty)
	}
}

func (l *Lobby) clearJeopardy() {
	if l.jeopardy == nil {
		return
	}
	l.jeopardy = nil
	l.broadcast(protocol.New(protocol.DisableUno))
}

// win concludes the match and unseats everyone. It runs at most once per lobby.
func (l *Lobby) win(ctx context.Context, winner *player) {
	if l.state != Active {
		return
	}
	l.state = Concluded
	l.pending = card.None
	l.jeopardy = nil

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statsTimeout)
	defer cancel()
	if err := l.stats.IncrementWonTimes(sctx, winner.member.Name()); err != nil {
		l.logger.Error("recording win", zap.String("username", winner.member.Name()), zap.Error(err))
	}
	for _, p := range l.players {
		if p != winner {
			l.recordLoss(sctx, p)
			l.send(p, protocol.New(protocol.PlayerLost, winner.member.Name()))
		}
	}
	l.send(winner, protocol.New(protocol.PlayerWon))
	l.logger.Info("game won", zap.String("winner", winner.member.Name()))
	l.players = nil
}

func (l *Lobby) recordLoss(ctx context.Context, p *player) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statsTimeout)
	defer cancel()
	if err := l.stats.IncrementLostTimes(sctx, p.member.Name()); err != nil {
		l.logger.Error("recording loss", zap.String("username", p.member.Name()), zap.Error(err))
	}
}
