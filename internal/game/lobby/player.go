package lobby

import (
	"slices"

	"github.com/cory-johannsen/uno/internal/game/card"
	"github.com/cory-johannsen/uno/internal/protocol"
)

// Sender receives server pushes. Send must not block.
type Sender interface {
	Send(msg protocol.Message) error
}

// Member is a connection seated, or about to be seated, in a lobby.
type Member interface {
	Sender
	// Name is the authenticated username.
	Name() string
}

// player is one seat in a lobby.
type player struct {
	id     int
	member Member
	ready  bool
	hand   []card.Card
}

func (p *player) info() protocol.PlayerInfo {
	return protocol.PlayerInfo{ID: p.id, Name: p.member.Name(), Ready: p.ready}
}

func (p *player) holds(c card.Card) bool {
	return slices.Contains(p.hand, c)
}

// take removes one copy of c from the hand.
//
// Precondition: p.holds(c).
func (p *player) take(c card.Card) {
	i := slices.Index(p.hand, c)
	p.hand = slices.Delete(p.hand, i, i+1)
}
