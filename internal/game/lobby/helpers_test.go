package lobby

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/uno/internal/game/card"
	"github.com/cory-johannsen/uno/internal/protocol"
)

type pcgSource struct{ r *rand.Rand }

func newPCG(seed uint64) pcgSource {
	return pcgSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s pcgSource) Intn(n int) int { return s.r.IntN(n) }

type fakeMember struct {
	name string

	mu   sync.Mutex
	msgs []protocol.Message
}

func newFakeMember(name string) *fakeMember { return &fakeMember{name: name} }

func (f *fakeMember) Name() string { return f.name }

func (f *fakeMember) Send(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeMember) received() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.msgs)
}

func (f *fakeMember) count(t protocol.Type) int {
	n := 0
	for _, m := range f.received() {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (f *fakeMember) last(t protocol.Type) (protocol.Message, bool) {
	msgs := f.received()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == t {
			return msgs[i], true
		}
	}
	return protocol.Message{}, false
}

func (f *fakeMember) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	won  map[string]int
	lost map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{won: make(map[string]int), lost: make(map[string]int)}
}

func (r *fakeRecorder) IncrementWonTimes(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.won[username]++
	return nil
}

func (r *fakeRecorder) IncrementLostTimes(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost[username]++
	return nil
}

func (r *fakeRecorder) wins() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.won {
		total += n
	}
	return total
}

// newTestLobby seats n members named p0..p(n-1) in a forming lobby.
func newTestLobby(t *testing.T, n int) (*Lobby, []*fakeMember, *fakeRecorder) {
	t.Helper()
	rec := newFakeRecorder()
	l := newLobby(0, "table", "p0", 10, 7, time.Now(), newPCG(1), rec, zaptest.NewLogger(t))
	members := make([]*fakeMember, n)
	for i := range members {
		members[i] = newFakeMember(fmt.Sprintf("p%d", i))
		require.Equal(t, protocol.JoinSuccess, l.add(members[i]))
	}
	return l, members, rec
}

// rig puts l into a running match with the given hands and top card and
// clears every member's inbox.
func rig(l *Lobby, members []*fakeMember, hands [][]card.Card, top card.Card, turn int) {
	l.mu.Lock()
	l.state = Active
	for i, h := range hands {
		l.players[i].hand = slices.Clone(h)
	}
	l.top = top
	l.active = top.Color
	l.turn = turn
	l.dir = 1
	l.pending = card.None
	l.jeopardy = nil
	l.pile = card.NewDeck()
	l.mu.Unlock()
	for _, m := range members {
		m.reset()
	}
}

func setDirection(l *Lobby, dir int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dir = dir
}

func handOf(l *Lobby, m Member) []card.Card {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.find(m)
	if p == nil {
		return nil
	}
	return slices.Clone(p.hand)
}

func turnHolder(l *Lobby) Member {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.players[l.turn].member
}

func topAndColor(l *Lobby) (card.Card, card.Color) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.top, l.active
}

func msg(t protocol.Type, params ...string) protocol.Message {
	return protocol.New(t, params...)
}

var (
	red1     = card.NumberCard(card.Red, 1)
	red2     = card.NumberCard(card.Red, 2)
	red5     = card.NumberCard(card.Red, 5)
	blue2    = card.NumberCard(card.Blue, 2)
	blue5    = card.NumberCard(card.Blue, 5)
	green3   = card.NumberCard(card.Green, 3)
	green4   = card.NumberCard(card.Green, 4)
	yellow7  = card.NumberCard(card.Yellow, 7)
	redDraw  = card.ActionCard(card.Red, card.KindDraw)
	redSkip  = card.ActionCard(card.Red, card.KindSkip)
	redRev   = card.ActionCard(card.Red, card.KindReverse)
	blueSkip = card.ActionCard(card.Blue, card.KindSkip)
)
