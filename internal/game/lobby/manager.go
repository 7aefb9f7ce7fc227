package lobby

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/config"
	"github.com/cory-johannsen/uno/internal/game/card"
	"github.com/cory-johannsen/uno/internal/protocol"
)

// UnclaimedTTL is how long a lobby nobody has joined yet survives
// garbage collection.
const UnclaimedTTL = time.Minute

// Manager owns every lobby on the server and the set of connections
// browsing the lobby list. All methods are safe for concurrent use.
//
// Lock order is Manager before Lobby; a Lobby never calls back into the
// Manager while holding its own mutex.
type Manager struct {
	cfg    config.GameConfig
	src    card.Source
	stats  Recorder
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	lobbies  map[int]*Lobby
	nextID   int
	browsers map[Sender]struct{}
}

// NewManager creates an empty Manager.
//
// Precondition: cfg is valid and src, stats and logger are non-nil.
func NewManager(cfg config.GameConfig, src card.Source, stats Recorder, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		src:      src,
		stats:    stats,
		logger:   logger,
		now:      time.Now,
		lobbies:  make(map[int]*Lobby),
		browsers: make(map[Sender]struct{}),
	}
}

// Create registers a new forming lobby hosted by host and pushes the updated
// list to browsers. Ids are assigned in increasing order from zero.
func (m *Manager) Create(name, host string) protocol.LobbySummary {
	m.mu.Lock()
	l := newLobby(m.nextID, name, host, m.cfg.MaxPlayers, m.cfg.HandSize, m.now(), m.src, m.stats, m.logger)
	l.onChange = m.changed
	m.lobbies[l.id] = l
	m.nextID++
	m.mu.Unlock()

	m.logger.Info("lobby created", zap.Int("lobby_id", l.id), zap.String("name", name), zap.String("host", host))
	m.notify()
	return l.Summary()
}

// Get returns the lobby with id.
func (m *Manager) Get(id int) (*Lobby, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	return l, ok
}

// Count returns the number of live lobbies.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lobbies)
}

// Joinable lists lobbies that are forming and not full, ordered by id.
func (m *Manager) Joinable() []protocol.LobbySummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinableLocked()
}

func (m *Manager) joinableLocked() []protocol.LobbySummary {
	out := make([]protocol.LobbySummary, 0, len(m.lobbies))
	for _, id := range slices.Sorted(maps.Keys(m.lobbies)) {
		l := m.lobbies[id]
		l.mu.Lock()
		if l.joinResultLocked() == protocol.JoinSuccess {
			out = append(out, l.summaryLocked())
		}
		l.mu.Unlock()
	}
	return out
}

// CanJoin reports whether one more player could join lobby id right now.
func (m *Manager) CanJoin(id int) protocol.JoinResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return protocol.JoinLobbyNotFound
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.joinResultLocked()
}

// Join seats member in lobby id. The member is always sent a JoinLobby
// reply, ahead of any push from the lobby.
//
// Postcondition: the returned Lobby is non-nil only on JoinSuccess.
func (m *Manager) Join(member Member, id int) (*Lobby, protocol.JoinResult) {
	m.mu.Lock()
	l, ok := m.lobbies[id]
	if !ok {
		m.mu.Unlock()
		if err := member.Send(protocol.New(protocol.JoinLobby, string(protocol.JoinLobbyNotFound))); err != nil {
			m.logger.Debug("dropping join reply", zap.Error(err))
		}
		return nil, protocol.JoinLobbyNotFound
	}
	res := l.add(member)
	m.mu.Unlock()
	if res != protocol.JoinSuccess {
		return nil, res
	}
	m.notify()
	return l, res
}

// Leave unseats member from l, then collects empty lobbies.
func (m *Manager) Leave(ctx context.Context, l *Lobby, member Member) {
	l.Remove(ctx, member)
	m.GC()
}

// GC removes lobbies whose last player has left and lobbies nobody joined
// within UnclaimedTTL. Browsers are notified when anything was removed.
func (m *Manager) GC() int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for id, l := range m.lobbies {
		l.mu.Lock()
		empty := len(l.players) == 0 && (l.seated || now.Sub(l.created) > UnclaimedTTL)
		l.mu.Unlock()
		if empty {
			delete(m.lobbies, id)
			removed++
			m.logger.Info("lobby removed", zap.Int("lobby_id", id))
		}
	}
	m.mu.Unlock()
	if removed > 0 {
		m.notify()
	}
	return removed
}

// Subscribe adds s to the browsers receiving LobbyList pushes and sends it
// the current list.
func (m *Manager) Subscribe(s Sender) {
	m.mu.Lock()
	m.browsers[s] = struct{}{}
	list := m.joinableLocked()
	m.mu.Unlock()
	m.push(s, list)
}

// Unsubscribe stops LobbyList pushes to s.
func (m *Manager) Unsubscribe(s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.browsers, s)
}

// changed runs after a lobby's joinability changes. A concluded match leaves
// its lobby empty, so collection happens here too.
func (m *Manager) changed() {
	if m.GC() == 0 {
		m.notify()
	}
}

// notify pushes the joinable list to every browser.
func (m *Manager) notify() {
	m.mu.Lock()
	list := m.joinableLocked()
	browsers := slices.Collect(maps.Keys(m.browsers))
	m.mu.Unlock()
	for _, s := range browsers {
		m.push(s, list)
	}
}

func (m *Manager) push(s Sender, list []protocol.LobbySummary) {
	msg := protocol.New(protocol.LobbyList, protocol.EncodeLobbyList(list)...)
	if err := s.Send(msg); err != nil {
		m.logger.Debug("dropping lobby list push", zap.Error(err))
	}
}
