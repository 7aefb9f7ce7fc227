package admission

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/config"
)

const globalKey = "*"

// Gate decides whether a freshly accepted connection may proceed.
type Gate struct {
	perSourceLimit int
	globalLimit    int
	freeze         time.Duration
	logger         *zap.Logger

	perSource *Counter
	global    *Counter

	mu          sync.Mutex
	frozenUntil time.Time
	now         func() time.Time
}

// NewGate builds a Gate from cfg.
//
// Precondition: cfg has passed config validation; logger is non-nil.
func NewGate(cfg config.AdmissionConfig, logger *zap.Logger) *Gate {
	return &Gate{
		perSourceLimit: cfg.PerSourceLimit,
		globalLimit:    cfg.GlobalLimit,
		freeze:         cfg.Freeze,
		logger:         logger,
		perSource:      NewCounter(cfg.Window),
		global:         NewCounter(cfg.Window),
		now:            time.Now,
	}
}

// Admit records a connection from addr and reports whether it may proceed.
// The per-source count is always charged. A source over its limit, or any
// connection during a freeze, is refused without charging the global count;
// exceeding the global limit starts a freeze.
func (g *Gate) Admit(addr net.Addr) bool {
	source := sourceOf(addr)

	if n := g.perSource.Add(source); n > g.perSourceLimit {
		g.logger.Warn("connection refused, source over limit",
			zap.String("source", source),
			zap.Int("count", n),
			zap.Int("limit", g.perSourceLimit),
		)
		return false
	}

	g.mu.Lock()
	frozen := g.now().Before(g.frozenUntil)
	g.mu.Unlock()
	if frozen {
		g.logger.Debug("connection refused, admission frozen", zap.String("source", source))
		return false
	}

	if n := g.global.Add(globalKey); n > g.globalLimit {
		g.mu.Lock()
		g.frozenUntil = g.now().Add(g.freeze)
		g.mu.Unlock()
		g.logger.Warn("connection refused, global limit tripped",
			zap.String("source", source),
			zap.Int("count", n),
			zap.Int("limit", g.globalLimit),
			zap.Duration("freeze", g.freeze),
		)
		return false
	}
	return true
}

// Stop cancels pending decay timers.
func (g *Gate) Stop() {
	g.perSource.Stop()
	g.global.Stop()
}

func sourceOf(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
