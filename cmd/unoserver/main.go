// Package main provides the Uno server: the authentication endpoint, the
// gameplay endpoint and the lobby engine behind it.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/uno/internal/admission"
	"github.com/cory-johannsen/uno/internal/auth"
	"github.com/cory-johannsen/uno/internal/config"
	"github.com/cory-johannsen/uno/internal/frontend/handlers"
	"github.com/cory-johannsen/uno/internal/frontend/tcp"
	"github.com/cory-johannsen/uno/internal/game/card"
	"github.com/cory-johannsen/uno/internal/game/lobby"
	"github.com/cory-johannsen/uno/internal/mail"
	"github.com/cory-johannsen/uno/internal/observability"
	"github.com/cory-johannsen/uno/internal/server"
	"github.com/cory-johannsen/uno/internal/storage"
	"github.com/cory-johannsen/uno/internal/storage/postgres"
	"github.com/cory-johannsen/uno/internal/storage/sqlite"
)

const (
	healthInterval = 30 * time.Second
	healthTimeout  = 5 * time.Second
	gcInterval     = 10 * time.Second
)

// userStore is everything the server needs from the credential store.
type userStore interface {
	auth.Store
	lobby.Recorder
	Stats(ctx context.Context, username string) (storage.Stats, error)
}

// backend is an opened store with its health probe and release hook.
type backend struct {
	users  userStore
	health func(ctx context.Context) error
	close  func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, error) {
	start := time.Now()
	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return backend{}, err
		}
		repo := sqlite.NewUserRepository(db)
		logger.Info("sqlite store opened",
			zap.String("path", cfg.Store.SQLitePath),
			zap.Duration("elapsed", time.Since(start)),
		)
		return backend{
			users: repo,
			health: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, healthTimeout)
				defer cancel()
				return repo.Health(ctx)
			},
			close: func() { _ = repo.Close() },
		}, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return backend{}, err
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(start)),
		)
		return backend{
			users: postgres.NewUserRepository(pool.DB()),
			health: func(ctx context.Context) error {
				total, acquired := pool.Usage()
				logger.Debug("database pool", zap.Int32("total_conns", total), zap.Int32("acquired_conns", acquired))
				return pool.Health(ctx, healthTimeout)
			},
			close: pool.Close,
		}, nil
	}
}

// ticker runs fn every interval until stopped.
func ticker(interval time.Duration, fn func()) *server.FuncService {
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					fn()
				case <-done:
					return nil
				}
			}
		},
		StopFn: func() { close(done) },
	}
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *printConfig {
		out, err := cfg.Dump()
		if err != nil {
			log.Fatalf("printing config: %v", err)
		}
		_, _ = os.Stdout.Write(out)
		return
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting uno server",
		zap.String("auth_addr", cfg.AuthListener.Addr()),
		zap.String("gameplay_addr", cfg.GameplayListener.Addr()),
		zap.String("store", cfg.Store.Driver),
	)

	ctx := context.Background()
	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}

	mailer, err := mail.NewSender(cfg.Mail, logger)
	if err != nil {
		logger.Fatal("configuring mail", zap.Error(err))
	}

	// Build services
	gate := admission.NewGate(cfg.Admission, logger)
	tokens := auth.NewAuthenticator(cfg.Auth.TokenTTL)
	accounts := auth.NewService(store.users, mailer, tokens, cfg.Auth.TwoFATTL, logger)
	rng := card.NewCryptoSource()
	lobbies := lobby.NewManager(cfg.Game, rng, store.users, logger)

	authAcceptor := tcp.NewAcceptor("auth", cfg.AuthListener, cfg.Transport, gate,
		handlers.NewAuthHandler(accounts, rng, logger), logger)
	gameAcceptor := tcp.NewAcceptor("gameplay", cfg.GameplayListener, cfg.Transport, gate,
		handlers.NewSessionHandler(tokens, lobbies, store.users, logger), logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("store", ticker(healthInterval, func() {
		if err := store.health(ctx); err != nil {
			logger.Warn("store health check failed", zap.Error(err))
		}
	}))
	lifecycle.Add("lobby-gc", ticker(gcInterval, func() {
		if n := lobbies.GC(); n > 0 {
			logger.Debug("lobbies collected", zap.Int("removed", n), zap.Int("remaining", lobbies.Count()))
		}
	}))
	lifecycle.Add("auth", authAcceptor)
	lifecycle.Add("gameplay", gameAcceptor)

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("auth_addr", cfg.AuthListener.Addr()),
		zap.String("gameplay_addr", cfg.GameplayListener.Addr()),
	)

	runErr := lifecycle.Run(ctx)
	gate.Stop()
	store.close()
	if runErr != nil {
		logger.Fatal("server error", zap.Error(runErr))
	}
}
