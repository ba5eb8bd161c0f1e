package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benpaul2002/99/internal/cache"
	"github.com/benpaul2002/99/internal/config"
	"github.com/benpaul2002/99/internal/database"
	"github.com/benpaul2002/99/internal/game"
	"github.com/benpaul2002/99/internal/server"
	"github.com/benpaul2002/99/internal/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	log, err := cfg.Logger()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid logging configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
	log.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	gc := game.Config{Logger: log, Grace: cfg.AbsenceGrace}

	switch cfg.Store {
	case config.StoreRedis:
		rs, err := cache.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rs.Close()
		gc.Store, gc.Actions = rs, rs
		log.WithField("url", cfg.RedisURL).Info("Using Redis store")
	default:
		gc.Store = cache.NewMemory()
		log.Warn("Using in-memory store; games are lost on restart")
	}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		history := database.NewHistory(pool)
		if err := history.Migrate(ctx); err != nil {
			return err
		}
		gc.Recorder = history
		log.Info("Recording round history")
	}

	if cfg.EphemeralSecret {
		log.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	sessions, err := session.NewIssuer(cfg.SessionSecret, cfg.SecureCookies)
	if err != nil {
		return err
	}

	hub := server.NewHub(sessions, []string{cfg.WebOrigin}, log)
	gc.Notifier = hub
	manager := game.NewManager(gc)
	defer manager.Close()
	hub.Bind(manager)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(hub, sessions, cfg.WebOrigin, log),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return manager.RunSweeper(gctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
