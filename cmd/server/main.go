package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/headsup-poker-backend/internal/config"
	"github.com/DoyleJ11/headsup-poker-backend/internal/events"
	"github.com/DoyleJ11/headsup-poker-backend/internal/httpapi"
	"github.com/DoyleJ11/headsup-poker-backend/internal/hub"
	"github.com/DoyleJ11/headsup-poker-backend/internal/lobby"
	"github.com/DoyleJ11/headsup-poker-backend/internal/session"
	"github.com/DoyleJ11/headsup-poker-backend/internal/stats"
	"github.com/DoyleJ11/headsup-poker-backend/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	kv, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, kv)

	board := stats.NewLeaderboard(kv, log)
	sinks := events.Fanout{board}
	if cfg.NATSURL != "" {
		nc := events.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		nc.SubjectPrefix = cfg.NATSSubjectPrefix
		pub, err := events.NewNATSPublisher(nc, log)
		if err != nil {
			return err
		}
		closers = append(closers, pub)
		sinks = append(sinks, pub)
	}

	h := hub.NewHub(ctx, session.Config{
		Rules:           cfg.Game.Rules,
		ShowdownTimeout: cfg.Game.ShowdownTimeout,
		Logger:          log,
		Events:          sinks,
	}, sinks)
	l := lobby.NewLobby(ctx, lobby.Config{
		Capacity:         cfg.Game.LobbyCapacity,
		MaxNameLength:    cfg.Game.MaxNameLength,
		ChallengeTimeout: cfg.Game.ChallengeTimeout,
		Logger:           log,
		Sessions:         h,
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:            h,
			Lobby:          l,
			Leaderboard:    board,
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         log.Named("http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return board.Run(gctx) })
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		_ = l.Send(sctx, lobby.Shutdown{})
		h.Shutdown()
		return err
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.KV, error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("using postgres store")
	return pg, nil
}
