package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/minaorangina/gamehost/config"
	"github.com/minaorangina/gamehost/games"
	"github.com/minaorangina/gamehost/server"
	"github.com/minaorangina/gamehost/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// finished matches stay readable through GET /game for this long
const retention = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err.Error())
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatal(err.Error())
	}
	defer logger.Sync()

	if cfg.GeneratedSecret {
		logger.Warn("GAMEHOST_TOKEN_SECRET is not set, using a random secret for this run")
	}

	s := server.NewServer(server.ServerOpts{
		Addr:          cfg.Addr,
		Store:         store.NewInMemoryMatchStore(cfg.MaxMatches),
		Games:         games.Default(),
		Tickets:       server.NewTickets(cfg.TokenSecret, cfg.TicketTTL),
		HookOnTimeout: cfg.HookOnTimeout,
		Alerts:        []time.Duration{30 * time.Second, 10 * time.Second},
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.Sweep(retention)
			}
		}
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}
