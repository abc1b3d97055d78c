// Command worker applies queued game actions.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/renaissance/internal/catalog"
	"github.com/jason-s-yu/renaissance/internal/config"
	"github.com/jason-s-yu/renaissance/internal/game"
	"github.com/jason-s-yu/renaissance/internal/queue"
	"github.com/jason-s-yu/renaissance/internal/snapcodec"
	"github.com/jason-s-yu/renaissance/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := cfg.Logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logrus.NewEntry(log).WithField("component", "worker")); err != nil {
		log.WithError(err).Fatal("worker stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Entry) error {
	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer st.Close()

	q := queue.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.QueueKey)
	defer q.Close()

	cats, err := catalog.LoadDir(cfg.CatalogDir)
	if err != nil {
		return err
	}
	codec, err := snapcodec.New()
	if err != nil {
		return err
	}
	defer codec.Close()

	opts := []game.Option{game.WithScheduler(q), game.WithLogger(log)}
	verifier, err := cfg.Verifier()
	if err != nil {
		return err
	}
	if verifier != nil {
		opts = append(opts, game.WithVerifier(verifier))
	}
	eng := game.NewEngine(st, codec, cats, opts...)
	if _, err := eng.CatchUp(ctx); err != nil {
		return err
	}

	pool := queue.NewPool(q, eng.Apply, queue.PoolConfig{
		Workers:   cfg.Workers,
		Retries:   cfg.ApplyRetries,
		Retryable: func(err error) bool { return errors.Is(err, store.ErrConflict) },
		Log:       log,
	})
	log.WithFields(logrus.Fields{
		"workers":  cfg.Workers,
		"editions": cats.Editions(),
	}).Info("worker started")
	return pool.Run(ctx)
}
