// Command replay rebuilds games from their action logs and reports any
// divergence from the stored snapshots.
//
//	replay [-parallel n] game-id...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/jason-s-yu/renaissance/internal/catalog"
	"github.com/jason-s-yu/renaissance/internal/config"
	"github.com/jason-s-yu/renaissance/internal/game"
	"github.com/jason-s-yu/renaissance/internal/snapcodec"
	"github.com/jason-s-yu/renaissance/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	parallel := flag.Int("parallel", 4, "games replayed at once")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-parallel n] game-id...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logrus.NewEntry(cfg.Logger()).WithField("component", "replay")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids := make([]uuid.UUID, 0, flag.NArg())
	for _, arg := range flag.Args() {
		id, err := uuid.Parse(arg)
		if err != nil {
			log.WithError(err).Fatalf("bad game id %q", arg)
		}
		ids = append(ids, id)
	}

	diverged, err := run(ctx, cfg, log, ids, *parallel)
	if err != nil {
		log.WithError(err).Fatal("replay failed")
	}
	if diverged > 0 {
		log.WithField("games", diverged).Error("games diverged")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Entry, ids []uuid.UUID, parallel int) (int, error) {
	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	cats, err := catalog.LoadDir(cfg.CatalogDir)
	if err != nil {
		return 0, err
	}
	codec, err := snapcodec.New()
	if err != nil {
		return 0, err
	}
	defer codec.Close()

	eng := game.NewEngine(st, codec, cats, game.WithLogger(log))

	var diverged atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for _, id := range ids {
		g.Go(func() error {
			r, err := eng.Replay(ctx, id)
			if err != nil {
				return err
			}
			fields := logrus.Fields{
				"game_id":        id,
				"applied_lsn":    r.AppliedLSN,
				"entries":        r.Entries,
				"snapshot_match": r.SnapshotMatch,
			}
			if r.OK() {
				log.WithFields(fields).Info("ok")
				return nil
			}
			diverged.Add(1)
			for _, d := range r.Divergences {
				log.WithFields(fields).WithFields(logrus.Fields{
					"lsn":     d.LSN,
					"want":    d.Want,
					"got":     d.Got,
					"message": d.Message,
				}).Warn("entry diverged")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(diverged.Load()), nil
}
