package ics

import (
	"context"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/async"
	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/logging"
	"github.com/Kopano-dev/kopano-core-sub010/metrics"
	"github.com/sirupsen/logrus"
)

// Sweeper removes change rows no cursor depends on anymore once they exceed
// the retention age.
type Sweeper struct {
	client       db.Client
	retention    time.Duration
	interval     time.Duration
	panicHandler async.PanicHandler

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewSweeper(client db.Client, retention, interval time.Duration, panicHandler async.PanicHandler) *Sweeper {
	return &Sweeper{
		client:       client,
		retention:    retention,
		interval:     interval,
		panicHandler: panicHandler,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	logging.GoAnnotate(ctx, func(ctx context.Context) {
		defer async.HandlePanic(s.panicHandler)
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return

			case <-ctx.Done():
				return

			case <-ticker.C:
				if err := s.SweepOnce(ctx); err != nil {
					logrus.WithError(err).Error("Change log retention sweep failed")
				}
			}
		}
	}, map[string]any{"task": "change-sweeper"})
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// SweepOnce deletes change rows older than the retention age that every
// cursor has already advanced past.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	return s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		safeID, err := tx.GetOldestSyncChangeID(ctx)
		if db.IsErrNotFound(err) {
			// No cursor exists; everything before the current head is fair
			// game.
			safeID, err = tx.GetMaxChangeID(ctx)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if safeID == 0 {
			return nil
		}

		count, err := tx.DeleteChangesBefore(ctx, safeID, time.Now().Add(-s.retention))
		if err != nil {
			return err
		}

		if count > 0 {
			metrics.ChangesPurgedAdd(count)

			logrus.WithField("count", count).Debug("Swept change rows")
		}

		return nil
	})
}
