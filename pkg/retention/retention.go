// Package retention deletes durable records past the retention window and
// prunes the ledger of names whose files are gone.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/alim08/coingraph/pkg/ledger"
	"github.com/alim08/coingraph/pkg/logger"
	"github.com/alim08/coingraph/pkg/metrics"
	"github.com/alim08/coingraph/pkg/records"
	"go.uber.org/zap"
)

const DefaultWindow = 24 * time.Hour

// Result lists what one sweep removed.
type Result struct {
	Deleted []string
	Pruned  []string
}

type Sweeper struct {
	recs   *records.Store
	ledger *ledger.Ledger
	window time.Duration
	now    func() time.Time
}

// New returns a Sweeper; a non-positive window falls back to DefaultWindow.
func New(recs *records.Store, l *ledger.Ledger, window time.Duration) *Sweeper {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Sweeper{recs: recs, ledger: l, window: window, now: time.Now}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Window returns the configured retention window.
func (s *Sweeper) Window() time.Duration {
	return s.window
}

// Run deletes every record modified before now-window, then reconciles the
// ledger against what is left on disk. The reconcile runs even if some
// deletions failed, and is harmless to repeat.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	var res Result
	cutoff := s.now().Add(-s.window)

	old, err := s.recs.OlderThan(cutoff)
	if err != nil {
		metrics.SweepErrors.Inc()
		return res, fmt.Errorf("list expired records: %w", err)
	}

	for _, name := range old {
		if ctx.Err() != nil {
			break
		}
		if err := s.recs.Remove(name); err != nil {
			metrics.SweepErrors.Inc()
			logger.Log.Warn("record delete failed", zap.String("record", name), zap.Error(err))
			continue
		}
		res.Deleted = append(res.Deleted, name)
	}
	metrics.SweepDeleted.Add(float64(len(res.Deleted)))

	pruned, err := s.ledger.Reconcile(s.recs.Exists)
	if err != nil {
		metrics.SweepErrors.Inc()
		return res, fmt.Errorf("reconcile ledger: %w", err)
	}
	res.Pruned = pruned
	metrics.SweepPruned.Add(float64(len(pruned)))

	logger.Log.Info("retention sweep completed",
		zap.Time("cutoff", cutoff),
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("pruned", len(res.Pruned)))
	return res, nil
}
