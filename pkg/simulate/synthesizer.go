// Package simulate synthesizes wallet activity for transactions that have
// not been linked yet. Each transaction gets exactly one SENT edge from a
// pool wallet and one or two RECEIVED_BY edges to other pool wallets, and is
// marked simulated in the same write so it is never selected again.
package simulate

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/alim08/coingraph/pkg/graphstore"
	"github.com/alim08/coingraph/pkg/logger"
	"github.com/alim08/coingraph/pkg/metrics"
	"github.com/alim08/coingraph/pkg/models"
	"go.uber.org/zap"
)

// Options configures a Synthesizer.
type Options struct {
	PoolSize      int
	Deterministic bool
	// Seed for the shared random source; zero seeds from the clock.
	Seed int64
}

// Result summarises one synthesizer run.
type Result struct {
	Unlinked int
	Linked   int
	Failed   int
}

type Synthesizer struct {
	store  graphstore.Writer
	pool   Pool
	picker *Picker
}

func New(store graphstore.Writer, opts Options) (*Synthesizer, error) {
	pool, err := NewPool(opts.PoolSize)
	if err != nil {
		return nil, err
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthesizer{
		store:  store,
		pool:   pool,
		picker: NewPicker(pool, rand.New(rand.NewSource(seed)), opts.Deterministic),
	}, nil
}

// Pool returns the address pool.
func (s *Synthesizer) Pool() Pool {
	return s.pool
}

// Plan derives the link for one transaction timestamp.
func (s *Synthesizer) Plan(timestamp string) models.WalletLink {
	txID := TxID(timestamp)
	sender, receivers := s.picker.Pick(txID)
	return models.WalletLink{
		Timestamp: timestamp,
		TxID:      txID,
		Sender:    sender,
		Receivers: receivers,
	}
}

// Run links every unlinked transaction in timestamp order. A failure on one
// transaction is logged and the rest continue; it stays unlinked and is
// picked up again next run.
func (s *Synthesizer) Run(ctx context.Context) (Result, error) {
	var res Result
	pending, err := s.store.UnlinkedTransactions(ctx)
	if err != nil {
		return res, fmt.Errorf("list unlinked transactions: %w", err)
	}
	res.Unlinked = len(pending)

	for _, ts := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := s.linkOne(ctx, ts); err != nil {
			res.Failed++
			metrics.SimulateErrors.Inc()
			logger.Log.Warn("wallet link failed", zap.String("timestamp", ts), zap.Error(err))
			continue
		}
		res.Linked++
		metrics.SimulateCounter.Inc()
	}

	logger.Log.Info("simulated wallets for new transactions",
		zap.Int("linked", res.Linked),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (s *Synthesizer) linkOne(ctx context.Context, ts string) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic linking %s: %v", ts, r)
		}
		metrics.SimulateLatency.Observe(time.Since(start).Seconds())
	}()

	link := s.Plan(ts)
	if err := s.store.LinkTransaction(ctx, link); err != nil {
		return err
	}
	logger.Log.Debug("transaction linked",
		zap.String("tx_id", link.TxID),
		zap.String("sender", link.Sender),
		zap.Strings("receivers", link.Receivers))
	return nil
}
