// Package memory provides an in-process graph store with the same MERGE
// semantics as the Neo4j store. It backs tests and STORE=memory dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alim08/coingraph/pkg/graphstore"
	"github.com/alim08/coingraph/pkg/models"
	"github.com/alim08/coingraph/pkg/validation"
)

// Transaction is the in-memory form of a Transaction node.
type Transaction struct {
	Timestamp string
	TxID      string
	PriceUSD  *float64
	MarketCap *float64
	Volume24h *float64
	Simulated bool
}

type edge struct {
	wallet    string
	timestamp string
}

// Store implements graphstore.Store in memory.
type Store struct {
	mu       sync.RWMutex
	txns     map[string]*Transaction
	wallets  map[string]struct{}
	sent     map[edge]struct{}
	received map[edge]struct{}
	now      func() time.Time
}

var _ graphstore.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		txns:     make(map[string]*Transaction),
		wallets:  make(map[string]struct{}),
		sent:     make(map[edge]struct{}),
		received: make(map[edge]struct{}),
		now:      time.Now,
	}
}

// WithClock overrides the clock used by time-window reads.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// EnsureSchema is a no-op; map keys already enforce uniqueness.
func (s *Store) EnsureSchema(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error { return nil }

// UpsertTransaction merges by timestamp and overwrites market figures.
func (s *Store) UpsertTransaction(ctx context.Context, sample models.MarketSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.mergeTransaction(sample.Timestamp)
	t.PriceUSD = sample.PriceUSD
	t.MarketCap = sample.MarketCap
	t.Volume24h = sample.Volume24h
	return nil
}

// UnlinkedTransactions returns timestamps without the simulated marker, ascending.
func (s *Store) UnlinkedTransactions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for ts, t := range s.txns {
		if !t.Simulated {
			out = append(out, ts)
		}
	}
	sort.Strings(out)
	return out, nil
}

// LinkTransaction applies the whole link under one lock.
func (s *Store) LinkTransaction(ctx context.Context, link models.WalletLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid link for %s: %w", link.Timestamp, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets[link.Sender] = struct{}{}
	t := s.mergeTransaction(link.Timestamp)
	t.TxID = link.TxID
	t.Simulated = true
	s.sent[edge{wallet: link.Sender, timestamp: link.Timestamp}] = struct{}{}

	for _, r := range link.Receivers {
		s.wallets[r] = struct{}{}
		s.received[edge{wallet: r, timestamp: link.Timestamp}] = struct{}{}
	}
	return nil
}

// Stats returns node and edge counts.
func (s *Store) Stats(ctx context.Context) (models.GraphStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.GraphStats{
		Wallets:      int64(len(s.wallets)),
		Transactions: int64(len(s.txns)),
		Edges:        int64(len(s.sent) + len(s.received)),
		Sent:         int64(len(s.sent)),
		Received:     int64(len(s.received)),
	}, nil
}

// TopWallets ranks wallets by edge count, ties broken by address.
func (s *Store) TopWallets(ctx context.Context, dir models.Direction, limit int) ([]models.WalletActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := s.sent
	if dir == models.DirectionReceived {
		edges = s.received
	}
	counts := make(map[string]int64)
	for e := range edges {
		counts[e.wallet]++
	}
	out := make([]models.WalletActivity, 0, len(counts))
	for addr, n := range counts {
		out = append(out, models.WalletActivity{Address: addr, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Address < out[j].Address
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentTransactionCount counts transactions stamped after now-window.
func (s *Store) RecentTransactionCount(ctx context.Context, window time.Duration) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-window)
	var n int64
	for ts := range s.txns {
		if t, err := validation.ParseTimestamp(ts); err == nil && t.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// DailyTransactionCounts groups the last days of transactions by UTC day.
func (s *Store) DailyTransactionCounts(ctx context.Context, days int) ([]models.DailyCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().AddDate(0, 0, -days)
	counts := make(map[string]int64)
	for ts := range s.txns {
		t, err := validation.ParseTimestamp(ts)
		if err != nil || t.Before(cutoff) {
			continue
		}
		counts[t.UTC().Format("2006-01-02")]++
	}
	out := make([]models.DailyCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, models.DailyCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// Query is not available without a query engine.
func (s *Store) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return nil, graphstore.ErrUnsupportedQuery
}

// Transaction returns a copy of the node keyed by timestamp.
func (s *Store) Transaction(timestamp string) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[timestamp]
	if !ok {
		return Transaction{}, false
	}
	return *t, true
}

// Senders returns the wallets with a SENT edge into the transaction.
func (s *Store) Senders(timestamp string) []string {
	return s.walletsFor(s.sent, timestamp)
}

// Receivers returns the wallets the transaction has RECEIVED_BY edges to.
func (s *Store) Receivers(timestamp string) []string {
	return s.walletsFor(s.received, timestamp)
}

func (s *Store) walletsFor(edges map[edge]struct{}, timestamp string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for e := range edges {
		if e.timestamp == timestamp {
			out = append(out, e.wallet)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) mergeTransaction(timestamp string) *Transaction {
	t, ok := s.txns[timestamp]
	if !ok {
		t = &Transaction{Timestamp: timestamp}
		s.txns[timestamp] = t
	}
	return t
}
