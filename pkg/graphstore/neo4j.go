package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/alim08/coingraph/pkg/logger"
	"github.com/alim08/coingraph/pkg/metrics"
	"github.com/alim08/coingraph/pkg/models"
	"github.com/alim08/coingraph/pkg/resilience"
)

// Config holds Neo4j connection settings
type Config struct {
	URI      string
	User     string
	Password string
	Database string

	// MaxRetries bounds the client-side retries on top of the driver's own
	// transaction retry.
	MaxRetries      uint64
	ConnectTimeout  time.Duration
	TxRetryTime     time.Duration
	MaxConnPoolSize int
}

// Neo4jStore is a Store backed by a Neo4j server.
type Neo4jStore struct {
	driver  neo4j.DriverWithContext
	cfg     Config
	breaker *resilience.Breaker
}

// Open connects to Neo4j and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Neo4jStore, error) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.TxRetryTime == 0 {
		cfg.TxRetryTime = 5 * time.Second
	}
	if cfg.MaxConnPoolSize == 0 {
		cfg.MaxConnPoolSize = 20
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.SocketConnectTimeout = cfg.ConnectTimeout
			c.MaxTransactionRetryTime = cfg.TxRetryTime
			c.MaxConnectionPoolSize = cfg.MaxConnPoolSize
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	logger.Log.Info("graph store connected", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))
	return &Neo4jStore{driver: driver, cfg: cfg, breaker: resilience.NewBreaker("neo4j")}, nil
}

// Close closes the driver and its connection pool
func (s *Neo4jStore) Close(ctx context.Context) error {
	logger.Log.Info("closing graph store")
	return s.driver.Close(ctx)
}

// HealthCheck verifies the server is reachable.
func (s *Neo4jStore) HealthCheck(ctx context.Context) error {
	return s.withMetrics("health", func() error {
		return s.driver.VerifyConnectivity(ctx)
	})
}

// EnsureSchema creates the uniqueness constraints the MERGE keys rely on.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		err := s.withMetrics("schema", func() error {
			_, err := neo4j.ExecuteQuery(ctx, s.driver, stmt, nil, neo4j.EagerResultTransformer,
				neo4j.ExecuteQueryWithDatabase(s.cfg.Database))
			return err
		})
		if err != nil {
			return fmt.Errorf("apply schema %q: %w", stmt, err)
		}
	}
	logger.Log.Info("graph schema ensured", zap.Int("statements", len(schemaStatements)))
	return nil
}

// UpsertTransaction merges the Transaction node for a sample.
func (s *Neo4jStore) UpsertTransaction(ctx context.Context, sample models.MarketSample) error {
	return s.write(ctx, "upsert_transaction", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		return run(ctx, tx, cypherUpsertTransaction, sample.Params())
	})
}

// UnlinkedTransactions lists timestamps of transactions lacking the simulated marker.
func (s *Neo4jStore) UnlinkedTransactions(ctx context.Context) ([]string, error) {
	records, err := s.read(ctx, "unlinked_transactions", cypherUnlinked, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		ts, ok := rec.Get("ts")
		if !ok || ts == nil {
			continue
		}
		out = append(out, fmt.Sprint(ts))
	}
	return out, nil
}

// LinkTransaction writes the sender, receiver and marker updates in one
// transaction so a failure leaves nothing half linked.
func (s *Neo4jStore) LinkTransaction(ctx context.Context, link models.WalletLink) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid link for %s: %w", link.Timestamp, err)
	}
	return s.write(ctx, "link_transaction", func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		if err := run(ctx, tx, cypherLinkSender, map[string]any{
			"sender":    link.Sender,
			"timestamp": link.Timestamp,
			"tx_id":     link.TxID,
		}); err != nil {
			return err
		}
		return run(ctx, tx, cypherLinkReceivers, map[string]any{
			"timestamp": link.Timestamp,
			"receivers": link.Receivers,
		})
	})
}

// Stats returns node and edge counts.
func (s *Neo4jStore) Stats(ctx context.Context) (models.GraphStats, error) {
	var st models.GraphStats
	records, err := s.read(ctx, "stats", cypherStats, nil)
	if err != nil {
		return st, err
	}
	if len(records) == 0 {
		return st, nil
	}
	rec := records[0]
	st.Wallets = intValue(rec, "wallets")
	st.Transactions = intValue(rec, "transactions")
	st.Edges = intValue(rec, "edges")
	st.Sent = intValue(rec, "sent")
	st.Received = intValue(rec, "received")
	return st, nil
}

// TopWallets ranks wallets by edge count in one direction.
func (s *Neo4jStore) TopWallets(ctx context.Context, dir models.Direction, limit int) ([]models.WalletActivity, error) {
	query := cypherTopSenders
	if dir == models.DirectionReceived {
		query = cypherTopReceivers
	}
	records, err := s.read(ctx, "top_wallets", query, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	out := make([]models.WalletActivity, 0, len(records))
	for _, rec := range records {
		addr, _ := rec.Get("wallet")
		out = append(out, models.WalletActivity{Address: fmt.Sprint(addr), Count: intValue(rec, "n")})
	}
	return out, nil
}

// RecentTransactionCount counts transactions stamped within window of now.
func (s *Neo4jStore) RecentTransactionCount(ctx context.Context, window time.Duration) (int64, error) {
	records, err := s.read(ctx, "recent_count", cypherRecentCount, map[string]any{"seconds": int64(window.Seconds())})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return intValue(records[0], "n"), nil
}

// DailyTransactionCounts groups the last days of transactions by calendar day.
func (s *Neo4jStore) DailyTransactionCounts(ctx context.Context, days int) ([]models.DailyCount, error) {
	records, err := s.read(ctx, "daily_counts", cypherDailyCounts, map[string]any{"days": int64(days)})
	if err != nil {
		return nil, err
	}
	out := make([]models.DailyCount, 0, len(records))
	for _, rec := range records {
		day, _ := rec.Get("day")
		out = append(out, models.DailyCount{Day: fmt.Sprint(day), Count: intValue(rec, "n")})
	}
	return out, nil
}

// Query runs a caller supplied query in a read transaction and returns the
// rows canonicalized for display. Write clauses are rejected by the server.
func (s *Neo4jStore) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	records, err := s.read(ctx, "query", query, params)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(rec.Keys))
		for i, k := range rec.Keys {
			row[k] = Canonicalize(rec.Values[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// write runs fn inside a managed write transaction with retry and metrics.
func (s *Neo4jStore) write(ctx context.Context, op string, fn func(context.Context, neo4j.ManagedTransaction) error) error {
	return s.withMetrics(op, func() error {
		return resilience.Retry(ctx, s.breaker, s.cfg.MaxRetries, func(ctx context.Context) error {
			session := s.driver.NewSession(ctx, neo4j.SessionConfig{
				AccessMode:   neo4j.AccessModeWrite,
				DatabaseName: s.cfg.Database,
			})
			defer session.Close(ctx)

			_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				return nil, fn(ctx, tx)
			})
			return classify(err)
		})
	})
}

// read runs one query in a managed read transaction and collects its records.
func (s *Neo4jStore) read(ctx context.Context, op, query string, params map[string]any) ([]*neo4j.Record, error) {
	var out []*neo4j.Record
	err := s.withMetrics(op, func() error {
		return resilience.Retry(ctx, s.breaker, s.cfg.MaxRetries, func(ctx context.Context) error {
			session := s.driver.NewSession(ctx, neo4j.SessionConfig{
				AccessMode:   neo4j.AccessModeRead,
				DatabaseName: s.cfg.Database,
			})
			defer session.Close(ctx)

			res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				result, err := tx.Run(ctx, query, params)
				if err != nil {
					return nil, err
				}
				return result.Collect(ctx)
			})
			if err != nil {
				return classify(err)
			}
			out, _ = res.([]*neo4j.Record)
			return nil
		})
	})
	return out, err
}

// withMetrics wraps operations with metrics collection
func (s *Neo4jStore) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.GraphOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GraphErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// run executes one statement and consumes its result so errors surface
// inside the transaction function.
func run(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// classify marks errors the driver considers final as permanent so the
// client-side backoff does not repeat them.
func classify(err error) error {
	if err == nil || neo4j.IsRetryable(err) {
		return err
	}
	return backoff.Permanent(err)
}

func intValue(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
