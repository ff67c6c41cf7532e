// Package graphstore is the property-graph boundary of the pipeline:
// Transaction and Wallet nodes joined by SENT and RECEIVED_BY edges, all
// written as idempotent MERGE-by-key upserts.
package graphstore

import (
	"context"
	"errors"
	"time"

	"github.com/alim08/coingraph/pkg/models"
)

var (
	// ErrUnsupportedQuery is returned by stores that cannot run free-form queries.
	ErrUnsupportedQuery = errors.New("graphstore: free-form queries not supported")
)

// Writer is the write side used by the pusher and the synthesizer.
type Writer interface {
	// UpsertTransaction merges a Transaction keyed by sample timestamp and
	// sets its market figures.
	UpsertTransaction(ctx context.Context, s models.MarketSample) error

	// UnlinkedTransactions returns timestamps of transactions without the
	// simulated marker, ascending.
	UnlinkedTransactions(ctx context.Context) ([]string, error)

	// LinkTransaction writes sender and receiver edges and marks the
	// transaction simulated in a single unit.
	LinkTransaction(ctx context.Context, link models.WalletLink) error
}

// Reader is the read side consumed by dashboards and the CLI.
type Reader interface {
	Stats(ctx context.Context) (models.GraphStats, error)
	TopWallets(ctx context.Context, dir models.Direction, limit int) ([]models.WalletActivity, error)
	RecentTransactionCount(ctx context.Context, window time.Duration) (int64, error)
	DailyTransactionCounts(ctx context.Context, days int) ([]models.DailyCount, error)
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Store is a complete graph store with an explicit lifecycle.
type Store interface {
	Writer
	Reader
	EnsureSchema(ctx context.Context) error
	Close(ctx context.Context) error
}

const (
	cypherUpsertTransaction = `
MERGE (t:Transaction {timestamp: $timestamp})
SET t.price_usd = $price_usd,
    t.market_cap = $market_cap,
    t.volume_24h = $volume_24h`

	cypherUnlinked = `
MATCH (t:Transaction)
WHERE t.simulated IS NULL
RETURN t.timestamp AS ts
ORDER BY ts`

	cypherLinkSender = `
MERGE (s:Wallet {address: $sender})
MERGE (t:Transaction {timestamp: $timestamp})
SET t.tx_id = $tx_id, t.simulated = true
MERGE (s)-[:SENT]->(t)`

	cypherLinkReceivers = `
MATCH (t:Transaction {timestamp: $timestamp})
UNWIND $receivers AS receiver
MERGE (r:Wallet {address: receiver})
MERGE (t)-[:RECEIVED_BY]->(r)`

	cypherStats = `
RETURN
  COUNT { MATCH (w:Wallet) RETURN w } AS wallets,
  COUNT { MATCH (t:Transaction) RETURN t } AS transactions,
  COUNT { MATCH ()-[r]->() RETURN r } AS edges,
  COUNT { MATCH ()-[s:SENT]->() RETURN s } AS sent,
  COUNT { MATCH ()-[x:RECEIVED_BY]->() RETURN x } AS received`

	cypherTopSenders = `
MATCH (w:Wallet)-[:SENT]->()
RETURN w.address AS wallet, count(*) AS n
ORDER BY n DESC, wallet
LIMIT $limit`

	cypherTopReceivers = `
MATCH (w:Wallet)<-[:RECEIVED_BY]-()
RETURN w.address AS wallet, count(*) AS n
ORDER BY n DESC, wallet
LIMIT $limit`

	cypherRecentCount = `
MATCH (t:Transaction)
WHERE datetime(t.timestamp) > datetime() - duration({seconds: $seconds})
RETURN count(t) AS n`

	cypherDailyCounts = `
MATCH (t:Transaction)
WHERE datetime(t.timestamp) >= datetime() - duration({days: $days})
RETURN toString(date(datetime(t.timestamp))) AS day, count(*) AS n
ORDER BY day`
)

// schemaStatements create the uniqueness constraints backing MERGE keys.
var schemaStatements = []string{
	"CREATE CONSTRAINT transaction_timestamp IF NOT EXISTS FOR (t:Transaction) REQUIRE t.timestamp IS UNIQUE",
	"CREATE CONSTRAINT wallet_address IF NOT EXISTS FOR (w:Wallet) REQUIRE w.address IS UNIQUE",
}
