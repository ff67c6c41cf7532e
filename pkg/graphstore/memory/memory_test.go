package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/coingraph/pkg/graphstore"
	"github.com/alim08/coingraph/pkg/models"
)

func link(ts, sender string, receivers ...string) models.WalletLink {
	return models.WalletLink{Timestamp: ts, TxID: "0123456789abcdef", Sender: sender, Receivers: receivers}
}

func TestUpsertMergesByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertTransaction(ctx, models.MarketSample{Timestamp: "2024-01-01T00:00:00", PriceUSD: models.Float(1)}))
	require.NoError(t, s.UpsertTransaction(ctx, models.MarketSample{Timestamp: "2024-01-01T00:00:00", PriceUSD: models.Float(2)}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Transactions)

	tx, ok := s.Transaction("2024-01-01T00:00:00")
	require.True(t, ok)
	assert.Equal(t, 2.0, *tx.PriceUSD)
	assert.False(t, tx.Simulated)
}

func TestLinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertTransaction(ctx, models.MarketSample{Timestamp: "2024-01-01T00:00:00"}))

	l := link("2024-01-01T00:00:00", "wallet_000", "wallet_001", "wallet_002")
	require.NoError(t, s.LinkTransaction(ctx, l))
	require.NoError(t, s.LinkTransaction(ctx, l))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GraphStats{Wallets: 3, Transactions: 1, Edges: 3, Sent: 1, Received: 2}, stats)
	assert.Equal(t, []string{"wallet_000"}, s.Senders("2024-01-01T00:00:00"))
	assert.Equal(t, []string{"wallet_001", "wallet_002"}, s.Receivers("2024-01-01T00:00:00"))

	pending, err := s.UnlinkedTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLinkRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertTransaction(ctx, models.MarketSample{Timestamp: "2024-01-01T00:00:00"}))

	err := s.LinkTransaction(ctx, link("2024-01-01T00:00:00", "wallet_000", "wallet_000"))
	assert.Error(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Edges)
	pending, err := s.UnlinkedTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01T00:00:00"}, pending)
}

func TestUnlinkedOrdered(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, ts := range []string{"2024-01-03T00:00:00", "2024-01-01T00:00:00", "2024-01-02T00:00:00"} {
		require.NoError(t, s.UpsertTransaction(ctx, models.MarketSample{Timestamp: ts}))
	}
	pending, err := s.UnlinkedTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01T00:00:00", "2024-01-02T00:00:00", "2024-01-03T00:00:00"}, pending)
}

func TestReadQueries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })

	stamps := []string{
		"2024-01-10T11:30:00.000000Z",
		"2024-01-10T08:00:00.000000Z",
		"2024-01-09T08:00:00.000000Z",
		"2024-01-01T08:00:00.000000Z",
	}
	for _, ts := range stamps {
		require.NoError(t, s.UpsertTransaction(ctx, models.MarketSample{Timestamp: ts}))
	}
	require.NoError(t, s.LinkTransaction(ctx, link(stamps[0], "wallet_000", "wallet_001")))
	require.NoError(t, s.LinkTransaction(ctx, link(stamps[1], "wallet_000", "wallet_002")))
	require.NoError(t, s.LinkTransaction(ctx, link(stamps[2], "wallet_003", "wallet_001", "wallet_002")))

	top, err := s.TopWallets(ctx, models.DirectionSent, 5)
	require.NoError(t, err)
	assert.Equal(t, []models.WalletActivity{{Address: "wallet_000", Count: 2}, {Address: "wallet_003", Count: 1}}, top)

	top, err = s.TopWallets(ctx, models.DirectionReceived, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.WalletActivity{{Address: "wallet_001", Count: 2}}, top)

	n, err := s.RecentTransactionCount(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	daily, err := s.DailyTransactionCounts(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []models.DailyCount{{Day: "2024-01-09", Count: 1}, {Day: "2024-01-10", Count: 2}}, daily)

	_, err = s.Query(ctx, "MATCH (n) RETURN n", nil)
	assert.ErrorIs(t, err, graphstore.ErrUnsupportedQuery)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	assert.Error(t, s.UpsertTransaction(ctx, models.MarketSample{Timestamp: "2024-01-01T00:00:00"}))
	_, err := s.UnlinkedTransactions(ctx)
	assert.Error(t, err)
}
