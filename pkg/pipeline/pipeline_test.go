package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/coingraph/pkg/config"
	"github.com/alim08/coingraph/pkg/graphstore/memory"
	"github.com/alim08/coingraph/pkg/scheduler"
)

func testConfig(t *testing.T, sourceURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Store = config.StoreMemory
	cfg.DataDir = filepath.Join(dir, "raw")
	cfg.LedgerPath = filepath.Join(dir, "pushed_files.txt")
	cfg.SourceURL = sourceURL
	cfg.WalletPoolSize = 5
	return cfg
}

func TestTasks(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	p, err := Assemble(cfg, memory.New(), nil)
	require.NoError(t, err)

	tasks := p.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, TaskFetch, tasks[0].Name)
	assert.Equal(t, 60*time.Second, tasks[0].Interval)
	assert.Equal(t, TaskPush, tasks[1].Name)
	assert.Equal(t, 10*time.Second, tasks[1].InitialDelay)
	assert.Equal(t, TaskSimulate, tasks[2].Name)
	assert.Equal(t, 300*time.Second, tasks[2].Interval)

	cfg.SweepInterval = time.Hour
	tasks = p.Tasks()
	require.Len(t, tasks, 4)
	assert.Equal(t, TaskSweep, tasks[3].Name)
}

func TestAssembleRejectsSmallPool(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.WalletPoolSize = 2
	_, err := Assemble(cfg, memory.New(), nil)
	assert.Error(t, err)
}

func TestStagesEndToEnd(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"market_data":{"current_price":{"usd":65000.0},"market_cap":{"usd":1.2e12},"total_volume":{"usd":3e10}}}`))
	}))
	defer src.Close()

	ctx := context.Background()
	store := memory.New()
	p, err := Assemble(testConfig(t, src.URL), store, nil)
	require.NoError(t, err)

	sample, err := p.Fetcher.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, sample)

	pushed, err := p.Pusher.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pushed.Pushed)
	assert.True(t, p.Ledger.Contains(sample.RecordName()))

	linked, err := p.Synthesizer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, linked.Linked)

	tx, ok := store.Transaction(sample.Timestamp)
	require.True(t, ok)
	assert.True(t, tx.Simulated)
	assert.Len(t, store.Senders(sample.Timestamp), 1)

	swept, err := p.Sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, swept.Deleted, "fresh records are kept")

	assert.NoError(t, p.Health(ctx))
	assert.NoError(t, p.Close(ctx))
}

func TestScheduledPipeline(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"market_data":{"current_price":{"usd":1}}}`))
	}))
	defer src.Close()

	cfg := testConfig(t, src.URL)
	cfg.FetchInterval = 10 * time.Millisecond
	cfg.PushInterval = 10 * time.Millisecond
	cfg.PushInitialDelay = 0
	cfg.SimulateInterval = 10 * time.Millisecond

	store := memory.New()
	p, err := Assemble(cfg, store, nil)
	require.NoError(t, err)

	sched := scheduler.New(time.Second, p.Tasks()...)
	require.NoError(t, sched.Start(context.Background()))

	require.Eventually(t, func() bool {
		stats, err := store.Stats(context.Background())
		return err == nil && stats.Sent >= 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, sched.Stop())
	assert.Equal(t, scheduler.StateStopped, sched.State())
}

func TestOpenStoreMemory(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	store, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	assert.NoError(t, store.Close(context.Background()))

	cfg.Store = "sqlite"
	_, err = OpenStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenCacheDisabled(t *testing.T) {
	cache, err := OpenCache(context.Background(), testConfig(t, "http://127.0.0.1:1"))
	require.NoError(t, err)
	assert.Nil(t, cache)
}
