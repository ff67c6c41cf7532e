package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/coingraph/pkg/ledger"
	"github.com/alim08/coingraph/pkg/models"
	"github.com/alim08/coingraph/pkg/records"
)

// seed writes one record per age, back-dates its mtime and marks it pushed.
func seed(t *testing.T, recs *records.Store, l *ledger.Ledger, now time.Time, ages ...time.Duration) []string {
	t.Helper()
	var names []string
	for _, age := range ages {
		name, err := recs.Write(models.NewMarketSample(now.Add(-age), models.Float(1), nil, nil))
		require.NoError(t, err)
		mtime := now.Add(-age)
		require.NoError(t, os.Chtimes(recs.Path(name), mtime, mtime))
		require.NoError(t, l.Append(name))
		names = append(names, name)
	}
	return names
}

func TestSweepDeletesExpiredAndPrunesLedger(t *testing.T) {
	dir := t.TempDir()
	recs := records.New(filepath.Join(dir, "raw"))
	l := ledger.New(filepath.Join(dir, "pushed_files.txt"))
	now := time.Now()
	names := seed(t, recs, l, now, 48*time.Hour, 25*time.Hour, 23*time.Hour, time.Hour)

	res, err := New(recs, l, 24*time.Hour).WithClock(func() time.Time { return now }).Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, names[:2], res.Deleted)
	assert.ElementsMatch(t, names[:2], res.Pruned)

	left, err := recs.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, names[2:], left)

	done := l.Load()
	assert.Len(t, done, 2)
	for _, name := range names[:2] {
		assert.NotContains(t, done, name)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	recs := records.New(filepath.Join(dir, "raw"))
	l := ledger.New(filepath.Join(dir, "pushed_files.txt"))
	now := time.Now()
	seed(t, recs, l, now, 30*time.Hour, time.Hour)

	s := New(recs, l, 0).WithClock(func() time.Time { return now })
	assert.Equal(t, DefaultWindow, s.Window())

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Empty(t, res.Pruned)
	assert.Len(t, l.Load(), 1)
}

func TestSweepWithoutLedger(t *testing.T) {
	dir := t.TempDir()
	recs := records.New(filepath.Join(dir, "raw"))
	now := time.Now()
	name, err := recs.Write(models.NewMarketSample(now, nil, nil, nil))
	require.NoError(t, err)
	old := now.Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(recs.Path(name), old, old))

	ledgerPath := filepath.Join(dir, "pushed_files.txt")
	res, err := New(recs, ledger.New(ledgerPath), 24*time.Hour).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{name}, res.Deleted)
	assert.Empty(t, res.Pruned)

	_, err = os.Stat(ledgerPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepPrunesStaleEntriesWithoutDeleting(t *testing.T) {
	dir := t.TempDir()
	recs := records.New(filepath.Join(dir, "raw"))
	l := ledger.New(filepath.Join(dir, "pushed_files.txt"))
	require.NoError(t, l.Append("gone.json"))

	res, err := New(recs, l, time.Hour).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, []string{"gone.json"}, res.Pruned)
	assert.Empty(t, l.Load())
}
