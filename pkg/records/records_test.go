package records

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/coingraph/pkg/models"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "raw"))
	sample := models.NewMarketSample(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), models.Float(65000), nil, models.Float(3e10))

	name, err := s.Write(sample)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T12_00_00.000000Z.json", name)
	assert.True(t, s.Exists(name))

	got, err := s.Read(name)
	require.NoError(t, err)
	assert.Equal(t, sample.Timestamp, got.Timestamp)
	require.NotNil(t, got.PriceUSD)
	assert.Equal(t, 65000.0, *got.PriceUSD)
	assert.Nil(t, got.MarketCap)

	raw, err := os.ReadFile(s.Path(name))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"market_cap": null`)
}

func TestListSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	for _, h := range []int{3, 1, 2} {
		_, err := s.Write(models.NewMarketSample(time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC), nil, nil, nil))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-1.json"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-01T01_00_00.000000Z.json",
		"2024-01-01T02_00_00.000000Z.json",
		"2024-01-01T03_00_00.000000Z.json",
	}, names)
}

func TestListMissingDir(t *testing.T) {
	names, err := New(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestReadMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	_, err := New(dir).Read("bad.json")
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	s := New(t.TempDir())
	name, err := s.Write(models.NewMarketSample(time.Now(), nil, nil, nil))
	require.NoError(t, err)

	require.NoError(t, s.Remove(name))
	assert.False(t, s.Exists(name))
	assert.NoError(t, s.Remove(name), "removing a missing record is not an error")
}

func TestOlderThan(t *testing.T) {
	s := New(t.TempDir())
	now := time.Now()
	ages := map[string]time.Duration{}
	for i, age := range []time.Duration{48 * time.Hour, 2 * time.Hour, 10 * time.Minute} {
		name, err := s.Write(models.NewMarketSample(now.Add(time.Duration(i)*time.Second), nil, nil, nil))
		require.NoError(t, err)
		mtime := now.Add(-age)
		require.NoError(t, os.Chtimes(s.Path(name), mtime, mtime))
		ages[name] = age
	}

	old, err := s.OlderThan(now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, old, 2)
	for _, name := range old {
		assert.Greater(t, ages[name], time.Hour)
	}
}
