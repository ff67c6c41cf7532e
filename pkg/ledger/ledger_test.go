package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingIsEmpty(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "pushed_files.txt"))
	assert.Empty(t, l.Load())
	assert.False(t, l.Contains("a.json"))
}

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "pushed_files.txt")
	l := New(path)

	require.NoError(t, l.Append("a.json"))
	require.NoError(t, l.Append("b.json"))

	assert.True(t, l.Contains("a.json"))
	assert.Len(t, l.Load(), 2)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a.json\nb.json\n", string(raw))
}

func TestAppendRejectsBadNames(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "ledger"))
	assert.Error(t, l.Append(""))
	assert.Error(t, l.Append("a.json\nb.json"))
	assert.Empty(t, l.Load())
}

func TestLoadIgnoresBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	require.NoError(t, os.WriteFile(path, []byte("a.json\n\n  b.json  \n"), 0o644))

	set := New(path).Load()
	assert.Len(t, set, 2)
	assert.Contains(t, set, "b.json")
}

func TestUnreadableLedgerIsEmpty(t *testing.T) {
	// a directory where the file should be
	path := t.TempDir()
	assert.Empty(t, New(path).Load())
}

func TestConcurrentAppends(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "ledger"))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Append(fmt.Sprintf("%02d.json", i)))
		}(i)
	}
	wg.Wait()
	assert.Len(t, l.Load(), 20)
}

func TestReconcile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	require.NoError(t, os.WriteFile(path, []byte("a.json\nb.json\na.json\nc.json\n"), 0o644))
	l := New(path)

	present := map[string]bool{"a.json": true, "c.json": true}
	removed, err := l.Reconcile(func(name string) bool { return present[name] })
	require.NoError(t, err)
	assert.Equal(t, []string{"b.json"}, removed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a.json\nc.json\n", string(raw))

	// second pass changes nothing
	removed, err = l.Reconcile(func(name string) bool { return present[name] })
	require.NoError(t, err)
	assert.Empty(t, removed)
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a.json\nc.json\n", string(raw))
}

func TestReconcileMissingLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	removed, err := New(path).Reconcile(func(string) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, removed)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "reconcile must not create the ledger")
}
