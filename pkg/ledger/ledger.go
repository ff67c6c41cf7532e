// Package ledger tracks which durable records have been pushed to the graph
// store. The ledger is a newline-delimited file of record names that only
// grows, except when reconciliation drops names whose record is gone.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alim08/coingraph/pkg/logger"
	"go.uber.org/zap"
)

// Ledger is an append-only set of processed record names backed by a file.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// New returns a Ledger persisted at path.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Load returns the set of processed names. A missing or unreadable ledger is
// treated as empty.
func (l *Ledger) Load() map[string]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if errors.Is(err, os.ErrNotExist) {
		return map[string]struct{}{}
	}
	if err != nil {
		logger.Log.Warn("ledger unreadable, treating as empty", zap.String("path", l.path), zap.Error(err))
		return map[string]struct{}{}
	}
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e] = struct{}{}
	}
	return set
}

// Contains reports whether name is recorded.
func (l *Ledger) Contains(name string) bool {
	_, ok := l.Load()[name]
	return ok
}

// Append records name as processed with a single line write.
func (l *Ledger) Append(name string) error {
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("invalid ledger entry %q", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.WriteString(name + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	return f.Close()
}

// Reconcile drops every entry for which exists returns false and returns the
// dropped names. It never adds entries and is safe to repeat. A missing
// ledger is a no-op.
func (l *Ledger) Reconcile(exists func(name string) bool) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var kept, removed []string
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		if exists(e) {
			kept = append(kept, e)
		} else {
			removed = append(removed, e)
		}
	}
	if len(removed) == 0 && len(kept) == len(entries) {
		return nil, nil
	}
	if err := l.rewrite(kept); err != nil {
		return nil, err
	}
	return removed, nil
}

// read returns non-empty trimmed lines in file order.
func (l *Ledger) read() ([]string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			entries = append(entries, line)
		}
	}
	return entries, sc.Err()
}

// rewrite replaces the ledger atomically via a temp file in the same dir.
func (l *Ledger) rewrite(entries []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
