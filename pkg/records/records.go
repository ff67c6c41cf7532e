// Package records stores market samples as one JSON file per sample.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alim08/coingraph/pkg/models"
)

// Store is a directory of durable sample records.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory is created lazily on the
// first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of a record.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Write serializes the sample and returns its record name. The file appears
// atomically so readers never observe a partial record.
func (s *Store) Write(sample models.MarketSample) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create record dir: %w", err)
	}
	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sample: %w", err)
	}

	name := sample.RecordName()
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write record %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close record %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return "", fmt.Errorf("rename record %s: %w", name, err)
	}
	return name, nil
}

// List returns every record name in ascending order. A missing directory is
// an empty store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isRecord(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read loads and validates one record.
func (s *Store) Read(name string) (models.MarketSample, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return models.MarketSample{}, fmt.Errorf("read record %s: %w", name, err)
	}
	sample, err := models.MarketSampleFromJSON(data)
	if err != nil {
		return sample, fmt.Errorf("decode record %s: %w", name, err)
	}
	return sample, nil
}

// Exists reports whether the record file is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Remove deletes a record. Removing a missing record is not an error.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove record %s: %w", name, err)
	}
	return nil
}

// OlderThan lists records whose modification time precedes cutoff.
func (s *Store) OlderThan(cutoff time.Time) ([]string, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}

	var old []string
	for _, name := range names {
		info, err := os.Stat(s.Path(name))
		if err != nil {
			// swept concurrently
			continue
		}
		if info.ModTime().Before(cutoff) {
			old = append(old, name)
		}
	}
	return old, nil
}

func isRecord(name string) bool {
	return strings.HasSuffix(name, models.RecordExt) && !strings.HasPrefix(name, ".")
}
