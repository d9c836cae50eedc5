package sources

import (
	"context"
	"sync"

	"github.com/vulnscout/vulnscout-backend/model"
)

// AdvisoryRow is one advisory in the locally cached GitHub advisory table,
// keyed "ecosystem:packageName".
type AdvisoryRow struct {
	Key       string            `json:"_key,omitempty"`
	Ecosystem model.Ecosystem   `json:"ecosystem"`
	Package   string            `json:"package"`
	Advisory  model.RawAdvisory `json:"advisory"`
}

// RowKey builds the table key for a package. The name goes through the
// ecosystem's normalization rule, so case only folds where the ecosystem
// is case-insensitive; npm names keep their case.
func RowKey(eco model.Ecosystem, name string) string {
	return string(eco) + ":" + model.NormalizeName(eco, name)
}

// AdvisoryStore is the local advisory table the GitHub adapter maintains.
// Implemented by the ArangoDB-backed store in the database package and by
// MemoryStore for tests and DB-less deployments.
type AdvisoryStore interface {
	// ReplaceEcosystem swaps the whole table for one ecosystem with the
	// rows from a fresh bulk refresh.
	ReplaceEcosystem(ctx context.Context, eco model.Ecosystem, rows []AdvisoryRow) error
	// Lookup returns all advisories on file for a package.
	Lookup(ctx context.Context, eco model.Ecosystem, name string) ([]AdvisoryRow, error)
}

// MemoryStore is an in-process AdvisoryStore.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[model.Ecosystem]map[string][]AdvisoryRow // eco -> package key -> rows
}

// NewMemoryStore creates an empty in-memory advisory table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[model.Ecosystem]map[string][]AdvisoryRow)}
}

// ReplaceEcosystem implements AdvisoryStore.
func (s *MemoryStore) ReplaceEcosystem(_ context.Context, eco model.Ecosystem, rows []AdvisoryRow) error {
	table := make(map[string][]AdvisoryRow, len(rows))
	for _, row := range rows {
		key := RowKey(eco, row.Package)
		table[key] = append(table[key], row)
	}
	s.mu.Lock()
	s.rows[eco] = table
	s.mu.Unlock()
	return nil
}

// Lookup implements AdvisoryStore.
func (s *MemoryStore) Lookup(_ context.Context, eco model.Ecosystem, name string) ([]AdvisoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.rows[eco]
	if !ok {
		return nil, nil
	}
	rows := table[RowKey(eco, name)]
	out := make([]AdvisoryRow, len(rows))
	copy(out, rows)
	return out, nil
}
