// Package database - ArangoDB implementation of the advisory table.
package database

import (
	"context"
	"fmt"

	"github.com/arangodb/go-driver/v2/arangodb"

	"github.com/vulnscout/vulnscout-backend/internal/sources"
	"github.com/vulnscout/vulnscout-backend/model"
)

// AdvisoryStore persists the GitHub advisory table in the advisories
// collection. Implements sources.AdvisoryStore.
type AdvisoryStore struct {
	db DBConnection
}

// NewAdvisoryStore wraps a database connection as an advisory store.
func NewAdvisoryStore(db DBConnection) *AdvisoryStore {
	return &AdvisoryStore{db: db}
}

// ReplaceEcosystem swaps all rows for one ecosystem with the rows from a
// fresh bulk refresh. Delete-then-insert inside one request keeps lookups
// from observing a half-replaced table for longer than a refresh takes.
func (s *AdvisoryStore) ReplaceEcosystem(ctx context.Context, eco model.Ecosystem, rows []sources.AdvisoryRow) error {
	removeQuery := `
		FOR a IN advisories
			FILTER a.ecosystem == @ecosystem
			REMOVE a IN advisories
	`
	cursor, err := s.db.Database.Query(ctx, removeQuery, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"ecosystem": string(eco)},
	})
	if err != nil {
		return fmt.Errorf("clear advisory table for %s: %w", eco, err)
	}
	cursor.Close()

	col := s.db.Collections[AdvisoriesCollection]
	for _, row := range rows {
		// The table key is not unique per row (one package can carry
		// many advisories), so rows get generated document keys.
		row.Key = ""
		if _, err := col.CreateDocument(ctx, row); err != nil {
			return fmt.Errorf("insert advisory row for %s: %w", row.Package, err)
		}
	}
	return nil
}

// Lookup returns all advisories on file for a package.
func (s *AdvisoryStore) Lookup(ctx context.Context, eco model.Ecosystem, name string) ([]sources.AdvisoryRow, error) {
	query := `
		FOR a IN advisories
			FILTER a.ecosystem == @ecosystem && a.package == @package
			RETURN a
	`
	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"ecosystem": string(eco),
			"package":   model.NormalizeName(eco, name),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("advisory lookup for %s:%s: %w", eco, name, err)
	}
	defer cursor.Close()

	var rows []sources.AdvisoryRow
	for cursor.HasMore() {
		var row sources.AdvisoryRow
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			return nil, fmt.Errorf("read advisory row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
