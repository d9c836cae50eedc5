// Package graphql assembles the root schema from the query modules.
package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/vulnscout/vulnscout-backend/graphql/modules/vulnerabilities"
	"github.com/vulnscout/vulnscout-backend/internal/scanner"
)

// CreateSchema builds the root GraphQL schema over the scanner manager.
func CreateSchema(mgr *scanner.Manager) (graphql.Schema, error) {
	rootFields := graphql.Fields{}
	for name, field := range vulnerabilities.GetQueryFields(mgr) {
		rootFields[name] = field
	}

	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Query",
		Fields: rootFields,
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: rootQuery})
}
