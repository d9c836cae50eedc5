// Package vulnerabilities defines the GraphQL queries for scan results.
package vulnerabilities

import (
	"github.com/graphql-go/graphql"

	"github.com/vulnscout/vulnscout-backend/internal/scanner"
	"github.com/vulnscout/vulnscout-backend/model"
)

// GetQueryFields returns the scan queries to be mounted in the root schema.
func GetQueryFields(mgr *scanner.Manager) graphql.Fields {
	return graphql.Fields{
		"scanResult": &graphql.Field{
			Type: ScanResultType,
			Args: graphql.FieldConfigArgument{
				"ecosystem": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"name":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"version":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"noCache":   &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				ecosystem := p.Args["ecosystem"].(string)
				name := p.Args["name"].(string)
				version := p.Args["version"].(string)
				noCache, _ := p.Args["noCache"].(bool)

				result, err := mgr.ScanPackage(p.Context, ecosystem, name, version, model.ScanOptions{
					NoCache: noCache,
				})
				if err != nil {
					return nil, err
				}
				return *result, nil
			},
		},
		"remediation": &graphql.Field{
			Type: RemediationType,
			Args: graphql.FieldConfigArgument{
				"ecosystem": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"name":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"version":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				ecosystem := p.Args["ecosystem"].(string)
				name := p.Args["name"].(string)
				version := p.Args["version"].(string)

				result, err := mgr.ScanPackage(p.Context, ecosystem, name, version, model.ScanOptions{})
				if err != nil {
					return nil, err
				}
				advice, err := scanner.GetRemediationAdvice(ecosystem, name, version, result.Vulnerabilities)
				if err != nil {
					return nil, err
				}
				return *advice, nil
			},
		},
	}
}
