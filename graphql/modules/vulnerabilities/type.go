// Package vulnerabilities defines the GraphQL types for scan results.
package vulnerabilities

import (
	"github.com/graphql-go/graphql"

	"github.com/vulnscout/vulnscout-backend/model"
)

// PackageType represents the scanned package identity.
var PackageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Package",
	Fields: graphql.Fields{
		"name":      &graphql.Field{Type: graphql.String},
		"version":   &graphql.Field{Type: graphql.String},
		"ecosystem": &graphql.Field{Type: graphql.String},
		"purl": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if pkg, ok := p.Source.(model.PackageIdentity); ok {
					return pkg.PURL(), nil
				}
				return nil, nil
			},
		},
	},
})

// VulnerabilityType represents one canonical merged advisory.
var VulnerabilityType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Vulnerability",
	Fields: graphql.Fields{
		"id":             &graphql.Field{Type: graphql.String},
		"cve_id":         &graphql.Field{Type: graphql.String},
		"ghsa_id":        &graphql.Field{Type: graphql.String},
		"title":          &graphql.Field{Type: graphql.String},
		"description":    &graphql.Field{Type: graphql.String},
		"severity":       &graphql.Field{Type: graphql.String},
		"cvss_score":     &graphql.Field{Type: graphql.Float},
		"affected_range": &graphql.Field{Type: graphql.String},
		"fixed_versions": &graphql.Field{Type: graphql.NewList(graphql.String)},
		"references":     &graphql.Field{Type: graphql.NewList(graphql.String)},
		"sources":        &graphql.Field{Type: graphql.NewList(graphql.String)},
	},
})

// ScanResultType represents the canonical answer for one package@version.
var ScanResultType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ScanResult",
	Fields: graphql.Fields{
		"package":         &graphql.Field{Type: PackageType},
		"vulnerabilities": &graphql.Field{Type: graphql.NewList(VulnerabilityType)},
		"is_vulnerable":   &graphql.Field{Type: graphql.Boolean},
		"from_cache":      &graphql.Field{Type: graphql.Boolean},
		"timestamp":       &graphql.Field{Type: graphql.DateTime},
	},
})

// RemediationType represents the minimal-upgrade recommendation.
var RemediationType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Remediation",
	Fields: graphql.Fields{
		"package":             &graphql.Field{Type: PackageType},
		"has_fix":             &graphql.Field{Type: graphql.Boolean},
		"recommended_version": &graphql.Field{Type: graphql.String},
		"update_command":      &graphql.Field{Type: graphql.String},
		"summary":             &graphql.Field{Type: graphql.String},
	},
})
