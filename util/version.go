// Package util - ecosystem-aware version parsing and range membership.
//
// Comparison uses the version-ordering rule of the ecosystem's scheme:
// Masterminds semver for semver-like ecosystems, go-npm-version for npm,
// go-pep440-version for pip, and a lexical+numeric segment order for Maven.
package util

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
	npm "github.com/aquasecurity/go-npm-version/pkg"
	pep440 "github.com/aquasecurity/go-pep440-version"

	"github.com/vulnscout/vulnscout-backend/model"
)

// CompareVersions is the ordering primitive IsAffected is built on.
// Returns -1, 0 or 1. The order is total and consistent per ecosystem; an
// error means one of the versions could not be parsed under the
// ecosystem's scheme.
func CompareVersions(a, b string, eco model.Ecosystem) (int, error) {
	scheme := model.SchemeSemver
	if cfg, ok := model.GetEcosystemConfig(eco); ok {
		scheme = cfg.Scheme
	}

	switch scheme {
	case model.SchemeNpm:
		return compareNpm(a, b)
	case model.SchemePep440:
		return comparePep440(a, b)
	case model.SchemeMaven:
		return compareMaven(a, b), nil
	default:
		return compareSemver(a, b)
	}
}

func compareNpm(a, b string) (int, error) {
	va, err := npm.NewVersion(strings.TrimPrefix(a, "v"))
	if err != nil {
		return 0, fmt.Errorf("parse npm version %q: %w", a, err)
	}
	vb, err := npm.NewVersion(strings.TrimPrefix(b, "v"))
	if err != nil {
		return 0, fmt.Errorf("parse npm version %q: %w", b, err)
	}
	switch {
	case va.LessThan(vb):
		return -1, nil
	case va.GreaterThan(vb):
		return 1, nil
	default:
		return 0, nil
	}
}

func comparePep440(a, b string) (int, error) {
	va, err := pep440.Parse(a)
	if err != nil {
		return 0, fmt.Errorf("parse pep440 version %q: %w", a, err)
	}
	vb, err := pep440.Parse(b)
	if err != nil {
		return 0, fmt.Errorf("parse pep440 version %q: %w", b, err)
	}
	switch {
	case va.LessThan(vb):
		return -1, nil
	case va.GreaterThan(vb):
		return 1, nil
	default:
		return 0, nil
	}
}

func compareSemver(a, b string) (int, error) {
	// Masterminds handles "v" prefixes and partial versions like "1.2".
	va, err := semver.NewVersion(strings.TrimPrefix(a, "go"))
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", a, err)
	}
	vb, err := semver.NewVersion(strings.TrimPrefix(b, "go"))
	if err != nil {
		return 0, fmt.Errorf("parse version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

// compareMaven orders versions by alternating numeric and textual segments.
// Numeric segments compare numerically, textual ones lexically, and a
// missing segment counts as zero/empty, so "1.2" < "1.2.1" and
// "1.2-alpha" < "1.2". Total by construction.
func compareMaven(a, b string) int {
	sa := mavenSegments(a)
	sb := mavenSegments(b)

	n := len(sa)
	if len(sb) > n {
		n = len(sb)
	}
	for i := 0; i < n; i++ {
		var x, y mavenSegment
		if i < len(sa) {
			x = sa[i]
		}
		if i < len(sb) {
			y = sb[i]
		}
		if c := x.compare(y); c != 0 {
			return c
		}
	}
	return 0
}

type mavenSegment struct {
	text    string
	num     int
	numeric bool
}

func (s mavenSegment) compare(o mavenSegment) int {
	// A numeric segment always sorts above a textual one at the same
	// position ("1.2" > "1.2-alpha" after padding).
	if s.numeric != o.numeric {
		if s.numeric {
			if o.text == "" {
				if s.num == 0 {
					return 0
				}
				return 1
			}
			return 1
		}
		if s.text == "" {
			if o.num == 0 {
				return 0
			}
			return -1
		}
		return -1
	}
	if s.numeric {
		switch {
		case s.num < o.num:
			return -1
		case s.num > o.num:
			return 1
		}
		return 0
	}
	// A padded (empty) segment stands for the plain release, which ranks
	// above any qualifier: "1.2-alpha" < "1.2".
	switch {
	case s.text == o.text:
		return 0
	case s.text == "":
		return 1
	case o.text == "":
		return -1
	}
	return strings.Compare(s.text, o.text)
}

func mavenSegments(v string) []mavenSegment {
	v = strings.TrimSpace(strings.TrimPrefix(v, "v"))
	parts := strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
	segments := make([]mavenSegment, 0, len(parts))
	for _, part := range parts {
		if isDigits(part) {
			n, _ := strconv.Atoi(part)
			segments = append(segments, mavenSegment{num: n, numeric: true})
		} else {
			segments = append(segments, mavenSegment{text: strings.ToLower(part)})
		}
	}
	return segments
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// IsAffected reports whether version falls inside rangeExpression for the
// ecosystem. The expression is a union of clauses joined by "||"; each
// clause is a conjunction of comparator+version tokens, e.g.
// ">=1.2.0 <2.0.0 || =3.0.1". A malformed range or unparsable version is
// fail-safe: the package is treated as affected, never silently safe.
func IsAffected(version, rangeExpression string, eco model.Ecosystem) bool {
	rangeExpression = strings.TrimSpace(rangeExpression)
	if rangeExpression == "" {
		log.Printf("WARNING: empty affected range for version %s, treating as affected", version)
		return true
	}

	for _, clause := range strings.Split(rangeExpression, "||") {
		matched, err := clauseMatches(version, clause, eco)
		if err != nil {
			log.Printf("WARNING: ambiguous range %q for version %s: %v, treating as affected", rangeExpression, version, err)
			return true
		}
		if matched {
			return true
		}
	}
	return false
}

// clauseMatches evaluates one conjunction of comparator tokens.
func clauseMatches(version, clause string, eco model.Ecosystem) (bool, error) {
	tokens, err := splitComparators(clause)
	if err != nil {
		return false, err
	}
	if len(tokens) == 0 {
		return false, fmt.Errorf("empty clause")
	}

	for _, tok := range tokens {
		cmp, err := CompareVersions(version, tok.version, eco)
		if err != nil {
			return false, err
		}
		var ok bool
		switch tok.op {
		case "=":
			ok = cmp == 0
		case "<":
			ok = cmp < 0
		case "<=":
			ok = cmp <= 0
		case ">":
			ok = cmp > 0
		case ">=":
			ok = cmp >= 0
		default:
			return false, fmt.Errorf("unknown operator %q", tok.op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type comparatorToken struct {
	op      string
	version string
}

// splitComparators tokenizes a clause like ">= 1.2.0 <2.0.0" into
// comparator+version pairs. A bare version token means equality.
func splitComparators(clause string) ([]comparatorToken, error) {
	fields := strings.Fields(clause)
	tokens := make([]comparatorToken, 0, len(fields))

	for i := 0; i < len(fields); i++ {
		field := fields[i]
		op, rest := splitOperator(field)
		if rest == "" {
			// Operator separated from its version by whitespace.
			if op == "=" && field != "=" {
				return nil, fmt.Errorf("malformed token %q", field)
			}
			i++
			if i >= len(fields) {
				return nil, fmt.Errorf("dangling operator %q", field)
			}
			rest = fields[i]
			if nestedOp, _ := splitOperator(rest); nestedOp != "=" || strings.HasPrefix(rest, "=") {
				return nil, fmt.Errorf("operator %q followed by %q", field, rest)
			}
		}
		tokens = append(tokens, comparatorToken{op: op, version: rest})
	}
	return tokens, nil
}

func splitOperator(field string) (string, string) {
	switch {
	case strings.HasPrefix(field, ">="):
		return ">=", field[2:]
	case strings.HasPrefix(field, "<="):
		return "<=", field[2:]
	case strings.HasPrefix(field, ">"):
		return ">", field[1:]
	case strings.HasPrefix(field, "<"):
		return "<", field[1:]
	case strings.HasPrefix(field, "="):
		return "=", field[1:]
	default:
		return "=", field
	}
}

// SortVersionsAscending sorts versions in place under the ecosystem's
// order. Unparsable versions sort first so callers pick real upgrades.
func SortVersionsAscending(versions []string, eco model.Ecosystem) {
	sort.SliceStable(versions, func(i, j int) bool {
		cmp, err := CompareVersions(versions[i], versions[j], eco)
		if err != nil {
			return versions[i] < versions[j]
		}
		return cmp < 0
	})
}
