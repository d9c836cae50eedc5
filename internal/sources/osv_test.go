package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

const osvLodashResponse = `{
	"vulns": [
		{
			"id": "GHSA-35jh-r3h4-6jhm",
			"summary": "Command injection in lodash",
			"details": "lodash versions prior to 4.17.21 are vulnerable to command injection via the template function.",
			"aliases": ["CVE-2021-23337"],
			"severity": [
				{"type": "CVSS_V3", "score": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"}
			],
			"affected": [
				{
					"package": {"ecosystem": "npm", "name": "lodash"},
					"ranges": [
						{"type": "SEMVER", "events": [{"introduced": "0"}, {"fixed": "4.17.21"}]}
					]
				}
			],
			"references": [
				{"type": "ADVISORY", "url": "https://github.com/advisories/GHSA-35jh-r3h4-6jhm"}
			]
		},
		{
			"id": "OSV-2020-0001",
			"summary": "",
			"affected": [
				{
					"package": {"ecosystem": "npm", "name": "lodash"},
					"versions": ["4.17.19", "4.17.20"]
				}
			]
		}
	]
}`

func lodashPackage(t *testing.T) model.PackageIdentity {
	t.Helper()
	pkg, err := model.NewPackageIdentity("npm", "lodash", "4.17.19")
	require.NoError(t, err)
	return pkg
}

func TestOSVAdapterFindVulnerabilities(t *testing.T) {
	var gotQuery osvQuery
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(osvLodashResponse))
	}))
	defer server.Close()

	adapter := NewOSVAdapter(OSVConfig{URL: server.URL, Logger: zap.NewNop()})
	advisories, err := adapter.FindVulnerabilities(context.Background(), lodashPackage(t))
	require.NoError(t, err)
	require.Len(t, advisories, 2)

	assert.Equal(t, "lodash", gotQuery.Package.Name)
	assert.Equal(t, "npm", gotQuery.Package.Ecosystem)
	assert.Equal(t, "4.17.19", gotQuery.Version)

	first := advisories[0]
	assert.Equal(t, "GHSA-35jh-r3h4-6jhm", first.ID)
	assert.Equal(t, "CVE-2021-23337", first.CVEID)
	assert.Equal(t, "GHSA-35JH-R3H4-6JHM", first.GHSAID)
	assert.Equal(t, "Command injection in lodash", first.Title)
	assert.Equal(t, model.SeverityCritical, first.Severity)
	assert.InDelta(t, 9.8, first.CVSSScore, 0.01)
	assert.Equal(t, "<4.17.21", first.AffectedRange)
	assert.Equal(t, []string{"4.17.21"}, first.FixedVersions)
	assert.Equal(t, []string{"https://github.com/advisories/GHSA-35jh-r3h4-6jhm"}, first.References)
	assert.Equal(t, "osv", first.SourceName)

	second := advisories[1]
	assert.Equal(t, "OSV-2020-0001", second.ID)
	assert.Equal(t, "OSV-2020-0001", second.Title, "id fills in a missing summary")
	assert.Equal(t, model.SeverityMedium, second.Severity, "no score and no severity defaults to medium")
	assert.Equal(t, "=4.17.19 || =4.17.20", second.AffectedRange)
}

func TestOSVAdapterIntroducedRange(t *testing.T) {
	response := `{
		"vulns": [{
			"id": "GO-2023-0001",
			"summary": "Example",
			"affected": [{
				"package": {"ecosystem": "Go", "name": "example.com/mod"},
				"ranges": [{"type": "SEMVER", "events": [{"introduced": "1.2.0"}, {"fixed": "1.4.1"}]}]
			}]
		}]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(response))
	}))
	defer server.Close()

	pkg, err := model.NewPackageIdentity("go", "example.com/mod", "1.3.0")
	require.NoError(t, err)

	adapter := NewOSVAdapter(OSVConfig{URL: server.URL, Logger: zap.NewNop()})
	advisories, err := adapter.FindVulnerabilities(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, advisories, 1)
	assert.Equal(t, ">=1.2.0 <1.4.1", advisories[0].AffectedRange)
}

func TestOSVAdapterMultipleVulnerableWindows(t *testing.T) {
	response := `{
		"vulns": [{
			"id": "GO-2023-0002",
			"summary": "Reintroduced issue",
			"affected": [{
				"package": {"ecosystem": "Go", "name": "example.com/mod"},
				"ranges": [{"type": "SEMVER", "events": [
					{"introduced": "1.0.0"},
					{"fixed": "1.5.0"},
					{"introduced": "2.0.0"},
					{"fixed": "2.5.0"}
				]}]
			}]
		}]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(response))
	}))
	defer server.Close()

	pkg, err := model.NewPackageIdentity("go", "example.com/mod", "1.2.0")
	require.NoError(t, err)

	adapter := NewOSVAdapter(OSVConfig{URL: server.URL, Logger: zap.NewNop()})
	advisories, err := adapter.FindVulnerabilities(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, advisories, 1)

	// Every introduced/fixed pair becomes its own clause; a version inside
	// the first window must not be masked by the second.
	assert.Equal(t, ">=1.0.0 <1.5.0 || >=2.0.0 <2.5.0", advisories[0].AffectedRange)
	assert.True(t, util.IsAffected("1.2.0", advisories[0].AffectedRange, model.EcosystemGo))
	assert.False(t, util.IsAffected("1.7.0", advisories[0].AffectedRange, model.EcosystemGo))
	assert.True(t, util.IsAffected("2.2.0", advisories[0].AffectedRange, model.EcosystemGo))
	assert.Equal(t, []string{"1.5.0", "2.5.0"}, advisories[0].FixedVersions)
}

func TestOSVAdapterSkipsOtherPackages(t *testing.T) {
	response := `{
		"vulns": [{
			"id": "GHSA-xxxx-yyyy-zzzz",
			"summary": "Unrelated",
			"affected": [{
				"package": {"ecosystem": "npm", "name": "underscore"},
				"ranges": [{"type": "SEMVER", "events": [{"introduced": "0"}, {"fixed": "1.13.0"}]}]
			}]
		}]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(response))
	}))
	defer server.Close()

	adapter := NewOSVAdapter(OSVConfig{URL: server.URL, Logger: zap.NewNop()})
	advisories, err := adapter.FindVulnerabilities(context.Background(), lodashPackage(t))
	require.NoError(t, err)
	require.Len(t, advisories, 1)
	assert.Empty(t, advisories[0].AffectedRange, "ranges of other packages are not attributed")
}

func TestOSVAdapterUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	adapter := NewOSVAdapter(OSVConfig{URL: server.URL, Logger: zap.NewNop()})
	_, err := adapter.FindVulnerabilities(context.Background(), lodashPackage(t))
	require.Error(t, err)

	var unavailable *model.SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "osv", unavailable.Source)
}

func TestOSVAdapterRawCacheHit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(osvLodashResponse))
	}))
	defer server.Close()

	adapter := NewOSVAdapter(OSVConfig{URL: server.URL, CacheDir: t.TempDir(), Logger: zap.NewNop()})
	pkg := lodashPackage(t)

	first, err := adapter.FindVulnerabilities(context.Background(), pkg)
	require.NoError(t, err)
	second, err := adapter.FindVulnerabilities(context.Background(), pkg)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second lookup must come from the raw cache")
	assert.Equal(t, first, second)
}
