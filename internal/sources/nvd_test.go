package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/model"
)

const nvdLodashResponse = `{
	"vulnerabilities": [
		{
			"cve": {
				"id": "CVE-2021-23337",
				"published": "2021-02-15T13:15:12.560",
				"lastModified": "2023-11-07T03:31:05.310",
				"descriptions": [
					{"lang": "en", "value": "Lodash versions prior to 4.17.21 are vulnerable to Command Injection via the template function."},
					{"lang": "es", "value": "Lodash en versiones anteriores..."}
				],
				"metrics": {
					"cvssMetricV31": [{"cvssData": {"baseScore": 7.2, "vectorString": "CVSS:3.1/AV:N/AC:L/PR:H/UI:N/S:U/C:H/I:H/A:H"}}],
					"cvssMetricV2": [{"cvssData": {"baseScore": 9.0}}]
				},
				"references": [{"url": "https://nvd.nist.gov/vuln/detail/CVE-2021-23337"}],
				"configurations": [
					{"nodes": [{"cpeMatch": [
						{"vulnerable": true, "criteria": "cpe:2.3:a:lodash:lodash:*:*:*:*:*:node.js:*:*", "versionEndExcluding": "4.17.21"}
					]}]}
				]
			}
		},
		{
			"cve": {
				"id": "CVE-2020-99999",
				"descriptions": [{"lang": "en", "value": "Unrelated product issue."}],
				"metrics": {},
				"configurations": [
					{"nodes": [{"cpeMatch": [
						{"vulnerable": true, "criteria": "cpe:2.3:a:vendor:otherproduct:1.0:*:*:*:*:*:*:*"}
					]}]}
				]
			}
		},
		{
			"cve": {
				"id": "CVE-2019-10744",
				"descriptions": [{"lang": "en", "value": "Versions of lodash lower than 4.17.12 are vulnerable to Prototype Pollution."}],
				"metrics": {"cvssMetricV31": [{"cvssData": {"baseScore": 9.1}}]},
				"configurations": [
					{"nodes": [{"cpeMatch": [
						{"vulnerable": true, "criteria": "cpe:2.3:a:lodash:lodash:*:*:*:*:*:node.js:*:*", "versionEndExcluding": "4.17.12"}
					]}]}
				]
			}
		}
	]
}`

func TestNVDAdapterFindVulnerabilities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lodash", r.URL.Query().Get("keywordSearch"))
		w.Write([]byte(nvdLodashResponse))
	}))
	defer server.Close()

	adapter := NewNVDAdapter(NVDConfig{URL: server.URL, Logger: zap.NewNop()})
	advisories, err := adapter.FindVulnerabilities(context.Background(), lodashPackage(t))
	require.NoError(t, err)

	// CVE-2020-99999 targets another product; CVE-2019-10744 is fixed
	// before 4.17.19. Only the command injection CVE survives.
	require.Len(t, advisories, 1)

	advisory := advisories[0]
	assert.Equal(t, "CVE-2021-23337", advisory.CVEID)
	assert.InDelta(t, 7.2, advisory.CVSSScore, 0.01, "v3.1 metric wins over v2")
	assert.Equal(t, model.SeverityHigh, advisory.Severity)
	assert.Equal(t, "<4.17.21", advisory.AffectedRange)
	assert.Equal(t, "Lodash versions prior to 4.17.21 are vulnerable to Command Injection via the template function.", advisory.Title)
	assert.Equal(t, "nvd", advisory.SourceName)
	assert.Equal(t, 2021, advisory.PublishedAt.Year())
}

func TestNVDAdapterSendsAPIKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apiKey")
		w.Write([]byte(`{"vulnerabilities": []}`))
	}))
	defer server.Close()

	adapter := NewNVDAdapter(NVDConfig{URL: server.URL, APIKey: "secret", Logger: zap.NewNop()})
	_, err := adapter.FindVulnerabilities(context.Background(), lodashPackage(t))
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}

func TestNVDAdapterRateLimited(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{"vulnerabilities": []}`))
	}))
	defer server.Close()

	limiter, clock := newFakeLimiter(5, 30*time.Second)
	adapter := NewNVDAdapter(NVDConfig{URL: server.URL, Limiter: limiter, Logger: zap.NewNop()})

	pkg := lodashPackage(t)
	for i := 0; i < 6; i++ {
		_, err := adapter.FindVulnerabilities(context.Background(), pkg)
		require.NoError(t, err)
	}

	assert.Equal(t, 6, calls)
	assert.Len(t, clock.slept, 1, "the sixth request waits out the window")
}

func TestNVDAdapterUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	adapter := NewNVDAdapter(NVDConfig{URL: server.URL, Logger: zap.NewNop()})
	_, err := adapter.FindVulnerabilities(context.Background(), lodashPackage(t))

	var unavailable *model.SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "nvd", unavailable.Source)
}

func TestCPEMatchClause(t *testing.T) {
	tests := []struct {
		name  string
		match nvdCPEMatch
		want  string
	}{
		{
			"end excluding",
			nvdCPEMatch{VersionEndExcluding: "4.17.21"},
			"<4.17.21",
		},
		{
			"bounded both sides",
			nvdCPEMatch{VersionStartIncluding: "1.0.0", VersionEndExcluding: "1.2.5"},
			">=1.0.0 <1.2.5",
		},
		{
			"end including",
			nvdCPEMatch{VersionStartExcluding: "2.0.0", VersionEndIncluding: "2.4.0"},
			">2.0.0 <=2.4.0",
		},
		{
			"exact version from criteria",
			nvdCPEMatch{Criteria: "cpe:2.3:a:lodash:lodash:4.17.19:*:*:*:*:*:*:*"},
			"=4.17.19",
		},
		{
			"wildcard version yields nothing",
			nvdCPEMatch{Criteria: "cpe:2.3:a:lodash:lodash:*:*:*:*:*:*:*:*"},
			"",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cpeMatchClause(tc.match))
		})
	}
}

func TestTitleFromDescription(t *testing.T) {
	assert.Equal(t, "CVE-2020-0001", titleFromDescription("CVE-2020-0001", ""))
	assert.Equal(t, "Short sentence", titleFromDescription("CVE-2020-0001", "Short sentence. More text."))
}
