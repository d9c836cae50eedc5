// Package sources contains the per-source advisory adapters (OSV, NVD,
// GitHub Advisory) plus the request scheduling and raw-result caching they
// share. Every adapter is independently fallible: on error it returns an
// empty list and the orchestrator carries on with the remaining sources.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/vulnscout/vulnscout-backend/model"
)

// Adapter queries one external advisory source for a package.
type Adapter interface {
	// Name identifies the source in logs, merged records and errors.
	Name() string
	// FindVulnerabilities returns the raw advisories affecting the
	// package at its version. An error means the source was unreachable
	// or unparsable; it never aborts the overall scan.
	FindVulnerabilities(ctx context.Context, pkg model.PackageIdentity) ([]model.RawAdvisory, error)
}

// httpDoer is the seam tests use to stub upstream endpoints.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// doWithRetry issues the request with exponential backoff on transport
// errors and 5xx responses. Non-retryable statuses return immediately.
func doWithRetry(ctx context.Context, client httpDoer, build func() (*http.Request, error)) ([]byte, int, http.Header, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 20 * time.Second

	var body []byte
	var status int
	var header http.Header

	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		header = resp.Header
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, status, header, err
	}
	return body, status, header, nil
}
