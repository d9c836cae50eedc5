package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/internal/cache"
	"github.com/vulnscout/vulnscout-backend/internal/sources"
	"github.com/vulnscout/vulnscout-backend/model"
)

// Defaults for batch scanning and adapter deadlines.
const (
	DefaultBatchSize      = 10
	DefaultChunkDelay     = 1 * time.Second
	DefaultAdapterTimeout = 45 * time.Second
)

// PackageRequest is one unresolved scan input as supplied by a caller.
type PackageRequest struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

// Dependency is one dependency discovered in a manifest.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DetectedManifest names one manifest file found in a directory.
type DetectedManifest struct {
	Ecosystem    string `json:"ecosystem"`
	ManifestPath string `json:"manifest_path"`
}

// DependencyDetector is the external manifest-parsing collaborator the
// directory scan delegates to. The core never parses manifests itself.
type DependencyDetector interface {
	DetectEcosystems(dir string) ([]DetectedManifest, error)
	ParseDependencies(manifestPath, ecosystem string) ([]Dependency, error)
}

// inflightScan is one entry in the single-flight registry. done is closed
// exactly once when the scan settles.
type inflightScan struct {
	done   chan struct{}
	result *model.ScanResult
	err    error
}

// Manager owns the per-source adapters, the result cache and the in-flight
// scan registry. Constructed once at process start; all operations take it
// by reference, there is no ambient global state.
type Manager struct {
	adapters       []sources.Adapter
	cache          *cache.ResultCache
	logger         *zap.Logger
	adapterTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]*inflightScan

	// sleep is swappable so batch tests can observe chunk delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config assembles a Manager.
type Config struct {
	Adapters       []sources.Adapter
	Cache          *cache.ResultCache
	Logger         *zap.Logger
	AdapterTimeout time.Duration
}

// New creates a scanner manager.
func New(cfg Config) (*Manager, error) {
	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("scanner manager needs at least one advisory source")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("scanner manager needs a result cache")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	return &Manager{
		adapters:       cfg.Adapters,
		cache:          cfg.Cache,
		logger:         cfg.Logger,
		adapterTimeout: cfg.AdapterTimeout,
		inflight:       make(map[string]*inflightScan),
		sleep:          sleepContext,
	}, nil
}

// ScanPackage answers "is this package@version vulnerable" for one
// package. Unsupported ecosystems are rejected immediately; every other
// failure degrades to a partial result. Identical concurrent scans are
// coalesced unless opts.Force is set.
func (m *Manager) ScanPackage(ctx context.Context, ecosystem, name, version string, opts model.ScanOptions) (*model.ScanResult, error) {
	pkg, err := model.NewPackageIdentity(ecosystem, name, version)
	if err != nil {
		return nil, err
	}
	return m.scanIdentity(ctx, pkg, opts)
}

func (m *Manager) scanIdentity(ctx context.Context, pkg model.PackageIdentity, opts model.ScanOptions) (*model.ScanResult, error) {
	key := pkg.Key()

	if !opts.Force {
		m.mu.Lock()
		if existing, ok := m.inflight[key]; ok {
			m.mu.Unlock()
			select {
			case <-existing.done:
				return existing.result, existing.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		entry := &inflightScan{done: make(chan struct{})}
		m.inflight[key] = entry
		m.mu.Unlock()

		result, err := m.runScan(ctx, pkg, opts)
		entry.result, entry.err = result, err

		// Remove exactly once, success or failure, before waking waiters.
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
		close(entry.done)

		return result, err
	}

	return m.runScan(ctx, pkg, opts)
}

// runScan is the uncoalesced scan path: cache check, adapter fan-out,
// merge, write-through.
func (m *Manager) runScan(ctx context.Context, pkg model.PackageIdentity, opts model.ScanOptions) (*model.ScanResult, error) {
	if !opts.NoCache {
		if cached := m.cache.Read(pkg); cached != nil {
			m.logger.Debug("scan served from cache", zap.String("key", pkg.Key()))
			return cached, nil
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.adapterTimeout
	}

	type adapterResult struct {
		name       string
		advisories []model.RawAdvisory
		err        error
	}

	// All adapters are queried concurrently; results merge only after
	// every one has settled. A slow or dead source degrades to "no
	// result from this source" when its deadline expires.
	results := make([]adapterResult, len(m.adapters))
	var wg sync.WaitGroup
	for i, adapter := range m.adapters {
		wg.Add(1)
		go func(i int, adapter sources.Adapter) {
			defer wg.Done()
			adapterCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			advisories, err := adapter.FindVulnerabilities(adapterCtx, pkg)
			results[i] = adapterResult{name: adapter.Name(), advisories: advisories, err: err}
		}(i, adapter)
	}
	wg.Wait()

	var raw []model.RawAdvisory
	sourceErrors := make(map[string]string)
	for _, r := range results {
		if r.err != nil {
			m.logger.Warn("advisory source degraded",
				zap.String("source", r.name),
				zap.String("package", pkg.PURL()),
				zap.Error(r.err))
			sourceErrors[r.name] = r.err.Error()
			continue
		}
		raw = append(raw, r.advisories...)
	}

	result := &model.ScanResult{
		Package:         pkg,
		Vulnerabilities: MergeAdvisories(raw),
		Timestamp:       time.Now(),
	}
	result.IsVulnerable = len(result.Vulnerabilities) > 0
	if len(sourceErrors) > 0 {
		result.SourceErrors = sourceErrors
	}

	if err := m.cache.Write(pkg, *result); err != nil {
		m.logger.Warn("result cache write failed", zap.String("key", pkg.Key()), zap.Error(err))
	}

	m.logger.Info("scan complete",
		zap.String("package", pkg.PURL()),
		zap.Int("vulnerabilities", len(result.Vulnerabilities)),
		zap.Int("degraded_sources", len(sourceErrors)))
	return result, nil
}

// BatchScan scans many packages, grouped by ecosystem and processed in
// sequential chunks of opts.BatchSize with concurrent scans inside each
// chunk. A fixed delay between chunks keeps external quotas intact.
// Unsupported-ecosystem entries become per-item errors, never an aborted
// batch.
func (m *Manager) BatchScan(ctx context.Context, requests []PackageRequest, opts model.BatchOptions) (*model.BatchScanResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ChunkDelay <= 0 {
		opts.ChunkDelay = DefaultChunkDelay
	}

	batch := &model.BatchScanResult{Timestamp: time.Now()}

	// Resolve identities first so unsupported ecosystems surface as
	// per-item errors and the rest can be grouped by ecosystem.
	byEcosystem := make(map[model.Ecosystem][]model.PackageIdentity)
	var ecosystems []model.Ecosystem
	for _, req := range requests {
		pkg, err := model.NewPackageIdentity(req.Ecosystem, req.Name, req.Version)
		if err != nil {
			batch.Items = append(batch.Items, model.BatchItemResult{
				Package: model.PackageIdentity{
					Name:      req.Name,
					Version:   req.Version,
					Ecosystem: model.Ecosystem(req.Ecosystem),
				},
				Error: err.Error(),
			})
			batch.Failed++
			continue
		}
		if _, seen := byEcosystem[pkg.Ecosystem]; !seen {
			ecosystems = append(ecosystems, pkg.Ecosystem)
		}
		byEcosystem[pkg.Ecosystem] = append(byEcosystem[pkg.Ecosystem], pkg)
	}

	scanOpts := model.ScanOptions{NoCache: opts.NoCache}

	for _, eco := range ecosystems {
		packages := byEcosystem[eco]
		chunks := chunkPackages(packages, opts.BatchSize)

		for chunkIdx, chunk := range chunks {
			if chunkIdx > 0 {
				if err := m.sleep(ctx, opts.ChunkDelay); err != nil {
					return batch, err
				}
			}

			items := make([]model.BatchItemResult, len(chunk))
			var wg sync.WaitGroup
			for i, pkg := range chunk {
				wg.Add(1)
				go func(i int, pkg model.PackageIdentity) {
					defer wg.Done()
					result, err := m.scanIdentity(ctx, pkg, scanOpts)
					item := model.BatchItemResult{Package: pkg}
					if err != nil {
						item.Error = err.Error()
					} else {
						item.Result = result
					}
					items[i] = item
				}(i, pkg)
			}
			wg.Wait()

			for _, item := range items {
				if item.Error != "" {
					batch.Failed++
				} else {
					batch.Scanned++
				}
				batch.Items = append(batch.Items, item)
			}
		}
	}

	return batch, nil
}

// ScanDirectory delegates dependency discovery to the detector, then
// drives a batch scan over whatever it found. A directory with nothing to
// scan yields a descriptive result, not an error.
func (m *Manager) ScanDirectory(ctx context.Context, detector DependencyDetector, dir string, opts model.BatchOptions) (*model.DirectoryScanResult, error) {
	result := &model.DirectoryScanResult{Directory: dir}

	manifests, err := detector.DetectEcosystems(dir)
	if err != nil {
		result.Message = fmt.Sprintf("dependency detection failed: %v", err)
		return result, nil
	}
	if len(manifests) == 0 {
		result.Message = "no supported ecosystems detected in directory"
		return result, nil
	}

	var requests []PackageRequest
	for _, manifest := range manifests {
		eco, err := model.ParseEcosystem(manifest.Ecosystem)
		if err != nil {
			m.logger.Warn("skipping manifest with unsupported ecosystem",
				zap.String("manifest", manifest.ManifestPath),
				zap.String("ecosystem", manifest.Ecosystem))
			continue
		}
		result.Ecosystems = append(result.Ecosystems, eco)

		deps, err := detector.ParseDependencies(manifest.ManifestPath, manifest.Ecosystem)
		if err != nil {
			m.logger.Warn("manifest parse failed",
				zap.String("manifest", manifest.ManifestPath), zap.Error(err))
			continue
		}
		for _, dep := range deps {
			requests = append(requests, PackageRequest{
				Ecosystem: string(eco),
				Name:      dep.Name,
				Version:   dep.Version,
			})
		}
	}

	if len(requests) == 0 {
		result.Message = "no dependencies found to scan"
		return result, nil
	}

	batch, err := m.BatchScan(ctx, requests, opts)
	if err != nil {
		return result, err
	}
	result.Batch = batch
	return result, nil
}

// InFlight reports the number of registered in-flight scans.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

func chunkPackages(packages []model.PackageIdentity, size int) [][]model.PackageIdentity {
	var chunks [][]model.PackageIdentity
	for start := 0; start < len(packages); start += size {
		end := start + size
		if end > len(packages) {
			end = len(packages)
		}
		chunks = append(chunks, packages[start:end])
	}
	return chunks
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
