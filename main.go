// package main provides the entry point for the vulnscout-backend
// microservice: it wires the advisory source adapters, the result cache
// and the scanner manager, then serves the REST and GraphQL API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/vulnscout/vulnscout-backend/database"
	"github.com/vulnscout/vulnscout-backend/internal/api"
	"github.com/vulnscout/vulnscout-backend/internal/cache"
	"github.com/vulnscout/vulnscout-backend/internal/scanner"
	"github.com/vulnscout/vulnscout-backend/internal/sources"
	"github.com/vulnscout/vulnscout-backend/model"
	"github.com/vulnscout/vulnscout-backend/util"
)

func main() {
	logger := database.InitLogger()
	defer logger.Sync()

	if err := model.LoadEcosystemOverrides(util.GetEnvDefault("ECOSYSTEMS_CONFIG", "ecosystems.yaml")); err != nil {
		logger.Fatal("invalid ecosystem overrides", zap.Error(err))
	}

	dataDir := util.GetEnvDefault("DATA_DIR", "data")
	resultCache, err := cache.New(filepath.Join(dataDir, "results"), cache.DefaultTTL, logger)
	if err != nil {
		logger.Fatal("result cache init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The GitHub advisory table lives in ArangoDB when configured,
	// otherwise in process memory (rebuilt on every start).
	var store sources.AdvisoryStore
	if util.GetEnvDefault("ADVISORY_STORE", "memory") == "arango" {
		db, err := database.InitializeDatabase(logger)
		if err != nil {
			logger.Fatal("database init failed", zap.Error(err))
		}
		store = database.NewAdvisoryStore(db)
	} else {
		store = sources.NewMemoryStore()
	}

	rawCacheDir := filepath.Join(dataDir, "raw")
	github := sources.NewGitHubAdapter(sources.GitHubConfig{
		Token:  os.Getenv("GITHUB_TOKEN"),
		Store:  store,
		Logger: logger,
	})
	go github.StartRefreshLoop(ctx)

	adapters := []sources.Adapter{
		sources.NewOSVAdapter(sources.OSVConfig{
			CacheDir: rawCacheDir,
			Logger:   logger,
		}),
		sources.NewNVDAdapter(sources.NVDConfig{
			APIKey:   os.Getenv("NVD_API_KEY"),
			CacheDir: rawCacheDir,
			Logger:   logger,
		}),
		github,
	}

	mgr, err := scanner.New(scanner.Config{
		Adapters: adapters,
		Cache:    resultCache,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("scanner init failed", zap.Error(err))
	}

	// Manifest parsing is an external collaborator; no detector ships
	// with the service, so directory scans answer 503 until one is
	// plugged in here.
	app, err := api.NewFiberApp(mgr, nil)
	if err != nil {
		logger.Fatal("api init failed", zap.Error(err))
	}

	port := util.GetEnvDefault("MS_PORT", "3000")
	logger.Sugar().Infof("Starting server on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
