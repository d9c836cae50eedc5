// Package database - ArangoDB-backed storage for the GitHub advisory table
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vulnscout/vulnscout-backend/util"
)

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
}

// Define a struct to hold the index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxField   string
}

const databaseName = "vulnscout"

// AdvisoriesCollection holds the bulk-refreshed GitHub advisory rows.
const AdvisoriesCollection = "advisories"

// InitLogger sets up the Zap Logger to log to the console in a human readable format
func InitLogger() *zap.Logger {
	prodConfig := zap.NewProductionConfig()
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	logger, _ := prodConfig.Build()
	return logger
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// InitializeDatabase connects to the db engine with backoff retry, then
// creates the database, the advisories collection and its indexes.
func InitializeDatabase(logger *zap.Logger) (DBConnection, error) {
	const initialInterval = 5 * time.Second
	const maxInterval = 1 * time.Minute
	const maxElapsed = 5 * time.Minute

	ctx := context.Background()

	False := false

	dbhost := util.GetEnvDefault("ARANGO_HOST", "localhost")
	dbport := util.GetEnvDefault("ARANGO_PORT", "8529")
	dbuser := util.GetEnvDefault("ARANGO_USER", "root")
	dbpass := util.GetEnvDefault("ARANGO_PASS", "mypassword")
	dburl := util.GetEnvDefault("ARANGO_URL", "http://"+dbhost+":"+dbport)

	var client arangodb.Client
	var db arangodb.Database

	// Database connection with backoff retry
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = maxElapsed

	err := backoff.RetryNotify(func() error {
		endpoint := connection.NewRoundRobinEndpoints([]string{dburl})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, dbuser, dbpass))

		client = arangodb.NewClient(conn)

		versionInfo, err := client.Version(context.Background())
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil
	}, bo, func(err error, _ time.Duration) {
		logger.Sugar().Warnf("Retrying connection to ArangoDB: %v", err)
	})
	if err != nil {
		return DBConnection{}, fmt.Errorf("connect to ArangoDB: %w", err)
	}

	// Database creation
	exists := false
	dblist, _ := client.Databases(ctx)
	for _, dbinfo := range dblist {
		if dbinfo.Name() == databaseName {
			exists = true
			break
		}
	}

	if exists {
		var options arangodb.GetDatabaseOptions
		if db, err = client.GetDatabase(ctx, databaseName, &options); err != nil {
			return DBConnection{}, fmt.Errorf("get database: %w", err)
		}
	} else {
		if db, err = client.CreateDatabase(ctx, databaseName, nil); err != nil {
			return DBConnection{}, fmt.Errorf("create database: %w", err)
		}
	}

	// Collection creation for document storage
	collections := make(map[string]arangodb.Collection)
	for _, collectionName := range []string{AdvisoriesCollection} {
		var col arangodb.Collection

		exists, _ = db.CollectionExists(ctx, collectionName)
		if exists {
			var options arangodb.GetCollectionOptions
			if col, err = db.GetCollection(ctx, collectionName, &options); err != nil {
				return DBConnection{}, fmt.Errorf("use collection %s: %w", collectionName, err)
			}
		} else {
			if col, err = db.CreateCollectionV2(ctx, collectionName, nil); err != nil {
				return DBConnection{}, fmt.Errorf("create collection %s: %w", collectionName, err)
			}
		}

		collections[collectionName] = col
	}

	// Index creation: lookups are always ecosystem+package
	idxList := []indexConfig{
		{Collection: AdvisoriesCollection, IdxName: "advisory_ecosystem", IdxField: "ecosystem"},
		{Collection: AdvisoriesCollection, IdxName: "advisory_package", IdxField: "package"},
	}

	for _, idx := range idxList {
		found := false

		if indexes, err := collections[idx.Collection].Indexes(ctx); err == nil {
			for _, index := range indexes {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}

		if !found {
			indexOptions := arangodb.CreatePersistentIndexOptions{
				Unique: &False,
				Sparse: &False,
				Name:   idx.IdxName,
			}

			_, _, err = collections[idx.Collection].EnsurePersistentIndex(ctx, []string{idx.IdxField}, &indexOptions)
			if err != nil {
				return DBConnection{}, fmt.Errorf("create index %s: %w", idx.IdxName, err)
			}
			logger.Sugar().Infof("Created index: %s on %s.%s", idx.IdxName, idx.Collection, idx.IdxField)
		}
	}

	// Composite index for the ecosystem+package lookup path
	lookupIdx := "advisory_ecosystem_package"
	found := false
	if indexes, err := collections[AdvisoriesCollection].Indexes(ctx); err == nil {
		for _, index := range indexes {
			if lookupIdx == index.Name {
				found = true
				break
			}
		}
	}
	if !found {
		compositeIdxOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &False,
			Sparse: &False,
			Name:   lookupIdx,
		}
		_, _, err = collections[AdvisoriesCollection].EnsurePersistentIndex(ctx, []string{"ecosystem", "package"}, &compositeIdxOptions)
		if err != nil {
			return DBConnection{}, fmt.Errorf("create composite index: %w", err)
		}
		logger.Sugar().Infof("Created composite index: %s on %s", lookupIdx, AdvisoriesCollection)
	}

	return DBConnection{Collections: collections, Database: db}, nil
}
