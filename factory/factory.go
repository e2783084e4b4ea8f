package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/internal"
	"github.com/lychee-technology/datamodel/internal/uischema"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Remote stores fail fast for breakerOpenFor after breakerThreshold provider errors within
// breakerWindow.
const (
	breakerThreshold = 5
	breakerWindow    = time.Minute
	breakerOpenFor   = 30 * time.Second
)

// NewSchemaModelServiceWithConfig creates a SchemaModelService over the store selected by
// config.Storage.Backend. The returned close function releases the store's connections and
// must be called once the service is no longer used.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/datamodel"
//	    "github.com/lychee-technology/datamodel/factory"
//	)
//
//	config := datamodel.DefaultConfig()
//	config.Storage.File.RootDir = "/srv/repos/app"
//	svc, closeFn, err := factory.NewSchemaModelServiceWithConfig(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	defer closeFn()
func NewSchemaModelServiceWithConfig(ctx context.Context, config *datamodel.Config) (datamodel.SchemaModelService, func(), error) {
	store, closeFn, err := NewSchemaStore(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	return NewSchemaModelService(store, config), closeFn, nil
}

// NewSchemaModelService creates a SchemaModelService over a caller-provided store.
func NewSchemaModelService(store datamodel.SchemaStore, config *datamodel.Config) datamodel.SchemaModelService {
	return internal.NewModelService(store, config.Conversion)
}

// NewSchemaEditor returns the UiSchema editing operations.
func NewSchemaEditor() datamodel.SchemaEditor {
	return uischema.NewEditor()
}

// NewSchemaStore builds the configured schema store. S3 and Postgres stores are wrapped in a
// circuit breaker.
func NewSchemaStore(ctx context.Context, config *datamodel.Config) (datamodel.SchemaStore, func(), error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	noop := func() {}
	switch config.Storage.Backend {
	case datamodel.StorageBackendFile:
		store, err := internal.NewFileSchemaStore(config.Storage.File.RootDir)
		if err != nil {
			return nil, nil, err
		}
		zap.S().Infow("using file schema store", "root", store.Root())
		return store, noop, nil

	case datamodel.StorageBackendS3:
		s3cfg := config.Storage.S3
		client, err := internal.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, nil, err
		}
		zap.S().Infow("using s3 schema store", "bucket", s3cfg.Bucket, "prefix", s3cfg.Prefix)
		store := internal.NewS3SchemaStore(client, s3cfg.Bucket, s3cfg.Prefix)
		return guarded(store), noop, nil

	case datamodel.StorageBackendPostgres:
		db := config.Storage.Database
		pool, err := internal.NewPostgresPool(ctx, db)
		if err != nil {
			return nil, nil, fmt.Errorf("open schema store database: %w", err)
		}
		zap.S().Infow("using postgres schema store", "host", db.Host, "table", db.SchemaTable, "namespace", db.Namespace)
		store := internal.NewPostgresSchemaStore(pool, db.SchemaTable, db.Namespace)
		return guarded(store), pool.Close, nil
	}
	return nil, nil, &datamodel.ConfigError{Field: "storage.backend", Message: fmt.Sprintf("unknown backend %q", config.Storage.Backend)}
}

func guarded(store datamodel.SchemaStore) datamodel.SchemaStore {
	return internal.NewGuardedSchemaStore(store, internal.NewCircuitBreaker(breakerThreshold, breakerWindow, breakerOpenFor))
}

// NewLogger builds a zap logger from the logging configuration.
func NewLogger(config datamodel.LoggingConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if config.Level != "" {
		parsed, err := zap.ParseAtomicLevel(config.Level)
		if err != nil {
			return nil, &datamodel.ConfigError{Field: "logging.level", Message: err.Error()}
		}
		level = parsed
	}

	var zc zap.Config
	if config.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	switch config.Format {
	case "", "json":
		zc.Encoding = "json"
	case "console":
		zc.Encoding = "console"
	default:
		return nil, &datamodel.ConfigError{Field: "logging.format", Message: "must be json or console"}
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
