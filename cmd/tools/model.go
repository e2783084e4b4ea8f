package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/factory"
	"github.com/lychee-technology/datamodel/internal"
	"go.uber.org/zap"
)

type storageOptions struct {
	configPath string
	rootDir    string
}

func (o *storageOptions) register(flags *flag.FlagSet) {
	flags.StringVar(&o.configPath, "config", getenvDefault("DATAMODEL_CONFIG", ""), "YAML or JSON config file (default: built-in defaults)")
	flags.StringVar(&o.rootDir, "root", getenvDefault("DATAMODEL_ROOT", ""), "repository root for the file backend (overrides the config)")
}

func (o *storageOptions) load() (*datamodel.Config, error) {
	cfg := datamodel.DefaultConfig()
	if o.configPath != "" {
		loaded, err := datamodel.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.rootDir != "" {
		cfg.Storage.Backend = datamodel.StorageBackendFile
		cfg.Storage.File.RootDir = o.rootDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newModelFlags(name, usage string) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Printf("Usage: datamodel-tools %s [options]\n", name)
		fmt.Println("")
		fmt.Println(usage)
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}
	return flags
}

func parseModelFlags(flags *flag.FlagSet, args []string) (bool, error) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func openService(ctx context.Context, opts storageOptions) (datamodel.SchemaModelService, func(), error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, nil, err
	}
	return factory.NewSchemaModelServiceWithConfig(ctx, cfg)
}

func runSaveModel(args []string) error {
	var (
		storage  storageOptions
		in       string
		path     string
		saveOnly bool
	)
	flags := newModelFlags("save-model", "Store a JSON Schema with its derived XSD and metadata.")
	storage.register(flags)
	flags.StringVar(&in, "in", "", "JSON Schema file (required)")
	flags.StringVar(&path, "path", "", "model path in the repository, e.g. App/models/person (default: <modelsDirectory>/<input name>)")
	flags.BoolVar(&saveOnly, "save-only", false, "store the schema without deriving XSD and metadata")
	if ok, err := parseModelFlags(flags, args); !ok {
		return err
	}
	if in == "" {
		flags.Usage()
		return fmt.Errorf("-in is required")
	}

	content, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}

	ctx := context.Background()
	cfg, err := storage.load()
	if err != nil {
		return err
	}
	if path == "" {
		path = internal.NewModelPath(cfg.Conversion.ModelsDirectory, modelNameOf(in)).String()
	}
	svc, closeFn, err := factory.NewSchemaModelServiceWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := svc.UpdateSchema(ctx, path, string(content), saveOnly); err != nil {
		return err
	}
	zap.S().Infow("model saved", "path", path, "saveOnly", saveOnly)
	return nil
}

func runUploadXsd(args []string) error {
	var (
		storage storageOptions
		in      string
		out     string
	)
	flags := newModelFlags("upload-xsd", "Store an XSD with the JSON Schema and metadata derived from it.")
	storage.register(flags)
	flags.StringVar(&in, "in", "", "XSD file (required)")
	flags.StringVar(&out, "out", "", "also write the derived JSON Schema to this file")
	if ok, err := parseModelFlags(flags, args); !ok {
		return err
	}
	if in == "" {
		flags.Usage()
		return fmt.Errorf("-in is required")
	}

	ctx := context.Background()
	svc, closeFn, err := openService(ctx, storage)
	if err != nil {
		return err
	}
	defer closeFn()

	file, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open xsd file: %w", err)
	}
	defer file.Close()

	schemaText, err := svc.BuildSchemaFromXsd(ctx, filepath.Base(in), file)
	if err != nil {
		return err
	}
	zap.S().Infow("xsd uploaded", "file", filepath.Base(in))
	if out != "" {
		return writeOutput(out, schemaText)
	}
	return nil
}

func runDeleteModel(args []string) error {
	var (
		storage storageOptions
		path    string
	)
	flags := newModelFlags("delete-model", "Remove a data model and its derived artifacts.")
	storage.register(flags)
	flags.StringVar(&path, "path", "", "model path in the repository (required)")
	if ok, err := parseModelFlags(flags, args); !ok {
		return err
	}
	if path == "" {
		flags.Usage()
		return fmt.Errorf("-path is required")
	}

	ctx := context.Background()
	svc, closeFn, err := openService(ctx, storage)
	if err != nil {
		return err
	}
	defer closeFn()
	return svc.DeleteSchema(ctx, path)
}

func runCheckStorage(args []string) error {
	var (
		storage storageOptions
		timeout time.Duration
	)
	flags := newModelFlags("check-storage", "Verify the configured schema store is reachable.")
	storage.register(flags)
	flags.DurationVar(&timeout, "timeout", 5*time.Second, "health check timeout")
	if ok, err := parseModelFlags(flags, args); !ok {
		return err
	}

	cfg, err := storage.load()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch cfg.Storage.Backend {
	case datamodel.StorageBackendS3:
		client, err := internal.NewS3Client(ctx, cfg.Storage.S3)
		if err != nil {
			return err
		}
		if err := internal.S3HealthCheck(ctx, client, cfg.Storage.S3.Bucket, timeout); err != nil {
			return err
		}
	case datamodel.StorageBackendPostgres:
		if err := internal.PostgresHealthCheck(ctx, cfg.Storage.Database, timeout); err != nil {
			return err
		}
	default:
		store, closeFn, err := factory.NewSchemaStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()
		if _, err := store.List(ctx, cfg.Conversion.ModelsDirectory); err != nil {
			return err
		}
	}
	fmt.Printf("Schema store %s is healthy.\n", cfg.Storage.Backend)
	return nil
}
