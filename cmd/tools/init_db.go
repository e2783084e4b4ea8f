package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/internal"
)

type initDBOptions struct {
	db        datamodel.DatabaseConfig
	importDir string
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: datamodel-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	defaults := datamodel.DefaultConfig().Storage.Database
	opts := initDBOptions{db: defaults}
	flags.StringVar(&opts.db.Host, "db-host", getenvDefault("DB_HOST", defaults.Host), "database host")
	flags.IntVar(&opts.db.Port, "db-port", getenvDefaultInt("DB_PORT", defaults.Port), "database port")
	flags.StringVar(&opts.db.Database, "db-name", getenvDefault("DB_NAME", defaults.Database), "database name")
	flags.StringVar(&opts.db.Username, "db-user", getenvDefault("DB_USER", defaults.Username), "database user")
	flags.StringVar(&opts.db.Password, "db-password", getenvDefault("DB_PASSWORD", ""), "database password")
	flags.StringVar(&opts.db.SSLMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", defaults.SSLMode), "database sslmode")
	flags.BoolVar(&opts.db.UseIAM, "db-use-iam", getenvDefault("DB_USE_IAM", "") == "true", "authenticate with a DSQL IAM token")
	flags.StringVar(&opts.db.Region, "db-region", getenvDefault("AWS_REGION", ""), "AWS region for IAM authentication")
	flags.StringVar(&opts.db.SchemaTable, "schema-table", getenvDefault("SCHEMA_TABLE", defaults.SchemaTable), "schema file table name")
	flags.StringVar(&opts.db.Namespace, "namespace", getenvDefault("SCHEMA_NAMESPACE", defaults.Namespace), "repository namespace of imported files")
	flags.StringVar(&opts.importDir, "import-dir", getenvDefault("IMPORT_DIR", ""), "repository directory whose model files are imported (optional)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return initDatabase(opts)
}

func initDatabase(opts initDBOptions) error {
	ctx := context.Background()

	pool, err := internal.NewPostgresPool(ctx, opts.db)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, internal.CreateSchemaTableSQL(opts.db.SchemaTable)); err != nil {
			return fmt.Errorf("ensure schema file table: %w", err)
		}
		fmt.Printf("Created schema file table: %s\n", opts.db.SchemaTable)

		if opts.importDir == "" {
			return nil
		}
		store := internal.NewPostgresSchemaStore(tx, opts.db.SchemaTable, opts.db.Namespace)
		count, err := importModels(ctx, store, opts.importDir)
		if err != nil {
			return err
		}
		fmt.Printf("Imported model files, count: %d, dir: %s\n", count, opts.importDir)
		return nil
	}); err != nil {
		return err
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

// importModels copies the model artifacts found below dir into store, keyed by their path
// relative to dir.
func importModels(ctx context.Context, store datamodel.SchemaStore, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isModelArtifact(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := store.Write(ctx, filepath.ToSlash(rel), string(content)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import models from %s: %w", dir, err)
	}
	return count, nil
}

func isModelArtifact(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range []string{internal.SchemaSuffix, internal.XsdSuffix, internal.MetadataSuffix} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
