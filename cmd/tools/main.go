package main

import (
	"fmt"
	"io"
	"os"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/factory"
	"go.uber.org/zap"
)

// stdout receives converted documents when no -out flag is given.
var stdout io.Writer = os.Stdout

func main() {
	logging := datamodel.DefaultConfig().Logging
	logging.Level = getenvDefault("LOG_LEVEL", logging.Level)
	logging.Format = getenvDefault("LOG_FORMAT", logging.Format)
	logger, err := factory.NewLogger(logging)
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	commands := map[string]func([]string) error{
		"xsd-to-json":       runXsdToJson,
		"json-to-xsd":       runJsonToXsd,
		"generate-metadata": runGenerateMetadata,
		"save-model":        runSaveModel,
		"upload-xsd":        runUploadXsd,
		"delete-model":      runDeleteModel,
		"check-storage":     runCheckStorage,
		"init-db":           runInitDB,
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err := run(os.Args[2:]); err != nil {
		sugar.Fatalf("%s: %v", os.Args[1], err)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: datamodel-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  xsd-to-json         Convert an XSD file to a JSON Schema")
	logger.Info("  json-to-xsd         Convert a JSON Schema file to an XSD")
	logger.Info("  generate-metadata   Derive the metadata model of a JSON Schema file")
	logger.Info("  save-model          Store a JSON Schema with its derived XSD and metadata")
	logger.Info("  upload-xsd          Store an XSD with the JSON Schema and metadata derived from it")
	logger.Info("  delete-model        Remove a data model and its derived artifacts")
	logger.Info("  check-storage       Verify the configured schema store is reachable")
	logger.Info("  init-db             Create the PostgreSQL schema file table and import models")
}
