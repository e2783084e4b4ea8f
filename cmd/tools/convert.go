package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/internal"
	"github.com/lychee-technology/datamodel/internal/metamodel"
	"github.com/lychee-technology/datamodel/internal/xsd"
	"github.com/lychee-technology/datamodel/schemadoc"
)

type convertOptions struct {
	in          string
	out         string
	modelName   string
	schemaID    string
	indent      int
	elementForm string
}

func newConvertFlags(name, usage string, opts *convertOptions) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Printf("Usage: datamodel-tools %s -in <file> [options]\n", name)
		fmt.Println("")
		fmt.Println(usage)
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}
	flags.StringVar(&opts.in, "in", "", "input file (required)")
	flags.StringVar(&opts.out, "out", "", "output file (default: stdout)")
	return flags
}

func parseConvertFlags(flags *flag.FlagSet, opts *convertOptions, args []string) (bool, error) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if opts.in == "" {
		flags.Usage()
		return false, fmt.Errorf("-in is required")
	}
	return true, nil
}

// modelNameOf is the input file name without its schema suffix.
func modelNameOf(file string) string {
	if mp, err := internal.ParseModelPath(filepath.ToSlash(file)); err == nil {
		return mp.Name
	}
	return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
}

func writeOutput(path, content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if path == "" {
		_, err := fmt.Fprint(stdout, content)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readSchemaFile(path string) (*schemadoc.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	doc, err := schemadoc.Parse(data)
	if err != nil {
		return nil, datamodel.NewInvalidSchemaError(fmt.Sprintf("%s is not valid JSON", path), err)
	}
	return doc, nil
}

func runXsdToJson(args []string) error {
	opts := convertOptions{}
	flags := newConvertFlags("xsd-to-json", "Convert an XSD file to a JSON Schema.", &opts)
	flags.StringVar(&opts.schemaID, "id", "", `"$id" of the schema (default: <model>.schema.json)`)
	if ok, err := parseConvertFlags(flags, &opts, args); !ok {
		return err
	}

	file, err := os.Open(opts.in)
	if err != nil {
		return fmt.Errorf("open xsd file: %w", err)
	}
	defer file.Close()

	if opts.schemaID == "" {
		opts.schemaID = modelNameOf(opts.in) + internal.SchemaSuffix
	}
	text, err := xsd.XsdToJsonSchemaText(file, xsd.ReadOptions{SchemaID: opts.schemaID})
	if err != nil {
		return err
	}
	return writeOutput(opts.out, text)
}

func runJsonToXsd(args []string) error {
	opts := convertOptions{}
	flags := newConvertFlags("json-to-xsd", "Convert a JSON Schema file to an XSD.", &opts)
	flags.StringVar(&opts.modelName, "model", "", "name of the model element for reference, combination and primitive roots (default: input file name)")
	flags.IntVar(&opts.indent, "indent", 2, "spaces per indentation level")
	flags.StringVar(&opts.elementForm, "element-form", "qualified", "elementFormDefault of the schema")
	if ok, err := parseConvertFlags(flags, &opts, args); !ok {
		return err
	}

	doc, err := readSchemaFile(opts.in)
	if err != nil {
		return err
	}
	if opts.modelName == "" {
		opts.modelName = modelNameOf(opts.in)
	}
	text, err := xsd.JsonSchemaToXsdText(doc, xsd.WriteOptions{
		ModelName:          opts.modelName,
		ElementFormDefault: opts.elementForm,
		Indent:             opts.indent,
	})
	if err != nil {
		return err
	}
	return writeOutput(opts.out, text)
}

func runGenerateMetadata(args []string) error {
	opts := convertOptions{}
	flags := newConvertFlags("generate-metadata", "Derive the metadata model of a JSON Schema file.", &opts)
	flags.StringVar(&opts.modelName, "model", "", "model name (default: input file name)")
	if ok, err := parseConvertFlags(flags, &opts, args); !ok {
		return err
	}

	doc, err := readSchemaFile(opts.in)
	if err != nil {
		return err
	}
	if opts.modelName == "" {
		opts.modelName = modelNameOf(opts.in)
	}
	text, err := metamodel.ConvertText(opts.modelName, doc)
	if err != nil {
		return err
	}
	return writeOutput(opts.out, text)
}
