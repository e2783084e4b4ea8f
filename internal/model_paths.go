package internal

import (
	"net/url"
	"path"
	"strings"

	"github.com/lychee-technology/datamodel"
)

// Artifact file suffixes of a data model.
const (
	SchemaSuffix   = ".schema.json"
	XsdSuffix      = ".xsd"
	MetadataSuffix = ".metadata.json"
)

// modelSuffixes are stripped from model paths, longest first.
var modelSuffixes = []string{SchemaSuffix, MetadataSuffix, ".json", XsdSuffix}

// ModelPath identifies a data model by directory and name; its artifacts share the name.
type ModelPath struct {
	Dir  string
	Name string
}

// ParseModelPath accepts URL-escaped and leading-slash forms of any artifact path, e.g.
// "App%2Fmodels%2Fperson.schema.json" or "/App/models/person.xsd".
func ParseModelPath(raw string) (ModelPath, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return ModelPath{}, &datamodel.SchemaError{
			Type: datamodel.SchemaErrorTypeInvalidFormat, Path: raw, Message: "model path is not valid URL encoding", Cause: err,
		}
	}
	decoded = strings.TrimPrefix(strings.ReplaceAll(decoded, "\\", "/"), "/")
	for _, suffix := range modelSuffixes {
		if strings.HasSuffix(strings.ToLower(decoded), suffix) {
			decoded = decoded[:len(decoded)-len(suffix)]
			break
		}
	}

	cleaned := path.Clean(decoded)
	if decoded == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return ModelPath{}, &datamodel.SchemaError{
			Type: datamodel.SchemaErrorTypeInvalidFormat, Path: raw, Message: "model path must name a model inside the repository",
		}
	}
	dir, name := path.Split(cleaned)
	return ModelPath{Dir: strings.TrimSuffix(dir, "/"), Name: name}, nil
}

// NewModelPath places a model named name in dir.
func NewModelPath(dir, name string) ModelPath {
	return ModelPath{Dir: strings.Trim(dir, "/"), Name: name}
}

func (p ModelPath) join(suffix string) string {
	if p.Dir == "" {
		return p.Name + suffix
	}
	return p.Dir + "/" + p.Name + suffix
}

// SchemaPath is the stored path of the JSON Schema.
func (p ModelPath) SchemaPath() string { return p.join(SchemaSuffix) }

// XsdPath is the stored path of the derived XSD.
func (p ModelPath) XsdPath() string { return p.join(XsdSuffix) }

// MetadataPath is the stored path of the derived metadata model.
func (p ModelPath) MetadataPath() string { return p.join(MetadataSuffix) }

func (p ModelPath) String() string { return p.join("") }
