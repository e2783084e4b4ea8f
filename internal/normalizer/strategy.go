package normalizer

import (
	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
)

// StrategyKind is the closed set of schema shapes the converters handle.
type StrategyKind int

const (
	// StrategyPlain is an object, array or primitive root without root-level combinations.
	StrategyPlain StrategyKind = iota
	// StrategyOneOfWrapped is a root combining a combination keyword with "properties".
	StrategyOneOfWrapped
	// StrategyCombination is a root that is purely a oneOf/allOf/anyOf.
	StrategyCombination
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyPlain:
		return "Plain"
	case StrategyOneOfWrapped:
		return "OneOfWrapped"
	case StrategyCombination:
		return "Combination"
	}
	return "Unknown"
}

// Strategy pairs a normalized document with the handler chosen for its shape.
type Strategy struct {
	Kind     StrategyKind
	document *schemadoc.Object
}

// SelectStrategy classifies a normalized document by its root keywords.
func SelectStrategy(normalized *schemadoc.Object) *Strategy {
	return &Strategy{Kind: Classify(normalized), document: normalized}
}

// Classify returns the strategy kind for the root of schema.
func Classify(schema *schemadoc.Object) StrategyKind {
	_, ok := RootCombination(schema)
	switch {
	case !ok:
		return StrategyPlain
	case schema.Has(schemadoc.KeywordProperties):
		return StrategyOneOfWrapped
	default:
		return StrategyCombination
	}
}

// RootCombination returns the first combination keyword present on schema.
func RootCombination(schema *schemadoc.Object) (datamodel.CombinationKind, bool) {
	for _, kind := range datamodel.CombinationKinds {
		if schema.Has(string(kind)) {
			return kind, true
		}
	}
	return "", false
}

// Analyzer returns the reference-resolving analyzer over the strategy's document.
func (s *Strategy) Analyzer() *Analyzer {
	return NewAnalyzer(s.document)
}

// Analyze produces the element tree for the document, one handler per strategy kind.
func (s *Strategy) Analyze() (*Analysis, error) {
	switch s.Kind {
	case StrategyPlain:
		return s.Analyzer().analyzePlain()
	case StrategyCombination:
		return s.Analyzer().analyzeCombination()
	case StrategyOneOfWrapped:
		kind, _ := RootCombination(s.document)
		return nil, datamodel.NewUnsupportedConstructError(string(kind), schemadoc.RootPointer,
			"a root combination alongside root properties cannot be converted")
	}
	return nil, datamodel.NewUnsupportedConstructError("", schemadoc.RootPointer, "unknown schema shape")
}

// Prepare normalizes doc and selects its strategy.
func Prepare(doc *schemadoc.Object) (*Strategy, error) {
	normalized, err := Normalize(doc)
	if err != nil {
		return nil, err
	}
	return SelectStrategy(normalized), nil
}
