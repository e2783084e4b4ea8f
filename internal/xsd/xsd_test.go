package xsd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/lychee-technology/datamodel"
	"github.com/lychee-technology/datamodel/schemadoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimumValidSchema = `{"$schema":"https://json-schema.org/draft/2020-12/schema","$id":"schema.json","type":"object","properties":{"root":{"$ref":"#/$defs/rootType"}},"$defs":{"rootType":{"properties":{"keyword":{"type":"string"}}}}}`

const roundTripXsd = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" elementFormDefault="qualified" attributeFormDefault="unqualified">
  <xs:element name="melding" type="Melding"/>
  <xs:complexType name="Melding">
    <xs:sequence>
      <xs:element name="id" type="xs:integer"/>
      <xs:element name="navn" type="Navn" minOccurs="0"/>
      <xs:element name="koder" minOccurs="0" maxOccurs="unbounded">
        <xs:simpleType>
          <xs:restriction base="xs:string">
            <xs:pattern value="[A-Z]{3}"/>
          </xs:restriction>
        </xs:simpleType>
      </xs:element>
      <xs:element name="adresse" maxOccurs="3">
        <xs:complexType>
          <xs:sequence>
            <xs:element name="gate" type="xs:string"/>
          </xs:sequence>
        </xs:complexType>
      </xs:element>
      <xs:element name="status">
        <xs:simpleType>
          <xs:restriction base="xs:string">
            <xs:enumeration value="aktiv"/>
            <xs:enumeration value="passiv"/>
          </xs:restriction>
        </xs:simpleType>
      </xs:element>
    </xs:sequence>
    <xs:attribute name="versjon" type="xs:string" use="required"/>
  </xs:complexType>
  <xs:simpleType name="Navn">
    <xs:restriction base="xs:string">
      <xs:minLength value="1"/>
      <xs:maxLength value="100"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`

func mustParse(t *testing.T, text string) *schemadoc.Object {
	t.Helper()
	doc, err := schemadoc.ParseString(text)
	require.NoError(t, err)
	return doc
}

func canonical(t *testing.T, text string) string {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(text))
	doc.Indent(2)
	out, err := doc.WriteToString()
	require.NoError(t, err)
	return out
}

func TestJsonSchemaToXsd_MinimumValidSchema(t *testing.T) {
	out, err := JsonSchemaToXsd(mustParse(t, minimumValidSchema), WriteOptions{Indent: 2})
	require.NoError(t, err)

	root := out.Root()
	require.NotNil(t, root)
	assert.Equal(t, "schema", root.Tag)
	assert.Equal(t, Namespace, root.SelectAttrValue("xmlns:xs", ""))
	assert.Equal(t, "qualified", root.SelectAttrValue("elementFormDefault", ""))

	globals := root.SelectElements("xs:element")
	require.Len(t, globals, 1)
	assert.Equal(t, "root", globals[0].SelectAttrValue("name", ""))
	assert.Equal(t, "rootType", globals[0].SelectAttrValue("type", ""))

	types := out.FindElements("//xs:complexType")
	require.Len(t, types, 1)
	assert.Equal(t, "rootType", types[0].SelectAttrValue("name", ""))
	elements := types[0].FindElements("xs:sequence/xs:element")
	require.Len(t, elements, 1)
	assert.Equal(t, "keyword", elements[0].SelectAttrValue("name", ""))
	assert.Equal(t, "xs:string", elements[0].SelectAttrValue("type", ""))
	assert.Equal(t, "0", elements[0].SelectAttrValue("minOccurs", ""))
}

func TestXsdRoundTrip(t *testing.T) {
	doc, err := XsdToJsonSchema(strings.NewReader(roundTripXsd), ReadOptions{SchemaID: "melding.schema.json"})
	require.NoError(t, err)

	text, err := JsonSchemaToXsdText(doc, WriteOptions{Indent: 2})
	require.NoError(t, err)
	assert.Equal(t, canonical(t, roundTripXsd), canonical(t, text))
}

func TestXsdToJsonSchema(t *testing.T) {
	doc, err := XsdToJsonSchema(strings.NewReader(roundTripXsd), ReadOptions{SchemaID: "melding.schema.json"})
	require.NoError(t, err)

	expected := `{
		"$schema":"https://json-schema.org/draft/2020-12/schema",
		"$id":"melding.schema.json",
		"type":"object",
		"properties":{"melding":{"$ref":"#/$defs/Melding"}},
		"$defs":{
			"Melding":{
				"type":"object",
				"properties":{
					"id":{"type":"integer"},
					"navn":{"$ref":"#/$defs/Navn"},
					"koder":{"type":"array","items":{"type":"string","pattern":"^[A-Z]{3}$"}},
					"adresse":{"type":"array","maxItems":3,"items":{"type":"object","properties":{"gate":{"type":"string"}},"required":["gate"]}},
					"status":{"type":"string","enum":["aktiv","passiv"]},
					"versjon":{"type":"string","@xsdType":"XmlAttribute"}
				},
				"required":["id","adresse","status","versjon"]
			},
			"Navn":{"type":"string","minLength":1,"maxLength":100}
		}
	}`
	assert.True(t, schemadoc.Equal(mustParse(t, expected), doc))

	defs, _ := doc.Object("$defs")
	melding, _ := defs.Object("Melding")
	props, _ := melding.Object("properties")
	assert.Equal(t, []string{"id", "navn", "koder", "adresse", "status", "versjon"}, props.Keys())
}

func TestXsdToJsonSchema_ChoicesOccursAndAnnotations(t *testing.T) {
	const text = `<?xml version="1.0" encoding="UTF-8"?>
<xsd:schema xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <xsd:annotation><xsd:documentation>Model</xsd:documentation></xsd:annotation>
  <xsd:element name="betaling">
    <xsd:complexType>
      <xsd:choice>
        <xsd:element name="kort" type="xsd:string"/>
        <xsd:sequence>
          <xsd:element name="konto" type="xsd:long"/>
          <xsd:element name="dato" type="xsd:date" minOccurs="0"/>
        </xsd:sequence>
      </xsd:choice>
    </xsd:complexType>
  </xsd:element>
  <xsd:complexType name="Linjer">
    <xsd:sequence>
      <xsd:element name="linje" type="xsd:decimal" minOccurs="2" maxOccurs="5" nillable="true">
        <xsd:annotation><xsd:documentation>En linje</xsd:documentation></xsd:annotation>
      </xsd:element>
    </xsd:sequence>
  </xsd:complexType>
</xsd:schema>`

	doc, err := XsdToJsonSchema(strings.NewReader(text), ReadOptions{})
	require.NoError(t, err)

	expected := `{
		"$schema":"https://json-schema.org/draft/2020-12/schema",
		"type":"object",
		"description":"Model",
		"properties":{
			"betaling":{"oneOf":[
				{"properties":{"kort":{"type":"string"}},"required":["kort"]},
				{"properties":{"konto":{"type":"integer","format":"int64"},"dato":{"type":"string","format":"date"}},"required":["konto"]}
			]}
		},
		"$defs":{
			"Linjer":{
				"type":"object",
				"properties":{"linje":{"type":"array","minItems":2,"maxItems":5,"description":"En linje","items":{"type":["number","null"]}}},
				"required":["linje"]
			}
		}
	}`
	if !assert.True(t, schemadoc.Equal(mustParse(t, expected), doc)) {
		raw, _ := schemadoc.Marshal(doc)
		t.Logf("got %s", raw)
	}
}

func TestXsdToJsonSchema_Errors(t *testing.T) {
	wrap := func(body string) string {
		return `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">` + body + `</xs:schema>`
	}
	tests := []struct {
		name    string
		text    string
		keyword string
	}{
		{"substitution group", wrap(`<xs:element name="a" type="xs:string" substitutionGroup="b"/>`), "substitutionGroup"},
		{"import", wrap(`<xs:import namespace="urn:x" schemaLocation="x.xsd"/>`), "import"},
		{"group", wrap(`<xs:group name="g"><xs:sequence/></xs:group>`), "group"},
		{"any", wrap(`<xs:complexType name="T"><xs:sequence><xs:any/></xs:sequence></xs:complexType>`), "any"},
		{"union", wrap(`<xs:simpleType name="U"><xs:union memberTypes="xs:string xs:int"/></xs:simpleType>`), "union"},
		{"complex content", wrap(`<xs:complexType name="T"><xs:complexContent/></xs:complexType>`), "complexContent"},
		{"element reference", wrap(`<xs:complexType name="T"><xs:sequence><xs:element ref="a"/></xs:sequence></xs:complexType>`), "ref"},
		{"unsupported facet", wrap(`<xs:simpleType name="S"><xs:restriction base="xs:decimal"><xs:totalDigits value="5"/></xs:restriction></xs:simpleType>`), "totalDigits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := XsdToJsonSchema(strings.NewReader(tt.text), ReadOptions{})
			require.Error(t, err)
			assert.True(t, datamodel.IsUnsupportedConstruct(err))
			assert.Equal(t, datamodel.ErrCodeXsdToJsonSchemaConvert, datamodel.ErrorCode(err))
			convErr, _ := datamodel.AsConversionError(err)
			assert.Equal(t, tt.keyword, convErr.Keyword)
		})
	}

	_, err := XsdToJsonSchema(strings.NewReader(`<xs:schema`), ReadOptions{})
	assert.True(t, datamodel.IsInvalidSchema(err))
	_, err = XsdToJsonSchema(strings.NewReader(`<root/>`), ReadOptions{})
	assert.True(t, datamodel.IsInvalidSchema(err))
	assert.Equal(t, datamodel.ErrCodeXsdToJsonSchemaConvert, datamodel.ErrorCode(err))
}

func TestJsonSchemaToXsd_CombinationsAttributesAndFormats(t *testing.T) {
	doc := mustParse(t, `{
		"type":"object",
		"properties":{
			"person":{"$ref":"#/$defs/Person"},
			"payment":{"oneOf":[
				{"properties":{"card":{"type":"string"}},"required":["card"]},
				{"$ref":"#/$defs/Account"}
			]}
		},
		"$defs":{
			"Base":{"properties":{"id":{"type":"integer","format":"int32"}},"required":["id"]},
			"Person":{"allOf":[
				{"$ref":"#/$defs/Base"},
				{"properties":{
					"born":{"type":"string","format":"date","description":"Date of birth"},
					"height":{"type":["number","null"],"multipleOf":0.01},
					"lang":{"type":"string","@xsdType":"XmlAttribute"}
				}}
			]},
			"Account":{"properties":{"number":{"type":"string"},"bank":{"type":"string"}}}
		}
	}`)

	out, err := JsonSchemaToXsd(doc, WriteOptions{})
	require.NoError(t, err)

	person := out.FindElement("//xs:complexType[@name='Person']")
	require.NotNil(t, person)
	var names []string
	for _, el := range person.FindElements("xs:sequence/xs:element") {
		names = append(names, el.SelectAttrValue("name", ""))
	}
	assert.Equal(t, []string{"id", "born", "height"}, names)

	id := person.FindElement("xs:sequence/xs:element[@name='id']")
	assert.Equal(t, "xs:int", id.SelectAttrValue("type", ""))
	assert.Nil(t, id.SelectAttr("minOccurs"))

	born := person.FindElement("xs:sequence/xs:element[@name='born']")
	assert.Equal(t, "xs:date", born.SelectAttrValue("type", ""))
	assert.Equal(t, "Date of birth", born.FindElement("xs:annotation/xs:documentation").Text())

	height := person.FindElement("xs:sequence/xs:element[@name='height']")
	assert.Equal(t, "true", height.SelectAttrValue("nillable", ""))
	digits := height.FindElement("xs:simpleType/xs:restriction/xs:fractionDigits")
	require.NotNil(t, digits)
	assert.Equal(t, "xs:decimal", height.FindElement("xs:simpleType/xs:restriction").SelectAttrValue("base", ""))
	assert.Equal(t, "2", digits.SelectAttrValue("value", ""))

	lang := person.FindElement("xs:attribute")
	require.NotNil(t, lang)
	assert.Equal(t, "lang", lang.SelectAttrValue("name", ""))

	payment := out.Root().FindElement("xs:element[@name='payment']")
	require.NotNil(t, payment)
	choice := payment.FindElement("xs:complexType/xs:choice")
	require.NotNil(t, choice)
	children := choice.ChildElements()
	require.Len(t, children, 2)
	assert.Equal(t, "element", children[0].Tag)
	assert.Equal(t, "card", children[0].SelectAttrValue("name", ""))
	assert.Equal(t, "sequence", children[1].Tag)
	assert.Len(t, children[1].SelectElements("xs:element"), 2)
}

func TestJsonSchemaToXsd_ModelElementForCombinationRoot(t *testing.T) {
	doc := mustParse(t, `{"oneOf":[{"$ref":"#/$defs/A"},{"$ref":"#/$defs/B"}],"$defs":{"A":{"properties":{"a":{"type":"string"}}},"B":{"properties":{"b":{"type":"boolean"}}}}}`)

	out, err := JsonSchemaToXsd(doc, WriteOptions{ModelName: "skjema"})
	require.NoError(t, err)

	globals := out.Root().SelectElements("xs:element")
	require.Len(t, globals, 1)
	assert.Equal(t, "skjema", globals[0].SelectAttrValue("name", ""))
	choice := globals[0].FindElement("xs:complexType/xs:choice")
	require.NotNil(t, choice)
	assert.Len(t, choice.SelectElements("xs:element"), 2)
	assert.Len(t, out.FindElements("//xs:complexType[@name]"), 2)
}

func TestJsonSchemaToXsd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		keyword string
	}{
		{"oneOf alongside properties", `{"oneOf":[{"$ref":"#/$defs/A"},{"$ref":"#/$defs/B"}],"properties":{"x":{"type":"string"}},"$defs":{"A":{},"B":{}}}`, "oneOf"},
		{"allOf alongside properties", `{"allOf":[{"properties":{"a":{"type":"string"}}},{"properties":{"b":{"type":"string"}}}],"properties":{"x":{"type":"string"}}}`, "allOf"},
		{"anyOf", `{"properties":{"x":{"anyOf":[{"properties":{"a":{"type":"string"}}},{"properties":{"b":{"type":"string"}}}]}}}`, "anyOf"},
		{"allOf duplicate property", `{"properties":{"x":{"allOf":[{"properties":{"a":{"type":"string"}}},{"properties":{"a":{"type":"integer"}}}]}}}`, "allOf"},
		{"allOf primitive branch", `{"properties":{"x":{"allOf":[{"properties":{"a":{"type":"string"}}},{"type":"string"}]}}}`, "allOf"},
		{"primitive choice branch", `{"properties":{"x":{"oneOf":[{"type":"string"},{"type":"integer"}]}}}`, "oneOf"},
		{"multipleOf", `{"properties":{"x":{"type":"number","multipleOf":3}}}`, "multipleOf"},
		{"array definition", `{"properties":{"x":{"type":"string"}},"$defs":{"L":{"type":"array","items":{"type":"string"}}}}`, "type"},
		{"dangling reference", `{"properties":{"x":{"$ref":"#/$defs/Missing"}}}`, "$ref"},
		{"not", `{"properties":{"x":{"not":{"type":"string"}}}}`, "not"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JsonSchemaToXsd(mustParse(t, tt.schema), WriteOptions{})
			require.Error(t, err)
			assert.True(t, datamodel.IsUnsupportedConstruct(err))
			assert.Equal(t, datamodel.ErrCodeJsonSchemaConvertError, datamodel.ErrorCode(err))
			convErr, _ := datamodel.AsConversionError(err)
			assert.Equal(t, tt.keyword, convErr.Keyword)
		})
	}
}

func TestPatternsAndFractionDigits(t *testing.T) {
	assert.Equal(t, "[A-Z]+", xsdPattern("^[A-Z]+$"))
	assert.Equal(t, ".*abc.*", xsdPattern("abc"))
	assert.Equal(t, `a\$.*`, xsdPattern(`^a\$`))
	assert.Equal(t, "^[0-9]{4}$", jsonPattern("[0-9]{4}"))

	for pattern, expected := range map[string]string{
		"^a|b$":   "(a.*|.*b)",
		"^a$|^b$": "(a|b)",
		"a|b":     "(.*a.*|.*b.*)",
		"^(a|b)$": "(a|b)",
		"^[|]x$":  "[|]x",
		`^a\|b$`:  `a\|b`,
		`^[\]|]$`: `[\]|]`,
	} {
		assert.Equal(t, expected, xsdPattern(pattern), pattern)
	}

	for text, expected := range map[string]int{"1": 0, "0.1": 1, "0.01": 2, "0.001": 3} {
		digits, ok := fractionDigits(json.Number(text))
		assert.True(t, ok, text)
		assert.Equal(t, expected, digits, text)
		assert.Equal(t, json.Number(text), multipleOf(digits))
	}
	for _, text := range []string{"3", "0.02", "0.11", "2.5"} {
		_, ok := fractionDigits(json.Number(text))
		assert.False(t, ok, text)
	}
}

func TestXsdValueType(t *testing.T) {
	assert.Equal(t, datamodel.XsdValueTypeString, XsdValueType(datamodel.FieldTypeString, ""))
	assert.Equal(t, datamodel.XsdValueTypeDateTime, XsdValueType(datamodel.FieldTypeString, "date-time"))
	assert.Equal(t, datamodel.XsdValueTypeInt, XsdValueType(datamodel.FieldTypeInteger, "int32"))
	assert.Equal(t, datamodel.XsdValueTypeInteger, XsdValueType(datamodel.FieldTypeInteger, ""))
	assert.Equal(t, datamodel.XsdValueTypeDecimal, XsdValueType(datamodel.FieldTypeNumber, ""))
	assert.Equal(t, datamodel.XsdValueTypeBoolean, XsdValueType(datamodel.FieldTypeBoolean, ""))
}
