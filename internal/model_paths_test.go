package internal

import (
	"testing"

	"github.com/lychee-technology/datamodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelPath(t *testing.T) {
	tests := []struct {
		raw  string
		dir  string
		name string
	}{
		{raw: "App/models/person.schema.json", dir: "App/models", name: "person"},
		{raw: "App%2Fmodels%2Fperson.schema.json", dir: "App/models", name: "person"},
		{raw: "/App/models/person.xsd", dir: "App/models", name: "person"},
		{raw: "App/models/person.metadata.json", dir: "App/models", name: "person"},
		{raw: "App/models/person.json", dir: "App/models", name: "person"},
		{raw: `App\models\person.XSD`, dir: "App/models", name: "person"},
		{raw: "App/models/./v2/../person", dir: "App/models", name: "person"},
		{raw: "person", dir: "", name: "person"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			mp, err := ParseModelPath(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.dir, mp.Dir)
			assert.Equal(t, tt.name, mp.Name)
		})
	}
}

func TestParseModelPath_Rejects(t *testing.T) {
	for _, raw := range []string{"", "/", ".schema.json", "..", "../x", "App/../../x", "%zz"} {
		_, err := ParseModelPath(raw)
		assert.True(t, datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeInvalidFormat), raw)
	}
}

func TestModelPath_Artifacts(t *testing.T) {
	mp := NewModelPath("/App/models/", "person")
	assert.Equal(t, "App/models/person.schema.json", mp.SchemaPath())
	assert.Equal(t, "App/models/person.xsd", mp.XsdPath())
	assert.Equal(t, "App/models/person.metadata.json", mp.MetadataPath())
	assert.Equal(t, "App/models/person", mp.String())

	root := NewModelPath("", "person")
	assert.Equal(t, "person.xsd", root.XsdPath())
}
