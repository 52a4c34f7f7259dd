package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, args json.RawMessage) (interface{}, error) {
	return "", nil
}

func mustDefinition(t *testing.T, name string) Definition {
	t.Helper()
	def, err := NewDefinition(name, "test tool", nil, noopHandler)
	require.NoError(t, err)
	return def
}

func TestRegisterNormalizesNames(t *testing.T) {
	r := NewInMemoryRegistry()
	require.NoError(t, r.Register(mustDefinition(t, "WebSearch")))

	assert.True(t, r.Has("web_search"))
	def, err := r.Get("web_search")
	require.NoError(t, err)
	assert.Equal(t, "web_search", def.Name)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := NewInMemoryRegistry()
	err := r.Register(Definition{Declaration: Declaration{Name: ""}, Handler: noopHandler})
	require.Error(t, err)

	err = r.Register(Definition{Declaration: Declaration{Name: "no_handler"}})
	require.Error(t, err)
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewInMemoryRegistry()
	require.NoError(t, r.Register(mustDefinition(t, "read_file")))

	def, err := r.Get("read_file")
	require.NoError(t, err)
	def.Description = "mutated"

	again, err := r.Get("read_file")
	require.NoError(t, err)
	assert.Equal(t, "test tool", again.Description)
}

func TestCloneAndMerge(t *testing.T) {
	r := NewInMemoryRegistry()
	require.NoError(t, r.Register(mustDefinition(t, "read_file")))

	other := NewInMemoryRegistry()
	require.NoError(t, other.Register(mustDefinition(t, "write_file")))

	cloned := r.Clone()
	assert.Equal(t, 1, cloned.Count())

	merged := r.Merge(other)
	assert.Equal(t, 2, merged.Count())
	assert.True(t, merged.Has("read_file"))
	assert.True(t, merged.Has("write_file"))
	// source registries untouched
	assert.Equal(t, 1, r.Count())
}

func TestUnregister(t *testing.T) {
	r := NewInMemoryRegistry()
	require.NoError(t, r.Register(mustDefinition(t, "read_file")))
	require.NoError(t, r.Unregister("read_file"))
	assert.False(t, r.Has("read_file"))
	require.Error(t, r.Unregister("read_file"))
}

func TestValidateDeclared(t *testing.T) {
	r := NewInMemoryRegistry()
	require.NoError(t, r.Register(mustDefinition(t, "web_search")))
	require.NoError(t, r.Register(mustDefinition(t, "read_file")))

	err := ValidateDeclared(r, []Declaration{{Name: "web_search"}, {Name: "read_file"}})
	require.NoError(t, err)

	err = ValidateDeclared(r, []Declaration{{Name: "web_search"}, {Name: "navigate_to"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "navigate_to")
}

func TestParamsSchemaMarksRequired(t *testing.T) {
	type params struct {
		Query string `json:"query" jsonschema:"required"`
		Limit int    `json:"limit,omitempty"`
	}
	schema := ParamsSchema(params{})
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema.Type)

	b, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"query"`)
	assert.Contains(t, string(b), `"required"`)
}
