package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mangiafuoco/pkg/files"
	"github.com/go-go-golems/mangiafuoco/pkg/research"
	"github.com/go-go-golems/mangiafuoco/pkg/sandbox"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
)

type stubBrowser struct{}

func (stubBrowser) WebSearch(context.Context, string, int) (*research.SearchResponse, error) {
	return &research.SearchResponse{}, nil
}

func (stubBrowser) SearchAndExtract(context.Context, string, int) ([]research.Page, error) {
	return nil, nil
}

func (stubBrowser) NavigateTo(context.Context, string) error { return nil }

func (stubBrowser) ExtractContent(context.Context) (*research.PageExtract, error) {
	return &research.PageExtract{}, nil
}

func testCollaborators(t *testing.T) (*files.Manager, *sandbox.Runner) {
	t.Helper()
	root := t.TempDir()
	fm, err := files.NewManager(root)
	require.NoError(t, err)
	runner, err := sandbox.NewRunner(root)
	require.NoError(t, err)
	return fm, runner
}

func TestCoderToolsetCoversDeclaredMenu(t *testing.T) {
	fm, runner := testCollaborators(t)
	registry, err := CoderToolset(fm, runner)
	require.NoError(t, err)

	for _, name := range append(append([]string{}, fileToolNames...), codeToolNames...) {
		assert.True(t, registry.Has(name), "missing %s", name)
	}
	assert.False(t, registry.Has("web_search"), "coder must not browse")
}

func TestCriticToolsetCoversDeclaredMenu(t *testing.T) {
	fm, _ := testCollaborators(t)
	registry, err := CriticToolset(fm, stubBrowser{})
	require.NoError(t, err)

	for _, name := range append(append([]string{}, fileToolNames...), webToolNames...) {
		assert.True(t, registry.Has(name), "missing %s", name)
	}
	assert.False(t, registry.Has("execute_python_code"), "critic must not run code")
}

func TestDeclaredMenuValidationCatchesMissingHandler(t *testing.T) {
	fm, runner := testCollaborators(t)
	registry, err := CoderToolset(fm, runner)
	require.NoError(t, err)

	err = tools.ValidateDeclared(registry, declaredMenu(fileToolNames, []string{"vector_query"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector_query")
}
