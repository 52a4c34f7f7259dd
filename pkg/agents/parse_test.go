package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCodeBlocks(t *testing.T) {
	markdown := "Here is the solution:\n\n" +
		"```python\nprint('hello')\nprint('world')\n```\n\n" +
		"And a helper script:\n\n" +
		"```bash\necho hi\n```\n\n" +
		"Plain `inline code` is not a block.\n"

	blocks, err := ExtractCodeBlocks(markdown)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, "python", blocks[0].Language)
	assert.Equal(t, "print('hello')\nprint('world')\n", blocks[0].Code)
	assert.Equal(t, "bash", blocks[1].Language)
	assert.Equal(t, "echo hi\n", blocks[1].Code)
}

func TestExtractCodeBlocksWithoutLanguage(t *testing.T) {
	blocks, err := ExtractCodeBlocks("```\nno language\n```\n")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "", blocks[0].Language)
	assert.Equal(t, "no language\n", blocks[0].Code)
}

func TestExtractCodeBlocksEmptyDocument(t *testing.T) {
	blocks, err := ExtractCodeBlocks("just prose, no code at all")
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestPythonBlocksFiltersByLanguage(t *testing.T) {
	blocks := []CodeBlock{
		{Language: "python", Code: "a = 1\n"},
		{Language: "bash", Code: "ls\n"},
		{Language: "py", Code: "b = 2\n"},
		{Language: "", Code: "c = 3\n"},
	}
	python := PythonBlocks(blocks)
	require.Len(t, python, 2)
	assert.Equal(t, "a = 1\n", python[0].Code)
	assert.Equal(t, "b = 2\n", python[1].Code)
}
