package agents

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is one fenced block lifted from markdown content.
type CodeBlock struct {
	Language string
	Code     string
}

// ExtractCodeBlocks parses markdown and returns every fenced code
// block in document order.
func ExtractCodeBlocks(markdown string) ([]CodeBlock, error) {
	source := []byte(markdown)
	document := goldmark.DefaultParser().Parse(text.NewReader(source))

	var blocks []CodeBlock
	err := ast.Walk(document, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		v, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := v.Lines()
		code := ""
		if lines.Len() > 0 {
			code = string(source[lines.At(0).Start:lines.At(lines.Len()-1).Stop])
		}
		blocks = append(blocks, CodeBlock{
			Language: string(v.Language(source)),
			Code:     code,
		})
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// PythonBlocks filters to blocks tagged as python.
func PythonBlocks(blocks []CodeBlock) []CodeBlock {
	var out []CodeBlock
	for _, b := range blocks {
		if b.Language == "python" || b.Language == "py" {
			out = append(out, b)
		}
	}
	return out
}
