// ABOUTME: Markdown extraction for fabric-link: finds the first fenced json block.
// ABOUTME: Walks the goldmark AST rather than pattern-matching the raw text.

package main

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractJSONBlock returns the contents of the first fenced code block
// tagged json, or false when the document has none.
func extractJSONBlock(source []byte) (string, bool) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var found string
	var ok bool
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || ok {
			return ast.WalkContinue, nil
		}
		block, isFenced := n.(*ast.FencedCodeBlock)
		if !isFenced {
			return ast.WalkContinue, nil
		}
		if string(block.Language(source)) != "json" {
			return ast.WalkContinue, nil
		}

		var sb strings.Builder
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(source))
		}
		found = strings.TrimSpace(sb.String())
		ok = true
		return ast.WalkStop, nil
	})
	return found, ok
}
