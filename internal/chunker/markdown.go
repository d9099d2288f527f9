package chunker

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// PlainText flattens markdown into plain text with one block per paragraph.
func PlainText(markdown string) string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var sb strings.Builder
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				sb.Write(n.Segment.Value(source))
				if n.SoftLineBreak() || n.HardLineBreak() {
					sb.WriteByte(' ')
				}
			}
			return ast.WalkContinue, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(source))
				}
				sb.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		if !entering && node.Type() == ast.TypeBlock && node.Kind() != ast.KindDocument {
			sb.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	out := blankRuns.ReplaceAllString(sb.String(), "\n\n")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
