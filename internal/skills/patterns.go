package skills

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CorePatterns extracts the quotable pattern lines from a skill body. Skill
// files keep their reusable rules as markdown bullets; prompt composition
// quotes those. Bodies without bullets fall back to the first paragraph.
func CorePatterns(content string, max int) []string {
	if max <= 0 {
		max = 3
	}
	src := []byte(content)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var patterns []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || len(patterns) >= max {
			return ast.WalkContinue, nil
		}
		if _, ok := n.(*ast.ListItem); !ok {
			return ast.WalkContinue, nil
		}
		if line := nodeText(n, src); line != "" {
			patterns = append(patterns, line)
		}
		return ast.WalkSkipChildren, nil
	})

	if len(patterns) > 0 {
		return patterns
	}

	// No bullets: quote the first paragraph instead.
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if _, ok := child.(*ast.Paragraph); !ok {
			continue
		}
		if line := nodeText(child, src); line != "" {
			return []string{line}
		}
	}
	return nil
}

func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
