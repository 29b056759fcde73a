package markdown

import (
	"bytes"
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/dev-sujan/prepdesk/pkg/models"
)

var scanParser = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Scan builds the structural view of a guide body: headings with their
// rendered anchors, outgoing links and fenced code blocks, all with
// 1-based line numbers relative to the body.
func Scan(body []byte) *models.Document {
	doc := &models.Document{}
	root := scanParser.Parser().Parse(text.NewReader(body))
	lines := buildLineIndex(body)
	slugger := NewSlugger()

	// Tracks the line of the innermost block node seen on the way down, as a
	// position fallback for inline nodes that carry no segments of their own.
	blockLine := 1

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock {
			if l := n.Lines(); l != nil && l.Len() > 0 {
				blockLine = lineAt(lines, l.At(0).Start)
			}
		}

		switch v := n.(type) {
		case *ast.Heading:
			textContent := NodeText(v, body)
			line := blockLine
			if l := v.Lines(); l.Len() > 0 {
				line = lineAt(lines, l.At(0).Start)
			}
			doc.Sections = append(doc.Sections, models.Section{
				Level:  v.Level,
				Text:   textContent,
				Anchor: slugger.Anchor(textContent),
				Line:   line,
			})

		case *ast.Link:
			line := blockLine
			if off, ok := firstTextOffset(v); ok {
				line = lineAt(lines, off)
			}
			doc.Links = append(doc.Links, models.Link{
				Dest: string(v.Destination),
				Text: NodeText(v, body),
				Line: line,
			})

		case *ast.Image:
			line := blockLine
			if off, ok := firstTextOffset(v); ok {
				line = lineAt(lines, off)
			}
			doc.Links = append(doc.Links, models.Link{
				Dest: string(v.Destination),
				Text: NodeText(v, body),
				Line: line,
			})

		case *ast.AutoLink:
			doc.Links = append(doc.Links, models.Link{
				Dest: string(v.URL(body)),
				Line: blockLine,
			})

		case *ast.FencedCodeBlock:
			line := 0
			if v.Info != nil {
				line = lineAt(lines, v.Info.Segment.Start)
			} else if l := v.Lines(); l.Len() > 0 {
				// No info string: position on the opening fence, one line
				// above the first body line.
				line = lineAt(lines, l.At(0).Start) - 1
			}
			doc.CodeBlocks = append(doc.CodeBlocks, models.CodeBlock{
				Language: string(v.Language(body)),
				Line:     line,
				Body:     blockBody(v, body),
			})
		}
		return ast.WalkContinue, nil
	})

	return doc
}

// NodeText collects the rendered text of an inline subtree.
func NodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(NodeText(c, source))
		}
	}
	return buf.String()
}

// firstTextOffset finds the source offset of the first text descendant.
func firstTextOffset(n ast.Node) (int, bool) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			return t.Segment.Start, true
		}
		if off, ok := firstTextOffset(c); ok {
			return off, true
		}
	}
	return 0, false
}

func blockBody(v *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	segs := v.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func buildLineIndex(source []byte) []int {
	index := []int{0}
	for i, b := range source {
		if b == '\n' {
			index = append(index, i+1)
		}
	}
	return index
}

// lineAt maps a byte offset to its 1-based line number.
func lineAt(index []int, offset int) int {
	return sort.SearchInts(index, offset+1)
}
