// Package markdown renders final results, which are markdown, as HTML or
// plain text.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

type Format string

const (
	Markdown Format = "markdown"
	HTML     Format = "html"
	Text     Format = "text"
)

// ParseFormat accepts "markdown" (also "md" and ""), "html" and "text".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return Markdown, nil
	case "html":
		return HTML, nil
	case "text", "txt", "plain":
		return Text, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Render converts md to f.
func Render(md string, f Format) string {
	switch f {
	case HTML:
		return ToHTML(md)
	case Text:
		return ToPlainText(md)
	default:
		return md
	}
}

func parse(md string) ast.Node {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Attributes)
	return p.Parse([]byte(md))
}

func ToHTML(md string) string {
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	})
	return string(markdown.Render(parse(md), renderer))
}

var blankRunsRe = regexp.MustCompile(`\n{3,}`)

// ToPlainText drops markdown syntax and keeps the text, one block per
// paragraph and one line per list item.
func ToPlainText(md string) string {
	var sb strings.Builder
	ast.WalkFunc(parse(md), func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				sb.Write(n.Literal)
			}
		case *ast.Code:
			if entering {
				sb.Write(n.Literal)
			}
		case *ast.CodeBlock:
			if entering {
				sb.Write(n.Literal)
				breakLines(&sb, 2)
			}
		case *ast.Hardbreak:
			if entering {
				sb.WriteByte('\n')
			}
		case *ast.ListItem:
			if entering {
				breakLines(&sb, 1)
				sb.WriteString("- ")
			} else {
				breakLines(&sb, 1)
			}
		case *ast.List:
			if !entering {
				breakLines(&sb, 2)
			}
		case *ast.Paragraph:
			if !entering {
				if _, inItem := n.Parent.(*ast.ListItem); inItem {
					breakLines(&sb, 1)
				} else {
					breakLines(&sb, 2)
				}
			}
		case *ast.Heading, *ast.HorizontalRule, *ast.Table:
			if !entering {
				breakLines(&sb, 2)
			}
		case *ast.TableCell:
			if !entering {
				sb.WriteByte('\t')
			}
		case *ast.TableRow:
			if !entering {
				breakLines(&sb, 1)
			}
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(blankRunsRe.ReplaceAllString(sb.String(), "\n\n"))
}

// breakLines makes sure the output ends with at least n newlines.
func breakLines(sb *strings.Builder, n int) {
	if sb.Len() == 0 {
		return
	}
	s := sb.String()
	have := len(s) - len(strings.TrimRight(s, "\n"))
	for ; have < n; have++ {
		sb.WriteByte('\n')
	}
}
