package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractText collects the visible text below every node of sel.
// Images contribute their alt text, labelled emoji spans their aria-label,
// and hidden elements contribute nothing.
func ExtractText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		walkChildren(&b, n)
	}
	return b.String()
}

func walkChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(b, c)
	}
}

func walk(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		if isHidden(n) {
			return
		}
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		case atom.Img:
			b.WriteString(attr(n, "alt"))
			return
		case atom.Br:
			b.WriteByte('\n')
			return
		}
		if label := attr(n, "aria-label"); label != "" && (n.DataAtom == atom.Span || attr(n, "role") == "img") {
			b.WriteString(label)
			return
		}
		walkChildren(b, n)
	}
}

// isHidden approximates a computed display:none from the markup alone.
func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
