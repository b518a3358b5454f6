package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"mkt_tracker/parse"
)

// blockElements start a new line in rendered text.
var blockElements = map[atom.Atom]bool{
	atom.Div: true, atom.P: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Table: true, atom.Tr: true, atom.Td: true, atom.Dd: true, atom.Dt: true,
}

// innerLines approximates the browser's innerText of s split into cleaned,
// non-empty lines.
func innerLines(s *goquery.Selection) []string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeText(n, &b)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = parse.Clean(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// innerText is innerLines collapsed to one cleaned string.
func innerText(s *goquery.Selection) string {
	return strings.Join(innerLines(s), " ")
}

func writeText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		case atom.Br:
			b.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, b)
	}
	if block {
		b.WriteByte('\n')
	}
}

// absoluteImage returns the first of up to limit img sources under s with an
// http(s) scheme.
func absoluteImage(s *goquery.Selection, limit int) string {
	var src string
	s.Find("img").EachWithBreak(func(i int, img *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		if v, ok := img.Attr("src"); ok && strings.HasPrefix(v, "http") {
			src = v
			return false
		}
		return true
	})
	return src
}
