package website

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// skipElements are subtrees dropped entirely during text extraction:
// chrome and executable content, never prose.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"noscript": true,
}

// headingPrefix maps heading elements to their markdown marker.
var headingPrefix = map[string]string{
	"h1": "# ",
	"h2": "## ",
	"h3": "### ",
	"h4": "#### ",
	"h5": "##### ",
	"h6": "###### ",
}

// extractPage parses one HTML page, returning its markdown-ish text
// rendering and the resolved anchor targets found in it. Relative hrefs
// are resolved against base; anchors that do not parse are dropped.
func extractPage(body []byte, base *url.URL) (string, []*url.URL) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", nil
	}

	var (
		out   strings.Builder
		links []*url.URL
	)
	walk(doc, &out, base, &links)

	return collapseBlankLines(out.String()), links
}

// walk renders node into out and collects anchor targets. Block
// elements emit surrounding newlines; inline text is appended as-is.
func walk(n *html.Node, out *strings.Builder, base *url.URL, links *[]*url.URL) {
	if n.Type == html.ElementNode {
		if skipElements[n.Data] {
			return
		}
		switch n.Data {
		case "a":
			appendAnchor(n, base, links)
		case "h1", "h2", "h3", "h4", "h5", "h6":
			out.WriteString("\n\n")
			out.WriteString(headingPrefix[n.Data])
			writeChildrenText(n, out)
			out.WriteString("\n\n")
			collectChildLinks(n, base, links)
			return
		case "p", "div", "section", "article", "main", "table", "tr":
			out.WriteString("\n")
		case "li":
			out.WriteString("\n- ")
			writeChildrenInline(n, out, base, links)
			return
		case "pre":
			out.WriteString("\n\n```\n")
			writeChildrenText(n, out)
			out.WriteString("\n```\n\n")
			return
		case "code":
			// Inline code; fenced blocks are handled by the pre case.
			out.WriteString("`")
			writeChildrenText(n, out)
			out.WriteString("`")
			return
		case "br":
			out.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		text := strings.TrimSpace(collapseSpace(n.Data))
		if text != "" {
			out.WriteString(text)
			out.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, out, base, links)
	}
}

// writeChildrenText renders only the text content of a subtree, with
// whitespace collapsed, ignoring markup.
func writeChildrenText(n *html.Node, out *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			out.WriteString(collapseSpaceKeepNewlines(c.Data, n.Data == "pre"))
			continue
		}
		writeChildrenText(c, out)
	}
}

// writeChildrenInline renders a list item's content on one line while
// still collecting any anchors inside it.
func writeChildrenInline(n *html.Node, out *strings.Builder, base *url.URL, links *[]*url.URL) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text := strings.TrimSpace(collapseSpace(c.Data))
			if text != "" {
				out.WriteString(text)
				out.WriteString(" ")
			}
			continue
		}
		if c.Type == html.ElementNode && c.Data == "a" {
			appendAnchor(c, base, links)
		}
		writeChildrenInline(c, out, base, links)
	}
}

// appendAnchor resolves an anchor element's href against base and
// records it when it lands on a fetchable scheme.
func appendAnchor(n *html.Node, base *url.URL, links *[]*url.URL) {
	for _, attr := range n.Attr {
		if attr.Key != "href" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(attr.Val))
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme == "http" || resolved.Scheme == "https" {
			*links = append(*links, resolved)
		}
	}
}

// collectChildLinks gathers anchors from a subtree whose text was
// rendered by a path that bypasses walk.
func collectChildLinks(n *html.Node, base *url.URL, links *[]*url.URL) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "a" {
			appendAnchor(c, base, links)
		}
		collectChildLinks(c, base, links)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collapseSpaceKeepNewlines(s string, pre bool) string {
	if pre {
		return s
	}
	return collapseSpace(s)
}

// collapseBlankLines trims the rendering to at most one blank line
// between blocks and no leading/trailing whitespace.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, strings.TrimLeft(trimmed, " "))
	}
	return strings.Trim(strings.Join(out, "\n"), "\n") + "\n"
}
