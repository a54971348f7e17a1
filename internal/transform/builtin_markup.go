package transform

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// htmlDoc reports the local resources an HTML document pulls in:
// script[src], link[href] and img[src]. With follow=false it reports nothing.
type htmlDoc struct {
	follow bool
}

func newHTML(opts map[string]any) (Transformer, error) {
	follow, err := optBool(opts, "follow", true)
	if err != nil {
		return nil, err
	}
	return htmlDoc{follow: follow}, nil
}

func (htmlDoc) Name() string { return "html" }

func (h htmlDoc) Transform(_ context.Context, in *Input) (*Output, error) {
	doc, err := html.Parse(bytes.NewReader(in.Content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	out := &Output{Content: in.Content, Kind: KindMarkup}
	if !h.follow {
		return out, nil
	}

	seen := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			var ref string
			switch n.Data {
			case "script", "img":
				ref = attr(n, "src")
			case "link":
				ref = attr(n, "href")
			}
			ref = stripQuery(ref)
			if isLocalReference(ref) {
				ref = relativeRef(ref)
				if _, dup := seen[ref]; !dup {
					seen[ref] = struct{}{}
					out.References = append(out.References, ref)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// markdown renders Markdown to HTML and reports local image references.
type markdown struct {
	md goldmark.Markdown
}

func newMarkdown(map[string]any) (Transformer, error) {
	return markdown{md: goldmark.New()}, nil
}

func (markdown) Name() string { return "markdown" }

func (m markdown) Transform(_ context.Context, in *Input) (*Output, error) {
	root := m.md.Parser().Parse(text.NewReader(in.Content))

	var refs []string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if img, ok := n.(*gmast.Image); ok {
			dest := stripQuery(string(img.Destination))
			if isLocalReference(dest) {
				refs = append(refs, relativeRef(dest))
			}
		}
		return gmast.WalkContinue, nil
	})

	var buf bytes.Buffer
	if err := m.md.Renderer().Render(&buf, in.Content, root); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return &Output{Content: buf.Bytes(), Kind: KindMarkup, References: refs}, nil
}
