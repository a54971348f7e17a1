package plugin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/assetbuilder/internal/emit"
)

const defaultShell = `<!DOCTYPE html><html><head><meta charset="utf-8"><title></title></head><body></body></html>`

// htmlShell writes an HTML document referencing the computed artifacts:
// stylesheets in the head, scripts at the end of the body.
type htmlShell struct {
	template   string
	filename   string
	title      string
	publicPath string
	inject     bool
	chunks     []string
}

func newHTML(opts map[string]any, _ Deps) (Plugin, error) {
	h := &htmlShell{}
	var err error
	if h.template, err = optString(opts, "template", ""); err != nil {
		return nil, err
	}
	if h.filename, err = optString(opts, "filename", "index.html"); err != nil {
		return nil, err
	}
	if h.title, err = optString(opts, "title", ""); err != nil {
		return nil, err
	}
	if h.publicPath, err = optString(opts, "public_path", ""); err != nil {
		return nil, err
	}
	if h.inject, err = optBool(opts, "inject", true); err != nil {
		return nil, err
	}
	if h.chunks, err = optStrings(opts, "chunks"); err != nil {
		return nil, err
	}
	if err := emit.ValidateTemplate(h.filename); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *htmlShell) Name() string { return "html" }

func (h *htmlShell) Register(o *Orchestrator) {
	o.Register(HookPreEmit, h.Name(), h.run)
}

func (h *htmlShell) run(_ context.Context, hc *HookContext) error {
	src := []byte(defaultShell)
	if h.template != "" {
		data, err := os.ReadFile(h.template)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		src = data
	}
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	head, body := findNode(doc, atom.Head), findNode(doc, atom.Body)
	if head == nil || body == nil {
		return fmt.Errorf("template has no head or body")
	}
	if h.title != "" {
		setTitle(head, h.title)
	}

	if h.inject {
		for _, a := range hc.Manifest.Artifacts() {
			if !h.includes(a) {
				continue
			}
			href := h.publicPath + a.FileName
			switch a.Kind {
			case emit.KindStyle:
				head.AppendChild(element(atom.Link, "rel", "stylesheet", "href", href))
			case emit.KindScript:
				body.AppendChild(element(atom.Script, "src", href))
			}
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return hc.AddArtifact(&emit.Artifact{
		Name:     strings.TrimSuffix(h.filename, path.Ext(h.filename)),
		Kind:     emit.KindMarkup,
		Template: h.filename,
		Ext:      ".html",
		Content:  buf.Bytes(),
	})
}

// includes reports whether a belongs to a selected entry. Shared artifacts
// are always included.
func (h *htmlShell) includes(a *emit.Artifact) bool {
	if a.Kind != emit.KindScript && a.Kind != emit.KindStyle {
		return false
	}
	return a.Entry == "" || len(h.chunks) == 0 || slices.Contains(h.chunks, a.Entry)
}

func findNode(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, a); found != nil {
			return found
		}
	}
	return nil
}

func setTitle(head *html.Node, title string) {
	t := findNode(head, atom.Title)
	if t == nil {
		t = element(atom.Title)
		head.AppendChild(t)
	}
	for c := t.FirstChild; c != nil; c = t.FirstChild {
		t.RemoveChild(c)
	}
	t.AppendChild(&html.Node{Type: html.TextNode, Data: title})
}

func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}
