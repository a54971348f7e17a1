// Package bundle assembles the artifacts of a module graph, one script
// bundle per entry plus the files that cannot live inside a script.
package bundle

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	"git.home.luguber.info/inful/assetbuilder/internal/graph"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// staticExts are copied to the output as files instead of being bundled.
var staticExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true,
	".ico": true, ".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// Style is a style module waiting for extraction.
type Style struct {
	Module  string
	Content []byte
	// Entries lists the entries reaching the module, in declaration order.
	Entries []string
}

// Result is the bundled output of a graph.
type Result struct {
	Manifest *emit.Manifest
	// Styles holds the extracted style modules in first-seen order.
	Styles []Style
}

// StylesFor returns the extracted styles reached only by entry.
func (r *Result) StylesFor(entry string) []Style {
	var out []Style
	for _, s := range r.Styles {
		if len(s.Entries) == 1 && s.Entries[0] == entry {
			out = append(out, s)
		}
	}
	return out
}

// SharedStyles returns the extracted styles reached by more than one entry.
func (r *Result) SharedStyles() []Style {
	var out []Style
	for _, s := range r.Styles {
		if len(s.Entries) > 1 {
			out = append(out, s)
		}
	}
	return out
}

// Options configures a Bundler.
type Options struct {
	Output config.OutputConfig
	// Extract keeps extract-flagged styles out of the scripts. When false they
	// are injected like every other style.
	Extract bool
	Logger  *slog.Logger
}

// Bundler turns graphs into artifact manifests.
type Bundler struct {
	opts   Options
	logger *slog.Logger
}

// New creates a bundler.
func New(opts Options) *Bundler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bundler{opts: opts, logger: logger}
}

// Bundle builds the manifest for g. Each entry yields one script artifact
// holding its script modules in dependency-first order, joined by newlines.
// Styles are either injected into that script or collected for extraction.
// Markup and static files become artifacts of their own, once each.
func (b *Bundler) Bundle(g *graph.Graph) *Result {
	res := &Result{Manifest: emit.NewManifest()}
	styles := make(map[string]int)
	files := make(map[string]*emit.Artifact)
	var fileOrder []string

	for _, entry := range g.EntryNames() {
		var parts [][]byte
		var modules []string
		for _, id := range g.EntryOrder(entry) {
			mod, _ := g.Module(id)
			switch classify(mod) {
			case kindScript:
				parts = append(parts, mod.Content)
				modules = append(modules, id)
			case kindStyle:
				if b.opts.Extract && mod.Extract {
					if i, ok := styles[id]; ok {
						res.Styles[i].Entries = append(res.Styles[i].Entries, entry)
						continue
					}
					styles[id] = len(res.Styles)
					res.Styles = append(res.Styles, Style{Module: id, Content: mod.Content, Entries: []string{entry}})
					continue
				}
				parts = append(parts, injectStyle(mod.Content))
				modules = append(modules, id)
			case kindFile:
				if a, ok := files[id]; ok {
					a.Entry = ""
					continue
				}
				files[id] = b.fileArtifact(mod, entry)
				fileOrder = append(fileOrder, id)
			}
		}
		res.Manifest.Add(&emit.Artifact{
			Name:     entry,
			Entry:    entry,
			Kind:     emit.KindScript,
			Template: b.opts.Output.Filename,
			Ext:      ".js",
			Content:  bytes.Join(parts, []byte("\n")),
			Modules:  modules,
		})
	}
	for _, id := range fileOrder {
		res.Manifest.Add(files[id])
	}

	b.logger.Debug("Bundled artifacts",
		logfields.Generation(g.Generation),
		logfields.Count(res.Manifest.Len()),
		slog.Int("extracted_styles", len(res.Styles)))
	return res
}

type bundleKind int

const (
	kindScript bundleKind = iota
	kindStyle
	kindFile
)

func classify(mod *graph.Module) bundleKind {
	switch mod.Kind {
	case transform.KindStyle:
		return kindStyle
	case transform.KindMarkup:
		return kindFile
	case transform.KindAsset:
		if staticExts[strings.ToLower(path.Ext(mod.ID))] {
			return kindFile
		}
	}
	return kindScript
}

func (b *Bundler) fileArtifact(mod *graph.Module, entry string) *emit.Artifact {
	ext := path.Ext(mod.ID)
	kind := emit.KindAsset
	if mod.Kind == transform.KindMarkup {
		kind = emit.KindMarkup
		ext = ".html"
	}
	return &emit.Artifact{
		Name:     strings.TrimSuffix(mod.ID, path.Ext(mod.ID)),
		Entry:    entry,
		Kind:     kind,
		Template: "[name][ext]",
		Ext:      ext,
		Content:  mod.Content,
		Modules:  []string{mod.ID},
	}
}

// injectStyle wraps CSS in a script that appends it to the document head.
func injectStyle(css []byte) []byte {
	quoted, _ := json.Marshal(string(css))
	var buf bytes.Buffer
	buf.WriteString(`(function(){var s=document.createElement("style");s.textContent=`)
	buf.Write(quoted)
	buf.WriteString(`;document.head.appendChild(s);})();`)
	return buf.Bytes()
}

// Modules lists the module identifiers of styles.
func Modules(styles []Style) []string {
	out := make([]string, len(styles))
	for i, s := range styles {
		out[i] = s.Module
	}
	return out
}
