package transform

import (
	"context"
	"encoding/json"
	"regexp"
)

var (
	importFromRe    = regexp.MustCompile(`(?m)^\s*(?:import|export)\s+[\w*{}\s,$]*?\s*from\s*["']([^"'\n]+)["']`)
	importBareRe    = regexp.MustCompile(`(?m)^\s*import\s*["']([^"'\n]+)["']`)
	importDynamicRe = regexp.MustCompile(`\bimport\(\s*["']([^"'\n]+)["']\s*\)`)
	requireRe       = regexp.MustCompile(`\brequire\(\s*["']([^"'\n]+)["']\s*\)`)
)

// script reports the static imports, dynamic imports and require calls of a
// script module. Content passes through unchanged.
type script struct{}

func newScript(map[string]any) (Transformer, error) { return script{}, nil }

func (script) Name() string { return "script" }

func (script) Transform(_ context.Context, in *Input) (*Output, error) {
	return &Output{
		Content:    in.Content,
		Kind:       KindScript,
		References: scanReferences(in.Content, importFromRe, importBareRe, importDynamicRe, requireRe),
	}, nil
}

// raw turns any content into a script module exporting it as a string.
type raw struct{}

func newRaw(map[string]any) (Transformer, error) { return raw{}, nil }

func (raw) Name() string { return "raw" }

func (raw) Transform(_ context.Context, in *Input) (*Output, error) {
	quoted, err := json.Marshal(string(in.Content))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(quoted)+len("export default ;\n"))
	out = append(out, "export default "...)
	out = append(out, quoted...)
	out = append(out, ";\n"...)
	return &Output{Content: out, Kind: KindScript}, nil
}
