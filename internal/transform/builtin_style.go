package transform

import (
	"context"
	"regexp"
	"strings"
)

var (
	cssImportRe = regexp.MustCompile(`@import\s+(?:url\(\s*)?["']?([^"'()\s;]+)["']?`)
	cssURLRe    = regexp.MustCompile(`url\(\s*["']?([^"'()]+?)["']?\s*\)`)
)

// css reports @import and url() references of a stylesheet. References are
// relative to the stylesheet, as in a browser.
type css struct{}

func newCSS(map[string]any) (Transformer, error) { return css{}, nil }

func (css) Name() string { return "css" }

func (css) Transform(_ context.Context, in *Input) (*Output, error) {
	refs := scanReferences(in.Content, cssImportRe, cssURLRe)
	for i, r := range refs {
		refs[i] = relativeRef(r)
	}
	return &Output{Content: in.Content, Kind: KindStyle, References: refs}, nil
}

// extract marks a style module for extraction into its own stylesheet artifact.
type extract struct{}

func newExtract(map[string]any) (Transformer, error) { return extract{}, nil }

func (extract) Name() string { return "extract" }

func (extract) Transform(_ context.Context, in *Input) (*Output, error) {
	return &Output{Content: in.Content, Kind: KindStyle, Extract: true}, nil
}

var (
	sassVarDefRe = regexp.MustCompile(`^\s*\$([\w-]+)\s*:\s*(.*?)\s*(!default)?\s*;\s*$`)
	sassVarUseRe = regexp.MustCompile(`\$([\w-]+)`)
)

// sass is a small preprocessor: it removes // comments and substitutes
// $variables. Variables must be defined before use.
type sass struct{}

func newSass(map[string]any) (Transformer, error) { return sass{}, nil }

func (sass) Name() string { return "sass" }

func (sass) Transform(ctx context.Context, in *Input) (*Output, error) {
	vars := make(map[string]string)
	lines := strings.Split(string(in.Content), "\n")
	out := make([]string, 0, len(lines))

	for i, original := range lines {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := stripLineComment(original)
		if strings.TrimSpace(line) == "" && strings.TrimSpace(original) != "" {
			continue
		}

		if m := sassVarDefRe.FindStringSubmatch(line); m != nil {
			value, err := substituteVars(m[2], vars, i+1, strings.Index(line, m[2])+1)
			if err != nil {
				return nil, err
			}
			if _, exists := vars[m[1]]; exists && m[3] != "" {
				continue
			}
			vars[m[1]] = value
			continue
		}

		expanded, err := substituteVars(line, vars, i+1, 1)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return &Output{Content: []byte(strings.Join(out, "\n")), Kind: KindStyle}, nil
}

func substituteVars(s string, vars map[string]string, line, colBase int) (string, error) {
	var firstErr error
	result := sassVarUseRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1:]
		if v, ok := vars[name]; ok {
			return v
		}
		if firstErr == nil {
			firstErr = Errorf(line, colBase+strings.Index(s, match), "undefined variable $%s", name)
		}
		return match
	})
	return result, firstErr
}

// stripLineComment drops a // comment that is outside quotes and parentheses.
func stripLineComment(line string) string {
	var quote byte
	depth := 0
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == '/' && depth == 0 && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
