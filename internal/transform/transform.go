// Package transform runs a module's content through its transformer chain.
//
// A Transformer converts content to content and may report references to other
// modules and non-fatal diagnostics. It never touches the module graph. The
// Executor threads output i into input i+1 and stops at the first failure.
package transform

import (
	"context"
	"path"
	"strconv"
	"strings"
)

// Kind classifies module content.
type Kind string

const (
	KindScript Kind = "script"
	KindStyle  Kind = "style"
	KindMarkup Kind = "markup"
	KindAsset  Kind = "asset"
)

// KindFor infers the initial kind of a module from its identifier.
func KindFor(id string) Kind {
	switch strings.ToLower(path.Ext(id)) {
	case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx":
		return KindScript
	case ".css", ".scss", ".sass":
		return KindStyle
	case ".html", ".htm", ".md", ".markdown":
		return KindMarkup
	default:
		return KindAsset
	}
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a message about a module, optionally with a 1-based source location.
type Diagnostic struct {
	Module      string   `json:"module,omitempty"`
	Transformer string   `json:"transformer,omitempty"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Line        int      `json:"line,omitempty"`
	Column      int      `json:"column,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Module != "" {
		b.WriteString(d.Module)
		if d.Line > 0 {
			b.WriteString(":" + strconv.Itoa(d.Line))
			if d.Column > 0 {
				b.WriteString(":" + strconv.Itoa(d.Column))
			}
		}
		b.WriteString(": ")
	}
	if d.Transformer != "" {
		b.WriteString("[" + d.Transformer + "] ")
	}
	b.WriteString(d.Message)
	return b.String()
}

// Input is what a transformer receives.
type Input struct {
	ModuleID string
	Content  []byte
	Kind     Kind
	Options  map[string]any
}

// Output is what a transformer returns. A zero Kind keeps the input kind.
// References are raw references as written in the content; the graph builder
// resolves them.
type Output struct {
	Content     []byte
	Kind        Kind
	Extract     bool
	// References replaces the references of earlier steps when non-nil. A
	// step that does not look at references leaves it nil.
	References  []string
	Diagnostics []Diagnostic
}

// Transformer is a single chain step.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, in *Input) (*Output, error)
}

// Func adapts a function to the Transformer interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, in *Input) (*Output, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Transform(ctx context.Context, in *Input) (*Output, error) {
	return f.Fn(ctx, in)
}
