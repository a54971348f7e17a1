package transform

import (
	"errors"
	"fmt"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// TransformError reports the transformer that failed a module.
type TransformError struct {
	Module      string
	Transformer string
	Diagnostic  Diagnostic
	Err         error
}

func (e *TransformError) Error() string {
	loc := e.Module
	if e.Diagnostic.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.Module, e.Diagnostic.Line, e.Diagnostic.Column)
	}
	return fmt.Sprintf("transform %s failed in %s: %s", loc, e.Transformer, e.Diagnostic.Message)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Classify presents the error to the CLI and HTTP adapters.
func (e *TransformError) Classify() *ferrors.ClassifiedError {
	b := ferrors.WrapError(e.Err, ferrors.CategoryTransform, e.Error()).
		Fatal().
		UserAction().
		WithContext("module", e.Module).
		WithContext("transformer", e.Transformer)
	if e.Diagnostic.Line > 0 {
		b = b.WithContext("line", e.Diagnostic.Line).WithContext("column", e.Diagnostic.Column)
	}
	return b.Build()
}

// SourceError is returned by transformers to attach a source location to a failure.
type SourceError struct {
	Message string
	Line    int
	Column  int
}

func (e *SourceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// Errorf builds a SourceError at line:column.
func Errorf(line, column int, format string, args ...any) error {
	return &SourceError{Message: fmt.Sprintf(format, args...), Line: line, Column: column}
}

// newTransformError wraps err returned by transformer name for module id.
func newTransformError(id, name string, err error) *TransformError {
	diag := Diagnostic{Module: id, Transformer: name, Severity: SeverityError, Message: err.Error()}
	var src *SourceError
	if errors.As(err, &src) {
		diag.Message = src.Message
		diag.Line = src.Line
		diag.Column = src.Column
	}
	return &TransformError{Module: id, Transformer: name, Diagnostic: diag, Err: err}
}
