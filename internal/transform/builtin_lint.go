package transform

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var debuggerRe = regexp.MustCompile(`\bdebugger\s*;?`)

// lint reports trailing whitespace, debugger statements in scripts and lines
// longer than max_line_length. fail_on_warning turns the first warning into
// a failure.
type lint struct {
	maxLineLength int
	failOnWarning bool
}

func newLint(opts map[string]any) (Transformer, error) {
	maxLen, err := optInt(opts, "max_line_length", 0)
	if err != nil {
		return nil, err
	}
	if maxLen < 0 {
		return nil, fmt.Errorf("option %q must not be negative", "max_line_length")
	}
	fail, err := optBool(opts, "fail_on_warning", false)
	if err != nil {
		return nil, err
	}
	return lint{maxLineLength: maxLen, failOnWarning: fail}, nil
}

func (lint) Name() string { return "lint" }

func (l lint) Transform(_ context.Context, in *Input) (*Output, error) {
	var diags []Diagnostic
	warn := func(line, col int, format string, args ...any) {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf(format, args...),
			Line:     line,
			Column:   col,
		})
	}

	for i, line := range strings.Split(string(in.Content), "\n") {
		n := i + 1
		line = strings.TrimSuffix(line, "\r")
		if trimmed := strings.TrimRight(line, " \t"); len(trimmed) != len(line) {
			warn(n, utf8.RuneCountInString(trimmed)+1, "trailing whitespace")
		}
		if in.Kind == KindScript {
			if loc := debuggerRe.FindStringIndex(line); loc != nil {
				warn(n, utf8.RuneCountInString(line[:loc[0]])+1, "debugger statement")
			}
		}
		if l.maxLineLength > 0 {
			if width := utf8.RuneCountInString(line); width > l.maxLineLength {
				warn(n, l.maxLineLength+1, "line is %d characters, limit is %d", width, l.maxLineLength)
			}
		}
	}

	if l.failOnWarning && len(diags) > 0 {
		first := diags[0]
		return nil, Errorf(first.Line, first.Column, "%s (%d lint warnings)", first.Message, len(diags))
	}
	return &Output{Content: in.Content, Diagnostics: diags}, nil
}
