// Package resolve turns module references into canonical module identifiers and
// loads their content.
//
// Identifiers are slash-separated paths relative to the source root. A
// reference is resolved against the identifier of the module that contains it:
// "./x" and "../x" are relative to the referencing module's directory, "/x" is
// relative to the source root, and bare names ("lib/x") are looked up in the
// source root (entries only) and then in each configured module directory.
// Each candidate is tried as written, then with each extension, then as a
// directory containing an index file.
package resolve

import (
	"context"
	"errors"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned when no candidate for a reference exists.
var ErrNotFound = errors.New("module not found")

// Resolver locates and loads module content.
type Resolver interface {
	// Resolve returns the identifier ref points at when written in module from.
	// from is empty for entry modules.
	Resolve(ctx context.Context, ref, from string) (string, error)
	// Read returns the content of a resolved identifier.
	Read(ctx context.Context, id string) ([]byte, error)
}

// Options tune candidate generation.
type Options struct {
	Extensions []string
	Modules    []string
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Extensions: []string{".ts", ".tsx", ".js", ".jsx"},
		Modules:    []string{"node_modules"},
	}
}

// exists reports whether id names a regular file.
type exists func(ctx context.Context, id string) (bool, error)

// resolveWith implements the shared candidate search on top of an existence check.
func resolveWith(ctx context.Context, opts Options, ref, from string, isFile exists) (string, error) {
	for _, base := range bases(opts, norm.NFC.String(ref), from) {
		for _, candidate := range expand(opts, base) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			ok, err := isFile(ctx, candidate)
			if err != nil {
				return "", err
			}
			if ok {
				return candidate, nil
			}
		}
	}
	return "", ErrNotFound
}

// bases lists the cleaned identifiers ref may denote, most specific first.
func bases(opts Options, ref, from string) []string {
	ref = strings.ReplaceAll(ref, "\\", "/")
	var out []string
	add := func(p string) {
		p = path.Clean(p)
		if p == "." || p == ".." || strings.HasPrefix(p, "../") {
			return
		}
		out = append(out, p)
	}

	switch {
	case strings.HasPrefix(ref, "./"), strings.HasPrefix(ref, "../"), ref == ".", ref == "..":
		add(path.Join(path.Dir(from), ref))
	case strings.HasPrefix(ref, "/"):
		add(strings.TrimLeft(ref, "/"))
	default:
		if from == "" {
			add(ref)
		}
		for _, dir := range opts.Modules {
			add(path.Join(dir, ref))
		}
	}
	return out
}

// expand lists the file candidates for a base identifier.
func expand(opts Options, base string) []string {
	out := make([]string, 0, 2+2*len(opts.Extensions))
	out = append(out, base)
	for _, ext := range opts.Extensions {
		out = append(out, base+ext)
	}
	for _, ext := range opts.Extensions {
		out = append(out, path.Join(base, "index"+ext))
	}
	return out
}
