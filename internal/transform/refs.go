package transform

import (
	"regexp"
	"sort"
	"strings"
)

// isLocalReference reports whether ref points at a module the resolver should
// load, as opposed to a URL, data URI or fragment.
func isLocalReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	for _, prefix := range []string{"http:", "https:", "//", "data:", "#", "mailto:", "about:", "javascript:"} {
		if strings.HasPrefix(strings.ToLower(ref), prefix) {
			return false
		}
	}
	return true
}

// stripQuery drops ?query and #fragment suffixes from a reference.
func stripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

// relativeRef makes a document-relative URL ("img/a.png") explicit ("./img/a.png")
// so the resolver does not treat it as a package name.
func relativeRef(ref string) string {
	if ref == "" || strings.HasPrefix(ref, ".") || strings.HasPrefix(ref, "/") {
		return ref
	}
	return "./" + ref
}

type positioned struct {
	offset int
	ref    string
}

// scanReferences applies patterns to content and returns the first capture
// group of every match in source order, filtered to local references.
func scanReferences(content []byte, patterns ...*regexp.Regexp) []string {
	var found []positioned
	for _, re := range patterns {
		for _, m := range re.FindAllSubmatchIndex(content, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			ref := stripQuery(string(content[m[2]:m[3]]))
			if isLocalReference(ref) {
				found = append(found, positioned{offset: m[2], ref: ref})
			}
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].offset < found[j].offset })

	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, f := range found {
		if _, dup := seen[f.ref]; dup {
			continue
		}
		seen[f.ref] = struct{}{}
		out = append(out, f.ref)
	}
	return out
}

// lineColumn converts a byte offset into 1-based line and column numbers.
func lineColumn(content []byte, offset int) (int, int) {
	line, col := 1, 1
	for i := 0; i < offset && i < len(content); i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
