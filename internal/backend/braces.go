package backend

import (
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// ExpandBraces performs shell brace expansion on a glob pattern, so
// "/etc/sudoers{,.d/*}" becomes ["/etc/sudoers", "/etc/sudoers.d/*"].
// Wildcards are left alone. Duplicate alternatives are dropped, first wins.
func ExpandBraces(pattern string) []string {
	word := &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: pattern}}}
	if !syntax.SplitBraces(word) {
		return []string{pattern}
	}

	seen := make(map[string]bool)
	var out []string
	for _, w := range expand.Braces(word) {
		lit := w.Lit()
		if seen[lit] {
			continue
		}
		seen[lit] = true
		out = append(out, lit)
	}
	return out
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
