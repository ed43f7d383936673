// Package packages maps host files to the packages that own them and parses
// package hash verification output.
package packages

import (
	"context"
	"strings"

	"github.com/girste/blueteam/internal/backend"
)

// Attribution is a read-only path to package map built from one bulk query.
// Lookups never go back to the host.
type Attribution struct {
	owners map[string]string
}

// NewAttribution copies owners into a new map.
func NewAttribution(owners map[string]string) *Attribution {
	a := &Attribution{owners: make(map[string]string, len(owners))}
	for k, v := range owners {
		a.owners[k] = v
	}
	return a
}

// Build runs the ownership command once and parses its output.
func Build(ctx context.Context, b backend.Backend, command string) (*Attribution, error) {
	lines, err := b.RunCommand(ctx, command)
	if err != nil {
		return nil, err
	}
	return ParseOwnership(lines), nil
}

// ParseOwnership parses "pkg[:arch][, pkg2...]: /path" lines. Lines that do
// not name an absolute path, like dpkg diversion notes, are skipped. When a
// path is listed twice the first owner wins.
func ParseOwnership(lines []string) *Attribution {
	a := &Attribution{owners: make(map[string]string, len(lines))}
	for _, line := range lines {
		idx := strings.Index(line, ": /")
		if idx <= 0 || strings.Contains(line[:idx], "diversion ") {
			continue
		}
		first, _, _ := strings.Cut(line[:idx], ",")
		name, _, _ := strings.Cut(strings.TrimSpace(first), ":")
		if name == "" {
			continue
		}
		path := strings.TrimSpace(line[idx+2:])
		if _, seen := a.owners[path]; !seen {
			a.owners[path] = name
		}
	}
	return a
}

// Lookup returns the owning package; ok is false for files no package tracks.
func (a *Attribution) Lookup(path string) (string, bool) {
	if a == nil || path == "" {
		return "", false
	}
	pkg, ok := a.owners[path]
	return pkg, ok
}

func (a *Attribution) Len() int {
	if a == nil {
		return 0
	}
	return len(a.owners)
}
