package packages

import (
	"context"
	"strings"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/errors"
)

// Mismatch is a file whose content no longer matches its package's checksum.
type Mismatch struct {
	Path    string `json:"path"`
	Package string `json:"package,omitempty"`
}

// Verify runs the manager's hash verification and attributes each hit. A run
// that does not end with VerifyDone returns ErrCommandNotFound: an absent
// verifier must not read as a clean host.
func Verify(ctx context.Context, b backend.Backend, m Manager, attr *Attribution) ([]Mismatch, error) {
	lines, err := b.RunCommand(ctx, m.VerifyCommand)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 || lines[len(lines)-1] != VerifyDone {
		return nil, errors.Wrap(errors.ErrCommandNotFound, "%s hash verification did not complete", m.Name)
	}
	return ParseMismatches(m, lines[:len(lines)-1], attr), nil
}

// ParseMismatches extracts one path per line (first field for debsums, last
// for rpm -V). Lines without an absolute path are ignored.
func ParseMismatches(m Manager, lines []string, attr *Attribution) []Mismatch {
	seen := map[string]bool{}
	var out []Mismatch
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		path := fields[0]
		if m.PathField == FieldLast {
			path = fields[len(fields)-1]
		}
		if !strings.HasPrefix(path, "/") || seen[path] {
			continue
		}
		seen[path] = true
		pkg, _ := attr.Lookup(path)
		out = append(out, Mismatch{Path: path, Package: pkg})
	}
	return out
}

// MismatchSet indexes mismatches by path.
func MismatchSet(ms []Mismatch) map[string]bool {
	set := make(map[string]bool, len(ms))
	for _, m := range ms {
		set[m.Path] = true
	}
	return set
}
