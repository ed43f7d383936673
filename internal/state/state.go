// Package state persists hash verification results between runs so the
// expensive bulk check runs at most once per host.
package state

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/packages"
)

const markerPrefix = "# blueteam hash-verification cache:"

// Path returns the cache file for host.
func Path(dir, host string) string {
	return filepath.Join(dir, ".debsums."+sanitize(host))
}

// host labels may carry ports or IPv6 colons
func sanitize(host string) string {
	return strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(host)
}

// Load reads a cached result. ok is false when there is no usable cache: a
// missing file, or one without the provenance marker.
func Load(dir, host string) ([]packages.Mismatch, bool) {
	f, err := os.Open(Path(dir, host))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), markerPrefix) {
		return nil, false
	}

	out := []packages.Mismatch{}
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		path, pkg, _ := strings.Cut(line, "\t")
		out = append(out, packages.Mismatch{Path: path, Package: pkg})
	}
	if scanner.Err() != nil {
		return nil, false
	}
	return out, true
}

// Save writes the cache only if none exists yet. This guards against
// clobbering, not against concurrent writers.
func Save(dir, host string, mismatches []packages.Mismatch) error {
	path := Path(dir, host)
	if _, err := os.Stat(path); err == nil {
		return errors.Wrap(errors.ErrAlreadyExists, "%s", path)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", markerPrefix, host, time.Now().UTC().Format(time.RFC3339))
	for _, m := range mismatches {
		b.WriteString(m.Path)
		b.WriteByte('\t')
		b.WriteString(m.Package)
		b.WriteByte('\n')
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrap(errors.ErrAlreadyExists, "%s", path)
		}
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return f.Close()
}
