// Package backend abstracts how blueteam reaches a host. Local inspects the
// machine the scanner runs on through native OS calls; Remote drives a host over
// a single SSH connection and reconstructs the same facts from shell output.
// Scan tasks only ever see the Backend interface.
package backend

import (
	"context"
)

// Backend is the capability surface every scan task runs against.
type Backend interface {
	// Host is the label findings are reported under.
	Host() string

	// RunCommand executes a shell command line and returns its stdout lines.
	// A non-zero exit status is not an error; the error return is reserved for
	// transport failures and refused privilege escalation.
	RunCommand(ctx context.Context, command string) ([]string, error)

	// ReadFile returns the lines of a file, or an empty slice if it cannot be read.
	ReadFile(ctx context.Context, path string) []string

	// Glob expands braces, then filesystem wildcards, per alternative.
	Glob(ctx context.Context, pattern string) []string

	Processes(ctx context.Context) ([]Process, error)
	Connections(ctx context.Context) ([]string, error)

	// Walk returns one entry per directory under dir, top-down.
	Walk(ctx context.Context, dir string) []WalkEntry

	// RealPath resolves symlinks, falling back to path itself.
	RealPath(ctx context.Context, path string) string

	OwnPID() int
	OwnUID() int
	Close() error
}

// BulkRealPather resolves many paths in few round trips.
type BulkRealPather interface {
	RealPaths(ctx context.Context, paths []string) map[string]string
}

// DropCounter reports how many processes exited between listing and detail fetch.
type DropCounter interface {
	DroppedProcesses() int
}

// Process is one entry of a host's process table.
type Process struct {
	PID         int      `json:"pid"`
	PPID        int      `json:"ppid"`
	Name        string   `json:"name"`
	Exe         string   `json:"exe"`
	Cmdline     []string `json:"cmdline"`
	Username    string   `json:"username"`
	Connections []string `json:"connections"`
	CreateTime  int64    `json:"createTime,omitempty"` // unix millis, local backend only

	// Set by the scan once package attribution is known.
	Package  string `json:"package,omitempty"`
	Verified bool   `json:"verified"`
}

// WalkEntry mirrors one step of a top-down directory walk. Subdirs and Files
// hold base names.
type WalkEntry struct {
	Dir     string
	Subdirs []string
	Files   []string
}

// RealPaths resolves every path, in bulk when the backend supports it.
func RealPaths(ctx context.Context, b Backend, paths []string) map[string]string {
	if bulk, ok := b.(BulkRealPather); ok {
		return bulk.RealPaths(ctx, paths)
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		out[p] = b.RealPath(ctx, p)
	}
	return out
}

// Dropped returns the backend's dropped-process count, or 0 if it keeps none.
func Dropped(b Backend) int {
	if dc, ok := b.(DropCounter); ok {
		return dc.DroppedProcesses()
	}
	return 0
}
