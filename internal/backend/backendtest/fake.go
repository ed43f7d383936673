// Package backendtest provides an in-memory Backend for tests.
package backendtest

import (
	"context"
	"path"
	"sort"
	"sync"

	"github.com/girste/blueteam/internal/backend"
)

// Fake serves a scripted host from memory. Zero values behave like an empty
// host; fill in only what a test needs.
type Fake struct {
	HostName string
	PID      int
	UID      int

	Files    map[string][]string            // path -> lines; also the Glob namespace
	Commands map[string][]string            // exact command -> stdout lines
	Errors   map[string]error               // exact command -> error
	Dirs     map[string][]backend.WalkEntry // Walk results by root
	Links    map[string]string              // RealPath overrides

	Procs        []backend.Process
	ProcsErr     error
	Conns        []string
	ConnsErr     error
	DroppedCount int

	mu     sync.Mutex
	calls  []string
	closed bool
}

var _ backend.Backend = (*Fake)(nil)

func (f *Fake) Host() string {
	if f.HostName == "" {
		return "fake"
	}
	return f.HostName
}

func (f *Fake) OwnPID() int { return f.PID }
func (f *Fake) OwnUID() int { return f.UID }

func (f *Fake) RunCommand(_ context.Context, command string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()

	if err, ok := f.Errors[command]; ok {
		return nil, err
	}
	return append([]string{}, f.Commands[command]...), nil
}

func (f *Fake) ReadFile(_ context.Context, p string) []string {
	return append([]string{}, f.Files[p]...)
}

// Glob matches brace alternatives against the Files and Dirs keys.
func (f *Fake) Glob(_ context.Context, pattern string) []string {
	keys := make([]string, 0, len(f.Files)+len(f.Dirs))
	for k := range f.Files {
		keys = append(keys, k)
	}
	for k := range f.Dirs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := map[string]bool{}
	var out []string
	for _, alt := range backend.ExpandBraces(pattern) {
		for _, k := range keys {
			if ok, _ := path.Match(alt, k); ok && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func (f *Fake) Processes(context.Context) ([]backend.Process, error) {
	if f.ProcsErr != nil {
		return nil, f.ProcsErr
	}
	return append([]backend.Process{}, f.Procs...), nil
}

func (f *Fake) Connections(context.Context) ([]string, error) {
	if f.ConnsErr != nil {
		return nil, f.ConnsErr
	}
	return append([]string{}, f.Conns...), nil
}

func (f *Fake) Walk(_ context.Context, dir string) []backend.WalkEntry {
	return f.Dirs[dir]
}

func (f *Fake) RealPath(_ context.Context, p string) string {
	if r, ok := f.Links[p]; ok {
		return r
	}
	return p
}

func (f *Fake) DroppedProcesses() int { return f.DroppedCount }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns every command run so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

// CallCount returns how many times command ran.
func (f *Fake) CallCount(command string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == command {
			n++
		}
	}
	return n
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
