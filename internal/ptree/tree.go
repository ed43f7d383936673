// Package ptree builds the parent/child process tree of one host snapshot and
// lays it out the way `ps f` does.
package ptree

import (
	"encoding/json"
	"sort"

	"github.com/girste/blueteam/internal/backend"
)

// KernelThreadPID is kthreadd. Its subtree is never expanded.
const KernelThreadPID = 2

const (
	branch     = "\\_ "
	continued  = "| "
	lastIndent = "  "
)

// Tree is a ppid to children adjacency over one process table.
type Tree struct {
	procs    map[int]*backend.Process
	children map[int][]int
}

// Line is one rendered row: the process and the connector drawn before it.
type Line struct {
	PID    int
	Prefix string
}

// Options controls rendering.
type Options struct {
	HideKernelThreads bool
}

// Build indexes procs by parent. Children are sorted by pid and self-loops
// (pid 0 reports itself as its parent) are dropped, so the same input always
// yields the same tree.
func Build(procs map[int]*backend.Process) *Tree {
	t := &Tree{procs: procs, children: make(map[int][]int)}
	for pid, p := range procs {
		if pid == p.PPID {
			continue
		}
		t.children[p.PPID] = append(t.children[p.PPID], pid)
	}
	for _, kids := range t.children {
		sort.Ints(kids)
	}
	return t
}

// Root is the smallest parent pid, conventionally 0 or 1.
func (t *Tree) Root() int {
	root, first := 0, true
	for ppid := range t.children {
		if first || ppid < root {
			root, first = ppid, false
		}
	}
	return root
}

// Children returns pid's children in pid order.
func (t *Tree) Children(pid int) []int {
	return append([]int(nil), t.children[pid]...)
}

// Adjacency returns a copy of the ppid to children map.
func (t *Tree) Adjacency() map[int][]int {
	out := make(map[int][]int, len(t.children))
	for k, v := range t.children {
		out[k] = append([]int(nil), v...)
	}
	return out
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Root     int           `json:"root"`
		Children map[int][]int `json:"children"`
	}{t.Root(), t.children})
}

// IsKernelThread reports whether p is kthreadd or one of its children.
func IsKernelThread(p *backend.Process) bool {
	return p != nil && (p.PID == KernelThreadPID || p.PPID == KernelThreadPID)
}

type frame struct {
	pid    int
	prefix string
	indent string
	emit   bool
}

// Lines lays the tree out depth first from Root. The root itself is only
// emitted when it is a known process. Subtrees whose parent is missing from
// the snapshot, and ppid cycles unreachable from the root, follow afterwards
// so every process is drawn once.
func (t *Tree) Lines(opts Options) []Line {
	var lines []Line
	visited := make(map[int]bool, len(t.procs))

	root := t.Root()
	_, known := t.procs[root]
	lines = t.walk(frame{pid: root, emit: known}, opts, visited, lines)

	keys := make([]int, 0, len(t.children))
	for k := range t.children {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if _, known := t.procs[k]; visited[k] || known || k == KernelThreadPID {
			continue
		}
		lines = t.walk(frame{pid: k}, opts, visited, lines)
	}

	pids := make([]int, 0, len(t.procs))
	for pid := range t.procs {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	for _, pid := range pids {
		if visited[pid] || IsKernelThread(t.procs[pid]) || (pid == 0 && t.procs[pid].PPID == 0) {
			continue
		}
		lines = t.walk(frame{pid: pid, emit: true}, opts, visited, lines)
	}
	return lines
}

func (t *Tree) walk(start frame, opts Options, visited map[int]bool, lines []Line) []Line {
	stack := []frame{start}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.pid] {
			continue
		}
		visited[f.pid] = true
		if f.emit {
			lines = append(lines, Line{PID: f.pid, Prefix: f.prefix})
		}
		if f.pid == KernelThreadPID {
			continue
		}

		kids := t.visibleChildren(f.pid, opts)
		// push in reverse so the smallest pid pops first
		for i := len(kids) - 1; i >= 0; i-- {
			indent := f.indent + continued
			if i == len(kids)-1 {
				indent = f.indent + lastIndent
			}
			stack = append(stack, frame{
				pid:    kids[i],
				prefix: f.indent + branch,
				indent: indent,
				emit:   true,
			})
		}
	}
	return lines
}

func (t *Tree) visibleChildren(pid int, opts Options) []int {
	kids := t.children[pid]
	if !opts.HideKernelThreads {
		return kids
	}
	out := make([]int, 0, len(kids))
	for _, c := range kids {
		if c == KernelThreadPID || IsKernelThread(t.procs[c]) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// IsDescendant walks ppid links up from pid. It is true once the walk reaches
// scannerPID, false at pid 0, at a pid missing from the snapshot, or when a
// pid repeats.
func (t *Tree) IsDescendant(pid, scannerPID int) bool {
	seen := make(map[int]bool)
	for {
		if pid == 0 {
			return false
		}
		if pid == scannerPID {
			return true
		}
		if seen[pid] {
			return false
		}
		seen[pid] = true
		p, ok := t.procs[pid]
		if !ok {
			return false
		}
		pid = p.PPID
	}
}

// Process returns the record for pid.
func (t *Tree) Process(pid int) (*backend.Process, bool) {
	p, ok := t.procs[pid]
	return p, ok
}
