package backend

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/log"
	"github.com/girste/blueteam/internal/system"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
)

const (
	defaultRemoteWorkers = 8
	realPathChunk        = 200

	// exit status of the per-pid detail script when /proc/<pid> is gone
	exitProcessGone = 3
)

// ExecResult is the raw outcome of one remote command.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor runs one command per session on an established connection.
// A non-zero exit status is reported in the result; errors mean the
// transport itself failed.
type Executor interface {
	Exec(ctx context.Context, command string, stdin []byte) (ExecResult, error)
	Close() error
}

// RemoteOptions configures authentication and behaviour of a Remote backend.
type RemoteOptions struct {
	KeyFile               string
	Passphrase            string
	Password              string // SSH password and sudo password
	UseAgent              bool
	StrictHostKeyChecking bool
	KnownHosts            string
	Timeout               time.Duration
	Elevation             ElevationMode
	Workers               int  // concurrent per-pid detail fetches
	Connections           bool // enumerate sockets with ss
}

// Remote drives a host over one SSH connection, one session per command.
type Remote struct {
	host        string
	exec        Executor
	elevation   ElevationMode
	password    string
	pid         int
	uid         int
	workers     int
	connections bool
	dropped     atomic.Int64
	log         zerolog.Logger

	usersOnce sync.Once
	users     map[int]string
	usersErr  error
}

// NewRemote wraps an established executor. It learns the session's identity,
// resolves the elevation mode, and verifies sudo works before returning.
func NewRemote(ctx context.Context, exec Executor, host string, opts RemoteOptions) (*Remote, error) {
	r := &Remote{
		host:        host,
		exec:        exec,
		elevation:   ElevationNone,
		password:    opts.Password,
		workers:     opts.Workers,
		connections: opts.Connections,
		log:         log.WithHost(host),
	}
	if r.workers <= 0 {
		r.workers = defaultRemoteWorkers
	}

	if err := r.identify(ctx); err != nil {
		return nil, err
	}

	mode := opts.Elevation
	if mode == "" {
		mode = ElevationAuto
	}
	r.elevation = resolveElevation(mode, opts.Password, r.uid)
	r.log.Debug().Str("elevation", string(r.elevation)).Int("uid", r.uid).Int("pid", r.pid).Msg("session ready")

	if r.elevation != ElevationNone {
		if err := r.verifyElevation(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// identify records the sshd session pid and the login uid. Every command of
// this backend runs as a child of that session process.
func (r *Remote) identify(ctx context.Context) error {
	res, err := r.exec.Exec(ctx, "echo $PPID; id -u", nil)
	if err != nil {
		return err
	}
	lines := system.Lines(string(res.Stdout))
	if len(lines) < 2 {
		return errors.Wrap(errors.ErrSessionLost, "identity probe on %s returned %d lines", r.host, len(lines))
	}
	if r.pid, err = strconv.Atoi(strings.TrimSpace(lines[0])); err != nil {
		return errors.Wrap(errors.ErrSessionLost, "identity probe pid %q", lines[0])
	}
	if r.uid, err = strconv.Atoi(strings.TrimSpace(lines[1])); err != nil {
		return errors.Wrap(errors.ErrSessionLost, "identity probe uid %q", lines[1])
	}
	return nil
}

func (r *Remote) verifyElevation(ctx context.Context) error {
	res, err := r.exec.Exec(ctx, wrapElevated(r.elevation, "true"), r.stdin())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 || sudoRefused(res.Stderr) {
		return errors.Wrap(errors.ErrElevationFailed, "%s: sudo (%s) exited %d: %s",
			r.host, r.elevation, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

func (r *Remote) stdin() []byte {
	if r.elevation != ElevationPassword {
		return nil
	}
	return []byte(r.password + "\n")
}

func (r *Remote) Host() string             { return r.host }
func (r *Remote) OwnPID() int              { return r.pid }
func (r *Remote) OwnUID() int              { return r.uid }
func (r *Remote) Elevation() ElevationMode { return r.elevation }
func (r *Remote) DroppedProcesses() int    { return int(r.dropped.Load()) }
func (r *Remote) Close() error             { return r.exec.Close() }

// run executes command with elevation applied and returns the raw result.
func (r *Remote) run(ctx context.Context, command string) (ExecResult, error) {
	r.log.Debug().Str("cmd", command).Msg("run")
	res, err := r.exec.Exec(ctx, wrapElevated(r.elevation, command), r.stdin())
	if err != nil {
		return res, err
	}
	if len(res.Stderr) > 0 {
		r.log.Debug().Str("cmd", command).Int("exit", res.ExitCode).Bytes("stderr", res.Stderr).Msg("stderr")
		if r.elevation != ElevationNone && sudoRefused(res.Stderr) {
			return res, errors.Wrap(errors.ErrElevationFailed, "%s: sudo refused %q", r.host, command)
		}
	}
	return res, nil
}

func (r *Remote) RunCommand(ctx context.Context, command string) ([]string, error) {
	res, err := r.run(ctx, command)
	if err != nil {
		return nil, err
	}
	return system.Lines(string(res.Stdout)), nil
}

func (r *Remote) ReadFile(ctx context.Context, p string) []string {
	lines, err := r.RunCommand(ctx, "cat -- "+shellquote.Join(p)+" 2>/dev/null")
	if err != nil {
		r.log.Debug().Err(err).Str("path", p).Msg("unreadable")
		return []string{}
	}
	return lines
}

// Glob expands braces locally and lets the remote shell expand wildcards for
// every alternative in one round trip. Unmatched patterns stay literal in sh,
// so each word is tested for existence.
func (r *Remote) Glob(ctx context.Context, pattern string) []string {
	alts := ExpandBraces(pattern)
	cmd := fmt.Sprintf(`for f in %s; do [ -e "$f" ] && printf '%%s\n' "$f"; done`, strings.Join(alts, " "))
	lines, err := r.RunCommand(ctx, cmd)
	if err != nil {
		r.log.Debug().Err(err).Str("pattern", pattern).Msg("glob failed")
		return []string{}
	}
	return dedupe(lines)
}

// Walk lists dir with one find call and groups the output per directory, in
// the pre-order find emits. -H follows dir itself when it is a symlink.
func (r *Remote) Walk(ctx context.Context, dir string) []WalkEntry {
	lines, err := r.RunCommand(ctx, "find -H "+shellquote.Join(dir)+` -printf '%y %p\n' 2>/dev/null`)
	if err != nil {
		r.log.Debug().Err(err).Str("dir", dir).Msg("walk failed")
		return nil
	}
	return groupWalk(dir, lines)
}

func groupWalk(root string, lines []string) []WalkEntry {
	var entries []WalkEntry
	index := map[string]int{}

	for _, line := range lines {
		kind, p, ok := strings.Cut(line, " ")
		if !ok || p == "" {
			continue
		}
		if p == root {
			if kind == "d" {
				index[p] = len(entries)
				entries = append(entries, WalkEntry{Dir: p})
			}
			continue
		}
		parent, ok := index[path.Dir(p)]
		if !ok {
			continue
		}
		name := path.Base(p)
		if kind == "d" {
			entries[parent].Subdirs = append(entries[parent].Subdirs, name)
			index[p] = len(entries)
			entries = append(entries, WalkEntry{Dir: p})
		} else {
			entries[parent].Files = append(entries[parent].Files, name)
		}
	}
	return entries
}

func (r *Remote) RealPath(ctx context.Context, p string) string {
	lines, err := r.RunCommand(ctx, "readlink -f -- "+shellquote.Join(p))
	if err != nil || len(lines) == 0 || lines[0] == "" {
		return p
	}
	return lines[0]
}

// RealPaths canonicalises paths in chunks. Each path prints exactly one line,
// falling back to itself, so output pairs with input by index.
func (r *Remote) RealPaths(ctx context.Context, paths []string) map[string]string {
	out := make(map[string]string, len(paths))
	for start := 0; start < len(paths); start += realPathChunk {
		end := min(start+realPathChunk, len(paths))
		chunk := paths[start:end]
		cmd := `for p in ` + shellquote.Join(chunk...) + `; do r=$(readlink -f -- "$p" 2>/dev/null); printf '%s\n' "${r:-$p}"; done`
		lines, err := r.RunCommand(ctx, cmd)
		if err != nil {
			lines = nil
		}
		for i, p := range chunk {
			if i < len(lines) && lines[i] != "" {
				out[p] = lines[i]
			} else {
				out[p] = p
			}
		}
	}
	return out
}

// Connections is opt-in on remote hosts; when off, the host reports none.
func (r *Remote) Connections(ctx context.Context) ([]string, error) {
	if !r.connections {
		return []string{}, nil
	}
	lines, err := r.RunCommand(ctx, "ss -Htunap 2>/dev/null")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if c, ok := ParseSSLine(line); ok {
			out = append(out, c.String())
		}
	}
	return out, nil
}

// Processes rebuilds the process table from /proc text. Status lines, uids and
// the account database come in bulk; exe and argv need one round trip per pid,
// spread over a bounded pool. A pid that disappears midway is dropped.
func (r *Remote) Processes(ctx context.Context) ([]Process, error) {
	stat, err := r.RunCommand(ctx, "cat /proc/[0-9]*/stat 2>/dev/null")
	if err != nil {
		return nil, err
	}
	uids, err := r.processUIDs(ctx)
	if err != nil {
		return nil, err
	}
	users, err := r.accounts(ctx)
	if err != nil {
		return nil, err
	}

	var records []Process
	for _, line := range stat {
		pid, name, ppid, err := ParseStatLine(line)
		if err != nil {
			r.log.Debug().Err(err).Msg("skipping stat line")
			continue
		}
		user := "unknown"
		if uid, ok := uids[pid]; ok {
			if n, ok := users[uid]; ok {
				user = n
			}
		}
		records = append(records, Process{
			PID: pid, PPID: ppid, Name: name, Username: user,
			Cmdline: []string{}, Connections: []string{},
		})
	}

	kept := make([]bool, len(records))
	var (
		wg        sync.WaitGroup
		sem       = make(chan struct{}, r.workers)
		fatalOnce sync.Once
		fatal     error
	)
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ok, err := r.processDetail(ctx, &records[i])
			if err != nil && errors.IsFatal(err) {
				fatalOnce.Do(func() { fatal = err })
				return
			}
			kept[i] = ok
		}(i)
	}
	wg.Wait()
	if fatal != nil {
		return nil, fatal
	}

	out := make([]Process, 0, len(records))
	for i, p := range records {
		if !kept[i] {
			r.dropped.Add(1)
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// processDetail fills exe and argv. Line one of the output is the exe link
// (empty when unreadable), the rest is the raw NUL-separated cmdline.
func (r *Remote) processDetail(ctx context.Context, p *Process) (bool, error) {
	dir := "/proc/" + strconv.Itoa(p.PID)
	cmd := fmt.Sprintf(`[ -d %[1]s ] || exit %[2]d; printf '%%s\n' "$(readlink %[1]s/exe 2>/dev/null)"; cat %[1]s/cmdline 2>/dev/null`,
		dir, exitProcessGone)
	res, err := r.run(ctx, cmd)
	if err != nil {
		return false, err
	}
	if res.ExitCode == exitProcessGone {
		return false, nil
	}

	exe, cmdline, found := bytes.Cut(res.Stdout, []byte{'\n'})
	if !found {
		return false, nil
	}
	p.Exe = string(exe)
	p.Cmdline = SplitCmdline(cmdline)
	return true, nil
}

func (r *Remote) processUIDs(ctx context.Context) (map[int]int, error) {
	lines, err := r.RunCommand(ctx, "grep -H '^Uid:' /proc/[0-9]*/status 2>/dev/null")
	if err != nil {
		return nil, err
	}
	uids := make(map[int]int, len(lines))
	for _, line := range lines {
		pid, uid, err := ParseUidLine(line)
		if err != nil {
			continue
		}
		uids[pid] = uid
	}
	return uids, nil
}

// accounts fetches the account database once per backend.
func (r *Remote) accounts(ctx context.Context) (map[int]string, error) {
	r.usersOnce.Do(func() {
		lines, err := r.RunCommand(ctx, "getent passwd 2>/dev/null")
		if err == nil && len(lines) == 0 {
			lines, err = r.RunCommand(ctx, "cat /etc/passwd")
		}
		if err != nil {
			r.usersErr = err
			return
		}
		r.users = ParsePasswd(lines)
	})
	return r.users, r.usersErr
}
