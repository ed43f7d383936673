package backend

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/girste/blueteam/internal/log"
	"github.com/girste/blueteam/internal/system"
	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Local inspects the machine blueteam runs on. When running in a container
// with the host filesystem mounted at /host, reads and commands target the host.
type Local struct {
	host    string
	pid     int
	uid     int
	dropped atomic.Int64
	log     zerolog.Logger
}

// NewLocal returns a backend for the local machine.
func NewLocal() *Local {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	if system.IsInContainer() && os.Getenv("HOST_PROC") == "" {
		// gopsutil reads the process table from HOST_PROC
		_ = os.Setenv("HOST_PROC", system.HostPath("/proc"))
	}
	return &Local{
		host: host,
		pid:  os.Getpid(),
		uid:  os.Getuid(),
		log:  log.WithHost(host),
	}
}

func (l *Local) Host() string { return l.host }
func (l *Local) OwnPID() int  { return l.pid }
func (l *Local) OwnUID() int  { return l.uid }
func (l *Local) Close() error { return nil }

func (l *Local) RunCommand(ctx context.Context, command string) ([]string, error) {
	l.log.Debug().Str("cmd", command).Msg("run")

	var (
		res *system.CommandResult
		err error
	)
	if system.IsInContainer() {
		res, err = system.RunCommand(ctx, system.TimeoutBulk, "chroot", system.HostPath("/"), "sh", "-c", command)
	} else {
		res, err = system.RunShell(ctx, system.TimeoutBulk, command)
	}
	if err != nil {
		// sh itself missing is not a host failure; the task sees no output
		l.log.Debug().Err(err).Str("cmd", command).Msg("command did not start")
		return []string{}, nil
	}
	if res.Stderr != "" {
		l.log.Debug().Str("cmd", command).Int("exit", res.ExitCode).Str("stderr", res.Stderr).Msg("stderr")
	}
	return system.Lines(res.Stdout), nil
}

func (l *Local) ReadFile(_ context.Context, path string) []string {
	data, err := os.ReadFile(system.HostPath(path))
	if err != nil {
		l.log.Debug().Err(err).Str("path", path).Msg("unreadable")
		return []string{}
	}
	return system.Lines(string(data))
}

func (l *Local) Glob(_ context.Context, pattern string) []string {
	var out []string
	for _, alt := range ExpandBraces(pattern) {
		matches, err := filepath.Glob(system.HostPath(alt))
		if err != nil {
			continue
		}
		for _, m := range matches {
			out = append(out, system.GuestPath(m))
		}
	}
	return dedupe(out)
}

// Walk follows dir itself when it is a symlink, as /bin is on merged-/usr
// hosts, and reports entries under dir rather than the link target.
func (l *Local) Walk(_ context.Context, dir string) []WalkEntry {
	var entries []WalkEntry
	index := map[string]int{}

	dir = filepath.Clean(dir)
	root, err := filepath.EvalSymlinks(system.HostPath(dir))
	if err != nil {
		l.log.Debug().Err(err).Str("dir", dir).Msg("walk failed")
		return entries
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable directory: skip it, keep walking siblings
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		name := filepath.Join(dir, rel)
		if d.IsDir() {
			index[name] = len(entries)
			entries = append(entries, WalkEntry{Dir: name})
			if path == root {
				return nil
			}
		}
		parent, ok := index[filepath.Dir(name)]
		if !ok {
			return nil
		}
		if d.IsDir() {
			entries[parent].Subdirs = append(entries[parent].Subdirs, d.Name())
		} else {
			entries[parent].Files = append(entries[parent].Files, d.Name())
		}
		return nil
	})
	return entries
}

func (l *Local) RealPath(_ context.Context, path string) string {
	resolved, err := filepath.EvalSymlinks(system.HostPath(path))
	if err != nil {
		return path
	}
	return system.GuestPath(resolved)
}

func (l *Local) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		rec, ok := l.describe(ctx, p)
		if !ok {
			l.dropped.Add(1)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// describe gathers one process's facts. ppid and name are required; anything
// else that fails degrades to an empty value.
func (l *Local) describe(ctx context.Context, p *process.Process) (Process, bool) {
	ppid, err := p.PpidWithContext(ctx)
	if err != nil {
		return Process{}, false
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Process{}, false
	}

	rec := Process{
		PID:         int(p.Pid),
		PPID:        int(ppid),
		Name:        name,
		Username:    "unknown",
		Cmdline:     []string{},
		Connections: []string{},
	}
	if exe, err := p.ExeWithContext(ctx); err == nil {
		rec.Exe = system.GuestPath(exe)
	}
	if argv, err := p.CmdlineSliceWithContext(ctx); err == nil && argv != nil {
		rec.Cmdline = argv
	}
	if user, err := p.UsernameWithContext(ctx); err == nil && user != "" {
		rec.Username = user
	}
	if conns, err := p.ConnectionsWithContext(ctx); err == nil {
		for _, c := range conns {
			rec.Connections = append(rec.Connections, connectionFromStat(c).String())
		}
	}
	if ct, err := p.CreateTimeWithContext(ctx); err == nil {
		rec.CreateTime = ct
	}
	return rec, true
}

func (l *Local) DroppedProcesses() int { return int(l.dropped.Load()) }

func (l *Local) Connections(ctx context.Context) ([]string, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, connectionFromStat(c).String())
	}
	return out, nil
}

func connectionFromStat(c psnet.ConnectionStat) Connection {
	proto := "tcp"
	if c.Type == syscall.SOCK_DGRAM {
		proto = "udp"
	}
	if c.Family == syscall.AF_INET6 {
		proto += "6"
	}
	conn := Connection{
		Proto:  proto,
		Local:  joinAddr(c.Laddr),
		Status: c.Status,
		PID:    int(c.Pid),
	}
	if c.Raddr.IP != "" {
		conn.Remote = joinAddr(c.Raddr)
	}
	return conn
}

func joinAddr(a psnet.Addr) string {
	ip := a.IP
	if ip == "" {
		ip = "*"
	}
	return netJoin(ip, strconv.FormatUint(uint64(a.Port), 10))
}
