package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/girste/blueteam/internal/errors"
	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	raw     string // as sent on the wire
	command string // with any sudo wrapper removed
	sudo    bool
	stdin   string
}

// scriptedExecutor answers remote commands from a handler and records them.
type scriptedExecutor struct {
	mu      sync.Mutex
	calls   []execCall
	handler func(command string, sudo bool) (ExecResult, error)
	closed  bool
}

func (s *scriptedExecutor) Exec(_ context.Context, raw string, stdin []byte) (ExecResult, error) {
	call := execCall{raw: raw, command: raw, stdin: string(stdin)}
	if strings.HasPrefix(raw, "sudo ") {
		args, err := shellquote.Split(raw)
		if err != nil {
			return ExecResult{}, err
		}
		call.sudo = true
		call.command = args[len(args)-1]
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	return s.handler(call.command, call.sudo)
}

func (s *scriptedExecutor) Close() error {
	s.closed = true
	return nil
}

func (s *scriptedExecutor) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c.command, prefix) {
			n++
		}
	}
	return n
}

func identity(pid, uid int) ExecResult {
	return ExecResult{Stdout: []byte(fmt.Sprintf("%d\n%d\n", pid, uid))}
}

func ok(out string) (ExecResult, error) {
	return ExecResult{Stdout: []byte(out)}, nil
}

func TestNewRemote_RootNeedsNoElevation(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(4100, 0), nil
		}
		assert.False(t, sudo, "root session must not use sudo")
		return ok("hello\n")
	}}

	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "web1", r.Host())
	assert.Equal(t, 4100, r.OwnPID())
	assert.Equal(t, 0, r.OwnUID())
	assert.Equal(t, ElevationNone, r.Elevation())

	lines, err := r.RunCommand(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, lines)

	require.NoError(t, r.Close())
	assert.True(t, exec.closed)
}

func TestNewRemote_AutoPasswordless(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(4100, 1000), nil
		}
		assert.True(t, sudo, "command %q ran unelevated", cmd)
		return ok("")
	}}

	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{Elevation: ElevationAuto})
	require.NoError(t, err)
	assert.Equal(t, ElevationPasswordless, r.Elevation())

	_, err = r.RunCommand(context.Background(), "cat /etc/shadow")
	require.NoError(t, err)

	last := exec.calls[len(exec.calls)-1]
	assert.Equal(t, "sudo -n sh -c 'cat /etc/shadow'", last.raw)
	assert.Empty(t, last.stdin)
}

func TestNewRemote_PasswordElevationWritesStdin(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(4100, 1000), nil
		}
		return ok("")
	}}

	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, ElevationPassword, r.Elevation())

	_, err = r.RunCommand(context.Background(), "id")
	require.NoError(t, err)
	last := exec.calls[len(exec.calls)-1]
	assert.True(t, strings.HasPrefix(last.raw, "sudo -S -p '' sh -c "), last.raw)
	assert.Equal(t, "s3cret\n", last.stdin)
}

func TestNewRemote_ExplicitModeIsKept(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(4100, 1000), nil
		}
		assert.False(t, sudo)
		return ok("")
	}}

	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{Elevation: ElevationNone, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, ElevationNone, r.Elevation())
}

func TestNewRemote_ElevationRefused(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(4100, 1000), nil
		}
		return ExecResult{Stderr: []byte("sudo: a password is required\n"), ExitCode: 1}, nil
	}}

	_, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrElevationFailed))
	assert.True(t, errors.IsFatal(err))
}

func TestNewRemote_IdentityGarbage(t *testing.T) {
	exec := &scriptedExecutor{handler: func(string, bool) (ExecResult, error) {
		return ok("not a pid\n")
	}}
	_, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	assert.True(t, errors.Is(err, errors.ErrSessionLost))
}

func TestRunCommand_NonZeroExitIsNotAnError(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(1, 0), nil
		}
		return ExecResult{Stdout: []byte("partial\n"), Stderr: []byte("grep: /x: No such file\n"), ExitCode: 2}, nil
	}}
	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	require.NoError(t, err)

	lines, err := r.RunCommand(context.Background(), "grep x /x")
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, lines)
}

func TestRunCommand_SudoRefusalMidScan(t *testing.T) {
	refuse := false
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(1, 1000), nil
		}
		if refuse {
			return ExecResult{Stderr: []byte("sudo: 1 incorrect password attempt\n"), ExitCode: 1}, nil
		}
		return ok("")
	}}
	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	require.NoError(t, err)

	refuse = true
	_, err = r.RunCommand(context.Background(), "debsums -ac")
	assert.True(t, errors.Is(err, errors.ErrElevationFailed))

	// unreadable files degrade silently
	assert.Empty(t, r.ReadFile(context.Background(), "/etc/shadow"))
}

func TestRemoteProcesses(t *testing.T) {
	stat := strings.Join([]string{
		"1 (systemd) S 0 1 1 0",
		"100 (sshd) S 1 100 100 0",
		"200 (my (odd) name) S 100 200 200 0",
		"2 (kthreadd) S 0 0 0 0",
		"300 (gone) S 1 300 300 0",
		"400 (nouser) S 1 400 400 0",
	}, "\n") + "\n"
	uids := "/proc/1/status:Uid:\t0\t0\t0\t0\n" +
		"/proc/100/status:Uid:\t0\t0\t0\t0\n" +
		"/proc/200/status:Uid:\t1000\t1000\t1000\t1000\n" +
		"/proc/400/status:Uid:\t4242\t4242\t4242\t4242\n"
	passwd := "root:x:0:0:root:/root:/bin/bash\nalice:x:1000:1000::/home/alice:/bin/bash\n"

	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		switch {
		case cmd == "echo $PPID; id -u":
			return identity(100, 0), nil
		case strings.HasPrefix(cmd, "cat /proc/[0-9]*/stat"):
			return ok(stat)
		case strings.HasPrefix(cmd, "grep -H '^Uid:'"):
			return ok(uids)
		case strings.HasPrefix(cmd, "getent passwd"):
			return ok(passwd)
		case strings.HasPrefix(cmd, "[ -d /proc/300 ]"):
			return ExecResult{ExitCode: exitProcessGone}, nil
		case strings.HasPrefix(cmd, "[ -d /proc/1 ]"):
			return ok("/usr/lib/systemd/systemd\n/sbin/init\x00splash\x00")
		case strings.HasPrefix(cmd, "[ -d /proc/100 ]"):
			return ok("/usr/sbin/sshd\nsshd: root@pts/0\x00")
		case strings.HasPrefix(cmd, "[ -d /proc/200 ]"):
			return ok("/tmp/.x (deleted)\n./x\x00-c\x00cfg\x00")
		case strings.HasPrefix(cmd, "[ -d /proc/2 ]"):
			return ok("\n")
		case strings.HasPrefix(cmd, "[ -d /proc/400 ]"):
			return ok("/usr/bin/sleep\nsleep\x00100\x00")
		}
		t.Errorf("unexpected command %q", cmd)
		return ok("")
	}}

	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{Workers: 3})
	require.NoError(t, err)

	procs, err := r.Processes(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 5)

	byPID := map[int]Process{}
	for _, p := range procs {
		byPID[p.PID] = p
	}
	assert.NotContains(t, byPID, 300)
	assert.Equal(t, 1, r.DroppedProcesses())

	assert.Equal(t, []int{1, 2, 100, 200, 400}, []int{procs[0].PID, procs[1].PID, procs[2].PID, procs[3].PID, procs[4].PID})

	odd := byPID[200]
	assert.Equal(t, "my (odd) name", odd.Name)
	assert.Equal(t, 100, odd.PPID)
	assert.Equal(t, "alice", odd.Username)
	assert.Equal(t, "/tmp/.x (deleted)", odd.Exe)
	assert.Equal(t, []string{"./x", "-c", "cfg"}, odd.Cmdline)
	assert.Empty(t, odd.Connections)

	assert.Equal(t, "", byPID[2].Exe)
	assert.Empty(t, byPID[2].Cmdline)
	assert.Equal(t, "unknown", byPID[400].Username)
	assert.Equal(t, "root", byPID[1].Username)
	assert.Equal(t, []string{"/sbin/init", "splash"}, byPID[1].Cmdline)

	// the account database is fetched once per host
	_, err = r.Processes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.count("getent passwd"))
}

func TestRemoteProcesses_PasswdFallback(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		switch {
		case cmd == "echo $PPID; id -u":
			return identity(1, 0), nil
		case strings.HasPrefix(cmd, "cat /proc/[0-9]*/stat"):
			return ok("7 (sh) S 1 7 7 0\n")
		case strings.HasPrefix(cmd, "grep -H"):
			return ok("/proc/7/status:Uid:\t33\t33\t33\t33\n")
		case strings.HasPrefix(cmd, "getent"):
			return ok("")
		case cmd == "cat /etc/passwd":
			return ok("www-data:x:33:33::/var/www:/bin/sh\n")
		}
		return ok("/bin/sh\nsh\x00")
	}}
	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	require.NoError(t, err)

	procs, err := r.Processes(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, "www-data", procs[0].Username)
}

func TestRemoteProcesses_SessionLost(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		switch {
		case cmd == "echo $PPID; id -u":
			return identity(1, 0), nil
		case strings.HasPrefix(cmd, "cat /proc/[0-9]*/stat"):
			return ok("7 (sh) S 1 7 7 0\n8 (sh) S 1 8 8 0\n")
		case strings.HasPrefix(cmd, "[ -d /proc/8 ]"):
			return ExecResult{}, errors.Wrap(errors.ErrSessionLost, "eof")
		}
		return ok("/bin/sh\nsh\x00")
	}}
	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	require.NoError(t, err)

	_, err = r.Processes(context.Background())
	assert.True(t, errors.Is(err, errors.ErrSessionLost))
}

func TestRemoteGlob(t *testing.T) {
	var sent string
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(1, 0), nil
		}
		sent = cmd
		return ok("/etc/sudoers\n/etc/sudoers.d/ops\n/etc/sudoers\n")
	}}
	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	require.NoError(t, err)

	got := r.Glob(context.Background(), "/etc/sudoers{,.d/*}")
	assert.Equal(t, []string{"/etc/sudoers", "/etc/sudoers.d/ops"}, got)
	assert.Contains(t, sent, "for f in /etc/sudoers /etc/sudoers.d/*;")
}

func TestGroupWalk(t *testing.T) {
	lines := []string{
		"d /etc",
		"f /etc/passwd",
		"d /etc/cron.d",
		"f /etc/cron.d/backup",
		"l /etc/localtime",
		"d /etc/ssh",
		"f /etc/ssh/sshd_config",
	}
	want := []WalkEntry{
		{Dir: "/etc", Subdirs: []string{"cron.d", "ssh"}, Files: []string{"passwd", "localtime"}},
		{Dir: "/etc/cron.d", Files: []string{"backup"}},
		{Dir: "/etc/ssh", Files: []string{"sshd_config"}},
	}
	assert.Equal(t, want, groupWalk("/etc", lines))
	assert.Empty(t, groupWalk("/missing", nil))
}

func TestRemoteRealPaths(t *testing.T) {
	exec := &scriptedExecutor{handler: func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(1, 0), nil
		}
		args, err := shellquote.Split(strings.SplitN(cmd, "; do", 2)[0])
		if err != nil {
			return ExecResult{}, err
		}
		// args: for p in <paths...>
		var out strings.Builder
		for _, p := range args[3:] {
			if p == "/bin/sh" {
				p = "/usr/bin/dash"
			}
			out.WriteString(p + "\n")
		}
		return ok(out.String())
	}}
	r, err := NewRemote(context.Background(), exec, "web1", RemoteOptions{})
	require.NoError(t, err)

	paths := make([]string, 0, realPathChunk+5)
	for i := 0; i < realPathChunk+4; i++ {
		paths = append(paths, fmt.Sprintf("/etc/f%d", i))
	}
	paths = append(paths, "/bin/sh")

	got := r.RealPaths(context.Background(), paths)
	assert.Len(t, got, len(paths))
	assert.Equal(t, "/usr/bin/dash", got["/bin/sh"])
	assert.Equal(t, "/etc/f7", got["/etc/f7"])
	assert.Equal(t, 2, exec.count("for p in"))
}

func TestRemoteConnections(t *testing.T) {
	ssOut := `tcp LISTEN 0 128 0.0.0.0:22 0.0.0.0:* users:(("sshd",pid=812,fd=3))` + "\n"
	handler := func(cmd string, sudo bool) (ExecResult, error) {
		if cmd == "echo $PPID; id -u" {
			return identity(1, 0), nil
		}
		return ok(ssOut)
	}

	off := &scriptedExecutor{handler: handler}
	r, err := NewRemote(context.Background(), off, "web1", RemoteOptions{})
	require.NoError(t, err)
	conns, err := r.Connections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.Equal(t, 0, off.count("ss "))

	on := &scriptedExecutor{handler: handler}
	r, err = NewRemote(context.Background(), on, "web1", RemoteOptions{Connections: true})
	require.NoError(t, err)
	conns, err = r.Connections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp 0.0.0.0:22 -> *:* LISTEN pid=812"}, conns)
}
