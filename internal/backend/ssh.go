package backend

import (
	"bytes"
	"context"
	"net"
	"os"
	"strings"
	"time"

	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/util"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultDialTimeout = 10 * time.Second

// Dial connects and authenticates to target, then hands the connection to a
// Remote backend. Every error is scoped to this host.
func Dial(ctx context.Context, target Target, opts RemoteOptions) (*Remote, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	auth, cleanup, err := authMethods(opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	hostKeys, err := hostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            target.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	addr := target.Address()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConnectionFailed, "dial %s: %v", addr, err)
	}

	// the handshake has no context of its own
	_ = conn.SetDeadline(time.Now().Add(timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, errors.Wrap(errors.ErrAuthFailed, "%s", target)
		}
		return nil, errors.Wrap(errors.ErrConnectionFailed, "handshake with %s: %v", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(c, chans, reqs)
	r, err := NewRemote(ctx, &sshExecutor{client: client}, target.Host, opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return r, nil
}

// authMethods offers key file, agent, then password, in that order.
func authMethods(opts RemoteOptions) ([]ssh.AuthMethod, func(), error) {
	var (
		methods []ssh.AuthMethod
		closers []func() error
	)
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if opts.KeyFile != "" {
		signer, err := loadKey(util.ExpandHome(opts.KeyFile), opts.Passphrase)
		if err != nil {
			return nil, cleanup, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if opts.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				closers = append(closers, conn.Close)
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	if opts.Password != "" {
		pw := opts.Password
		methods = append(methods,
			ssh.Password(pw),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = pw
				}
				return answers, nil
			}),
		)
	}

	return methods, cleanup, nil
}

func loadKey(path, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrAuthFailed, "read key %s: %v", path, err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, errors.Wrap(errors.ErrPassphraseRequired, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrAuthFailed, "parse key %s: %v", path, err)
	}
	return signer, nil
}

func hostKeyCallback(opts RemoteOptions) (ssh.HostKeyCallback, error) {
	if !opts.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := opts.KnownHosts
	if file == "" {
		file = "~/.ssh/known_hosts"
	}
	cb, err := knownhosts.New(util.ExpandHome(file))
	if err != nil {
		return nil, errors.Wrap(errors.ErrConnectionFailed, "known hosts %s: %v", file, err)
	}
	return cb, nil
}

type sshExecutor struct {
	client *ssh.Client
}

func (e *sshExecutor) Exec(ctx context.Context, command string, stdin []byte) (ExecResult, error) {
	sess, err := e.client.NewSession()
	if err != nil {
		return ExecResult{}, errors.Wrap(errors.ErrSessionLost, "open session: %v", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if stdin != nil {
		sess.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		return ExecResult{}, errors.Wrap(errors.ErrTimeoutExceeded, "%v", ctx.Err())
	case err = <-done:
	}

	res := ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var (
		exitErr *ssh.ExitError
		missing *ssh.ExitMissingError
	)
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	case errors.As(err, &missing):
		res.ExitCode = -1
	default:
		return res, errors.Wrap(errors.ErrSessionLost, "run: %v", err)
	}
	return res, nil
}

func (e *sshExecutor) Close() error {
	return e.client.Close()
}
