package scan

import (
	"context"
	"strings"
	"time"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/system"
)

const sudoersPattern = "/etc/sudoers{,.d/*}"

// SudoTask collects the active lines of every sudoers file. Anything that
// is not a Defaults line grants privileges and is flagged.
type SudoTask struct{}

func (t *SudoTask) Name() string           { return config.TaskSudo }
func (t *SudoTask) Timeout() time.Duration { return system.TimeoutLong }

func (t *SudoTask) Run(ctx context.Context, env *Env) error {
	for _, file := range env.Backend.Glob(ctx, sudoersPattern) {
		env.Result.Sudo = append(env.Result.Sudo, SudoLines(file, env.Backend.ReadFile(ctx, file))...)
	}
	return nil
}

// SudoLines filters comments and blank lines out of one sudoers file.
func SudoLines(file string, lines []string) []SudoLine {
	var out []SudoLine
	for _, line := range activeLines(lines) {
		out = append(out, SudoLine{
			File:    file,
			Text:    line,
			Flagged: !strings.HasPrefix(line, "Defaults"),
		})
	}
	return out
}

// activeLines drops blank lines and # comments, trimming the rest.
func activeLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// UsersTask flags accounts with root ids or a usable password.
type UsersTask struct{}

func (t *UsersTask) Name() string           { return config.TaskUsers }
func (t *UsersTask) Timeout() time.Duration { return system.TimeoutLong }

func (t *UsersTask) Run(ctx context.Context, env *Env) error {
	passwd := env.Backend.ReadFile(ctx, "/etc/passwd")
	if len(passwd) == 0 {
		return errors.Wrap(errors.ErrNotFound, "/etc/passwd is empty or unreadable")
	}
	env.Result.LoginUsers = LoginUsers(passwd, env.Backend.ReadFile(ctx, "/etc/shadow"))
	return nil
}

// LoginUsers joins passwd and shadow by user name. Accounts other than root
// with uid or gid 0 are flagged uid0; accounts whose hash is not locked are
// flagged password. Without a shadow entry, a hash stored in passwd itself is
// used; a bare "x" means the hash could not be read and the account is skipped.
func LoginUsers(passwd, shadow []string) []LoginUser {
	hashes := make(map[string]string, len(shadow))
	for _, line := range shadow {
		fields := strings.SplitN(line, ":", 3)
		if len(fields) < 2 {
			continue
		}
		if _, seen := hashes[fields[0]]; !seen {
			hashes[fields[0]] = fields[1]
		}
	}

	var out []LoginUser
	for _, line := range passwd {
		e, ok := backend.ParsePasswdLine(line)
		if !ok {
			continue
		}
		u := LoginUser{Name: e.Name, UID: e.UID, GID: e.GID, Rest: e.Rest}

		if e.Name != "root" && (e.UID == 0 || e.GID == 0) {
			u.Reason = ReasonUID0
			u.Hash = hashes[e.Name]
			out = append(out, u)
			continue
		}

		hash, ok := hashes[e.Name]
		if !ok {
			if e.Password == "x" {
				continue
			}
			hash = e.Password
		}
		if locked(hash) {
			continue
		}
		u.Reason = ReasonPassword
		u.Hash = hash
		out = append(out, u)
	}
	return out
}

// locked reports whether a password hash field disables password logins.
func locked(hash string) bool {
	return strings.HasPrefix(hash, "*") || strings.HasPrefix(hash, "!")
}
