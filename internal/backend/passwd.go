package backend

import (
	"strconv"
	"strings"
)

// PasswdEntry is one parsed /etc/passwd line.
type PasswdEntry struct {
	Name     string
	Password string
	UID      int
	GID      int
	Rest     string // gecos:home:shell
}

// ParsePasswdLine parses "name:x:uid:gid:gecos:home:shell".
func ParsePasswdLine(line string) (PasswdEntry, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return PasswdEntry{}, false
	}
	fields := strings.SplitN(line, ":", 5)
	if len(fields) < 4 {
		return PasswdEntry{}, false
	}
	uid, err := strconv.Atoi(fields[2])
	if err != nil {
		return PasswdEntry{}, false
	}
	gid, err := strconv.Atoi(fields[3])
	if err != nil {
		return PasswdEntry{}, false
	}
	e := PasswdEntry{Name: fields[0], Password: fields[1], UID: uid, GID: gid}
	if len(fields) == 5 {
		e.Rest = fields[4]
	}
	return e, true
}

// ParsePasswd builds a uid to username map. The first entry for a uid wins,
// matching getpwuid.
func ParsePasswd(lines []string) map[int]string {
	users := make(map[int]string)
	for _, line := range lines {
		e, ok := ParsePasswdLine(line)
		if !ok {
			continue
		}
		if _, dup := users[e.UID]; !dup {
			users[e.UID] = e.Name
		}
	}
	return users
}
