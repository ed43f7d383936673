package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// Connection is one socket as reported by a backend.
type Connection struct {
	Proto  string // tcp, tcp6, udp, udp6
	Local  string
	Remote string
	Status string
	PID    int
}

// String renders the descriptor both backends report, e.g.
// "tcp 0.0.0.0:22 -> *:* LISTEN pid=812".
func (c Connection) String() string {
	remote := c.Remote
	if remote == "" {
		remote = "*:*"
	}
	s := fmt.Sprintf("%s %s -> %s", c.Proto, c.Local, remote)
	if c.Status != "" && c.Status != "NONE" {
		s += " " + c.Status
	}
	if c.PID > 0 {
		s += " pid=" + strconv.Itoa(c.PID)
	}
	return s
}

// ParseSSLine parses one line of `ss -Htunap`:
//
//	tcp LISTEN 0 128 0.0.0.0:22 0.0.0.0:* users:(("sshd",pid=812,fd=3))
func ParseSSLine(line string) (Connection, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Connection{}, false
	}
	proto := fields[0]
	if proto != "tcp" && proto != "udp" {
		return Connection{}, false
	}

	c := Connection{
		Proto:  proto,
		Status: ssState(fields[1]),
		Local:  fields[4],
		Remote: fields[5],
	}
	if strings.HasPrefix(c.Local, "[") {
		c.Proto += "6"
	}
	if c.Remote == "*:*" || c.Remote == "0.0.0.0:*" || c.Remote == "[::]:*" {
		c.Remote = ""
	}
	if len(fields) > 6 {
		c.PID = ssPID(strings.Join(fields[6:], " "))
	}
	return c, true
}

// ss spells some states differently from the kernel/gopsutil names.
func ssState(s string) string {
	switch s {
	case "ESTAB":
		return "ESTABLISHED"
	case "UNCONN":
		return ""
	default:
		return strings.ReplaceAll(s, "-", "_")
	}
}

func ssPID(users string) int {
	_, rest, ok := strings.Cut(users, "pid=")
	if !ok {
		return 0
	}
	end := strings.IndexAny(rest, ",)")
	if end < 0 {
		end = len(rest)
	}
	pid, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return pid
}

func netJoin(host, port string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}
