package backend

import (
	"net"
	"strconv"
	"strings"

	"github.com/girste/blueteam/internal/errors"
)

// Target is one remote host as given on the command line.
type Target struct {
	User string
	Host string
	Port int
}

// ParseTarget parses "[user@]host[:port]". IPv6 literals take a port only in
// brackets ("[::1]:2222"); a bare IPv6 address is accepted as-is.
func ParseTarget(s, defaultUser string, defaultPort int) (Target, error) {
	t := Target{User: defaultUser, Port: defaultPort}
	s = strings.TrimSpace(s)
	if s == "" {
		return t, errors.Wrap(errors.ErrInvalidInput, "empty host")
	}

	if i := strings.LastIndex(s, "@"); i >= 0 {
		if i == 0 {
			return t, errors.Wrap(errors.ErrInvalidInput, "empty user in %q", s)
		}
		t.User = s[:i]
		s = s[i+1:]
	}

	host, port := s, ""
	switch {
	case strings.HasPrefix(s, "["):
		h, p, err := net.SplitHostPort(s)
		if err != nil {
			if !strings.HasSuffix(s, "]") {
				return t, errors.Wrap(errors.ErrInvalidInput, "bad host %q: %v", s, err)
			}
			h = strings.Trim(s, "[]")
		}
		host, port = h, p
	case strings.Count(s, ":") == 1:
		host, port, _ = strings.Cut(s, ":")
	}

	if host == "" {
		return t, errors.Wrap(errors.ErrInvalidInput, "empty host in %q", s)
	}
	t.Host = host

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return t, errors.Wrap(errors.ErrInvalidInput, "bad port %q", port)
		}
		t.Port = n
	}
	return t, nil
}

// Address is the dialable host:port.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return t.User + "@" + t.Address()
}
