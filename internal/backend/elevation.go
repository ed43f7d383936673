package backend

import (
	"bytes"

	"github.com/girste/blueteam/internal/errors"
	"github.com/kballard/go-shellquote"
)

// ElevationMode says how remote commands gain root.
type ElevationMode string

const (
	// ElevationAuto is resolved once at dial time and never seen afterwards.
	ElevationAuto         ElevationMode = "auto"
	ElevationNone         ElevationMode = "none"
	ElevationPasswordless ElevationMode = "passwordless"
	ElevationPassword     ElevationMode = "password"
)

// ParseElevation validates a configured elevation mode.
func ParseElevation(s string) (ElevationMode, error) {
	switch m := ElevationMode(s); m {
	case ElevationAuto, ElevationNone, ElevationPasswordless, ElevationPassword:
		return m, nil
	case "":
		return ElevationAuto, nil
	default:
		return "", errors.Wrap(errors.ErrInvalidConfig, "unknown elevation mode %q", s)
	}
}

func resolveElevation(mode ElevationMode, password string, uid int) ElevationMode {
	if mode != ElevationAuto {
		return mode
	}
	switch {
	case password != "":
		return ElevationPassword
	case uid != 0:
		return ElevationPasswordless
	default:
		return ElevationNone
	}
}

// wrapElevated turns a command line into its sudo form for the given mode.
func wrapElevated(mode ElevationMode, command string) string {
	switch mode {
	case ElevationPasswordless:
		return shellquote.Join("sudo", "-n", "sh", "-c", command)
	case ElevationPassword:
		return shellquote.Join("sudo", "-S", "-p", "", "sh", "-c", command)
	default:
		return command
	}
}

var sudoFailureMarkers = [][]byte{
	[]byte("a password is required"),
	[]byte("incorrect password"),
	[]byte("Sorry, try again"),
	[]byte("is not in the sudoers file"),
	[]byte("is not allowed to run sudo"),
	[]byte("no tty present"),
	[]byte("a terminal is required"),
}

// sudoRefused reports whether stderr carries a sudo authentication failure.
func sudoRefused(stderr []byte) bool {
	for _, line := range bytes.Split(stderr, []byte{'\n'}) {
		if !bytes.HasPrefix(line, []byte("sudo:")) && !bytes.HasPrefix(line, []byte("Sorry")) {
			continue
		}
		for _, m := range sudoFailureMarkers {
			if bytes.Contains(line, m) {
				return true
			}
		}
	}
	return false
}
