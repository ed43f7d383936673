// Package system provides local process execution and container-aware path helpers.
// When blueteam runs in a container with the host filesystem mounted at /host,
// paths are transparently prefixed so the local backend audits the host, not the container.
package system

import (
	"os"
	"strings"
)

// hostRoot is set to "/host" when running in container with host mounts
var hostRoot = ""

func init() {
	if _, err := os.Stat("/host/proc"); err == nil {
		hostRoot = "/host"
	}
}

// HostPath returns path with the host-root prefix if in container.
// Relative paths are returned unchanged.
func HostPath(path string) string {
	if hostRoot == "" || !strings.HasPrefix(path, "/") {
		return path
	}

	// Don't double-prefix
	if path == hostRoot || strings.HasPrefix(path, hostRoot+"/") {
		return path
	}

	return hostRoot + path
}

// GuestPath strips the host-root prefix so findings name the path as the host sees it.
func GuestPath(path string) string {
	if hostRoot == "" {
		return path
	}
	if path == hostRoot {
		return "/"
	}
	if strings.HasPrefix(path, hostRoot+"/") {
		return path[len(hostRoot):]
	}
	return path
}

// IsInContainer returns true if running in containerized environment
func IsInContainer() bool {
	return hostRoot != ""
}
