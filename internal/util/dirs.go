package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetCacheDir returns the directory for hash-verification caches based on user privileges
func GetCacheDir() string {
	if os.Geteuid() == 0 {
		return "/var/cache/blueteam"
	}
	return fmt.Sprintf("/tmp/blueteam-%d", os.Getuid())
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
