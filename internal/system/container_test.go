package system

import (
	"testing"
)

func TestHostPath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		inContainer bool
		want        string
	}{
		{"native execution - absolute path", "/etc/sudoers", false, "/etc/sudoers"},
		{"container execution - absolute path", "/etc/sudoers", true, "/host/etc/sudoers"},
		{"container execution - already prefixed", "/host/etc/sudoers", true, "/host/etc/sudoers"},
		{"container execution - relative path", "etc/sudoers", true, "etc/sudoers"},
		{"container execution - root", "/", true, "/host/"},
		{"container execution - lookalike prefix", "/hostname", true, "/host/hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			originalHostRoot := hostRoot
			defer func() { hostRoot = originalHostRoot }()

			if tt.inContainer {
				hostRoot = "/host"
			} else {
				hostRoot = ""
			}

			if got := HostPath(tt.path); got != tt.want {
				t.Errorf("HostPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestGuestPath(t *testing.T) {
	originalHostRoot := hostRoot
	defer func() { hostRoot = originalHostRoot }()

	hostRoot = "/host"
	tests := map[string]string{
		"/host/etc/cron.d/x": "/etc/cron.d/x",
		"/host":              "/",
		"/etc/passwd":        "/etc/passwd",
		"/hostname":          "/hostname",
	}
	for in, want := range tests {
		if got := GuestPath(in); got != want {
			t.Errorf("GuestPath(%q) = %q, want %q", in, got, want)
		}
	}

	hostRoot = ""
	if got := GuestPath("/host/etc"); got != "/host/etc" {
		t.Errorf("GuestPath() outside container = %q, want passthrough", got)
	}
}

func TestIsInContainer(t *testing.T) {
	originalHostRoot := hostRoot
	defer func() { hostRoot = originalHostRoot }()

	hostRoot = ""
	if IsInContainer() {
		t.Error("IsInContainer() = true for native execution")
	}
	hostRoot = "/host"
	if !IsInContainer() {
		t.Error("IsInContainer() = false for container execution")
	}
}
