package util

import (
	"path/filepath"
	"testing"
)

func TestMaskHostname(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "srv-****"},
		{"a", "srv-a***"},
		{"db", "srv-db**"},
		{"web1.example.com", "srv-we**"},
	}
	for _, tt := range tests {
		if got := MaskHostname(tt.in); got != tt.want {
			t.Errorf("MaskHostname(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in, want string
	}{
		{"~/.ssh/id_ed25519", filepath.Join(home, ".ssh/id_ed25519")},
		{"/etc/ssh/key", "/etc/ssh/key"},
		{"~user/key", "~user/key"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
