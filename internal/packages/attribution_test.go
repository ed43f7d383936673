package packages

import (
	"context"
	"testing"

	"github.com/girste/blueteam/internal/backend/backendtest"
	"github.com/girste/blueteam/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOwnership(t *testing.T) {
	a := ParseOwnership([]string{
		"coreutils: /usr/bin/ls",
		"libc6:amd64: /lib/x86_64-linux-gnu/libc.so.6",
		"bash, dash: /usr/share/man/man1",
		"diversion by dash from: /bin/sh",
		"diversion by dash to: /bin/sh.distrib",
		"local diversion from: /etc/issue",
		"dpkg-query: no path found matching pattern *",
		"",
		"cron: /etc/crontab",
		"other: /etc/crontab",
		"weird: /srv/a: b",
	})

	tests := []struct {
		path    string
		wantPkg string
		wantOK  bool
	}{
		{"/usr/bin/ls", "coreutils", true},
		{"/lib/x86_64-linux-gnu/libc.so.6", "libc6", true},
		{"/usr/share/man/man1", "bash", true},
		{"/etc/crontab", "cron", true},
		{"/srv/a: b", "weird", true},
		{"/bin/sh", "", false},
		{"/etc/issue", "", false},
		{"/usr/local/bin/miner", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		pkg, ok := a.Lookup(tt.path)
		assert.Equal(t, tt.wantOK, ok, tt.path)
		assert.Equal(t, tt.wantPkg, pkg, tt.path)
	}
	assert.Equal(t, 5, a.Len())
}

func TestParseOwnership_RPM(t *testing.T) {
	a := ParseOwnership([]string{
		"bash: /usr/bin/bash",
		"openssh-server: /etc/ssh/sshd_config",
	})
	pkg, ok := a.Lookup("/etc/ssh/sshd_config")
	assert.True(t, ok)
	assert.Equal(t, "openssh-server", pkg)
}

func TestBuildQueriesOnce(t *testing.T) {
	fake := &backendtest.Fake{Commands: map[string][]string{
		Dpkg.OwnershipCommand: {"coreutils: /usr/bin/ls"},
	}}

	a, err := Build(context.Background(), fake, Dpkg.OwnershipCommand)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pkg, ok := a.Lookup("/usr/bin/ls")
		assert.True(t, ok)
		assert.Equal(t, "coreutils", pkg)
		_, ok = a.Lookup("/usr/bin/not-there")
		assert.False(t, ok)
	}
	assert.Len(t, fake.Calls(), 1)
}

func TestBuildTransportError(t *testing.T) {
	fake := &backendtest.Fake{Errors: map[string]error{
		Dpkg.OwnershipCommand: errors.ErrSessionLost,
	}}
	_, err := Build(context.Background(), fake, Dpkg.OwnershipCommand)
	assert.True(t, errors.Is(err, errors.ErrSessionLost))
}

func TestNilAttribution(t *testing.T) {
	var a *Attribution
	_, ok := a.Lookup("/usr/bin/ls")
	assert.False(t, ok)
	assert.Equal(t, 0, a.Len())
}

func TestNewAttributionCopies(t *testing.T) {
	src := map[string]string{"/usr/bin/ls": "coreutils"}
	a := NewAttribution(src)
	src["/usr/bin/ls"] = "evil"
	pkg, _ := a.Lookup("/usr/bin/ls")
	assert.Equal(t, "coreutils", pkg)
}
