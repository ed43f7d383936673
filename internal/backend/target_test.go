package backend

import (
	"testing"

	"github.com/girste/blueteam/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want Target
	}{
		{"web1", Target{User: "root", Host: "web1", Port: 22}},
		{"admin@web1", Target{User: "admin", Host: "web1", Port: 22}},
		{"admin@web1:2222", Target{User: "admin", Host: "web1", Port: 2222}},
		{"10.0.0.5:2200", Target{User: "root", Host: "10.0.0.5", Port: 2200}},
		{"[::1]:2222", Target{User: "root", Host: "::1", Port: 2222}},
		{"ops@[fe80::1]", Target{User: "ops", Host: "fe80::1", Port: 22}},
		{"fe80::1", Target{User: "root", Host: "fe80::1", Port: 22}},
		{"a@b@c", Target{User: "a@b", Host: "c", Port: 22}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in, "root", 22)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTarget_Invalid(t *testing.T) {
	for _, in := range []string{"", "@host", "host:0", "host:99999", "host:ssh", "user@", ":22"} {
		_, err := ParseTarget(in, "root", 22)
		assert.True(t, errors.Is(err, errors.ErrInvalidInput), "input %q: %v", in, err)
	}
}

func TestTargetAddress(t *testing.T) {
	assert.Equal(t, "web1:22", Target{Host: "web1", Port: 22}.Address())
	assert.Equal(t, "[::1]:2222", Target{Host: "::1", Port: 2222}.Address())
	assert.Equal(t, "root@web1:22", Target{User: "root", Host: "web1", Port: 22}.String())
}
