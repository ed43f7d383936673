package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandBraces(t *testing.T) {
	tests := []struct {
		pattern string
		want    []string
	}{
		{"/etc/passwd", []string{"/etc/passwd"}},
		{"/etc/sudoers{,.d/*}", []string{"/etc/sudoers", "/etc/sudoers.d/*"}},
		{"/etc/cron{tab,.*/*}", []string{"/etc/crontab", "/etc/cron.*/*"}},
		{"{a,b}*.conf", []string{"a*.conf", "b*.conf"}},
		{"/x/{a,a,b}", []string{"/x/a", "/x/b"}},
		{"/usr/{local/,}{s,}bin", []string{"/usr/local/sbin", "/usr/local/bin", "/usr/sbin", "/usr/bin"}},
		{"/no/{brace", []string{"/no/{brace"}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandBraces(tt.pattern))
		})
	}
}
