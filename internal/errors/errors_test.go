package errors

import (
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrAuthFailed", ErrAuthFailed, "authentication failed"},
		{"ErrConnectionFailed", ErrConnectionFailed, "connection failed"},
		{"ErrElevationFailed", ErrElevationFailed, "privilege escalation failed"},
		{"ErrPassphraseRequired", ErrPassphraseRequired, "private key passphrase required"},
		{"ErrInvalidConfig", ErrInvalidConfig, "invalid configuration"},
		{"ErrTimeoutExceeded", ErrTimeoutExceeded, "timeout exceeded"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error message = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	t.Run("wrap nil error", func(t *testing.T) {
		got := Wrap(nil, "context")
		if got != nil {
			t.Errorf("Wrap(nil) = %v, want nil", got)
		}
	})

	t.Run("wrap simple error", func(t *testing.T) {
		got := Wrap(ErrAuthFailed, "ssh to web1")
		if got == nil {
			t.Fatal("Wrap() = nil, want error")
		}
		want := "ssh to web1: authentication failed"
		if got.Error() != want {
			t.Errorf("Wrap() = %v, want %v", got.Error(), want)
		}
		if !Is(got, ErrAuthFailed) {
			t.Error("Wrap() broke error chain")
		}
	})

	t.Run("wrap with args", func(t *testing.T) {
		got := Wrap(ErrTimeoutExceeded, "command %s timed out after %d seconds", "debsums", 30)
		want := "command debsums timed out after 30 seconds: timeout exceeded"
		if got.Error() != want {
			t.Errorf("Wrap() = %v, want %v", got.Error(), want)
		}
	})
}

func TestNew(t *testing.T) {
	got := New("failed to process %s with code %d", "request", 500)
	want := "failed to process request with code 500"
	if got.Error() != want {
		t.Errorf("New() = %v, want %v", got.Error(), want)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"auth", Wrap(ErrAuthFailed, "db1"), true},
		{"connection", ErrConnectionFailed, true},
		{"passphrase", Wrap(ErrPassphraseRequired, "key"), true},
		{"elevation", Wrap(ErrElevationFailed, "sudo"), true},
		{"session lost", ErrSessionLost, true},
		{"process gone", ErrProcessGone, false},
		{"parse", Wrap(ErrParseFailure, "stat"), false},
		{"plain", New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
