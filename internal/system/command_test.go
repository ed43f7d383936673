package system

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestTimeoutConstants(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		min     time.Duration
	}{
		{"TimeoutShort", TimeoutShort, 1 * time.Second},
		{"TimeoutMedium", TimeoutMedium, 5 * time.Second},
		{"TimeoutLong", TimeoutLong, 10 * time.Second},
		{"TimeoutVeryLong", TimeoutVeryLong, 60 * time.Second},
		{"TimeoutBulk", TimeoutBulk, 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.timeout < tt.min {
				t.Errorf("%s = %v, want >= %v", tt.name, tt.timeout, tt.min)
			}
		})
	}
}

func TestRunCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("successful command", func(t *testing.T) {
		result, err := RunCommand(ctx, TimeoutShort, "echo", "hello")
		if err != nil {
			t.Fatalf("RunCommand() error = %v", err)
		}
		if !result.Success {
			t.Error("Success = false, want true")
		}
		if result.Stdout != "hello\n" {
			t.Errorf("Stdout = %q, want %q", result.Stdout, "hello\n")
		}
	})

	t.Run("empty command", func(t *testing.T) {
		if _, err := RunCommand(ctx, TimeoutShort); err == nil {
			t.Error("RunCommand() with no parts should fail")
		}
	})
}

func TestRunShell_NonZeroExitIsNotAnError(t *testing.T) {
	result, err := RunShell(context.Background(), TimeoutShort, "echo out; echo err >&2; exit 3")
	if err != nil {
		t.Fatalf("RunShell() error = %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if result.Stdout != "out\n" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if result.Stderr != "err\n" {
		t.Errorf("Stderr = %q", result.Stderr)
	}
}

func TestLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"\n", []string{}},
		{"a\nb\n", []string{"a", "b"}},
		{"a\r\n\nb", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		if got := Lines(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Lines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
