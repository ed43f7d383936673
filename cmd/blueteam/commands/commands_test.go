package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/backend/backendtest"
	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/notify"
	"github.com/girste/blueteam/internal/output"
	"github.com/girste/blueteam/internal/scan"
	"github.com/girste/blueteam/internal/util"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	util.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

// isolate points config discovery at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BLUETEAM_CONFIG_DIR", dir)
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func parseScanFlags(t *testing.T, args ...string) (*scanFlags, *pflag.FlagSet) {
	t.Helper()
	f := &scanFlags{}
	fl := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	bindScanFlags(fl, f)
	require.NoError(t, fl.Parse(args))
	return f, fl
}

func TestApplyScanFlags(t *testing.T) {
	f, fl := parseScanFlags(t, "-d", "-n", "-c", "-k", "-f", "-w", "3", "-i", "/keys/id", "-P", "--json", "--metrics-file", "/tmp/m.prom")

	cfg := config.Default()
	applyScanFlags(cfg, f, fl)

	assert.False(t, cfg.IsTaskEnabled(config.TaskDebsums))
	assert.False(t, cfg.IsTaskEnabled(config.TaskCron))
	assert.False(t, cfg.IsTaskEnabled(config.TaskPackages))
	assert.True(t, cfg.IsTaskEnabled(config.TaskFiles))
	assert.True(t, cfg.IsTaskEnabled(config.TaskSudo))
	assert.False(t, cfg.KernelThreads)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "/keys/id", cfg.SSH.KeyFile)
	assert.True(t, cfg.SSH.Passphrase)
	assert.Equal(t, "/tmp/m.prom", cfg.Metrics.Textfile)
	assert.Equal(t, output.FormatJSON, f.format)
	assert.NoError(t, cfg.Validate())
}

func TestApplyScanFlags_WorkersUnchanged(t *testing.T) {
	f, fl := parseScanFlags(t)
	cfg := config.Default()
	cfg.Workers = 7
	applyScanFlags(cfg, f, fl)
	assert.Equal(t, 7, cfg.Workers, "config value kept when -w is not given")
}

func TestGatherCredentials(t *testing.T) {
	var prompts []string
	readSecret = func(prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "s3cret", nil
	}
	t.Cleanup(func() { readSecret = promptSecret })

	cfg := config.Default()
	creds, err := gatherCredentials(cfg, &scanFlags{})
	require.NoError(t, err)
	assert.Equal(t, scan.Credentials{}, creds)
	assert.Empty(t, prompts)

	cfg.SSH.KeyFile = "/keys/id"
	cfg.SSH.Passphrase = true
	creds, err = gatherCredentials(cfg, &scanFlags{sudo: true})
	require.NoError(t, err)
	assert.Equal(t, scan.Credentials{Password: "s3cret", Passphrase: "s3cret"}, creds)
	require.Len(t, prompts, 2)
	assert.Equal(t, "[sudo] password: ", prompts[0])
	assert.Contains(t, prompts[1], "/keys/id")
}

func TestScanTargets(t *testing.T) {
	dial := func(_ context.Context, target string) (backend.Backend, error) {
		if target == "db1" {
			return nil, errors.Wrap(errors.ErrAuthFailed, "root@db1:22")
		}
		return &backendtest.Fake{
			HostName: target,
			Procs:    []backend.Process{{PID: 1, Name: "init", Exe: "/sbin/init", Username: "root"}},
		}, nil
	}
	opts := scan.Options{Tasks: map[string]bool{config.TaskProcesses: true}}
	fleet := scan.NewFleet(2, dial, opts, nil)

	var buf bytes.Buffer
	printer, err := output.NewPrinter(&buf, output.Options{Format: output.FormatText, NoColor: true, Version: "test"})
	require.NoError(t, err)

	failed, err := scanTargets(context.Background(), fleet, printer, nil, []string{"web1", "db1"})
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "blueteam test\nSTARTING web1\nSTARTING db1\nRESULTS FOR web1\n"), out)
	assert.Contains(t, out, "web1 is done.")
	assert.Contains(t, out, "SCAN FAILED FOR db1: root@db1:22: authentication failed")
	assert.True(t, strings.HasSuffix(out, "Done.\n"))
}

func TestScanTargets_Notifies(t *testing.T) {
	var hosts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert notify.AlertPayload
		_ = json.NewDecoder(r.Body).Decode(&alert)
		hosts = append(hosts, alert.Hostname)
	}))
	defer server.Close()

	dial := func(_ context.Context, target string) (backend.Backend, error) {
		fake := &backendtest.Fake{HostName: target}
		if target == "web1" {
			fake.Files = map[string][]string{"/etc/sudoers": {"mallory ALL=(ALL) NOPASSWD: ALL"}}
		}
		return fake, nil
	}
	fleet := scan.NewFleet(1, dial, scan.Options{Tasks: map[string]bool{config.TaskSudo: true}}, nil)
	printer, err := output.NewPrinter(&bytes.Buffer{}, output.Options{Format: output.FormatJSON})
	require.NoError(t, err)
	notifier := notify.NewNotifier(&config.NotifyConfig{
		Enabled:        true,
		OnlyOnIssues:   true,
		MinSeverity:    "medium",
		GenericWebhook: config.WebhookConfig{Enabled: true, URL: server.URL},
	})

	failed, err := scanTargets(context.Background(), fleet, printer, notifier, []string{"web1", "web2"})
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, []string{"web1"}, hosts, "only the host with a finding is reported")
}

func TestRunScan_LocalRequiresRoot(t *testing.T) {
	isolate(t)
	geteuid = func() int { return 1000 }
	t.Cleanup(func() { geteuid = os.Geteuid })

	cmd := NewRootCommand("test")
	cmd.SetArgs([]string{"scan"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestRunScan_InvalidConfig(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".blueteam.yaml"), []byte("elevation: doas\n"), 0o600))

	cmd := NewRootCommand("test")
	cmd.SetArgs([]string{"scan", "web1"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestRunScan_BadFormat(t *testing.T) {
	isolate(t)
	cmd := NewRootCommand("test")
	cmd.SetArgs([]string{"scan", "--format", "xml", "web1"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "blueteam.yaml")

	var out bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init-config", "--path", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := config.Parse(data, path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	err = writeDefaultConfig(path, false)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
	assert.NoError(t, writeDefaultConfig(path, true))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand("9.9.9")
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "blueteam version 9.9.9\n", out.String())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.Wrap(ErrHostsFailed, "1 of 2 hosts"), ExitHostsFailed},
		{errors.Wrap(errors.ErrInvalidConfig, "bad"), ExitUsage},
		{errors.Wrap(errors.ErrInvalidInput, "bad"), ExitUsage},
		{errors.New("boom"), ExitHostsFailed},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
