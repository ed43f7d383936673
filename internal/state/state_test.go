package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/packages"
)

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	in := []packages.Mismatch{
		{Path: "/etc/cron.daily/logrotate", Package: "logrotate"},
		{Path: "/usr/local/bin/x"},
	}

	if err := Save(dir, "web1", in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok := Load(dir, "web1")
	if !ok {
		t.Fatal("Load() found no cache after Save()")
	}
	if len(got) != 2 || got[0] != in[0] || got[1] != in[1] {
		t.Errorf("Load() = %+v, want %+v", got, in)
	}

	data, err := os.ReadFile(Path(dir, "web1"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), markerPrefix+" web1 ") {
		t.Errorf("cache lacks provenance marker: %q", strings.SplitN(string(data), "\n", 2)[0])
	}
}

func TestSaveEmptyResult(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, "clean", nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok := Load(dir, "clean")
	if !ok || len(got) != 0 {
		t.Errorf("Load() = %v, %v; want empty, true", got, ok)
	}
}

func TestSaveDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	first := []packages.Mismatch{{Path: "/a"}}
	if err := Save(dir, "h", first); err != nil {
		t.Fatal(err)
	}

	err := Save(dir, "h", []packages.Mismatch{{Path: "/b"}})
	if !errors.Is(err, errors.ErrAlreadyExists) {
		t.Fatalf("second Save() error = %v, want ErrAlreadyExists", err)
	}
	got, _ := Load(dir, "h")
	if len(got) != 1 || got[0].Path != "/a" {
		t.Errorf("cache was overwritten: %+v", got)
	}
}

func TestLoadMissingOrForeign(t *testing.T) {
	dir := t.TempDir()
	if _, ok := Load(dir, "nohost"); ok {
		t.Error("Load() reported a cache that does not exist")
	}

	if err := os.WriteFile(Path(dir, "legacy"), []byte("/usr/bin/ls\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, ok := Load(dir, "legacy"); ok {
		t.Error("Load() accepted a file without the provenance marker")
	}
}

func TestPathSanitizesHost(t *testing.T) {
	got := Path("/var/cache/blueteam", "fe80::1")
	if got != "/var/cache/blueteam/.debsums.fe80__1" {
		t.Errorf("Path() = %q", got)
	}
}
