package packages

import (
	"context"
	"fmt"
	"strings"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/system"
	"github.com/kballard/go-shellquote"
)

// Field positions of the path in verification output.
const (
	FieldFirst = iota
	FieldLast
)

// VerifyDone is the last line of a verification run that finished. Without
// it the verifier is missing or was cut short, and no output means nothing.
const VerifyDone = "blueteam: verification complete"

// Manager holds the commands that query one package manager.
type Manager struct {
	Name             string
	OwnershipCommand string
	VerifyCommand    string
	PathField        int
}

var (
	Dpkg = Manager{
		Name:             "dpkg",
		OwnershipCommand: `dpkg -S '*' 2>/dev/null`,
		VerifyCommand:    VerifyScript("debsums -ac"),
		PathField:        FieldFirst,
	}
	RPM = Manager{
		Name:             "rpm",
		OwnershipCommand: `rpm -qa --qf '[%{NAME}: %{FILENAMES}\n]' 2>/dev/null`,
		VerifyCommand:    VerifyScript("rpm -Va"),
		PathField:        FieldLast,
	}
)

// VerifyScript runs command only when its tool is installed and appends
// VerifyDone once it returns.
func VerifyScript(command string) string {
	tool := command
	if fields := strings.Fields(command); len(fields) > 0 {
		tool = fields[0]
	}
	return fmt.Sprintf("command -v %s >/dev/null 2>&1 && { %s 2>/dev/null; echo %s; }",
		shellquote.Join(tool), command, shellquote.Join(VerifyDone))
}

// Resolve picks the manager by name, detecting it from /etc/os-release on
// "auto" or "". Non-empty overrides replace the preset commands.
func Resolve(ctx context.Context, b backend.Backend, name, ownership, verify string) (Manager, error) {
	var m Manager
	switch name {
	case "dpkg":
		m = Dpkg
	case "rpm":
		m = RPM
	case "", "auto":
		m = Detect(ctx, b)
	default:
		return Manager{}, errors.Wrap(errors.ErrInvalidConfig, "unknown package manager %q", name)
	}
	if ownership != "" {
		m.OwnershipCommand = ownership
	}
	if verify != "" {
		m.VerifyCommand = VerifyScript(verify)
	}
	return m, nil
}

// Detect chooses rpm on Red Hat and SUSE family hosts and dpkg otherwise.
func Detect(ctx context.Context, b backend.Backend) Manager {
	distro := system.DistroFromOSRelease(b.ReadFile(ctx, "/etc/os-release"))
	if system.IsRHEL(distro) {
		return RPM
	}
	return Dpkg
}
