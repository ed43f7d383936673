// Package output renders host results as coloured text, JSON lines, a flat
// findings list, or SARIF.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/girste/blueteam/internal/ptree"
	"github.com/girste/blueteam/internal/scan"
)

// Severities, highest first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Code identifies the kind of a finding.
type Code string

const (
	CodeHostFailed        Code = "HOST_FAILED"
	CodeTaskFailed        Code = "TASK_FAILED"
	CodeSudoGrant         Code = "SUDO_GRANT"
	CodeCronModified      Code = "CRON_MODIFIED"
	CodeCronNew           Code = "CRON_NEW"
	CodePackageModified   Code = "PACKAGE_FILE_MODIFIED"
	CodeAccountUID0       Code = "ACCOUNT_UID0"
	CodeAccountPassword   Code = "ACCOUNT_PASSWORD"
	CodeProcessModified   Code = "PROCESS_EXE_MODIFIED"
	CodeProcessMissing    Code = "PROCESS_EXE_MISSING"
	CodeProcessUnpackaged Code = "PROCESS_UNPACKAGED"
	CodeFileUntracked     Code = "FILE_UNTRACKED"
)

var severities = map[Code]string{
	CodeHostFailed:        SeverityHigh,
	CodeTaskFailed:        SeverityInfo,
	CodeSudoGrant:         SeverityMedium,
	CodeCronModified:      SeverityHigh,
	CodeCronNew:           SeverityMedium,
	CodePackageModified:   SeverityHigh,
	CodeAccountUID0:       SeverityCritical,
	CodeAccountPassword:   SeverityLow,
	CodeProcessModified:   SeverityHigh,
	CodeProcessMissing:    SeverityHigh,
	CodeProcessUnpackaged: SeverityMedium,
	CodeFileUntracked:     SeverityLow,
}

var descriptions = map[Code]string{
	CodeHostFailed:        "Host could not be scanned",
	CodeTaskFailed:        "Scan task degraded",
	CodeSudoGrant:         "sudoers grants privileges",
	CodeCronModified:      "Packaged cron table was modified",
	CodeCronNew:           "Cron table not installed by any package",
	CodePackageModified:   "Packaged file fails hash verification",
	CodeAccountUID0:       "Account other than root has uid or gid 0",
	CodeAccountPassword:   "Account has a usable password",
	CodeProcessModified:   "Process runs a modified packaged binary",
	CodeProcessMissing:    "Process binary was deleted or cannot be read",
	CodeProcessUnpackaged: "Process binary is not owned by any package",
	CodeFileUntracked:     "File not owned by any package",
}

// Severity returns the default severity of code.
func (c Code) Severity() string {
	if s, ok := severities[c]; ok {
		return s
	}
	return SeverityMedium
}

// Description is a one-line explanation of code.
func (c Code) Description() string {
	return descriptions[c]
}

// Finding is one suspicious item of a host result.
type Finding struct {
	Host     string `json:"host"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Code     Code   `json:"code"`
	Msg      string `json:"msg"`
	Path     string `json:"path,omitempty"`
}

func newFinding(host, category string, code Code, path, format string, args ...interface{}) Finding {
	return Finding{
		Host:     host,
		Severity: code.Severity(),
		Category: category,
		Code:     code,
		Msg:      fmt.Sprintf(format, args...),
		Path:     path,
	}
}

// Findings flattens a host result into findings, in section order.
func Findings(res *scan.HostResult) []Finding {
	host := res.Host
	var out []Finding

	if res.Failed() {
		out = append(out, newFinding(host, "host", CodeHostFailed, "", "%s", res.Error))
	}
	for _, task := range res.TaskNames() {
		out = append(out, newFinding(host, task, CodeTaskFailed, "", "%s: %s", task, res.TaskErrors[task]))
	}

	for _, s := range res.Sudo {
		if s.Flagged {
			out = append(out, newFinding(host, "sudo", CodeSudoGrant, s.File, "%s", s.Text))
		}
	}

	for _, c := range res.Cron {
		code := CodeCronNew
		if c.Status == scan.CronModified {
			code = CodeCronModified
		}
		out = append(out, newFinding(host, "cron", code, c.Path, "%s (%s)", c.Path, c.Status))
	}

	for _, m := range res.Mismatches {
		out = append(out, newFinding(host, "packages", CodePackageModified, m.Path, "%s (%s)", m.Path, orUnknown(m.Package)))
	}

	for _, u := range res.LoginUsers {
		code := CodeAccountPassword
		if u.Reason == scan.ReasonUID0 {
			code = CodeAccountUID0
		}
		out = append(out, newFinding(host, "users", code, "/etc/passwd", "%s uid=%d gid=%d", u.Name, u.UID, u.GID))
	}

	out = append(out, processFindings(res)...)

	for _, f := range res.UntrackedFiles {
		out = append(out, newFinding(host, "files", CodeFileUntracked, f, "%s", f))
	}
	return out
}

func processFindings(res *scan.HostResult) []Finding {
	pids := make([]int, 0, len(res.Processes))
	for pid := range res.Processes {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	attributed := res.Packages.Len() > 0
	var out []Finding
	for _, pid := range pids {
		p := res.Processes[pid]
		if ptree.IsKernelThread(p) || res.IsScanner(pid) {
			continue
		}
		switch {
		case p.Exe == "" || strings.HasSuffix(p.Exe, " (deleted)"):
			out = append(out, newFinding(res.Host, "processes", CodeProcessMissing, p.Exe, "pid %d %s exe %s", pid, p.Name, orMissing(p.Exe)))
		case !p.Verified:
			out = append(out, newFinding(res.Host, "processes", CodeProcessModified, p.Exe, "pid %d %s runs %s (%s)", pid, p.Name, p.Exe, orUnknown(p.Package)))
		case attributed && p.Package == "":
			out = append(out, newFinding(res.Host, "processes", CodeProcessUnpackaged, p.Exe, "pid %d %s runs %s", pid, p.Name, p.Exe))
		}
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func orMissing(s string) string {
	if s == "" {
		return "missing"
	}
	return s
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []Finding) map[string]int {
	counts := map[string]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
