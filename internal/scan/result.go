package scan

import (
	"sort"
	"time"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/packages"
	"github.com/girste/blueteam/internal/ptree"
)

// Cron file classifications.
const (
	CronModified = "modified"
	CronNew      = "new"
)

// Login account flags.
const (
	ReasonUID0     = "uid0"
	ReasonPassword = "password"
)

// SudoLine is one active line of a sudoers file.
type SudoLine struct {
	File    string `json:"file"`
	Text    string `json:"text"`
	Flagged bool   `json:"flagged"` // grants rather than Defaults
}

// CronFile is a cron table that changed or that no package installed.
type CronFile struct {
	Path   string   `json:"path"`
	Status string   `json:"status"`
	Lines  []string `json:"lines"`
}

// LoginUser is an account that can log in or carries root ids.
type LoginUser struct {
	Name   string `json:"name"`
	UID    int    `json:"uid"`
	GID    int    `json:"gid"`
	Hash   string `json:"hash,omitempty"`
	Rest   string `json:"rest,omitempty"`
	Reason string `json:"reason"`
}

// HostResult collects everything one host's scan found. Err is set when the
// host could not be scanned to the end; TaskErrors lists tasks that degraded.
type HostResult struct {
	ScanID     string    `json:"scanId"`
	Host       string    `json:"host"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Tasks      []string          `json:"tasks"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
	TaskErrors map[string]string `json:"taskErrors,omitempty"`

	PackageManager      string                   `json:"packageManager,omitempty"`
	Sudo                []SudoLine               `json:"sudo,omitempty"`
	Cron                []CronFile               `json:"cron,omitempty"`
	Mismatches          []packages.Mismatch      `json:"mismatches,omitempty"`
	MismatchesFromCache bool                     `json:"mismatchesFromCache,omitempty"`
	LoginUsers          []LoginUser              `json:"loginUsers,omitempty"`
	Processes           map[int]*backend.Process `json:"processes,omitempty"`
	Tree                *ptree.Tree              `json:"tree,omitempty"`
	ScannerPID          int                      `json:"scannerPid,omitempty"`
	ProcessesDropped    int                      `json:"processesDropped,omitempty"`
	Connections         []string                 `json:"connections,omitempty"`
	UntrackedFiles      []string                 `json:"untrackedFiles,omitempty"`

	Packages *packages.Attribution `json:"-"`
}

func newResult(scanID, host string) *HostResult {
	return &HostResult{
		ScanID:     scanID,
		Host:       host,
		StartedAt:  time.Now(),
		TaskErrors: map[string]string{},
	}
}

func (r *HostResult) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// Failed reports whether the host scan was aborted.
func (r *HostResult) Failed() bool {
	return r.Err != nil
}

// Duration is the wall time of the scan.
func (r *HostResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsScanner reports whether pid belongs to the scan itself.
func (r *HostResult) IsScanner(pid int) bool {
	if r.Tree == nil || r.ScannerPID == 0 {
		return false
	}
	return r.Tree.IsDescendant(pid, r.ScannerPID)
}

// Ran reports whether the named task was attempted.
func (r *HostResult) Ran(task string) bool {
	for _, t := range r.Tasks {
		if t == task {
			return true
		}
	}
	return false
}

// TaskNames returns the names of degraded tasks, sorted.
func (r *HostResult) TaskNames() []string {
	names := make([]string, 0, len(r.TaskErrors))
	for name := range r.TaskErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
