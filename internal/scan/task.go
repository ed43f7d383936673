// Package scan runs the audit pipeline against one host and fans it out over
// a fleet of hosts.
package scan

import (
	"context"
	"time"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/metrics"
	"github.com/girste/blueteam/internal/packages"
	"github.com/girste/blueteam/internal/util"
	"go.uber.org/zap"
)

// Task is one step of a host's pipeline.
type Task interface {
	Name() string
	Timeout() time.Duration
	Run(ctx context.Context, env *Env) error
}

// Env is the state tasks share while scanning one host. Tasks run one after
// another, so nothing here is locked.
type Env struct {
	Backend backend.Backend
	Options Options
	Result  *HostResult
	Metrics *metrics.Recorder
	Logger  *zap.Logger

	manager *packages.Manager
}

// Manager resolves the host's package manager once.
func (e *Env) Manager(ctx context.Context) (packages.Manager, error) {
	if e.manager != nil {
		return *e.manager, nil
	}
	m, err := packages.Resolve(ctx, e.Backend, e.Options.PackageManager, e.Options.OwnershipCommand, e.Options.VerifyCommand)
	if err != nil {
		return packages.Manager{}, err
	}
	e.manager = &m
	e.Result.PackageManager = m.Name
	return m, nil
}

// MismatchSet indexes the hash mismatches found so far.
func (e *Env) MismatchSet() map[string]bool {
	return packages.MismatchSet(e.Result.Mismatches)
}

// Options selects what a host scan does.
type Options struct {
	Tasks  map[string]bool
	PSOnly bool

	PackageManager   string
	OwnershipCommand string
	VerifyCommand    string

	CacheEnabled bool
	CacheDir     string
}

// OptionsFromConfig copies the scan settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	tasks := make(map[string]bool, len(TaskOrder))
	for _, name := range TaskOrder {
		tasks[name] = cfg.IsTaskEnabled(name)
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		dir = util.GetCacheDir()
	}
	return Options{
		Tasks:            tasks,
		PackageManager:   cfg.PackageManager,
		OwnershipCommand: cfg.OwnershipCommand,
		VerifyCommand:    cfg.VerifyCommand,
		CacheEnabled:     cfg.Cache.Enabled,
		CacheDir:         util.ExpandHome(dir),
	}
}

// Enabled reports whether the named task is part of the pipeline. Process
// listing mode keeps only attribution and the process table.
func (o Options) Enabled(name string) bool {
	if o.PSOnly && name != config.TaskPackages && name != config.TaskProcesses {
		return false
	}
	return o.Tasks[name]
}

// TaskOrder is the fixed order tasks run in. Later tasks read what earlier
// ones stored: processes and cron need attribution and mismatches.
var TaskOrder = []string{
	config.TaskPackages,
	config.TaskDebsums,
	config.TaskSudo,
	config.TaskUsers,
	config.TaskProcesses,
	config.TaskConnections,
	config.TaskCron,
	config.TaskFiles,
}

// Registry holds the known tasks by name.
type Registry struct {
	tasks map[string]Task
}

// NewRegistry creates a registry with every built-in task.
func NewRegistry() *Registry {
	r := &Registry{tasks: make(map[string]Task)}
	r.Register(&PackagesTask{})
	r.Register(&DebsumsTask{})
	r.Register(&SudoTask{})
	r.Register(&UsersTask{})
	r.Register(&ProcessesTask{})
	r.Register(&ConnectionsTask{})
	r.Register(&CronTask{})
	r.Register(&FilesTask{})
	return r
}

// Register adds or replaces a task.
func (r *Registry) Register(t Task) {
	r.tasks[t.Name()] = t
}

// Get retrieves a task by name.
func (r *Registry) Get(name string) (Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Pipeline returns the enabled tasks in TaskOrder.
func (r *Registry) Pipeline(opts Options) []Task {
	var out []Task
	for _, name := range TaskOrder {
		t, ok := r.tasks[name]
		if !ok || !opts.Enabled(name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Pipeline returns the built-in tasks enabled by opts.
func Pipeline(opts Options) []Task {
	return NewRegistry().Pipeline(opts)
}
