package scan

import (
	"context"
	"time"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/packages"
	"github.com/girste/blueteam/internal/ptree"
	"github.com/girste/blueteam/internal/state"
	"github.com/girste/blueteam/internal/system"
	"go.uber.org/zap"
)

// PackagesTask builds the host's file to package attribution.
type PackagesTask struct{}

func (t *PackagesTask) Name() string           { return config.TaskPackages }
func (t *PackagesTask) Timeout() time.Duration { return system.TimeoutBulk }

func (t *PackagesTask) Run(ctx context.Context, env *Env) error {
	m, err := env.Manager(ctx)
	if err != nil {
		return err
	}
	attr, err := packages.Build(ctx, env.Backend, m.OwnershipCommand)
	if err != nil {
		return err
	}
	env.Result.Packages = attr
	env.Logger.Debug("Package attribution built", zap.String("manager", m.Name), zap.Int("files", attr.Len()))
	if attr.Len() == 0 {
		return errors.Wrap(errors.ErrNotFound, "%s reported no package files", m.Name)
	}
	return nil
}

// DebsumsTask runs package hash verification, or reuses a cached run.
type DebsumsTask struct{}

func (t *DebsumsTask) Name() string           { return config.TaskDebsums }
func (t *DebsumsTask) Timeout() time.Duration { return system.TimeoutBulk }

func (t *DebsumsTask) Run(ctx context.Context, env *Env) error {
	res := env.Result
	if env.Options.CacheEnabled {
		if cached, ok := state.Load(env.Options.CacheDir, res.Host); ok {
			res.Mismatches = cached
			res.MismatchesFromCache = true
			env.Logger.Debug("Using cached hash verification", zap.String("file", state.Path(env.Options.CacheDir, res.Host)))
			return nil
		}
	}

	m, err := env.Manager(ctx)
	if err != nil {
		return err
	}
	mismatches, err := packages.Verify(ctx, env.Backend, m, res.Packages)
	if err != nil {
		return err
	}
	res.Mismatches = mismatches

	if env.Options.CacheEnabled {
		if err := state.Save(env.Options.CacheDir, res.Host, mismatches); err != nil && !errors.Is(err, errors.ErrAlreadyExists) {
			env.Logger.Warn("Failed to cache hash verification", zap.Error(err))
		}
	}
	return nil
}

// ProcessesTask snapshots the process table and builds its tree.
type ProcessesTask struct{}

func (t *ProcessesTask) Name() string           { return config.TaskProcesses }
func (t *ProcessesTask) Timeout() time.Duration { return system.TimeoutBulk }

func (t *ProcessesTask) Run(ctx context.Context, env *Env) error {
	procs, err := env.Backend.Processes(ctx)
	if err != nil {
		return err
	}

	res := env.Result
	modified := env.MismatchSet()
	res.Processes = make(map[int]*backend.Process, len(procs))
	for i := range procs {
		p := &procs[i]
		p.Package, _ = res.Packages.Lookup(p.Exe)
		p.Verified = !modified[p.Exe]
		res.Processes[p.PID] = p
	}
	res.Tree = ptree.Build(res.Processes)
	res.ScannerPID = env.Backend.OwnPID()

	res.ProcessesDropped = backend.Dropped(env.Backend)
	env.Metrics.ProcessesDropped(res.ProcessesDropped)
	if res.ProcessesDropped > 0 {
		env.Logger.Debug("Processes exited during listing", zap.Int("dropped", res.ProcessesDropped))
	}
	return nil
}

// ConnectionsTask lists open sockets.
type ConnectionsTask struct{}

func (t *ConnectionsTask) Name() string           { return config.TaskConnections }
func (t *ConnectionsTask) Timeout() time.Duration { return system.TimeoutLong }

func (t *ConnectionsTask) Run(ctx context.Context, env *Env) error {
	conns, err := env.Backend.Connections(ctx)
	if err != nil {
		return err
	}
	env.Result.Connections = conns
	return nil
}
