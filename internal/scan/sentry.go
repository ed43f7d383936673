package scan

import (
	"context"
	"path"
	"sort"
	"time"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/system"
)

var sentryPatterns = []string{"/etc", "/*bin", "/usr/local/*bin"}

// FilesTask walks configuration and binary directories for files that no
// package owns.
type FilesTask struct{}

func (t *FilesTask) Name() string           { return config.TaskFiles }
func (t *FilesTask) Timeout() time.Duration { return system.TimeoutBulk }

func (t *FilesTask) Run(ctx context.Context, env *Env) error {
	attr := env.Result.Packages
	if attr.Len() == 0 {
		return errors.Wrap(errors.ErrNotFound, "file sentry needs package attribution")
	}

	var candidates []string
	seen := map[string]bool{}
	for _, pattern := range sentryPatterns {
		for _, dir := range env.Backend.Glob(ctx, pattern) {
			for _, entry := range env.Backend.Walk(ctx, dir) {
				for _, name := range entry.Files {
					p := path.Join(entry.Dir, name)
					if seen[p] {
						continue
					}
					seen[p] = true
					if _, ok := attr.Lookup(p); !ok {
						candidates = append(candidates, p)
					}
				}
			}
		}
	}

	resolved := backend.RealPaths(ctx, env.Backend, candidates)
	var untracked []string
	for _, p := range candidates {
		if _, ok := attr.Lookup(resolved[p]); ok {
			continue
		}
		untracked = append(untracked, p)
	}
	sort.Strings(untracked)
	env.Result.UntrackedFiles = untracked
	return nil
}
