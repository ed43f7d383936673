package scan

import (
	"context"
	"time"

	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/packages"
	"github.com/girste/blueteam/internal/system"
)

var cronPatterns = []string{
	"/etc/cron{tab,.*/*}",
	"/var/spool/cron/crontabs/*",
}

// rpm hosts keep user crontabs one level up.
const rpmUserCrontabs = "/var/spool/cron/*"

// CronTask reports cron tables that were modified after installation or that
// no package installed.
type CronTask struct{}

func (t *CronTask) Name() string           { return config.TaskCron }
func (t *CronTask) Timeout() time.Duration { return system.TimeoutLong }

func (t *CronTask) Run(ctx context.Context, env *Env) error {
	patterns := cronPatterns
	if env.Result.PackageManager == packages.RPM.Name {
		patterns = append([]string{rpmUserCrontabs}, patterns...)
	}

	modified := env.MismatchSet()
	seen := map[string]bool{}
	for _, pattern := range patterns {
		for _, file := range env.Backend.Glob(ctx, pattern) {
			if seen[file] {
				continue
			}
			seen[file] = true
			status := ClassifyCron(file, modified, env.Result.Packages)
			if status == "" {
				continue
			}
			env.Result.Cron = append(env.Result.Cron, CronFile{
				Path:   file,
				Status: status,
				Lines:  activeLines(env.Backend.ReadFile(ctx, file)),
			})
		}
	}
	return nil
}

// ClassifyCron returns CronModified for files that failed hash verification,
// CronNew for files the attribution does not know, and "" otherwise. An empty
// attribution knows nothing, so it never yields CronNew.
func ClassifyCron(path string, modified map[string]bool, attr *packages.Attribution) string {
	if modified[path] {
		return CronModified
	}
	if attr.Len() > 0 {
		if _, ok := attr.Lookup(path); !ok {
			return CronNew
		}
	}
	return ""
}
