package scan

import (
	"context"
	"time"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/metrics"
	"github.com/girste/blueteam/internal/util"
	"go.uber.org/zap"
)

// Host runs the task pipeline against one backend.
type Host struct {
	ScanID   string
	Options  Options
	Metrics  *metrics.Recorder
	Registry *Registry
	// Label names the result and its hash cache; empty means the backend's host name.
	Label    string
	logger   *zap.Logger
}

// NewHost creates a host orchestrator with the built-in tasks.
func NewHost(scanID string, opts Options, recorder *metrics.Recorder) *Host {
	return &Host{
		ScanID:   scanID,
		Options:  opts,
		Metrics:  recorder,
		Registry: NewRegistry(),
		logger:   util.GetLogger(),
	}
}

// Run executes every enabled task in order. A task error degrades only that
// task, unless it means the host itself is lost; then the remaining tasks are
// skipped and the result carries the error.
func (h *Host) Run(ctx context.Context, b backend.Backend) *HostResult {
	label := h.Label
	if label == "" {
		label = b.Host()
	}
	res := newResult(h.ScanID, label)
	logger := h.logger
	if logger == nil {
		logger = util.GetLogger()
	}
	logger = logger.With(zap.String("host", res.Host))

	registry := h.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	env := &Env{
		Backend: b,
		Options: h.Options,
		Result:  res,
		Metrics: h.Metrics,
		Logger:  logger,
	}

	for _, task := range registry.Pipeline(h.Options) {
		if err := ctx.Err(); err != nil {
			res.fail(errors.Wrap(err, "scan interrupted before %s", task.Name()))
			break
		}

		res.Tasks = append(res.Tasks, task.Name())
		taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
		start := time.Now()
		err := task.Run(taskCtx, env)
		cancel()
		h.Metrics.ObserveTask(task.Name(), time.Since(start), err != nil)

		if err == nil {
			logger.Debug("Task completed", zap.String("task", task.Name()), zap.Duration("duration", time.Since(start)))
			continue
		}
		if errors.IsFatal(err) {
			logger.Warn("Host scan aborted", zap.String("task", task.Name()), zap.Error(err))
			res.fail(err)
			break
		}
		logger.Warn("Task failed", zap.String("task", task.Name()), zap.Error(err))
		res.TaskErrors[task.Name()] = err.Error()
	}

	res.FinishedAt = time.Now()
	logger.Info("Host scan completed", zap.Duration("duration", res.Duration()), zap.Bool("failed", res.Failed()))
	return res
}
