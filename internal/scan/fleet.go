package scan

import (
	"context"
	"runtime"
	"time"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/metrics"
	"github.com/girste/blueteam/internal/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DialFunc opens a backend for a target as given on the command line.
type DialFunc func(ctx context.Context, target string) (backend.Backend, error)

// Fleet scans many hosts with a bounded number of workers and hands results
// back in the order the hosts were given.
type Fleet struct {
	Workers int
	Dial    DialFunc
	Options Options
	Metrics *metrics.Recorder
	logger  *zap.Logger
}

// NewFleet creates a fleet coordinator. workers <= 0 means NumCPU+1.
func NewFleet(workers int, dial DialFunc, opts Options, recorder *metrics.Recorder) *Fleet {
	return &Fleet{
		Workers: workers,
		Dial:    dial,
		Options: opts,
		Metrics: recorder,
		logger:  util.GetLogger(),
	}
}

func (f *Fleet) workers() int {
	if f.Workers > 0 {
		return f.Workers
	}
	return runtime.NumCPU() + 1
}

// Run scans every target and calls emit once per target, in target order.
// emit is never called concurrently, so it may write a host's block without
// locking. Host failures land in the results; Run itself does not fail. It
// returns the scan id shared by all results.
func (f *Fleet) Run(ctx context.Context, targets []string, emit func(*HostResult)) string {
	scanID := uuid.NewString()

	slots := make([]chan *HostResult, len(targets))
	for i := range slots {
		slots[i] = make(chan *HostResult, 1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, slot := range slots {
			res := <-slot
			if emit != nil {
				emit(res)
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(f.workers())
	for i, target := range targets {
		g.Go(func() error {
			slots[i] <- f.ScanTarget(ctx, scanID, target)
			return nil
		})
	}
	_ = g.Wait()
	<-done

	f.log().Info("Fleet scan completed", zap.String("scan_id", scanID), zap.Int("hosts", len(targets)))
	return scanID
}

// ScanTarget dials one target, runs the pipeline and closes the backend.
func (f *Fleet) ScanTarget(ctx context.Context, scanID, target string) (res *HostResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			f.log().Error("Host scan panicked", zap.String("host", target), zap.Any("panic", r))
			res = &HostResult{ScanID: scanID, Host: target, StartedAt: start, FinishedAt: time.Now()}
			res.fail(errors.New("scan panicked: %v", r))
		}
		if res.Failed() {
			f.Metrics.HostScanned(metrics.OutcomeFailed)
		} else {
			f.Metrics.HostScanned(metrics.OutcomeOK)
		}
	}()

	b, err := f.dial(ctx, target)
	if err != nil {
		f.log().Warn("Host unreachable", zap.String("host", target), zap.Error(err))
		res = &HostResult{ScanID: scanID, Host: target, StartedAt: start, FinishedAt: time.Now()}
		res.fail(err)
		return res
	}
	defer func() {
		if err := b.Close(); err != nil {
			f.log().Debug("Failed to close backend", zap.String("host", target), zap.Error(err))
		}
	}()

	h := NewHost(scanID, f.Options, f.Metrics)
	h.logger = f.log()
	if target != LocalTarget && target != "" {
		// same label as a failed dial, so "web1" and "admin@web1:2222" stay apart
		h.Label = target
	}
	return h.Run(ctx, b)
}

func (f *Fleet) dial(ctx context.Context, target string) (backend.Backend, error) {
	if f.Dial == nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "no dialer for %s", target)
	}
	b, err := f.Dial(ctx, target)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.Wrap(errors.ErrConnectionFailed, "dialer returned no backend for %s", target)
	}
	return b, nil
}

func (f *Fleet) log() *zap.Logger {
	if f.logger == nil {
		return util.GetLogger()
	}
	return f.logger
}
