package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/metrics"
	"github.com/girste/blueteam/internal/notify"
	"github.com/girste/blueteam/internal/output"
	"github.com/girste/blueteam/internal/scan"
	"github.com/girste/blueteam/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
)

type scanFlags struct {
	skipDebsums  bool
	noCron       bool
	noPkg        bool
	noKthread    bool
	psOnly       bool
	sudo         bool
	passphrase   bool
	files        bool
	workers      int
	identity     string
	json         bool
	format       string
	noColor      bool
	metricsFile  string
	allowNonroot bool
}

// Replaced in tests.
var (
	geteuid    = os.Geteuid
	readSecret = promptSecret
)

func newScanCommand(version string) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan [[user@]host[:port]...]",
		Short: "Scan hosts, or the local machine when none are given",
		Example: `  sudo blueteam scan
  blueteam scan -s admin@web1 admin@db1:2222
  blueteam scan -i ~/.ssh/audit -P --json web1 web2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, f, args, version)
		},
	}

	bindScanFlags(cmd.Flags(), f)
	return cmd
}

func bindScanFlags(fl *pflag.FlagSet, f *scanFlags) {
	fl.BoolVarP(&f.skipDebsums, "skip-debsums", "d", false, "don't verify package file hashes")
	fl.BoolVarP(&f.noCron, "no-cron", "n", false, "don't collect cron tables")
	fl.BoolVarP(&f.noPkg, "no-pkg", "c", false, "don't match processes to packages (quicker)")
	fl.BoolVarP(&f.noKthread, "no-kthread", "k", false, "don't print kernel threads in the process tree")
	fl.BoolVarP(&f.psOnly, "ps", "p", false, "only collect the process tree")
	fl.BoolVarP(&f.sudo, "sudo", "s", false, "prompt for a sudo password")
	fl.BoolVarP(&f.passphrase, "passphrase", "P", false, "prompt for the identity file passphrase")
	fl.BoolVarP(&f.files, "files", "f", false, "report files in system directories no package owns")
	fl.IntVarP(&f.workers, "workers", "w", 0, "hosts scanned in parallel (default NumCPU+1)")
	fl.StringVarP(&f.identity, "identity", "i", "", "SSH identity file")
	fl.BoolVar(&f.json, "json", false, "shorthand for --format json")
	fl.StringVar(&f.format, "format", output.FormatText, "output format: text, json, findings, sarif")
	fl.BoolVar(&f.noColor, "no-color", false, "disable colour in text output")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	fl.BoolVar(&f.allowNonroot, "allow-nonroot", false, "scan the local machine without root")
}

func runScan(cmd *cobra.Command, f *scanFlags, args []string, version string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyScanFlags(cfg, f, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}

	targets := args
	if len(targets) == 0 {
		if geteuid() != 0 && !f.allowNonroot {
			return errors.Wrap(errors.ErrInvalidInput, "must be run as root to scan the local machine")
		}
		targets = []string{scan.LocalTarget}
	}

	creds, err := gatherCredentials(cfg, f)
	if err != nil {
		return err
	}

	printer, err := output.NewPrinter(cmd.OutOrStdout(), output.Options{
		Format:            f.format,
		NoColor:           f.noColor,
		HideKernelThreads: !cfg.KernelThreads,
		Version:           version,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := scan.OptionsFromConfig(cfg)
	opts.PSOnly = f.psOnly

	recorder := metrics.NewRecorder()
	fleet := scan.NewFleet(cfg.GetWorkers(), scan.NewDialer(cfg, creds), opts, recorder)

	notifier := notify.NewNotifier(&cfg.Notifications)

	failed, err := scanTargets(ctx, fleet, printer, notifier, targets)
	if err != nil {
		return err
	}

	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			util.GetLogger().Warn("Failed to write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}

	if failed > 0 {
		return errors.Wrap(ErrHostsFailed, "%d of %d hosts", failed, len(targets))
	}
	return nil
}

// scanTargets runs the fleet, printing and alerting on each result as it is
// handed back. It returns the number of hosts that failed.
func scanTargets(ctx context.Context, fleet *scan.Fleet, printer *output.Printer, notifier *notify.Notifier, targets []string) (int, error) {
	if err := printer.Banner(); err != nil {
		return 0, err
	}
	for _, t := range targets {
		if err := printer.Starting(t); err != nil {
			return 0, err
		}
	}

	failed := 0
	var printErr error
	fleet.Run(ctx, targets, func(res *scan.HostResult) {
		if res.Failed() {
			failed++
		}
		if err := printer.Print(res); err != nil && printErr == nil {
			printErr = err
		}
		if notifier.Enabled() {
			if r := notifier.NotifyHost(ctx, res); !r.Success {
				util.GetLogger().Warn("Webhook notification failed", zap.String("host", res.Host), zap.Any("failed", r.Failed))
			}
		}
	})
	if printErr != nil {
		return failed, printErr
	}
	if err := printer.Flush(); err != nil {
		return failed, err
	}
	return failed, printer.Done()
}

// applyScanFlags lays command line flags over the loaded config.
func applyScanFlags(cfg *config.Config, f *scanFlags, fl *pflag.FlagSet) {
	if f.skipDebsums {
		cfg.SetTask(config.TaskDebsums, false)
	}
	if f.noCron {
		cfg.SetTask(config.TaskCron, false)
	}
	if f.noPkg {
		cfg.SetTask(config.TaskPackages, false)
	}
	if f.files {
		cfg.SetTask(config.TaskFiles, true)
	}
	if f.noKthread {
		cfg.KernelThreads = false
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if f.identity != "" {
		cfg.SSH.KeyFile = f.identity
	}
	if f.passphrase {
		cfg.SSH.Passphrase = true
	}
	if f.metricsFile != "" {
		cfg.Metrics.Textfile = f.metricsFile
	}
	if f.json {
		f.format = output.FormatJSON
	}
}

// gatherCredentials prompts for the secrets the flags and config ask for.
func gatherCredentials(cfg *config.Config, f *scanFlags) (scan.Credentials, error) {
	var creds scan.Credentials
	var err error
	if f.sudo {
		if creds.Password, err = readSecret("[sudo] password: "); err != nil {
			return creds, err
		}
	}
	if cfg.SSH.Passphrase {
		if creds.Passphrase, err = readSecret(fmt.Sprintf("Enter passphrase for key '%s': ", cfg.SSH.KeyFile)); err != nil {
			return creds, err
		}
	}
	return creds, nil
}

func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.Wrap(errors.ErrInvalidInput, "cannot prompt for a secret: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(errors.ErrInvalidInput, "failed to read secret: %v", err)
	}
	return string(secret), nil
}
