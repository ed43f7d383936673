package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/errors"
	"github.com/girste/blueteam/internal/ptree"
	"github.com/girste/blueteam/internal/scan"
)

// Format types
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatFindings = "findings"
	FormatSARIF    = "sarif"
)

const (
	cmdlineWidth = 50
	userWidth    = 8
	cronRule     = "=========="
)

// Options controls rendering.
type Options struct {
	Format            string
	NoColor           bool
	HideKernelThreads bool
	Version           string // reported in SARIF
}

type palette struct {
	banner   *color.Color
	section  *color.Color
	failed   *color.Color
	flagged  *color.Color
	modified *color.Color
	pkg      *color.Color
	count    *color.Color
	owned    *color.Color
	unowned  *color.Color
	exe      *color.Color
	missing  *color.Color
	scanner  *color.Color
	done     *color.Color
	starting *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		banner:   color.New(color.FgWhite, color.BgGreen, color.Bold),
		section:  color.New(color.FgWhite, color.BgBlue),
		failed:   color.New(color.FgWhite, color.BgRed, color.Bold),
		flagged:  color.New(color.FgYellow),
		modified: color.New(color.FgHiRed),
		pkg:      color.New(color.FgCyan),
		count:    color.New(color.FgYellow),
		owned:    color.New(color.FgGreen),
		unowned:  color.New(color.FgRed),
		exe:      color.New(color.FgWhite),
		missing:  color.New(color.FgWhite, color.BgRed),
		scanner:  color.New(color.FgWhite, color.BgBlue),
		done:     color.New(color.FgGreen, color.BgBlack),
		starting: color.New(color.FgBlack, color.BgWhite),
	}
	if noColor {
		for _, c := range []*color.Color{p.banner, p.section, p.failed, p.flagged, p.modified, p.pkg,
			p.count, p.owned, p.unowned, p.exe, p.missing, p.scanner, p.done, p.starting} {
			c.DisableColor()
		}
	}
	return p
}

// Printer writes host results as they arrive. It is not safe for concurrent
// use; the fleet emitter already serializes calls.
type Printer struct {
	w        io.Writer
	opts     Options
	pal      palette
	findings []Finding
}

// NewPrinter creates a printer for the given format.
func NewPrinter(w io.Writer, opts Options) (*Printer, error) {
	switch opts.Format {
	case "":
		opts.Format = FormatText
	case FormatText, FormatJSON, FormatFindings, FormatSARIF:
	default:
		return nil, errors.Wrap(errors.ErrInvalidInput, "unknown output format %q", opts.Format)
	}
	return &Printer{w: w, opts: opts, pal: newPalette(opts.NoColor)}, nil
}

// Print renders one host result.
func (p *Printer) Print(res *scan.HostResult) error {
	switch p.opts.Format {
	case FormatJSON:
		return json.NewEncoder(p.w).Encode(res)
	case FormatFindings:
		enc := json.NewEncoder(p.w)
		for _, f := range Findings(res) {
			if err := enc.Encode(f); err != nil {
				return err
			}
		}
		return nil
	case FormatSARIF:
		p.findings = append(p.findings, Findings(res)...)
		return nil
	default:
		_, err := io.WriteString(p.w, p.Text(res))
		return err
	}
}

// Flush writes output that needs every host first. Only SARIF does.
func (p *Printer) Flush() error {
	if p.opts.Format != FormatSARIF {
		return nil
	}
	return ConvertToSARIF(p.findings, p.opts.Version).Write(p.w)
}

// Banner opens a text run with the version. Machine formats print nothing.
func (p *Printer) Banner() error {
	return p.textLine(p.pal.section, "blueteam "+p.opts.Version)
}

// Starting announces a host before its scan is queued.
func (p *Printer) Starting(target string) error {
	return p.textLine(p.pal.starting, "STARTING "+target)
}

// Done closes a text run.
func (p *Printer) Done() error {
	return p.textLine(p.pal.banner, "Done.")
}

func (p *Printer) textLine(c *color.Color, s string) error {
	if p.opts.Format != FormatText {
		return nil
	}
	_, err := io.WriteString(p.w, c.Sprint(s)+"\n")
	return err
}

// Text renders a host result as one block.
func (p *Printer) Text(res *scan.HostResult) string {
	var sb strings.Builder
	host := res.Host

	sb.WriteString(p.pal.banner.Sprint("RESULTS FOR "+host) + "\n")

	if res.Ran(config.TaskSudo) {
		p.header(&sb, "SUDO", host)
		for _, s := range res.Sudo {
			if s.Flagged {
				sb.WriteString(p.pal.flagged.Sprint(s.Text) + "\n")
			} else {
				sb.WriteString(s.Text + "\n")
			}
		}
	}

	if res.Ran(config.TaskCron) {
		p.header(&sb, "CRON", host)
		for _, c := range res.Cron {
			style := p.pal.flagged
			if c.Status == scan.CronModified {
				style = p.pal.modified
			}
			sb.WriteString(style.Sprintf("%s %s (%s) %s", cronRule, c.Path, c.Status, cronRule) + "\n")
			for _, line := range c.Lines {
				sb.WriteString(line + "\n")
			}
		}
	}

	if res.Ran(config.TaskDebsums) {
		p.header(&sb, "DEBSUMS", host)
		if res.MismatchesFromCache {
			sb.WriteString("From local cache:\n")
		}
		for _, m := range res.Mismatches {
			fmt.Fprintf(&sb, "%s (%s)\n", m.Path, p.pal.pkg.Sprint(orUnknown(m.Package)))
		}
	}

	if res.Ran(config.TaskUsers) {
		p.header(&sb, "LOGIN USERS", host)
		for _, u := range res.LoginUsers {
			line := fmt.Sprintf("%s:%s:%d:%d:%s [%s]", u.Name, u.Hash, u.UID, u.GID, u.Rest, u.Reason)
			sb.WriteString(p.pal.unowned.Sprint(line) + "\n")
		}
	}

	if res.Ran(config.TaskProcesses) && res.Tree != nil {
		p.header(&sb, "PSTREE", host)
		for _, line := range res.Tree.Lines(ptree.Options{HideKernelThreads: p.opts.HideKernelThreads}) {
			sb.WriteString(p.processRow(res, line) + "\n")
		}
	}

	if res.Ran(config.TaskConnections) {
		p.header(&sb, "CONNECTIONS", host)
		for _, c := range res.Connections {
			sb.WriteString(c + "\n")
		}
	}

	if res.Ran(config.TaskFiles) {
		p.header(&sb, "FILE SENTRY", host)
		for _, f := range res.UntrackedFiles {
			sb.WriteString(f + "\n")
		}
	}

	if len(res.TaskErrors) > 0 {
		p.header(&sb, "WARNINGS", host)
		for _, task := range res.TaskNames() {
			fmt.Fprintf(&sb, "%s: %s\n", task, res.TaskErrors[task])
		}
	}

	if res.Failed() {
		sb.WriteString(p.pal.failed.Sprintf("SCAN FAILED FOR %s: %s", host, res.Error) + "\n")
	} else {
		sb.WriteString(p.pal.done.Sprintf("%s is done.", host) + "\n")
	}
	return sb.String()
}

func (p *Printer) header(sb *strings.Builder, name, host string) {
	sb.WriteString(p.pal.section.Sprintf("%s FOR %s", name, host) + "\n")
}

// processRow lays out one process like `ps f` with package columns:
// user, pid, ppid, connection count, package, then the tree and command.
func (p *Printer) processRow(res *scan.HostResult, line ptree.Line) string {
	proc, ok := res.Tree.Process(line.PID)
	if !ok {
		return fmt.Sprintf("%d >???", line.PID)
	}
	kthread := ptree.IsKernelThread(proc)

	label, labelColor := "", p.pal.owned
	if res.Packages != nil && !kthread {
		label = res.PackageManager + ":"
		if proc.Package == "" {
			labelColor = p.pal.unowned
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-9s%-6d%-6d %s %s%-30s ",
		truncateUser(proc.Username),
		proc.PID, proc.PPID,
		p.pal.count.Sprintf("%-4d", len(proc.Connections)),
		labelColor.Sprintf("%-5s", label),
		proc.Package,
	)
	sb.WriteString(line.Prefix)
	sb.WriteString(cmdline(proc.Cmdline, proc.Name))

	if !kthread {
		switch {
		case proc.Exe == "":
			sb.WriteString(" (" + p.pal.missing.Sprint("missing") + ")")
		case !proc.Verified:
			sb.WriteString(" (" + p.pal.modified.Sprint(proc.Exe) + ")")
		default:
			sb.WriteString(" (" + p.pal.exe.Sprint(proc.Exe) + ")")
		}
	}
	if res.IsScanner(proc.PID) {
		sb.WriteString(" " + p.pal.scanner.Sprint("(blueteam)"))
	}
	return sb.String()
}

func truncateUser(name string) string {
	if name == "" {
		name = "unk"
	}
	if len(name) > userWidth {
		return name[:userWidth] + "+"
	}
	return name
}

// cmdline joins argv, falling back to the bracketed name for kernel threads
// and zombies, and cuts it to cmdlineWidth runes.
func cmdline(argv []string, name string) string {
	s := strings.Join(argv, " ")
	if strings.TrimSpace(s) == "" {
		s = "[" + name + "]"
	}
	if r := []rune(s); len(r) > cmdlineWidth {
		return string(r[:cmdlineWidth]) + "..."
	}
	return s
}
