// Package commands holds the blueteam command tree.
package commands

import (
	"fmt"

	"github.com/girste/blueteam/internal/errors"
	"github.com/spf13/cobra"
)

// ErrHostsFailed is returned by scan when at least one host could not be scanned.
var ErrHostsFailed = errors.New("one or more hosts failed")

// Exit codes
const (
	ExitOK          = 0
	ExitHostsFailed = 1
	ExitUsage       = 2
)

// NewRootCommand builds the blueteam command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "blueteam",
		Short: "Audit Linux hosts for signs of compromise",
		Long: `blueteam inspects local and SSH-reachable Linux hosts for signs of
compromise: sudoers grants, cron tables no package installed, packaged files
that fail hash verification, extra root accounts, and processes running
modified, deleted or unpackaged binaries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newScanCommand(version),
		newServeCommand(version),
		newInitConfigCommand(),
		newVersionCommand(version),
	)
	return root
}

// ExitCode maps an error from the command tree to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrHostsFailed):
		return ExitHostsFailed
	case errors.Is(err, errors.ErrInvalidConfig), errors.Is(err, errors.ErrInvalidInput):
		return ExitUsage
	default:
		return ExitHostsFailed
	}
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blueteam version %s\n", version)
		},
	}
}
