package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/errors"
	"github.com/spf13/cobra"
)

func newInitConfigCommand() *cobra.Command {
	var path string
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration to ~/.blueteam.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return errors.Wrap(errors.ErrInvalidInput, "cannot find home directory: %v", err)
				}
				path = filepath.Join(home, ".blueteam.yaml")
			}
			if err := writeDefaultConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "where to write the config (default ~/.blueteam.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Wrap(errors.ErrAlreadyExists, "config %s (edit it or pass --force)", path)
	}

	data, err := config.Default().Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}
