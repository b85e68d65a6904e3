package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smartfolder/smartfolder/configs"
	"github.com/smartfolder/smartfolder/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated config file to the data directory",
		Long: `Write the annotated example configuration to <data-dir>/config.yaml.

The generated file documents every setting and matches the built-in
defaults, so nothing changes until you edit it. Add your folders under
paths.scan_roots, then run 'smartfolder scan'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = filepath.Join(cfg.Paths.DataDir, config.DefaultConfigName)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit paths.scan_roots, then run 'smartfolder scan'.")
	return nil
}
