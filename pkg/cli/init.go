package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/poltergeist/polterpack/pkg/bundlers"
	"github.com/poltergeist/polterpack/pkg/config"
	"github.com/poltergeist/polterpack/pkg/types"
)

func (c *CLI) newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a polterpack.config.yaml for the project",
		Long: `Write a settings file in the project directory. The bundler is detected
from the config module present in the directory unless --bundler is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(force)
		},
	}

	cmd.Flags().String("bundler", "", "bundler to record (rollup, webpack)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing settings")
	return cmd
}

func (c *CLI) runInit(force bool) error {
	dir := c.settings.Cwd
	path := filepath.Join(dir, config.FileNames[0])

	if existing := config.NewManager().FindConfig(dir); existing != "" && !force {
		return fmt.Errorf("settings already exist at %s, use --force to overwrite", existing)
	}

	cfg := &config.Config{
		Bundler: c.settings.Bundler,
		Src:     c.settings.Src,
		Logging: config.LoggingConfig{Level: "info"},
	}

	if bundler, err := bundlers.Select(dir, types.Bundler(cfg.Bundler)); err == nil {
		cfg.Bundler = string(bundler)
		c.printInfo(fmt.Sprintf("Detected bundler: %s", bundler))
	} else if cfg.Bundler == "" {
		c.printWarning("No rollup.config.js or webpack.config.js found, bundler left unset")
	} else {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	c.printSuccess(fmt.Sprintf("Created settings at %s", path))
	return nil
}
