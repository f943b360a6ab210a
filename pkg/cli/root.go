// Package cli provides the command-line interface for polterpack
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/poltergeist/polterpack/internal/loader"
	"github.com/poltergeist/polterpack/pkg/bundlers"
	"github.com/poltergeist/polterpack/pkg/compilers"
	"github.com/poltergeist/polterpack/pkg/config"
	"github.com/poltergeist/polterpack/pkg/interfaces"
	"github.com/poltergeist/polterpack/pkg/logger"
	"github.com/poltergeist/polterpack/pkg/notifier"
	"github.com/poltergeist/polterpack/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. POLTERPACK_BUNDLER
const EnvPrefix = "POLTERPACK"

// SetFactory constructs the compiler set for a command
type SetFactory func(ctx context.Context, opts compilers.Options) (*compilers.CompilerSet, error)

// NotifierFactory constructs the notifier used by dev
type NotifierFactory func(cfg notifier.Config, log logger.Logger) interfaces.Notifier

// CLI holds one invocation's commands, settings and outputs
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	settings *config.Config
	logger   logger.Logger
	console  *logger.ConsoleLogger
	host     *loader.Host
	output   io.Writer
	errorOut io.Writer

	// logOut replaces stdout as the log destination
	logOut io.Writer

	createSet   SetFactory
	newNotifier NotifierFactory
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	cli := &CLI{
		config:    cfg,
		output:    os.Stdout,
		errorOut:  os.Stderr,
		logger:    logger.Nop(),
		createSet: compilers.Create,
		newNotifier: func(cfg notifier.Config, log logger.Logger) interfaces.Notifier {
			return notifier.New(cfg, log)
		},
	}
	cli.console = logger.NewConsoleLogger(cli.output, cli.errorOut)

	cli.setupCommands()
	return cli
}

// NewCLIWithOutput creates a CLI with custom output writers; logs go to errorOut
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	cli := NewCLI(cfg)
	cli.output = output
	cli.errorOut = errorOut
	cli.logOut = errorOut
	cli.console = logger.NewConsoleLogger(output, errorOut)
	cli.rootCmd.SetOut(output)
	cli.rootCmd.SetErr(errorOut)
	return cli
}

// SetCompilerFactory replaces compilers.Create
func (c *CLI) SetCompilerFactory(f SetFactory) {
	c.createSet = f
}

// SetNotifierFactory replaces the desktop notifier
func (c *CLI) SetNotifierFactory(f NotifierFactory) {
	c.newNotifier = f
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.Execute()
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "polterpack",
		Short: "Build and watch rollup or webpack app bundles",
		Long: `📦 polterpack compiles the client, server and service worker bundles
described by rollup.config.js or webpack.config.js, once or in watch mode.`,

		PersistentPreRunE: c.initializeConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("📦 polterpack v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newBuildCmd())
	c.rootCmd.AddCommand(c.newDevCmd())
	c.rootCmd.AddCommand(c.newInspectCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "settings file (default: polterpack.config.yaml in --cwd)")
	flags.StringVar(&c.config.Cwd, "cwd", c.config.Cwd, "project directory")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", c.config.Verbosity, "log level (debug, info, warn, error)")
}

// addBundleFlags registers the flags shared by the commands that build
func addBundleFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("bundler", "", "bundler to use (rollup, webpack); detected from the config module when empty")
	flags.String("src", "", "source directory exposed to config modules")
	flags.String("dest", "", "output directory exposed to config modules")
	flags.String("node", "", "node executable used for webpack")
	flags.Bool("exit-on-error", false, "exit the process when the webpack engine fails")
}

// initializeConfig layers settings: defaults, then the settings file, then
// POLTERPACK_* environment variables, then flags
func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	c.viper = v

	root := c.config.Cwd
	if v.IsSet("cwd") {
		root = v.GetString("cwd")
	}

	mgr := config.NewManager()
	path := c.config.ConfigFile
	if path == "" {
		path = v.GetString("config")
	}
	if path == "" {
		path = mgr.FindConfig(root)
	}

	settings := config.Default()
	if path != "" {
		loaded, err := mgr.LoadConfig(path)
		if err != nil {
			return err
		}
		settings = loaded
		if !filepath.IsAbs(settings.Cwd) {
			settings.Cwd = filepath.Join(filepath.Dir(path), settings.Cwd)
		}
	}

	c.overlay(settings)
	if v.IsSet("cwd") || settings.Cwd == "" {
		settings.Cwd = root
	}
	if err := mgr.ValidateConfig(settings); err != nil {
		return err
	}
	c.settings = settings

	if c.logOut != nil {
		c.logger = logger.CreateLoggerWithOutput(settings.Logging.Level, c.logOut)
	} else {
		c.logger = logger.CreateLogger(settings.Logging.File, settings.Logging.Level)
	}
	c.host = loader.NewHost(c.logger)

	if path != "" {
		c.logger.Debug("Using settings file", logger.WithField("file", path))
	}
	return nil
}

// overlay applies environment variables and changed flags on top of s
func (c *CLI) overlay(s *config.Config) {
	v := c.viper

	if v.IsSet("verbosity") {
		s.Logging.Level = v.GetString("verbosity")
	}
	if v.IsSet("bundler") {
		s.Bundler = v.GetString("bundler")
	}
	if v.IsSet("src") {
		s.Src = v.GetString("src")
	}
	if v.IsSet("dest") {
		s.Dest = v.GetString("dest")
	}
	if v.IsSet("dev") {
		s.Dev = v.GetBool("dev")
	}
	if v.IsSet("nollup") {
		s.Nollup = v.GetBool("nollup")
	}
	if v.IsSet("node") {
		s.Webpack.Node = v.GetString("node")
	}
	if v.IsSet("exit-on-error") {
		s.Webpack.ExitOnError = v.GetBool("exit-on-error")
	}
	if v.IsSet("no-notify") && v.GetBool("no-notify") {
		disabled := false
		s.Notifications.Enabled = &disabled
	}
}

// selectBundler resolves the bundler for the current settings
func (c *CLI) selectBundler() (types.Bundler, error) {
	return bundlers.Select(c.settings.Cwd, types.Bundler(c.settings.Bundler))
}

// compilerOptions maps the settings onto compilers.Options
func (c *CLI) compilerOptions(bundler types.Bundler) compilers.Options {
	s := c.settings
	return compilers.Options{
		Bundler: bundler,
		Nollup:  s.Nollup,
		Cwd:     s.Cwd,
		Src:     s.Src,
		Dest:    s.ResolveDest(),
		Dev:     s.Dev,
		Logger:  c.logger,
		Host:    c.host,
		Webpack: compilers.WebpackOptions{
			Node:        s.Webpack.Node,
			ExitOnError: s.Webpack.ExitOnError,
			Stderr:      c.errorOut,
		},
	}
}

// destDir is the destination directory resolved against the project directory
func (c *CLI) destDir() string {
	dest := c.settings.ResolveDest()
	if filepath.IsAbs(dest) {
		return dest
	}
	return filepath.Join(c.settings.Cwd, dest)
}

// Helper methods for console output

func (c *CLI) printSuccess(message string) {
	c.console.Success(message)
}

func (c *CLI) printError(message string) {
	c.console.Error(message)
}

func (c *CLI) printInfo(message string) {
	c.console.Info(message)
}

func (c *CLI) printWarning(message string) {
	c.console.Warn(message)
}

// ExecuteWithVersion runs the CLI on os.Args
func ExecuteWithVersion(version string) error {
	cfg := NewConfig()
	cfg.Version = version
	cli := NewCLI(cfg)
	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(cli.errorOut, err)
		return err
	}
	return nil
}
