package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/poltergeist/polterpack/pkg/devrunner"
	"github.com/poltergeist/polterpack/pkg/notifier"
	"github.com/poltergeist/polterpack/pkg/process"
	"github.com/poltergeist/polterpack/pkg/types"
)

func (c *CLI) newDevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Watch every bundle and rebuild on change",
		Long: `Start every compiler in watch mode. Invalidations and finished builds are
printed as they happen and, unless disabled, reported as desktop notifications.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDev(cmd.Context())
		},
	}

	addBundleFlags(cmd)
	cmd.Flags().Bool("nollup", false, "use the incremental engine for rollup configs")
	cmd.Flags().Bool("no-notify", false, "disable desktop notifications")
	return cmd
}

func (c *CLI) runDev(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.settings.Dev = true

	bundler, err := c.selectBundler()
	if err != nil {
		return err
	}

	pm := process.NewManager(c.logger)
	parent, cancel := context.WithCancel(ctx)
	ctx = pm.Start(parent)
	defer pm.Wait()
	defer cancel()

	set, err := c.createSet(ctx, c.compilerOptions(bundler))
	if err != nil {
		return err
	}
	pm.RegisterShutdownHandler(set.Close)

	opts := devrunner.Options{Logger: c.logger, OnEvent: c.printEvent}
	if c.settings.NotificationsEnabled() {
		opts.Notifier = c.newNotifier(notifier.Config{
			Enabled: true,
			Sound:   c.settings.Notifications.Sound,
		}, c.logger)
	}

	runner := devrunner.New(set, opts)
	if err := runner.Start(ctx); err != nil {
		return err
	}

	mode := string(bundler)
	if bundler == types.BundlerRollup && c.settings.Nollup {
		mode = "nollup"
	}
	c.printInfo(fmt.Sprintf("Watching %v with %s (dev server: %t)", set.Targets(), mode, set.UsesDevServer))

	if err := runner.Wait(ctx); err == nil {
		c.printSuccess("Initial build finished")
	}

	<-ctx.Done()
	c.printInfo("Stopped watching")
	return nil
}

func (c *CLI) printEvent(ev devrunner.Event) {
	switch ev.Kind {
	case devrunner.EventInvalid:
		c.printInfo(fmt.Sprintf("%s: %s changed", ev.Target, ev.File))
	case devrunner.EventBuilt:
		if ev.Result == nil {
			c.printSuccess(fmt.Sprintf("%s built", ev.Target))
			return
		}
		for _, w := range ev.Result.Warnings {
			c.printWarning(fmt.Sprintf("%s: %s", ev.Target, w))
		}
		c.printSuccess(fmt.Sprintf("%s %s", ev.Target, firstLine(ev.Result.Summary())))
	case devrunner.EventFailed:
		c.printError(fmt.Sprintf("%s: %v", ev.Target, ev.Err))
	}
}
