package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	pcontext "github.com/poltergeist/polterpack/pkg/context"
	"github.com/poltergeist/polterpack/pkg/interfaces"
	"github.com/poltergeist/polterpack/pkg/logger"
	"github.com/poltergeist/polterpack/pkg/manifest"
	"github.com/poltergeist/polterpack/pkg/types"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile every bundle once and write the build manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBuild(cmd.Context())
		},
	}

	addBundleFlags(cmd)
	cmd.Flags().Bool("dev", false, "build in dev mode")
	return cmd
}

func (c *CLI) runBuild(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	bundler, err := c.selectBundler()
	if err != nil {
		return err
	}

	start := time.Now()
	c.printInfo(fmt.Sprintf("Building with %s", bundler))

	set, err := c.createSet(ctx, c.compilerOptions(bundler))
	if err != nil {
		return err
	}
	defer set.Close()

	results := make(map[types.BuildTarget]*types.Result)

	// Targets build in order; a service worker may read the client's output.
	err = set.Each(func(target types.BuildTarget, comp interfaces.Compiler) error {
		cctx := pcontext.NewCycle(ctx, string(target), "compile")
		log := logger.WithContext(cctx, c.logger.WithBundle(string(target)))
		log.Debug("Compiling")

		result, err := comp.Compile(cctx)
		if err == nil && result != nil && result.HasErrors() {
			err = result.Errors[0]
		}
		if err != nil {
			log.Error("Compile failed", logger.WithError(err))
			c.printError(fmt.Sprintf("%s failed: %v", target, err))
			return fmt.Errorf("%s: %w", target, err)
		}

		results[target] = result
		log.Debug("Compiled", logger.WithField("elapsed_ms", pcontext.GetDuration(cctx).Milliseconds()))
		for _, w := range result.Warnings {
			c.printWarning(fmt.Sprintf("%s: %s", target, w))
		}
		c.printSuccess(fmt.Sprintf("%s %s", target, firstLine(result.Summary())))
		fmt.Fprint(c.output, chunkLines(result.Summary()))
		return nil
	})
	if err != nil {
		return err
	}

	mm := manifest.NewManager(c.destDir(), c.logger)
	if err := mm.Write(manifest.Build(bundler, results)); err != nil {
		return err
	}

	c.printSuccess(fmt.Sprintf("Build complete (%.2fs), manifest at %s", time.Since(start).Seconds(), mm.Path()))
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// chunkLines keeps the chunk table of a summary; warnings are printed separately
func chunkLines(summary string) string {
	var b strings.Builder
	lines := strings.Split(strings.TrimRight(summary, "\n"), "\n")
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "warning:") || strings.HasPrefix(trimmed, "error:") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
