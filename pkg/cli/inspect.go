package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/poltergeist/polterpack/pkg/manifest"
	"github.com/poltergeist/polterpack/pkg/types"
)

// Report describes a project as seen by inspect
type Report struct {
	Bundler       types.Bundler      `json:"bundler"`
	ConfigFile    string             `json:"configFile"`
	Src           string             `json:"src"`
	Dest          string             `json:"dest"`
	Targets       []TargetReport     `json:"targets"`
	UsesDevServer bool               `json:"usesDevServer"`
	LastBuild     *manifest.Manifest `json:"lastBuild,omitempty"`
}

// TargetReport describes one bundle of the config module
type TargetReport struct {
	Target   types.BuildTarget `json:"target"`
	Present  bool              `json:"present"`
	Required bool              `json:"required"`
}

func (c *CLI) newInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the detected bundler and the bundles its config exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.inspect(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.output)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			c.printReport(report)
			return nil
		},
	}

	addBundleFlags(cmd)
	cmd.Flags().Bool("dev", false, "inspect the dev configuration")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (c *CLI) inspect(ctx context.Context) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	bundler, err := c.selectBundler()
	if err != nil {
		return nil, err
	}

	set, err := c.createSet(ctx, c.compilerOptions(bundler))
	if err != nil {
		return nil, err
	}
	defer set.Close()

	report := &Report{
		Bundler:       bundler,
		ConfigFile:    filepath.Join(c.settings.Cwd, bundler.ConfigFile()),
		Src:           c.settings.Src,
		Dest:          c.settings.ResolveDest(),
		UsesDevServer: set.UsesDevServer,
	}
	for _, t := range types.BuildTargets() {
		report.Targets = append(report.Targets, TargetReport{
			Target:   t,
			Present:  set.Get(t) != nil,
			Required: t.IsRequired(),
		})
	}

	if man, err := manifest.NewManager(c.destDir(), c.logger).Read(); err == nil {
		report.LastBuild = man
	}
	return report, nil
}

func (c *CLI) printReport(r *Report) {
	c.printInfo(fmt.Sprintf("Bundler: %s (%s)", r.Bundler, r.ConfigFile))
	c.printInfo(fmt.Sprintf("src: %s, dest: %s, dev server: %t", r.Src, r.Dest, r.UsesDevServer))

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSTATUS\tLAST BUILD")
	fmt.Fprintln(w, "------\t------\t----------")

	for _, t := range r.Targets {
		status := color.GreenString("present")
		if !t.Present {
			status = color.WhiteString("absent")
		}

		last := "-"
		if r.LastBuild != nil {
			if tm, ok := r.LastBuild.Targets[string(t.Target)]; ok {
				last = fmt.Sprintf("%s, %d chunks, %dms", r.LastBuild.BuiltAt.Format("15:04:05"), len(tm.Chunks), tm.DurationMs)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Target, status, last)
	}

	w.Flush()
}
