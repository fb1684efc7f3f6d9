package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bricklayers/pkg/brick"
	"github.com/matzehuels/bricklayers/pkg/pipeline"
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var (
		output  string
		noCache bool
	)
	opts := pipeline.InspectOptions{Options: pipeline.DefaultOptions()}

	cmd := &cobra.Command{
		Use:   "inspect [file.gcode]",
		Short: "Show how the perimeter loops of a layer nest",
		Long: `Show how the perimeter loops of a layer nest.

Each object on the layer becomes a forest of loops: an edge points from a loop
to the loops directly inside it. Nodes are colored by what the engine did with
the loop (left alone, wrong parity, skipped, shifted).

The format follows the output extension (.svg, .dot, .json) unless --format
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(cmd.Context(), args[0], opts, output, noCache)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.layer<N>.<format>)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().IntVarP(&opts.Layer, "layer", "l", 0, "layer to inspect")
	cmd.Flags().StringVar(&opts.Object, "object", "", "object id (default: all objects on the layer)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "output format: svg (default), dot, json")
	addEngineFlags(cmd, &opts.Options)
	registerFormatCompletion(cmd)
	_ = cmd.MarkFlagRequired("layer")

	return cmd
}

func (c *CLI) runInspect(ctx context.Context, input string, opts pipeline.InspectOptions, output string, noCache bool) error {
	logger := loggerFromContext(ctx)

	if opts.Format == "" {
		opts.Format = formatFromPath(output)
	}
	if err := pipeline.ValidateFormat(opts.Format); err != nil {
		return err
	}
	if output == "" {
		base := strings.TrimSuffix(input, filepath.Ext(input))
		output = fmt.Sprintf("%s.layer%d.%s", base, opts.Layer, opts.Format)
	}

	in, name, err := openInput(input)
	if err != nil {
		return err
	}
	defer in.Close()

	runner, err := c.newRunner(noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()
	opts.Logger = logger

	spinner := newSpinner(ctx, fmt.Sprintf("Inspecting layer %d of %s...", opts.Layer, name))
	spinner.Start()
	res, err := runner.Inspect(ctx, in, opts)
	if err != nil {
		spinner.StopWithError("Inspection failed")
		return err
	}
	spinner.Stop()

	if err := os.WriteFile(output, res.Artifact, 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", output, err)
	}

	counts := map[brick.Decision]int{}
	loops := 0
	for _, g := range res.Groups {
		for _, l := range g.Loops {
			counts[l.Decision]++
			loops++
		}
	}
	logger.Debug("inspected", "layer", opts.Layer, "groups", len(res.Groups), "loops", loops, "cached", res.CacheHit)

	printSuccess("Layer %d: %d objects, %d loops", opts.Layer, len(res.Groups), loops)
	printFile(output)
	for _, d := range []brick.Decision{brick.DecisionRewritten, brick.DecisionParity, brick.DecisionSkipped, brick.DecisionIneligible} {
		if counts[d] > 0 {
			printKeyValue(d.String(), fmt.Sprint(counts[d]))
		}
	}
	return nil
}

// formatFromPath infers an inspection format from a file extension,
// defaulting to SVG.
func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dot", ".gv":
		return pipeline.FormatDOT
	case ".json":
		return pipeline.FormatJSON
	}
	return pipeline.FormatSVG
}
