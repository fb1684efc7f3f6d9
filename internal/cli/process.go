package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bricklayers/pkg/pipeline"
	"github.com/matzehuels/bricklayers/pkg/storage"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// maxShownDiagnostics bounds the diagnostics printed after a run.
const maxShownDiagnostics = 5

type processFlags struct {
	output  string
	noCache bool
	tui     bool
}

// processCommand creates the process command.
func (c *CLI) processCommand() *cobra.Command {
	var flags processFlags
	opts := pipeline.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "process [file.gcode]",
		Short: "Shift perimeter seams of a G-code file",
		Long: `Shift perimeter seams of a G-code file.

Every other inner perimeter, starting at --start-at-layer, is lifted by half
a layer height and extruded with --extrusion-multiplier. The result is written
next to the input as <name>_processed.gcode unless -o is given. Use "-" to
read from stdin or write to stdout.

Results are cached locally, so processing the same file twice with the same
settings is instant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runProcess(cmd.Context(), args[0], opts, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (default: <input>_processed<ext>)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "show a live progress view")

	addEngineFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.Mark, "mark", false, `prepend a "postprocessed by" comment`)
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "ignore cached output")
	cmd.Flags().CountVar(&opts.Verbosity, "trace", "log rewritten loops (repeat for more detail)")

	return cmd
}

// addEngineFlags registers the flags shared by commands that run the engine.
func addEngineFlags(cmd *cobra.Command, opts *pipeline.Options) {
	cmd.Flags().IntVar(&opts.StartAtLayer, "start-at-layer", opts.StartAtLayer, "first layer that may be shifted")
	cmd.Flags().Float64VarP(&opts.ExtrusionMultiplier, "extrusion-multiplier", "m", opts.ExtrusionMultiplier, "extrusion factor for shifted loops (1.0-1.2)")
	cmd.Flags().StringVar(&opts.IgnoreLayers, "ignore-layers", "", `layers left untouched, e.g. "5,7-9"`)
	cmd.Flags().StringSliceVar(&opts.Features, "features", opts.Features, "perimeter features to shift: "+tagList(vocab.PerimeterTags()))
	cmd.Flags().StringVar(&opts.Dialect, "dialect", opts.Dialect, "slicer vocabulary: "+strings.Join(vocab.Dialects(), ", "))
	cmd.Flags().StringVar(&opts.VocabularyFile, "vocabulary", "", "vocabulary file (.toml or .yaml), overrides --dialect")
	cmd.Flags().StringVar(&opts.Parity, "parity", opts.Parity, "which counted layers are shifted: odd, even")
	cmd.Flags().IntVar(&opts.MinDepth, "min-depth", 0, "shift only loops nested at least this deep")
	registerEngineCompletions(cmd)
}

func (c *CLI) runProcess(ctx context.Context, input string, opts pipeline.Options, flags processFlags) error {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return err
	}

	in, name, err := openInput(input)
	if err != nil {
		return err
	}
	defer in.Close()

	output := flags.output
	if output == "" {
		if input == "-" {
			output = "-"
		} else {
			output = filepath.Join(filepath.Dir(input), storage.ProcessedName(filepath.Base(input)))
		}
	}
	out, err := createOutput(output)
	if err != nil {
		return err
	}
	defer out.discard()

	runner, err := c.newRunner(flags.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	opts.Name = name
	opts.Logger = c.Logger
	prog := newProgress(c.Logger)

	var result *pipeline.Result
	switch {
	case flags.tui:
		result, err = runWithTUI(ctx, name, func(ctx context.Context, report func(int, int)) (*pipeline.Result, error) {
			opts.Progress = report
			return runner.Execute(ctx, in, out, opts)
		})
	case output == "-":
		result, err = runner.Execute(ctx, in, out, opts)
	default:
		spinner := newSpinner(ctx, "Processing "+name+"...")
		spinner.Start()
		opts.Progress = func(consumed, total int) {
			if total > 0 {
				spinner.SetMessage(fmt.Sprintf("Processing %s... %d%%", name, consumed*100/total))
			}
		}
		result, err = runner.Execute(ctx, in, out, opts)
		if err != nil {
			spinner.StopWithError("Processing failed")
		} else {
			spinner.Stop()
		}
	}
	if err != nil {
		return fmt.Errorf("process %s: %w", name, err)
	}
	if err := out.commit(); err != nil {
		return err
	}

	if output == "-" {
		prog.done("Processed " + name)
		return nil
	}

	printSuccess("Processed %s", name)
	printFile(output)
	printStats(result.Stats.LinesIn, result.Stats.Loops, result.Stats.Rewritten, result.Stats.SizeChange(), result.CacheHit)
	for i, d := range result.Diagnostics {
		if i == maxShownDiagnostics {
			printDetail("... and %d more", len(result.Diagnostics)-maxShownDiagnostics)
			break
		}
		printWarning("line %d: %s", d.Line, d.Message)
	}
	printNewline()
	printNextStep("Inspect a layer", fmt.Sprintf("%s inspect %s --layer %d", appName, input, max(opts.StartAtLayer, 1)))
	return nil
}

// openInput opens path, or stdin for "-", and returns a display name.
func openInput(path string) (io.ReadCloser, string, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), "stdin", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open input: %w", err)
	}
	return f, filepath.Base(path), nil
}

// outputFile writes to a temporary file that replaces the target on commit, so
// a failed or cancelled run leaves no partial file behind.
type outputFile struct {
	io.Writer
	tmp    *os.File
	target string
	done   bool
}

func createOutput(path string) (*outputFile, error) {
	if path == "-" {
		return &outputFile{Writer: os.Stdout}, nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bricklayers-*")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &outputFile{Writer: tmp, tmp: tmp, target: path}, nil
}

func (o *outputFile) commit() error {
	if o.tmp == nil {
		return nil
	}
	if err := o.tmp.Close(); err != nil {
		return fmt.Errorf("write output %s: %w", o.target, err)
	}
	if err := os.Rename(o.tmp.Name(), o.target); err != nil {
		return fmt.Errorf("write output %s: %w", o.target, err)
	}
	o.done = true
	return nil
}

func (o *outputFile) discard() {
	if o.tmp == nil || o.done {
		return
	}
	o.tmp.Close()
	os.Remove(o.tmp.Name())
}

func tagList(tags []vocab.Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
