package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/bricklayers/pkg/vocab"
)

var tableHeaderStyle = lipgloss.NewStyle().Foreground(colorGray).Bold(true).Padding(0, 1)

// vocabCommand creates the vocab command.
func (c *CLI) vocabCommand() *cobra.Command {
	var (
		file   string
		export string
	)

	cmd := &cobra.Command{
		Use:   "vocab [dialect]",
		Short: "List the comment vocabularies used to classify G-code",
		Long: `List the comment vocabularies used to classify G-code.

Without arguments every built-in dialect is summarised. With a dialect name,
or --file, the synonym sets of that vocabulary are listed. --export writes
the vocabulary as TOML or YAML, a starting point for a custom --vocabulary
file.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: vocab.Dialects(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				v   *vocab.Vocabulary
				err error
			)
			switch {
			case file != "":
				v, err = vocab.LoadFile(file)
			case len(args) == 1:
				v, err = vocab.Dialect(args[0])
			case export != "":
				v = vocab.All()
			default:
				return printDialects(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}
			if export != "" {
				return v.Encode(cmd.OutOrStdout(), vocab.Format(strings.ToLower(export)))
			}
			return printVocabulary(cmd.OutOrStdout(), v)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "show a vocabulary file (.toml or .yaml)")
	cmd.Flags().StringVar(&export, "export", "", "write the vocabulary as toml or yaml")

	return cmd
}

func printDialects(w io.Writer) error {
	rows := make([][]string, 0, len(vocab.Dialects()))
	for _, name := range vocab.Dialects() {
		v, err := vocab.Dialect(name)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			name,
			fmt.Sprint(len(v.InnerPerimeter) + len(v.OuterPerimeter) + len(v.OverhangPerimeter)),
			fmt.Sprint(len(v.LayerChange)),
			fmt.Sprint(len(v.ObjectStart)),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("Dialect", "Perimeters", "Layer", "Objects").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return tableHeaderStyle
			}
			if col == 0 {
				return lipgloss.NewStyle().Foreground(colorCyan).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w, StyleDim.Render(fmt.Sprintf("Default: %s. Show one with: %s vocab <dialect>", vocab.DefaultDialect, appName)))
	return nil
}

func printVocabulary(w io.Writer, v *vocab.Vocabulary) error {
	if err := v.Validate(); err != nil {
		printWarning("%v", err)
	}
	var rows [][]string
	for _, set := range v.Sets() {
		if len(set.Synonyms) == 0 {
			continue
		}
		rows = append(rows, []string{set.Name, strings.Join(set.Synonyms, "\n")})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		BorderRow(true).
		Headers("Set", "Synonyms").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return tableHeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(w, StyleTitle.Render(v.Name))
	fmt.Fprintln(w, t.Render())
	return nil
}
