package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/bricklayers/pkg/brick"
	"github.com/matzehuels/bricklayers/pkg/pipeline"
	"github.com/matzehuels/bricklayers/pkg/vocab"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for bricklayers.

To load completions:

Bash:
  $ source <(bricklayers completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ bricklayers completion bash > /etc/bash_completion.d/bricklayers
  # macOS:
  $ bricklayers completion bash > $(brew --prefix)/etc/bash_completion.d/bricklayers

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ bricklayers completion zsh > "${fpath[1]}/_bricklayers"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ bricklayers completion fish | source

  # To load completions for each session, execute once:
  $ bricklayers completion fish > ~/.config/fish/completions/bricklayers.fish

PowerShell:
  PS> bricklayers completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> bricklayers completion powershell > bricklayers.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}

// completeValues returns a completion function offering fixed values.
func completeValues(values ...string) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		var out []cobra.Completion
		for _, v := range values {
			if strings.HasPrefix(v, toComplete) {
				out = append(out, v)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

// registerEngineCompletions wires value completion for the engine flags.
func registerEngineCompletions(cmd *cobra.Command) {
	features := make([]string, 0, 3)
	for _, t := range vocab.PerimeterTags() {
		features = append(features, string(t))
	}
	_ = cmd.RegisterFlagCompletionFunc("dialect", completeValues(vocab.Dialects()...))
	_ = cmd.RegisterFlagCompletionFunc("parity", completeValues(brick.ParityOdd.String(), brick.ParityEven.String()))
	_ = cmd.RegisterFlagCompletionFunc("features", completeValues(features...))
	_ = cmd.RegisterFlagCompletionFunc("vocabulary", func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		return []cobra.Completion{"toml", "yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
	})
}

// registerFormatCompletion wires value completion for inspect --format.
func registerFormatCompletion(cmd *cobra.Command) {
	formats := make([]string, 0, len(pipeline.ValidFormats))
	for f := range pipeline.ValidFormats {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	_ = cmd.RegisterFlagCompletionFunc("format", completeValues(formats...))
}
