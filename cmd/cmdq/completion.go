package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/musher-dev/cmdq/internal/errors"
)

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for your shell and load it from your
shell profile.`,
		Example: `  source <(cmdq completion bash)
  cmdq completion zsh > "${fpath[1]}/_cmdq"
  cmdq completion fish > ~/.config/fish/completions/cmdq.fish
  cmdq completion powershell | Out-String | Invoke-Expression`,
		Args:                  cobra.ExactArgs(1),
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			w := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(w, true)
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(w)
			default:
				return clierrors.New(clierrors.ExitUsage, "Unsupported shell: "+args[0]).
					WithHint("Use one of: bash, zsh, fish, powershell")
			}
		},
	}
}
