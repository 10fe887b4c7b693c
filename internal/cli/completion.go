package cli

import (
	"os"

	"github.com/kilupskalvis/dcbranch/internal/config"
	"github.com/kilupskalvis/dcbranch/internal/store"
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for dcb. Branch names are completed
for checkout, discard and the --branch flags.

To load completions:

Bash:
  $ source <(dcb completion bash)

Zsh:
  $ dcb completion zsh > "${fpath[1]}/_dcb"

Fish:
  $ dcb completion fish > ~/.config/fish/completions/dcb.fish

PowerShell:
  PS> dcb completion powershell | Out-String | Invoke-Expression
`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = rootCmd.GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			err = rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			err = rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			exitError("%v", err)
		}
	},
}

// sessionBranches reads branch names from the saved session without
// touching the inventory. Errors yield no suggestions.
func sessionBranches(openOnly bool) []string {
	cfg, err := config.Load()
	if err != nil {
		return nil
	}
	st, err := store.OpenReadOnly(cfg.SessionPath())
	if err != nil {
		return nil
	}
	defer st.Close()

	state, err := st.LoadState()
	if err != nil || state == nil {
		return []string{cfg.RootBranch}
	}

	var names []string
	for _, b := range state.Branches {
		if openOnly && !b.IsOpen() {
			continue
		}
		names = append(names, b.Name)
	}
	return names
}

func completeBranches(openOnly bool) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return sessionBranches(openOnly), cobra.ShellCompDirectiveNoFileComp
	}
}

func init() {
	rootCmd.AddCommand(completionCmd)

	checkoutCmd.ValidArgsFunction = completeBranches(false)
	discardCmd.ValidArgsFunction = completeBranches(true)
}
