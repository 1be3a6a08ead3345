package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(completionCmd)
	settingsGetCmd.ValidArgsFunction = completeSettingKeys
}

var completionCmd = &cobra.Command{
	Use:   "completion bash|zsh|fish|powershell",
	Short: "Generate shell completion scripts",
	Long: `Generate a completion script for floki.

  source <(floki completion bash)
  floki completion zsh > "${fpath[1]}/_floki"
  floki completion fish > ~/.config/fish/completions/floki.fish`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  usageArgs(cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)),
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
		return &usageError{err: fmt.Errorf("unsupported shell %q", args[0])}
	},
}

// completeSettingKeys offers the dotted setting keys for "settings get".
func completeSettingKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var keys []string
	for _, k := range viper.AllKeys() {
		if strings.HasPrefix(k, toComplete) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, cobra.ShellCompDirectiveNoFileComp
}
