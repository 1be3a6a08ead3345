package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show floki's own settings",
	Long: `Show the launcher settings read from the settings file and FLOKI_*
environment variables. Project configuration lives in floki.yaml instead.

Examples:
  floki settings list
  floki settings get dind.image
  floki settings path`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		printSettingsFlat(cmd.OutOrStdout(), "", viper.AllSettings())
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a setting",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !viper.IsSet(key) {
			return fmt.Errorf("key not found: %s", key)
		}
		value := viper.Get(key)
		if m, ok := value.(map[string]interface{}); ok {
			printSettingsFlat(cmd.OutOrStdout(), key, m)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), value)
		}
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintln(cmd.OutOrStdout(), used)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), defaultSettingsPath())
		}
	},
}

// printSettingsFlat prints settings in dot notation
func printSettingsFlat(w io.Writer, prefix string, values map[string]interface{}) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := values[key].(map[string]interface{}); ok {
			printSettingsFlat(w, fullKey, nested)
		} else {
			fmt.Fprintf(w, "%s: %v\n", fullKey, values[key])
		}
	}
}

func defaultSettingsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "floki", "settings.yaml")
}
