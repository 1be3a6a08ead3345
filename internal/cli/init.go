package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jakenelson/floki/internal/config"
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("image", "debian:bookworm", "image to pull")
	initCmd.Flags().String("shell", "bash", "shell to start in the container")
}

const configTemplate = `# floki configuration
image: %s

# Where the project is mounted in the container (default /src)
# mount: /src

shell: %s

# Commands run before the shell starts
init: []
  # - apt-get update

# Extra bind mounts, host[:container[:ro|rw]] or a mapping with
# host, container, read_only, switch and create
volumes: []
  # - ~/.cache/go-build:/root/.cache/go-build

# Variables passed through from the calling environment; suffix ? for optional
environment: []
  # - GOPROXY?

# Docker access from inside the container: true, or a mapping with
# mode (sibling | nested) and fallback (nested | none)
dind: false

forward_ssh_agent: false
forward_user: false
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a floki.yaml in the current directory",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, _ := cmd.Flags().GetString("image")
		shell, _ := cmd.Flags().GetString("shell")

		wd, err := getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path := filepath.Join(wd, config.DefaultConfigName)

		if ok, _ := afero.Exists(appFs, path); ok {
			return fmt.Errorf("config file already exists at %s", path)
		}

		content := fmt.Sprintf(configTemplate, image, shell)
		if _, err := config.Load([]byte(content), config.ValidateOptions{}); err != nil {
			return inStage("config", err)
		}

		if err := afero.WriteFile(appFs, path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
		return nil
	},
}
