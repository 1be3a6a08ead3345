package cli

import (
	"github.com/spf13/cobra"

	"github.com/jakenelson/floki/internal/launch"
)

func init() {
	rootCmd.AddCommand(pullCmd)
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull or build the project image",
	Long: `Pull the configured image, or build it when floki.yaml has an image.build
section, without launching a container. The image is fetched even when a
local copy exists. Volumes, environment passthrough and docker-in-docker are
not checked.

Examples:
  floki pull
  floki -c ci/floki.yaml pull`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, cfg, err := loadProject()
		if err != nil {
			return err
		}
		src, err := launch.ResolveImage(cfg.Image, env.Root)
		if err != nil {
			return inStage("resolve", err)
		}

		runner, err := newRunner(cmd.Context())
		if err != nil {
			return inStage(launchStage, err)
		}
		defer runner.Close()

		if err := runner.Pull(cmd.Context(), src); err != nil {
			return inStage(launchStage, err)
		}

		logger.Info("image ready", "image", src.Name())
		return nil
	},
}
