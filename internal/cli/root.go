package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jakenelson/floki/internal/config"
	"github.com/jakenelson/floki/internal/container"
	"github.com/jakenelson/floki/internal/launch"
)

var (
	configFile   string
	settingsFile string
	verbosity    int
	settings     *config.Settings
)

// Collaborators replaced in tests
var (
	appFs   afero.Fs = afero.NewOsFs()
	getwd            = os.Getwd
	environ          = os.Environ
	stdin   io.Reader = os.Stdin

	newRunner = func(ctx context.Context) (launchRunner, error) {
		return container.NewRunner(ctx, logger, container.Streams{In: stdin, Out: os.Stdout, Err: os.Stderr})
	}
)

// launchRunner is the part of container.Runner the commands use
type launchRunner interface {
	Run(ctx context.Context, spec *launch.Specification) (int, error)
	Pull(ctx context.Context, src launch.ImageSource) error
	Close() error
}

var rootCmd = &cobra.Command{
	Use:   "floki",
	Short: "Launch a reproducible development container for this project",
	Long: `floki reads floki.yaml from the current directory or the nearest parent,
mounts the project into the configured image and starts a shell there.

Examples:
  floki                          # Interactive shell in the project container
  floki run -- make test         # Run a command and exit with its status
  floki -c ci/floki.yaml run ls  # Use an explicit config file
  floki pull                     # Pull or build the image without launching`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return launchContainer(cmd, nil)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setVerbosity(verbosity)
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	cobra.OnInitialize(initSettings)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "project config file (default: nearest floki.yaml)")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default is $HOME/.config/floki/settings.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase logging (-v info, -vv debug, -vvv debug with callers)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})
}

func initSettings() {
	if settingsFile != "" {
		viper.SetConfigFile(settingsFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.Warn("could not find home directory", "err", err)
		} else {
			viper.AddConfigPath(filepath.Join(home, ".config", "floki"))
		}
		viper.SetConfigName("settings")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FLOKI")
	viper.AutomaticEnv()

	// Read settings file (ignore if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Warn("error reading settings file", "err", err)
		}
	}

	settings = config.LoadSettings()
}
