package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/moby/term"
	"github.com/spf13/cobra"

	"github.com/jakenelson/floki/internal/config"
	"github.com/jakenelson/floki/internal/credentials"
	"github.com/jakenelson/floki/internal/dind"
	"github.com/jakenelson/floki/internal/discovery"
	"github.com/jakenelson/floki/internal/launch"
	"github.com/jakenelson/floki/internal/security"
	"github.com/jakenelson/floki/internal/volumes"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--] command [args...]",
	Short: "Run a command in the project container",
	Long: `Run a command inside the project container and exit with its status.

Everything after -- is passed to the inner shell unchanged.

Examples:
  floki run -- make test
  floki run -- go test ./... -run TestResolve`,
	Args: usageArgs(cobra.MinimumNArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		return launchContainer(cmd, args)
	},
}

func launchContainer(cmd *cobra.Command, command []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, isTerm := term.GetFdInfo(stdin)
	spec, err := prepare(command, len(command) == 0 || isTerm)
	if err != nil {
		return err
	}

	runner, err := newRunner(ctx)
	if err != nil {
		return inStage(launchStage, err)
	}
	defer runner.Close()

	code, err := runner.Run(ctx, spec)
	if err != nil {
		err = inStage(launchStage, err)
		if code == 0 {
			return err
		}
		report(err)
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// loadProject finds and validates the project configuration
func loadProject() (*discovery.ProjectEnvironment, *config.Config, error) {
	if settings == nil {
		settings = config.LoadSettings()
	}

	wd, err := getwd()
	if err != nil {
		return nil, nil, inStage("discovery", err)
	}
	env, err := discovery.Gather(discovery.GatherOptions{
		ConfigFile: configFile,
		WorkingDir: wd,
		Names:      settings.ConfigNames,
		Fs:         appFs,
	})
	if err != nil {
		return nil, nil, inStage("discovery", err)
	}
	logger.Debug("found project", "config", env.ConfigFile, "root", env.Root)

	data, err := env.ReadConfig(appFs)
	if err != nil {
		return nil, nil, inStage("config", err)
	}
	cfg, err := config.Load(data, config.ValidateOptions{ValidateShell: settings.StrictShell})
	if err != nil {
		return nil, nil, inStage("config", err)
	}
	return env, cfg, nil
}

// prepare runs everything up to a launch specification. Nothing it calls
// touches the container runtime.
func prepare(command []string, interactive bool) (*launch.Specification, error) {
	env, cfg, err := loadProject()
	if err != nil {
		return nil, err
	}

	vars := environ()
	home, _ := security.LookupEnv(vars, "HOME")

	mounts, err := volumes.Resolve(cfg.Volumes, volumes.Options{
		Root:       env.Root,
		MountPoint: cfg.Mount,
		Home:       home,
		Environ:    vars,
		Fs:         appFs,
	})
	if err != nil {
		return nil, inStage("volumes", err)
	}

	socket := ""
	if cfg.DinD.Enabled {
		socket = dind.DiscoverSocket(appFs, vars, settings.Docker.Socket)
	}
	aug, warning, err := dind.Decide(cfg.DinD, socket, settings.DinD.Image)
	if err != nil {
		return nil, inStage("dind", err)
	}
	if warning != "" {
		logger.Warn(warning)
	}

	var forwarded credentials.Forwarded
	if cfg.ForwardSSHAgent {
		forwarded = credentials.CollectSSHAgent(appFs, vars)
		if len(forwarded.Mounts) == 0 {
			logger.Warn("forward_ssh_agent is set but no ssh-agent socket was found")
		}
	}

	spec, err := launch.Resolve(launch.Input{
		Env:         env,
		Config:      cfg,
		Mounts:      mounts,
		DinD:        aug,
		Credentials: forwarded,
		Invocation: launch.Invocation{
			Command:     command,
			Startup:     readStartup(home, vars),
			Environ:     vars,
			User:        credentials.CurrentUser(),
			Interactive: interactive,
		},
	})
	if err != nil {
		return nil, inStage("resolve", err)
	}
	logger.Info("launching", "image", spec.Image().Name(), "workdir", spec.WorkingDir(), "dind", spec.DinD().Kind)

	return spec, nil
}

func readStartup(home string, vars []string) string {
	if settings.StartupScript == "" || home == "" {
		return ""
	}
	path, err := security.ExpandPath(settings.StartupScript, home, home, vars)
	if err != nil {
		logger.Debug("ignoring startup script", "path", settings.StartupScript, "err", err)
		return ""
	}
	return discovery.ReadStartup(appFs, discovery.DirLocator{Fs: appFs}, path)
}
