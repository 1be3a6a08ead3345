package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakenelson/floki/internal/config"
	"github.com/jakenelson/floki/internal/container"
	"github.com/jakenelson/floki/internal/dind"
	"github.com/jakenelson/floki/internal/discovery"
	"github.com/jakenelson/floki/internal/security"
	"github.com/jakenelson/floki/internal/volumes"
)

// Process exit codes other than the container's own
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitConfigError = 125 // nothing was launched: discovery, config or resolution failed
	ExitLaunchError = 126 // the image or the container could not be brought up
)

// ExitError carries a launched container's non-zero exit code
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("container exited with code %d", e.Code)
}

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// launchStage covers everything from connecting to the runtime onwards
const launchStage = "launch"

// stageError records which step of the launch failed
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func inStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

var configErrors = []error{
	discovery.ErrConfigNotFound,
	config.ErrConfigParse,
	config.ErrConfigValidation,
	volumes.ErrVolumeConflict,
	volumes.ErrVolumeHostPathMissing,
	security.ErrVolumeDenied,
	security.ErrUnresolvedVariable,
	dind.ErrDindSocketUnavailable,
}

// exitCode maps an error returned by a command to the process exit status
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}

	if errors.Is(err, container.ErrImageResolution) || errors.Is(err, container.ErrRuntimeInvocation) {
		return ExitLaunchError
	}
	for _, target := range configErrors {
		if errors.Is(err, target) {
			return ExitConfigError
		}
	}

	var stage *stageError
	if errors.As(err, &stage) {
		if stage.stage == launchStage {
			return ExitLaunchError
		}
		return ExitConfigError
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	return ExitFailure
}

// Execute runs the root command and returns the process exit status
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var exit *ExitError
	if !errors.As(err, &exit) {
		report(err)
	}
	return exitCode(err)
}

func report(err error) {
	var stage *stageError
	if errors.As(err, &stage) {
		logger.Error(stage.err.Error(), "stage", stage.stage)
		return
	}
	logger.Error(err.Error())
}

// usageArgs reports argument validation failures as usage errors
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
