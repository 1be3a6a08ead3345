// Package container runs a launch specification on a docker daemon.
package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	containerTypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/moby/term"
	"github.com/spf13/afero"

	"github.com/jakenelson/floki/internal/dind"
	"github.com/jakenelson/floki/internal/launch"
)

// Runner manages Docker container operations
type Runner struct {
	api     API
	fs      afero.Fs
	logger  *log.Logger
	streams Streams
}

// NewRunner connects to the daemon described by the environment
func NewRunner(ctx context.Context, logger *log.Logger, streams Streams) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &RuntimeInvocationError{Op: "create Docker client", Err: err}
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, &RuntimeInvocationError{Op: "connect to Docker", Err: err}
	}

	return NewRunnerWithAPI(cli, afero.NewOsFs(), logger, streams), nil
}

// NewRunnerWithAPI builds a Runner over an existing client
func NewRunnerWithAPI(api API, fs afero.Fs, logger *log.Logger, streams Streams) *Runner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if streams.In == nil {
		streams.In = os.Stdin
	}
	if streams.Out == nil {
		streams.Out = os.Stdout
	}
	if streams.Err == nil {
		streams.Err = os.Stderr
	}
	return &Runner{api: api, fs: fs, logger: logger, streams: streams}
}

// Close closes the Docker client
func (r *Runner) Close() error {
	return r.api.Close()
}

// Run launches spec and blocks until the container exits, returning its exit
// code. Cancelling ctx stops the container; its exit status is still
// returned. The container is removed on every path.
func (r *Runner) Run(ctx context.Context, spec *launch.Specification) (int, error) {
	if err := r.EnsureImage(ctx, spec.Image()); err != nil {
		return 0, err
	}

	for _, m := range spec.Mounts() {
		if !m.Create {
			continue
		}
		if err := r.fs.MkdirAll(m.HostPath, 0755); err != nil {
			return 0, &RuntimeInvocationError{Op: "create volume " + m.HostPath, Err: err}
		}
	}

	hostConfig := &containerTypes.HostConfig{
		Mounts: bindMounts(spec.AllMounts()),
	}

	if aug := spec.DinD(); aug.Kind == dind.Nested {
		daemonID, err := r.startDaemon(ctx, spec, aug)
		if daemonID != "" {
			defer r.remove(daemonID)
		}
		if err != nil {
			return 0, err
		}
		hostConfig.NetworkMode = containerTypes.NetworkMode("container:" + daemonID)
	}

	interactive := spec.Interactive()
	containerConfig := &containerTypes.Config{
		Image:        spec.Image().Name(),
		Cmd:          strslice.StrSlice(spec.Command()),
		Env:          spec.Env(),
		WorkingDir:   spec.WorkingDir(),
		User:         spec.User(),
		Tty:          interactive,
		OpenStdin:    interactive,
		StdinOnce:    interactive,
		AttachStdin:  interactive,
		AttachStdout: true,
		AttachStderr: true,
	}
	if ep, ok := spec.Entrypoint(); ok {
		if len(ep) == 0 {
			ep = []string{""}
		}
		containerConfig.Entrypoint = strslice.StrSlice(ep)
	}

	resp, err := r.api.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName("floki"))
	if err != nil {
		return 0, &RuntimeInvocationError{Op: "create container", Err: err}
	}
	containerID := resp.ID
	for _, w := range resp.Warnings {
		r.logger.Warn(w)
	}
	defer r.remove(containerID)
	r.logger.Debug("created container", "id", containerID, "image", containerConfig.Image, "cmd", containerConfig.Cmd)

	attachResp, err := r.api.ContainerAttach(ctx, containerID, containerTypes.AttachOptions{
		Stream: true,
		Stdin:  interactive,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return 0, &RuntimeInvocationError{Op: "attach to container", Err: err}
	}
	defer attachResp.Close()

	outputDone := make(chan error, 1)
	go func() {
		var err error
		if interactive {
			_, err = io.Copy(r.streams.Out, attachResp.Reader)
		} else {
			_, err = stdcopy.StdCopy(r.streams.Out, r.streams.Err, attachResp.Reader)
		}
		outputDone <- err
	}()

	if err := r.api.ContainerStart(ctx, containerID, containerTypes.StartOptions{}); err != nil {
		return 0, &RuntimeInvocationError{Op: "start container", Err: err}
	}

	if interactive {
		if fd, isTerm := term.GetFdInfo(r.streams.In); isTerm {
			r.resizeTty(ctx, containerID)

			oldState, err := term.SetRawTerminal(fd)
			if err != nil {
				return r.stop(containerID, fmt.Errorf("failed to set raw terminal: %w", err))
			}
			defer term.RestoreTerminal(fd, oldState)

			resizeCtx, stopResize := context.WithCancel(ctx)
			defer stopResize()
			go r.monitorTtySize(resizeCtx, containerID)
		}

		go func() {
			io.Copy(attachResp.Conn, r.streams.In)
			attachResp.CloseWrite()
		}()
	}

	statusCh, errCh := r.api.ContainerWait(ctx, containerID, containerTypes.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		<-outputDone
		if status.Error != nil && status.Error.Message != "" {
			r.logger.Warn("container wait reported an error", "err", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return r.stop(containerID, nil)
		}
		return 0, &RuntimeInvocationError{Op: "wait for container", Err: err}
	case <-ctx.Done():
		return r.stop(containerID, nil)
	}
}

// stop stops a container after the launch was cancelled and reports its
// exit status. cause, when set, is returned alongside the status.
func (r *Runner) stop(containerID string, cause error) (int, error) {
	r.logger.Info("stopping container", "id", containerID)

	ctx := context.Background()
	timeout := stopTimeout
	if err := r.api.ContainerStop(ctx, containerID, containerTypes.StopOptions{Timeout: &timeout}); err != nil {
		r.logger.Debug("failed to stop container", "id", containerID, "err", err)
		return signalledExit, cause
	}

	statusCh, errCh := r.api.ContainerWait(ctx, containerID, containerTypes.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return int(status.StatusCode), cause
		}
	case <-errCh:
	}
	return signalledExit, cause
}

// startDaemon starts a privileged docker:dind sidecar whose network
// namespace the launched container joins.
func (r *Runner) startDaemon(ctx context.Context, spec *launch.Specification, aug dind.Augmentation) (string, error) {
	src := launch.ImageSource{Ref: aug.Image}
	if err := r.EnsureImage(ctx, src); err != nil {
		return "", err
	}

	resp, err := r.api.ContainerCreate(ctx,
		&containerTypes.Config{
			Image: aug.Image,
			Env:   []string{"DOCKER_TLS_CERTDIR="},
		},
		&containerTypes.HostConfig{
			Privileged: true,
			Mounts:     bindMounts(spec.AllMounts()),
		},
		nil, nil, containerName("floki-dind"))
	if err != nil {
		return "", &RuntimeInvocationError{Op: "create dind container", Err: err}
	}

	if err := r.api.ContainerStart(ctx, resp.ID, containerTypes.StartOptions{}); err != nil {
		return resp.ID, &RuntimeInvocationError{Op: "start dind container", Err: err}
	}
	r.logger.Debug("started dind daemon", "id", resp.ID, "image", aug.Image)

	return resp.ID, nil
}

func (r *Runner) remove(containerID string) {
	err := r.api.ContainerRemove(context.Background(), containerID, containerTypes.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		r.logger.Debug("failed to remove container", "id", containerID, "err", err)
	}
}

// resizeTty resizes the container TTY to match the current terminal size
func (r *Runner) resizeTty(ctx context.Context, containerID string) {
	fd, isTerm := term.GetFdInfo(r.streams.Out)
	if !isTerm {
		return
	}
	winsize, err := term.GetWinsize(fd)
	if err != nil {
		return
	}
	r.api.ContainerResize(ctx, containerID, containerTypes.ResizeOptions{
		Height: uint(winsize.Height),
		Width:  uint(winsize.Width),
	})
}

// monitorTtySize monitors terminal size changes and resizes the container TTY
func (r *Runner) monitorTtySize(ctx context.Context, containerID string) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			r.resizeTty(ctx, containerID)
		case <-ctx.Done():
			return
		}
	}
}

func bindMounts(mounts []launch.Mount) []mount.Mount {
	out := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		out = append(out, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.HostPath,
			Target:   m.ContainerPath,
			ReadOnly: m.ReadOnly,
		})
	}
	return out
}

func containerName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
