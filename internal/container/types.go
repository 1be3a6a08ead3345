package container

import (
	"context"
	"io"

	"github.com/docker/docker/api/types"
	containerTypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// API is the part of the docker client the runner uses
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ContainerCreate(ctx context.Context, config *containerTypes.Config, hostConfig *containerTypes.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (containerTypes.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options containerTypes.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options containerTypes.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition containerTypes.WaitCondition) (<-chan containerTypes.WaitResponse, <-chan error)
	ContainerStop(ctx context.Context, containerID string, options containerTypes.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options containerTypes.RemoveOptions) error
	ContainerResize(ctx context.Context, containerID string, options containerTypes.ResizeOptions) error
	Close() error
}

// Streams are the caller's standard streams
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

const (
	// stopTimeout is how long a stopped container gets before it is killed
	stopTimeout = 10

	// signalledExit is reported when a stopped container's status is unknown
	signalledExit = 128 + 15
)
