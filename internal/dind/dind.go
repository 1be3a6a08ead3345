// Package dind decides how a launched container reaches a docker daemon.
package dind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/jakenelson/floki/internal/config"
	"github.com/jakenelson/floki/internal/security"
)

const (
	// DefaultSocket is where the host daemon normally listens
	DefaultSocket = "/var/run/docker.sock"

	// ContainerSocket is where a sibling socket is mounted inside the container
	ContainerSocket = "/var/run/docker.sock"

	// NestedHost is the DOCKER_HOST of a nested daemon sharing the container's network
	NestedHost = "tcp://localhost:2375"
)

// ErrDindSocketUnavailable is the sentinel wrapped by DindSocketUnavailableError.
var ErrDindSocketUnavailable = errors.New("docker socket unavailable")

// DindSocketUnavailableError is returned when sibling mode is requested, no
// host socket can be found, and no fallback was configured.
type DindSocketUnavailableError struct {
	Searched []string
}

func (e *DindSocketUnavailableError) Error() string {
	return fmt.Sprintf("dind mode sibling needs a docker socket but none was found (searched %s); set dind.fallback to nested or none",
		strings.Join(e.Searched, ", "))
}

func (e *DindSocketUnavailableError) Unwrap() error { return ErrDindSocketUnavailable }

// Kind is the shape of docker access given to the container
type Kind int

const (
	None Kind = iota
	Sibling
	Nested
)

func (k Kind) String() string {
	switch k {
	case Sibling:
		return "sibling"
	case Nested:
		return "nested"
	default:
		return "none"
	}
}

// Mount is a host path bound into the container
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Augmentation is what the launch needs to add for docker access
type Augmentation struct {
	Kind   Kind
	Socket string // host socket path, Sibling only
	Image  string // daemon image, Nested only
}

// Mounts returns the mounts the augmentation contributes
func (a Augmentation) Mounts() []Mount {
	if a.Kind != Sibling {
		return nil
	}
	return []Mount{{HostPath: a.Socket, ContainerPath: ContainerSocket}}
}

// Env returns the KEY=VALUE entries the augmentation contributes
func (a Augmentation) Env() []string {
	switch a.Kind {
	case Sibling:
		return []string{"DOCKER_HOST=unix://" + ContainerSocket}
	case Nested:
		return []string{"DOCKER_HOST=" + NestedHost}
	default:
		return nil
	}
}

// Decide applies the docker-in-docker policy. socket is the discovered host
// socket, "" when none exists. The returned string is a warning for the user
// when the policy had to degrade.
func Decide(p config.DinD, socket, defaultImage string) (Augmentation, string, error) {
	if !p.Enabled {
		return Augmentation{}, "", nil
	}

	image := p.Image
	if image == "" {
		image = defaultImage
	}
	if image == "" {
		image = config.DefaultDinDImage
	}
	nested := Augmentation{Kind: Nested, Image: image}

	switch p.Mode {
	case config.DinDNested:
		return nested, "", nil

	case config.DinDSibling:
		if socket != "" {
			return Augmentation{Kind: Sibling, Socket: socket}, "", nil
		}
		switch p.Fallback {
		case config.FallbackNested:
			return nested, "no docker socket found, falling back to a nested daemon", nil
		case config.FallbackNone:
			return Augmentation{}, "no docker socket found, launching without docker access", nil
		default:
			return Augmentation{}, "", &DindSocketUnavailableError{Searched: []string{"DOCKER_HOST", DefaultSocket}}
		}

	default:
		if socket != "" {
			return Augmentation{Kind: Sibling, Socket: socket}, "", nil
		}
		if p.Fallback == config.FallbackNested {
			return nested, "", nil
		}
		return Augmentation{}, "no docker socket found, launching without docker access", nil
	}
}

// DiscoverSocket finds the host docker socket. An explicit override is
// checked first, then a unix:// DOCKER_HOST, then the default socket path.
// It returns "" when the chosen candidate does not exist.
func DiscoverSocket(fs afero.Fs, environ []string, override string) string {
	candidate := override
	if candidate == "" {
		if host, ok := security.LookupEnv(environ, "DOCKER_HOST"); ok && strings.HasPrefix(host, "unix://") {
			candidate = strings.TrimPrefix(host, "unix://")
		}
	}
	if candidate == "" {
		candidate = DefaultSocket
	}
	if _, err := fs.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}
