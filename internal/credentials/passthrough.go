// Package credentials forwards host identity into the launched container.
package credentials

import (
	"os"
	"strconv"

	"github.com/spf13/afero"

	"github.com/jakenelson/floki/internal/security"
)

// AgentSocket is where the host ssh-agent socket is mounted in the container
const AgentSocket = "/tmp/ssh-agent.sock"

// Mount is a host path bound into the container
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Forwarded is what credential forwarding adds to a launch
type Forwarded struct {
	Mounts []Mount
	Env    []string // KEY=VALUE
}

// CollectSSHAgent forwards the caller's ssh-agent socket when SSH_AUTH_SOCK
// names one that exists. It returns nothing otherwise.
func CollectSSHAgent(fs afero.Fs, environ []string) Forwarded {
	var out Forwarded

	authSock, ok := security.LookupEnv(environ, "SSH_AUTH_SOCK")
	if !ok || authSock == "" {
		return out
	}
	if _, err := fs.Stat(authSock); err != nil {
		return out
	}

	// Sockets need to be writable to talk to the agent
	out.Mounts = append(out.Mounts, Mount{
		Source: authSock,
		Target: AgentSocket,
	})
	out.Env = append(out.Env, "SSH_AUTH_SOCK="+AgentSocket)
	return out
}

// HostUser is the numeric identity of the invoking user
type HostUser struct {
	UID int
	GID int
}

// CurrentUser returns the invoking user's uid and gid
func CurrentUser() HostUser {
	return HostUser{UID: os.Getuid(), GID: os.Getgid()}
}

// String formats the user for a container's User field
func (u HostUser) String() string {
	return strconv.Itoa(u.UID) + ":" + strconv.Itoa(u.GID)
}
