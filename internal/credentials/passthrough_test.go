package credentials

import (
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func TestCollectSSHAgent(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/tmp/ssh-XYZ/agent.123", nil, 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		environ    []string
		wantMounts []Mount
		wantEnv    []string
	}{
		{
			name:    "agent socket forwarded",
			environ: []string{"SSH_AUTH_SOCK=/tmp/ssh-XYZ/agent.123"},
			wantMounts: []Mount{
				{Source: "/tmp/ssh-XYZ/agent.123", Target: "/tmp/ssh-agent.sock"},
			},
			wantEnv: []string{"SSH_AUTH_SOCK=/tmp/ssh-agent.sock"},
		},
		{
			name:    "no agent",
			environ: []string{"HOME=/home/dev"},
		},
		{
			name:    "empty value",
			environ: []string{"SSH_AUTH_SOCK="},
		},
		{
			name:    "stale socket path",
			environ: []string{"SSH_AUTH_SOCK=/tmp/ssh-gone/agent.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CollectSSHAgent(fs, tt.environ)
			if !reflect.DeepEqual(got.Mounts, tt.wantMounts) {
				t.Errorf("CollectSSHAgent() mounts = %+v, want %+v", got.Mounts, tt.wantMounts)
			}
			if !reflect.DeepEqual(got.Env, tt.wantEnv) {
				t.Errorf("CollectSSHAgent() env = %v, want %v", got.Env, tt.wantEnv)
			}
		})
	}
}

func TestHostUserString(t *testing.T) {
	if got := (HostUser{UID: 1000, GID: 100}).String(); got != "1000:100" {
		t.Errorf("HostUser.String() = %q, want 1000:100", got)
	}
}
