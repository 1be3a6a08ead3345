package volumes

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/afero"

	"github.com/jakenelson/floki/internal/config"
	"github.com/jakenelson/floki/internal/security"
)

func testOptions(t *testing.T, dirs ...string) Options {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, d := range dirs {
		if err := fs.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return Options{
		Root:       "/home/dev/proj",
		MountPoint: "/src",
		Home:       "/home/dev",
		Environ:    []string{"CACHE_ROOT=/var/cache"},
		Fs:         fs,
	}
}

func TestResolveDefaults(t *testing.T) {
	opts := testOptions(t, "/home/dev/proj/cache", "/home/dev/.m2", "/opt/tools", "/var/cache/go", "/home/dev/proj")

	decls := []config.Volume{
		{Host: "cache", Container: "/root/.cache"},
		{Host: "~/.m2", Container: "/root/.m2", ReadOnly: true},
		{Host: "/opt/tools"},
		{Host: "cache"},
		{Host: "$CACHE_ROOT/go", Container: "/go/cache"},
		{Host: ".", Container: "/work"},
	}

	got, err := Resolve(decls, opts)
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	want := []VolumeMount{
		{HostPath: "/home/dev/proj/cache", ContainerPath: "/root/.cache"},
		{HostPath: "/home/dev/.m2", ContainerPath: "/root/.m2", ReadOnly: true},
		{HostPath: "/opt/tools", ContainerPath: "/opt/tools"},
		{HostPath: "/home/dev/proj/cache", ContainerPath: "/src/cache"},
		{HostPath: "/var/cache/go", ContainerPath: "/go/cache"},
		{HostPath: "/home/dev/proj", ContainerPath: "/work"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestResolveEmpty(t *testing.T) {
	got, err := Resolve(nil, testOptions(t))
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve(nil) = %v, want empty", got)
	}
}

func TestResolveAnchoredToRootNotProcessDir(t *testing.T) {
	opts := testOptions(t, "/home/dev/proj/cache")
	decls := []config.Volume{{Host: "./cache", Container: "/cache"}}

	first, err := Resolve(decls, opts)
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	second, err := Resolve(decls, opts)
	if err != nil {
		t.Fatalf("Resolve() unexpected error after chdir: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Resolve() changed with process cwd: %+v vs %+v", first, second)
	}
	if first[0].HostPath != "/home/dev/proj/cache" {
		t.Errorf("HostPath = %q, want /home/dev/proj/cache", first[0].HostPath)
	}
}

func TestResolveCollisions(t *testing.T) {
	dirs := []string{"/a", "/b", "/c"}

	tests := []struct {
		name      string
		decls     []config.Volume
		want      []VolumeMount
		wantPaths []string
	}{
		{
			name: "two plain declarations conflict",
			decls: []config.Volume{
				{Host: "/a", Container: "/data"},
				{Host: "/b", Container: "/data"},
			},
			wantPaths: []string{"/data"},
		},
		{
			name: "later switch wins",
			decls: []config.Volume{
				{Host: "/a", Container: "/data"},
				{Host: "/b", Container: "/data", Switch: true, ReadOnly: true},
			},
			want: []VolumeMount{
				{HostPath: "/b", ContainerPath: "/data", Switch: true, ReadOnly: true},
			},
		},
		{
			name: "last of several switches wins in first slot",
			decls: []config.Volume{
				{Host: "/a", Container: "/data"},
				{Host: "/c", Container: "/other"},
				{Host: "/b", Container: "/data", Switch: true},
				{Host: "/c", Container: "/data", Switch: true},
			},
			want: []VolumeMount{
				{HostPath: "/c", ContainerPath: "/data", Switch: true},
				{HostPath: "/c", ContainerPath: "/other"},
			},
		},
		{
			name: "earlier switch survives a later plain declaration",
			decls: []config.Volume{
				{Host: "/a", Container: "/data", Switch: true},
				{Host: "/b", Container: "/data"},
			},
			want: []VolumeMount{
				{HostPath: "/a", ContainerPath: "/data", Switch: true},
			},
		},
		{
			name: "paths compared after cleaning",
			decls: []config.Volume{
				{Host: "/a", Container: "/data/"},
				{Host: "/b", Container: "/data/./"},
			},
			wantPaths: []string{"/data"},
		},
		{
			name: "every colliding path listed once",
			decls: []config.Volume{
				{Host: "/a", Container: "/x"},
				{Host: "/b", Container: "/x"},
				{Host: "/c", Container: "/x"},
				{Host: "/a", Container: "/y"},
				{Host: "/b", Container: "/y"},
			},
			wantPaths: []string{"/x", "/y"},
		},
		{
			name: "plain pair conflicts even if a later switch follows",
			decls: []config.Volume{
				{Host: "/a", Container: "/x"},
				{Host: "/b", Container: "/x"},
				{Host: "/c", Container: "/x", Switch: true},
			},
			wantPaths: []string{"/x"},
		},
		{
			name: "plain pair conflicts with a switch between them",
			decls: []config.Volume{
				{Host: "/a", Container: "/x"},
				{Host: "/b", Container: "/x", Switch: true},
				{Host: "/c", Container: "/x"},
			},
			wantPaths: []string{"/x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.decls, testOptions(t, dirs...))

			if tt.wantPaths != nil {
				var conflict *VolumeConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("Resolve() error = %v, want VolumeConflictError", err)
				}
				if !errors.Is(err, ErrVolumeConflict) {
					t.Error("Resolve() error should wrap ErrVolumeConflict")
				}
				if !reflect.DeepEqual(conflict.Paths, tt.wantPaths) {
					t.Errorf("VolumeConflictError.Paths = %v, want %v", conflict.Paths, tt.wantPaths)
				}
				return
			}

			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveDerivedMountPoint(t *testing.T) {
	tests := []struct {
		name  string
		mount string
		decls []config.Volume
		want  []VolumeMount
	}{
		{
			name: "defaults follow a declared root mount",
			decls: []config.Volume{
				{Host: ".", Container: "/work"},
				{Host: "./cache"},
			},
			want: []VolumeMount{
				{HostPath: "/home/dev/proj", ContainerPath: "/work"},
				{HostPath: "/home/dev/proj/cache", ContainerPath: "/work/cache"},
			},
		},
		{
			name: "root declared after the default",
			decls: []config.Volume{
				{Host: "./cache"},
				{Host: ".", Container: "/work"},
			},
			want: []VolumeMount{
				{HostPath: "/home/dev/proj/cache", ContainerPath: "/work/cache"},
				{HostPath: "/home/dev/proj", ContainerPath: "/work"},
			},
		},
		{
			name: "no root declaration uses the default mount",
			decls: []config.Volume{
				{Host: "./cache"},
			},
			want: []VolumeMount{
				{HostPath: "/home/dev/proj/cache", ContainerPath: "/src/cache"},
			},
		},
		{
			name: "root switched away from its slot",
			decls: []config.Volume{
				{Host: ".", Container: "/work"},
				{Host: "/opt/tools", Container: "/work", Switch: true},
				{Host: "./cache"},
			},
			want: []VolumeMount{
				{HostPath: "/opt/tools", ContainerPath: "/work", Switch: true},
				{HostPath: "/home/dev/proj/cache", ContainerPath: "/src/cache"},
			},
		},
		{
			name:  "explicit mount wins",
			mount: "/code",
			decls: []config.Volume{
				{Host: ".", Container: "/work"},
				{Host: "./cache"},
			},
			want: []VolumeMount{
				{HostPath: "/home/dev/proj", ContainerPath: "/work"},
				{HostPath: "/home/dev/proj/cache", ContainerPath: "/code/cache"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t, "/home/dev/proj/cache", "/opt/tools")
			opts.MountPoint = tt.mount

			got, err := Resolve(tt.decls, opts)
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveHostPathMissing(t *testing.T) {
	opts := testOptions(t)

	_, err := Resolve([]config.Volume{{Host: "missing", Container: "/m"}}, opts)

	var missing *VolumeHostPathMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Resolve() error = %v, want VolumeHostPathMissingError", err)
	}
	if missing.Path != "/home/dev/proj/missing" {
		t.Errorf("VolumeHostPathMissingError.Path = %q", missing.Path)
	}
}

func TestResolveCreateIfAbsent(t *testing.T) {
	opts := testOptions(t)

	got, err := Resolve([]config.Volume{{Host: "build-cache", Container: "/cache", Create: true}}, opts)
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if !got[0].Create {
		t.Error("VolumeMount.Create should be carried through")
	}
	if ok, _ := afero.Exists(opts.Fs, "/home/dev/proj/build-cache"); ok {
		t.Error("Resolve() must not create host paths")
	}
}

func TestResolveOverriddenMissingPathIgnored(t *testing.T) {
	opts := testOptions(t, "/b")

	_, err := Resolve([]config.Volume{
		{Host: "/gone", Container: "/data"},
		{Host: "/b", Container: "/data", Switch: true},
	}, opts)
	if err != nil {
		t.Errorf("Resolve() unexpected error for overridden declaration: %v", err)
	}
}

func TestResolveUnresolvedVariable(t *testing.T) {
	_, err := Resolve([]config.Volume{{Host: "$NOPE/cache", Container: "/c"}}, testOptions(t))
	if !errors.Is(err, security.ErrUnresolvedVariable) {
		t.Errorf("Resolve() error = %v, want ErrUnresolvedVariable", err)
	}
}

func TestResolveDeniedPath(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		opts := testOptions(t, "/home/dev/.gnupg")

		_, err := Resolve([]config.Volume{{Host: "~/.gnupg", Container: "/gpg"}}, opts)
		if !errors.Is(err, security.ErrVolumeDenied) {
			t.Errorf("Resolve() error = %v, want ErrVolumeDenied", err)
		}
	})

	t.Run("through a project symlink", func(t *testing.T) {
		home, err := filepath.EvalSymlinks(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		root := filepath.Join(home, "proj")
		creds := filepath.Join(home, ".aws", "credentials")
		if err := os.MkdirAll(filepath.Dir(creds), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(creds, []byte("secret"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(creds, filepath.Join(root, "creds")); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(filepath.Join(home, ".aws"), filepath.Join(root, "aws")); err != nil {
			t.Fatal(err)
		}

		opts := Options{Root: root, MountPoint: "/src", Home: home, Fs: afero.NewOsFs()}
		for _, host := range []string{"./creds", "./aws/credentials"} {
			_, err := Resolve([]config.Volume{{Host: host, Container: "/c"}}, opts)
			if !errors.Is(err, security.ErrVolumeDenied) {
				t.Errorf("Resolve(%s) error = %v, want ErrVolumeDenied", host, err)
			}
		}

		if err := os.Mkdir(filepath.Join(root, "cache"), 0755); err != nil {
			t.Fatal(err)
		}
		if _, err := Resolve([]config.Volume{{Host: "./cache"}}, opts); err != nil {
			t.Errorf("Resolve(./cache) unexpected error: %v", err)
		}
	})
}
