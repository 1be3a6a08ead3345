// Package volumes turns volume declarations from floki.yaml into absolute,
// conflict-free mount instructions.
package volumes

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/jakenelson/floki/internal/config"
	"github.com/jakenelson/floki/internal/security"
)

var (
	// ErrVolumeConflict is the sentinel wrapped by VolumeConflictError.
	ErrVolumeConflict = errors.New("volume conflict")

	// ErrVolumeHostPathMissing is the sentinel wrapped by VolumeHostPathMissingError.
	ErrVolumeHostPathMissing = errors.New("volume host path missing")
)

// VolumeConflictError lists container paths declared more than once
// without a switch to say which declaration wins.
type VolumeConflictError struct {
	Paths []string
}

func (e *VolumeConflictError) Error() string {
	return fmt.Sprintf("container paths declared more than once without switch: %s", strings.Join(e.Paths, ", "))
}

func (e *VolumeConflictError) Unwrap() error { return ErrVolumeConflict }

// VolumeHostPathMissingError is returned when a host path does not exist and
// the declaration does not ask for it to be created.
type VolumeHostPathMissingError struct {
	Path     string
	Declared string
}

func (e *VolumeHostPathMissingError) Error() string {
	return fmt.Sprintf("host path %s (declared as %q) does not exist; set create: true to create it", e.Path, e.Declared)
}

func (e *VolumeHostPathMissingError) Unwrap() error { return ErrVolumeHostPathMissing }

// VolumeMount is one resolved bind mount
type VolumeMount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
	Switch        bool // overrides an earlier mount at the same ContainerPath
	Create        bool // HostPath is created before launch if absent
}

// Options carries what resolution is anchored to
type Options struct {
	Root       string   // project root; relative host paths resolve against it
	MountPoint string   // in-container project mount point; empty derives it
	Home       string   // caller's home directory for ~
	Environ    []string // caller's environment for $VAR references
	Fs         afero.Fs // used for existence checks and symlink resolution
}

type pending struct {
	decl config.Volume
	host string
}

// Resolve resolves declarations in order. Mounts sharing a container path
// collapse to the last declaration with Switch set, kept at the position of
// the first declaration for that path. Two declarations of a path without
// Switch are a VolumeConflictError wherever they appear.
//
// Declarations without a container path land under the project mount point.
// When opts.MountPoint is empty it is the container path of a declaration of
// the root itself, else config.DefaultMount.
func Resolve(decls []config.Volume, opts Options) ([]VolumeMount, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	hosts := make([]pending, 0, len(decls))
	for _, decl := range decls {
		host, err := resolveHost(decl, opts)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, pending{decl: decl, host: host})
	}
	if opts.MountPoint == "" {
		opts.MountPoint = mountPoint(hosts, opts.Root)
	}

	mounts := make([]VolumeMount, 0, len(decls))
	declared := make([]string, 0, len(decls))
	slots := make(map[string]int, len(decls))
	plain := make(map[string]int, len(decls))
	var conflicts []string

	for _, p := range hosts {
		m := resolveOne(p, opts)

		if !m.Switch {
			plain[m.ContainerPath]++
			if plain[m.ContainerPath] > 1 {
				conflicts = appendUnique(conflicts, m.ContainerPath)
			}
		}

		i, exists := slots[m.ContainerPath]
		switch {
		case !exists:
			slots[m.ContainerPath] = len(mounts)
			mounts = append(mounts, m)
			declared = append(declared, p.decl.Host)
		case m.Switch:
			mounts[i] = m
			declared[i] = p.decl.Host
		}
	}

	if len(conflicts) > 0 {
		return nil, &VolumeConflictError{Paths: conflicts}
	}

	for i, m := range mounts {
		if m.Create {
			continue
		}
		if ok, _ := afero.Exists(opts.Fs, m.HostPath); !ok {
			return nil, &VolumeHostPathMissingError{Path: m.HostPath, Declared: declared[i]}
		}
	}

	return mounts, nil
}

// mountPoint picks where the project root appears when floki.yaml does not
// set mount: the container path that wins for a declaration of the root.
func mountPoint(hosts []pending, root string) string {
	winner := make(map[string]string, len(hosts))
	var order []string
	for _, p := range hosts {
		if p.decl.Container == "" {
			continue
		}
		c := path.Clean(p.decl.Container)
		if _, ok := winner[c]; !ok {
			order = append(order, c)
			winner[c] = p.host
		} else if p.decl.Switch {
			winner[c] = p.host
		}
	}
	for _, c := range order {
		if winner[c] == root {
			return c
		}
	}
	return config.DefaultMount
}

func resolveHost(decl config.Volume, opts Options) (string, error) {
	host, err := security.ExpandPath(decl.Host, opts.Root, opts.Home, opts.Environ)
	if err != nil {
		return "", fmt.Errorf("volume %q: %w", decl.Host, err)
	}
	if err := security.ValidateMountPath(host, opts.Home); err != nil {
		return "", err
	}
	target, err := security.EvalSymlinks(opts.Fs, host)
	if err != nil {
		return "", fmt.Errorf("volume %q: %w", decl.Host, err)
	}
	if target != host {
		if err := security.ValidateMountPath(target, opts.Home); err != nil {
			return "", err
		}
	}
	return host, nil
}

func resolveOne(p pending, opts Options) VolumeMount {
	container := p.decl.Container
	if container == "" {
		container = defaultContainerPath(p.decl.Host, p.host, opts)
	}

	return VolumeMount{
		HostPath:      p.host,
		ContainerPath: path.Clean(container),
		ReadOnly:      p.decl.ReadOnly,
		Switch:        p.decl.Switch,
		Create:        p.decl.Create,
	}
}

// defaultContainerPath mirrors a host path inside the container: paths under
// the project root land at the same place under the mount point, anything
// else keeps its host path.
func defaultContainerPath(declared, host string, opts Options) string {
	if security.IsPathInDirectory(host, opts.Root) && !filepath.IsAbs(declared) && !strings.HasPrefix(declared, "~") {
		rel, err := filepath.Rel(opts.Root, host)
		if err == nil {
			return path.Join(opts.MountPoint, filepath.ToSlash(rel))
		}
	}
	return filepath.ToSlash(host)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
