// Package launch aggregates everything known about one invocation into a
// fully resolved, immutable Specification.
package launch

import (
	"github.com/jakenelson/floki/internal/dind"
)

// Mount is a resolved bind mount
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
	Create        bool // create HostPath before launch if absent
}

// BuildSource describes an image built from a local context
type BuildSource struct {
	Tag        string
	Context    string // absolute
	Dockerfile string // absolute
	Target     string
}

// ImageSource is exactly one of a pull reference or a build
type ImageSource struct {
	Ref   string
	Build *BuildSource
}

// Name is the reference the container is created from
func (s ImageSource) Name() string {
	if s.Build != nil {
		return s.Build.Tag
	}
	return s.Ref
}

// Specification is a fully resolved launch. It is never modified after
// Resolve returns it; accessors hand out copies.
type Specification struct {
	root         string
	image        ImageSource
	projectMount *Mount
	mounts       []Mount
	workingDir   string
	command      []string
	env          []string
	user         string
	entrypoint   []string
	dind         dind.Augmentation
	interactive  bool
}

// Root is the host project root
func (s *Specification) Root() string { return s.root }

// Image returns the image to launch
func (s *Specification) Image() ImageSource {
	img := s.image
	if img.Build != nil {
		b := *img.Build
		img.Build = &b
	}
	return img
}

// ProjectMount returns the implicit project mount. ok is false when a
// declared volume already covers the project mount point.
func (s *Specification) ProjectMount() (m Mount, ok bool) {
	if s.projectMount == nil {
		return Mount{}, false
	}
	return *s.projectMount, true
}

// Mounts returns declared volumes, then credential mounts, then the
// docker socket mount.
func (s *Specification) Mounts() []Mount { return append([]Mount(nil), s.mounts...) }

// AllMounts returns ProjectMount, when present, followed by Mounts
func (s *Specification) AllMounts() []Mount {
	all := make([]Mount, 0, len(s.mounts)+1)
	if s.projectMount != nil {
		all = append(all, *s.projectMount)
	}
	return append(all, s.mounts...)
}

// WorkingDir is the in-container working directory
func (s *Specification) WorkingDir() string { return s.workingDir }

// Command is the argv executed in the container
func (s *Specification) Command() []string { return append([]string(nil), s.command...) }

// Env is the sorted KEY=VALUE environment
func (s *Specification) Env() []string { return append([]string(nil), s.env...) }

// User is the container user, "" for the image default
func (s *Specification) User() string { return s.user }

// Entrypoint returns the entrypoint override. ok is false when the image's
// own entrypoint is kept; an empty override clears it.
func (s *Specification) Entrypoint() (cmd []string, ok bool) {
	if s.entrypoint == nil {
		return nil, false
	}
	return append([]string{}, s.entrypoint...), true
}

// DinD is the docker-in-docker augmentation
func (s *Specification) DinD() dind.Augmentation { return s.dind }

// Interactive reports whether stdin and a TTY are attached
func (s *Specification) Interactive() bool { return s.interactive }
