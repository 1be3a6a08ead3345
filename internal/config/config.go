package config

// Config is the validated contents of a floki.yaml file. It is produced by
// Document.Validate and never modified afterwards.
type Config struct {
	Image           Image
	Mount           string // in-container project mount point, "" when not configured
	Shell           Shell
	Init            []string
	Volumes         []Volume
	Environment     []EnvVar
	DinD            DinD
	Entrypoint      Entrypoint
	ForwardSSHAgent bool
	ForwardUser     bool
}

// Image is either a reference to pull or a build specification, never both
type Image struct {
	Pull  string
	Build *Build
}

// IsBuild reports whether the image is built from a context
func (i Image) IsBuild() bool {
	return i.Build != nil
}

// Build describes an image built from a local context
type Build struct {
	Name       string // tag for the built image, "" to derive one from the project
	Context    string // relative to the project root unless absolute
	Dockerfile string // relative to the context unless absolute
	Target     string
}

// Volume is a raw volume declaration; paths are not yet resolved
type Volume struct {
	Host      string
	Container string // "" when omitted in short form
	ReadOnly  bool
	Switch    bool
	Create    bool
	Line      int
}

// Shell holds the shell used for the interactive session (Inner) and the one
// used to chain init commands in front of it (Outer)
type Shell struct {
	Inner string
	Outer string
}

// EnvVar is an environment variable passed through from the caller
type EnvVar struct {
	Name     string
	Optional bool
}

// DinD is the docker-in-docker policy
type DinD struct {
	Enabled  bool
	Mode     DinDMode
	Fallback DinDFallback
	Image    string // nested daemon image, "" for the settings default
}

// Entrypoint overrides the image entrypoint
type Entrypoint struct {
	Suppress bool
	Command  []string
}

// MountPoint returns the configured project mount point or the default
func (c *Config) MountPoint() string {
	if c.Mount != "" {
		return c.Mount
	}
	return DefaultMount
}
