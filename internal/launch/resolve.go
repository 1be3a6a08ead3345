package launch

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/distribution/reference"
	"mvdan.cc/sh/v3/syntax"

	"github.com/jakenelson/floki/internal/config"
	"github.com/jakenelson/floki/internal/credentials"
	"github.com/jakenelson/floki/internal/dind"
	"github.com/jakenelson/floki/internal/discovery"
	"github.com/jakenelson/floki/internal/security"
	"github.com/jakenelson/floki/internal/volumes"
)

// ForwardedVariables are passed from the caller to the container whenever set
var ForwardedVariables = []string{"TERM", "COLORTERM", "LANG", "LC_ALL", "TZ"}

// Invocation is what the caller asked for on the command line
type Invocation struct {
	Command     []string // empty for an interactive shell
	Startup     string   // user startup script, run before the shell
	Environ     []string // caller's environment
	User        credentials.HostUser
	Interactive bool
}

// Input is everything Resolve aggregates
type Input struct {
	Env         *discovery.ProjectEnvironment
	Config      *config.Config
	Mounts      []volumes.VolumeMount
	DinD        dind.Augmentation
	Credentials credentials.Forwarded
	Invocation  Invocation
}

// Resolve builds the Specification for one launch. It does no I/O.
func Resolve(in Input) (*Specification, error) {
	cfg := in.Config

	image, err := ResolveImage(cfg.Image, in.Env.Root)
	if err != nil {
		return nil, err
	}

	env, err := resolveEnv(in)
	if err != nil {
		return nil, err
	}

	base := mountBase(cfg, in.Mounts, in.Env.Root)

	spec := &Specification{
		root:        in.Env.Root,
		image:       image,
		workingDir:  path.Join(base, filepath.ToSlash(in.Env.RelativeWorkingDir())),
		command:     BuildCommand(cfg.Shell, cfg.Init, in.Invocation.Startup, in.Invocation.Command),
		env:         env,
		dind:        in.DinD,
		interactive: in.Invocation.Interactive,
	}

	covered := false
	for _, m := range in.Mounts {
		spec.mounts = append(spec.mounts, Mount{
			HostPath:      m.HostPath,
			ContainerPath: m.ContainerPath,
			ReadOnly:      m.ReadOnly,
			Create:        m.Create,
		})
		if m.ContainerPath == base {
			covered = true
		}
	}
	for _, m := range in.Credentials.Mounts {
		spec.mounts = append(spec.mounts, Mount{HostPath: m.Source, ContainerPath: m.Target, ReadOnly: m.ReadOnly})
	}
	for _, m := range in.DinD.Mounts() {
		spec.mounts = append(spec.mounts, Mount{HostPath: m.HostPath, ContainerPath: m.ContainerPath, ReadOnly: m.ReadOnly})
	}
	if !covered {
		spec.projectMount = &Mount{HostPath: in.Env.Root, ContainerPath: base}
	}

	if cfg.ForwardUser {
		spec.user = in.Invocation.User.String()
	}

	switch {
	case cfg.Entrypoint.Suppress:
		spec.entrypoint = []string{}
	case len(cfg.Entrypoint.Command) > 0:
		spec.entrypoint = append([]string{}, cfg.Entrypoint.Command...)
	}

	return spec, nil
}

// mountBase is where the project root appears in the container: an explicit
// mount, else a declared volume of the root itself, else the default.
func mountBase(cfg *config.Config, mounts []volumes.VolumeMount, root string) string {
	if cfg.Mount != "" {
		return cfg.Mount
	}
	for _, m := range mounts {
		if m.HostPath == root {
			return m.ContainerPath
		}
	}
	return config.DefaultMount
}

// BuildCommand returns the argv run in the container. With nothing to chain
// the inner shell runs directly; otherwise init commands, the startup script
// and the inner shell are joined with && under the outer shell.
func BuildCommand(shell config.Shell, init []string, startup string, command []string) []string {
	joined := strings.Join(command, " ")

	if len(init) == 0 && startup == "" {
		if len(command) == 0 {
			return []string{shell.Inner}
		}
		return []string{shell.Inner, "-c", joined}
	}

	inner := shell.Inner
	if len(command) > 0 {
		quoted, err := syntax.Quote(joined, syntax.LangBash)
		if err != nil {
			// only fails on NUL bytes, which no argv can carry
			quoted = "'" + strings.ReplaceAll(joined, "'", `'\''`) + "'"
		}
		inner = shell.Inner + " -c " + quoted
	}

	parts := make([]string, 0, len(init)+2)
	parts = append(parts, init...)
	if startup != "" {
		parts = append(parts, startup)
	}
	parts = append(parts, inner)

	return []string{shell.Outer, "-c", strings.Join(parts, " && ")}
}

func resolveEnv(in Input) ([]string, error) {
	environ := in.Invocation.Environ
	vars := make(map[string]string)

	for _, name := range ForwardedVariables {
		if v, ok := security.LookupEnv(environ, name); ok {
			vars[name] = v
		}
	}

	for _, ev := range in.Config.Environment {
		v, ok := security.LookupEnv(environ, ev.Name)
		if !ok {
			if ev.Optional {
				continue
			}
			return nil, &security.UnresolvedVariableError{Name: ev.Name, Context: "environment"}
		}
		vars[ev.Name] = v
	}

	vars["FLOKI_HOST_MOUNTDIR"] = in.Env.Root
	vars["FLOKI_HOST_WORKDIR"] = in.Env.WorkingDir
	vars["FLOKI_HOST_UID"] = strconv.Itoa(in.Invocation.User.UID)
	vars["FLOKI_HOST_GID"] = strconv.Itoa(in.Invocation.User.GID)

	for _, kv := range in.Credentials.Env {
		setPair(vars, kv)
	}
	for _, kv := range in.DinD.Env() {
		setPair(vars, kv)
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}

func setPair(vars map[string]string, kv string) {
	if k, v, ok := strings.Cut(kv, "="); ok {
		vars[k] = v
	}
}

var invalidTagChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// ResolveImage turns the image section into what the runner pulls or builds.
// Relative build paths resolve against root.
func ResolveImage(img config.Image, root string) (ImageSource, error) {
	if !img.IsBuild() {
		ref, err := normalize(img.Pull)
		if err != nil {
			return ImageSource{}, err
		}
		return ImageSource{Ref: ref}, nil
	}

	b := img.Build
	tag := b.Name
	if tag == "" {
		name := strings.Trim(invalidTagChars.ReplaceAllString(strings.ToLower(filepath.Base(root)), "-"), "-._")
		if name == "" {
			name = "project"
		}
		tag = "floki-" + name
	}
	tag, err := normalize(tag)
	if err != nil {
		return ImageSource{}, err
	}

	buildContext := b.Context
	if !filepath.IsAbs(buildContext) {
		buildContext = filepath.Join(root, buildContext)
	}
	dockerfile := b.Dockerfile
	if !filepath.IsAbs(dockerfile) {
		dockerfile = filepath.Join(buildContext, dockerfile)
	}

	return ImageSource{Build: &BuildSource{
		Tag:        tag,
		Context:    filepath.Clean(buildContext),
		Dockerfile: filepath.Clean(dockerfile),
		Target:     b.Target,
	}}, nil
}

// normalize adds the default tag to a reference and returns its short form
func normalize(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return reference.FamiliarString(reference.TagNameOnly(named)), nil
}
