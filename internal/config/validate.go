package config

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/distribution/reference"
)

// ErrConfigValidation is the sentinel wrapped by ValidationError.
var ErrConfigValidation = errors.New("invalid configuration")

// ValidationError reports a well-formed configuration that breaks a rule
type ValidationError struct {
	Rule    string
	Field   string
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s (%s)", e.Line, e.Field, e.Message, e.Rule)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Rule)
}

func (e *ValidationError) Unwrap() error { return ErrConfigValidation }

// ValidationErrors collects every rule a Document breaks, in document order
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return ErrConfigValidation.Error()
	case 1:
		return v[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
	}
}

func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, len(v))
	for i, e := range v {
		errs[i] = e
	}
	return errs
}

// Validation rules
const (
	RuleImageRequired       = "image-required"
	RuleImageExclusive      = "image-exclusive"
	RuleImageReference      = "image-reference"
	RuleMountAbsolute       = "mount-absolute"
	RuleShellKnown          = "shell-known"
	RuleVolumeHost          = "volume-host-required"
	RuleVolumeContainer     = "volume-container-required"
	RuleVolumeAbsolute      = "volume-container-absolute"
	RuleVolumeMode          = "volume-mode"
	RuleEnvironmentName     = "environment-name"
	RuleDinDMode            = "dind-mode"
	RuleDinDFallback        = "dind-fallback"
	RuleEntrypointExclusive = "entrypoint-exclusive"
)

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateOptions tunes semantic validation
type ValidateOptions struct {
	ValidateShell bool
}

// Load parses and validates floki.yaml text
func Load(data []byte, opts ValidateOptions) (*Config, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return doc.Validate(opts)
}

// Validate applies the semantic rules to a parsed Document and returns the
// resulting Config. All violations are reported together.
func (d *Document) Validate(opts ValidateOptions) (*Config, error) {
	v := &validator{}
	cfg := &Config{
		Init:            make([]string, 0, len(d.init)),
		ForwardSSHAgent: d.forwardSSHAgent,
		ForwardUser:     d.forwardUser,
	}

	cfg.Image = v.image(d.image)

	if d.mount != nil {
		if !path.IsAbs(d.mount.value) {
			v.fail(RuleMountAbsolute, "mount", d.mount.line, "project mount point %q must be absolute", d.mount.value)
		}
		cfg.Mount = path.Clean(d.mount.value)
	}

	cfg.Shell = v.shell(d.shell, opts.ValidateShell)

	for _, c := range d.init {
		cfg.Init = append(cfg.Init, c.value)
	}

	for _, rv := range d.volumes {
		cfg.Volumes = append(cfg.Volumes, v.volume(rv))
	}

	for _, re := range d.environment {
		if !envName.MatchString(re.name) {
			v.fail(RuleEnvironmentName, re.field, re.line, "%q is not a valid variable name", re.name)
		}
		cfg.Environment = append(cfg.Environment, EnvVar{Name: re.name, Optional: re.optional})
	}

	cfg.DinD = v.dind(d.dind)

	if ep := d.entrypoint; ep != nil {
		if ep.suppress && len(ep.command) > 0 {
			v.fail(RuleEntrypointExclusive, "entrypoint", ep.line, "suppress and command cannot both be set")
		}
		cfg.Entrypoint = Entrypoint{Suppress: ep.suppress, Command: ep.command}
	}

	if len(v.errs) > 0 {
		return nil, v.errs
	}
	return cfg, nil
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) fail(rule, field string, line int, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{
		Rule:    rule,
		Field:   field,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) image(img *rawImage) Image {
	if img == nil || (img.ref == nil && img.build == nil) {
		line := 0
		if img != nil {
			line = img.line
		}
		v.fail(RuleImageRequired, "image", line, "an image reference or build specification is required")
		return Image{}
	}
	if img.ref != nil && img.build != nil {
		v.fail(RuleImageExclusive, "image", img.line, "cannot both pull %q and build from a context", img.ref.value)
		return Image{}
	}

	if img.ref != nil {
		v.reference("image", img.ref)
		return Image{Pull: img.ref.value}
	}

	b := &Build{
		Context:    ".",
		Dockerfile: DefaultBuildFile,
	}
	if img.build.name != nil {
		v.reference("image.build.name", img.build.name)
		b.Name = img.build.name.value
	}
	if img.build.context != nil && img.build.context.value != "" {
		b.Context = img.build.context.value
	}
	if img.build.dockerfile != nil && img.build.dockerfile.value != "" {
		b.Dockerfile = img.build.dockerfile.value
	}
	if img.build.target != nil {
		b.Target = img.build.target.value
	}
	return Image{Build: b}
}

func (v *validator) reference(field string, s *rawString) {
	if _, err := reference.ParseNormalizedNamed(s.value); err != nil {
		v.fail(RuleImageReference, field, s.line, "invalid image reference %q: %v", s.value, err)
	}
}

func (v *validator) shell(sh *rawShell, validate bool) Shell {
	out := Shell{Inner: DefaultShell, Outer: DefaultShell}
	if sh == nil {
		return out
	}
	switch {
	case sh.inner != nil && sh.outer != nil:
		out = Shell{Inner: sh.inner.value, Outer: sh.outer.value}
	case sh.inner != nil:
		out = Shell{Inner: sh.inner.value, Outer: sh.inner.value}
	case sh.outer != nil:
		out = Shell{Inner: sh.outer.value, Outer: sh.outer.value}
	}

	if validate {
		for _, name := range []string{out.Inner, out.Outer} {
			if !knownShell(name) {
				v.fail(RuleShellKnown, "shell", sh.line, "unrecognized shell %q (known: %s)", name, strings.Join(KnownShells, ", "))
				break
			}
		}
	}
	return out
}

func knownShell(name string) bool {
	base := path.Base(name)
	for _, s := range KnownShells {
		if s == base {
			return true
		}
	}
	return false
}

func (v *validator) volume(rv rawVolume) Volume {
	vol := Volume{
		ReadOnly: rv.readOnly,
		Switch:   rv.swtch,
		Create:   rv.create,
		Line:     rv.line,
	}

	if rv.short != nil {
		parts := strings.Split(rv.short.value, ":")
		vol.Host = parts[0]
		switch len(parts) {
		case 1:
		case 2, 3:
			vol.Container = parts[1]
			if vol.Container == "" {
				v.fail(RuleVolumeContainer, rv.field, rv.line, "container path after ':' is empty in %q", rv.short.value)
			}
			if len(parts) == 3 {
				switch parts[2] {
				case "ro":
					vol.ReadOnly = true
				case "rw":
				default:
					v.fail(RuleVolumeMode, rv.field, rv.line, "mode %q must be ro or rw", parts[2])
				}
			}
		default:
			v.fail(RuleVolumeMode, rv.field, rv.line, "expected host[:container[:ro|rw]], got %q", rv.short.value)
		}
	} else {
		if rv.host != nil {
			vol.Host = rv.host.value
		}
		if rv.container == nil || rv.container.value == "" {
			v.fail(RuleVolumeContainer, rv.field, rv.line, "container path is required")
		} else {
			vol.Container = rv.container.value
		}
	}

	if vol.Host == "" {
		v.fail(RuleVolumeHost, rv.field, rv.line, "host path is required")
	}
	if vol.Container != "" {
		if !path.IsAbs(vol.Container) {
			v.fail(RuleVolumeAbsolute, rv.field, rv.line, "container path %q must be absolute", vol.Container)
		}
		vol.Container = path.Clean(vol.Container)
	}
	return vol
}

func (v *validator) dind(d *rawDinD) DinD {
	if d == nil {
		return DinD{Mode: DinDAuto}
	}
	out := DinD{Enabled: d.enabled, Mode: DinDAuto}

	if d.mode != nil {
		switch m := DinDMode(d.mode.value); m {
		case DinDAuto, DinDSibling, DinDNested:
			out.Mode = m
		default:
			v.fail(RuleDinDMode, "dind.mode", d.mode.line, "mode %q must be one of auto, sibling, nested", d.mode.value)
		}
	}
	if d.fallback != nil {
		switch f := DinDFallback(d.fallback.value); f {
		case FallbackUnset, FallbackNested, FallbackNone:
			out.Fallback = f
		default:
			v.fail(RuleDinDFallback, "dind.fallback", d.fallback.line, "fallback %q must be nested or none", d.fallback.value)
		}
	}
	if d.image != nil {
		v.reference("dind.image", d.image)
		out.Image = d.image.value
	}
	return out
}
