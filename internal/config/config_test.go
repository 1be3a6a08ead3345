package config

import (
	"errors"
	"reflect"
	"testing"
)

func TestDefaultSettings(t *testing.T) {
	s := defaultSettings()

	if !reflect.DeepEqual(s.ConfigNames, []string{"floki.yaml", "floki.yml"}) {
		t.Errorf("defaultSettings().ConfigNames = %v", s.ConfigNames)
	}
	if !s.StrictShell {
		t.Error("defaultSettings().StrictShell should be true")
	}
	if s.DinD.Image != DefaultDinDImage {
		t.Errorf("defaultSettings().DinD.Image = %q, want %q", s.DinD.Image, DefaultDinDImage)
	}
	if s.Docker.Socket != "" {
		t.Errorf("defaultSettings().Docker.Socket = %q, want empty", s.Docker.Socket)
	}
}

func TestLoadFullConfig(t *testing.T) {
	data := []byte(`
image:
  build:
    name: example/dev:1
    context: docker
    dockerfile: Dockerfile.dev
    target: dev
mount: /work/
shell:
  inner: bash
  outer: sh
init:
  - echo one
  - echo two
volumes:
  - ./cache:/root/.cache
  - ~/.m2:/root/.m2:ro
  - scratch
  - host: /opt/tools
    container: /tools
    read_only: true
    switch: true
    create: true
environment:
  - TERM
  - GOPATH?
  - name: CI
    optional: true
dind:
  mode: sibling
  fallback: nested
  image: docker:27-dind
entrypoint:
  suppress: true
forward_ssh_agent: true
forward_user: true
`)

	cfg, err := Load(data, ValidateOptions{ValidateShell: true})
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	wantBuild := &Build{Name: "example/dev:1", Context: "docker", Dockerfile: "Dockerfile.dev", Target: "dev"}
	if !reflect.DeepEqual(cfg.Image.Build, wantBuild) {
		t.Errorf("Image.Build = %+v, want %+v", cfg.Image.Build, wantBuild)
	}
	if cfg.Image.Pull != "" {
		t.Errorf("Image.Pull = %q, want empty", cfg.Image.Pull)
	}
	if cfg.Mount != "/work" {
		t.Errorf("Mount = %q, want /work", cfg.Mount)
	}
	if cfg.Shell != (Shell{Inner: "bash", Outer: "sh"}) {
		t.Errorf("Shell = %+v", cfg.Shell)
	}
	if !reflect.DeepEqual(cfg.Init, []string{"echo one", "echo two"}) {
		t.Errorf("Init = %v", cfg.Init)
	}

	wantVolumes := []Volume{
		{Host: "./cache", Container: "/root/.cache", Line: 16},
		{Host: "~/.m2", Container: "/root/.m2", ReadOnly: true, Line: 17},
		{Host: "scratch", Line: 18},
		{Host: "/opt/tools", Container: "/tools", ReadOnly: true, Switch: true, Create: true, Line: 19},
	}
	if !reflect.DeepEqual(cfg.Volumes, wantVolumes) {
		t.Errorf("Volumes = %+v\nwant %+v", cfg.Volumes, wantVolumes)
	}

	wantEnv := []EnvVar{{Name: "TERM"}, {Name: "GOPATH", Optional: true}, {Name: "CI", Optional: true}}
	if !reflect.DeepEqual(cfg.Environment, wantEnv) {
		t.Errorf("Environment = %+v, want %+v", cfg.Environment, wantEnv)
	}

	wantDinD := DinD{Enabled: true, Mode: DinDSibling, Fallback: FallbackNested, Image: "docker:27-dind"}
	if cfg.DinD != wantDinD {
		t.Errorf("DinD = %+v, want %+v", cfg.DinD, wantDinD)
	}
	if !cfg.Entrypoint.Suppress {
		t.Error("Entrypoint.Suppress should be true")
	}
	if !cfg.ForwardSSHAgent || !cfg.ForwardUser {
		t.Error("ForwardSSHAgent and ForwardUser should be true")
	}
}

func TestLoadMinimalConfig(t *testing.T) {
	cfg, err := Load([]byte("image: debian:bullseye\n"), ValidateOptions{ValidateShell: true})
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Image.Pull != "debian:bullseye" || cfg.Image.IsBuild() {
		t.Errorf("Image = %+v, want pull debian:bullseye", cfg.Image)
	}
	if cfg.Shell != (Shell{Inner: DefaultShell, Outer: DefaultShell}) {
		t.Errorf("Shell = %+v, want defaults", cfg.Shell)
	}
	if cfg.MountPoint() != DefaultMount {
		t.Errorf("MountPoint() = %q, want %q", cfg.MountPoint(), DefaultMount)
	}
	if len(cfg.Volumes) != 0 {
		t.Errorf("Volumes = %v, want none", cfg.Volumes)
	}
	if cfg.DinD.Enabled {
		t.Error("DinD should be disabled by default")
	}
}

func TestLoadDinDBoolForm(t *testing.T) {
	cfg, err := Load([]byte("image: alpine\ndind: true\n"), ValidateOptions{})
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.DinD != (DinD{Enabled: true, Mode: DinDAuto}) {
		t.Errorf("DinD = %+v, want enabled auto", cfg.DinD)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantLine  int // -1 for any line
		wantField string
	}{
		{
			name:     "yaml syntax",
			data:     "image: alpine\nvolumes: [a, b\n",
			wantLine: -1,
		},
		{
			name:      "unknown top-level field",
			data:      "image: alpine\nimgae: debian\n",
			wantLine:  2,
			wantField: "imgae",
		},
		{
			name:      "duplicate field",
			data:      "image: alpine\nimage: debian\n",
			wantLine:  2,
			wantField: "image",
		},
		{
			name:      "volumes not a list",
			data:      "image: alpine\nvolumes: ./cache\n",
			wantLine:  2,
			wantField: "volumes",
		},
		{
			name:      "bad boolean",
			data:      "image: alpine\nforward_user: maybe\n",
			wantLine:  2,
			wantField: "forward_user",
		},
		{
			name:      "unknown volume field",
			data:      "image: alpine\nvolumes:\n  - host: .\n    target: /x\n",
			wantLine:  4,
			wantField: "volumes[0].target",
		},
		{
			name:      "top level not a mapping",
			data:      "- image\n",
			wantLine:  1,
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))

			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse() error = %v, want ParseError", err)
			}
			if !errors.Is(err, ErrConfigParse) {
				t.Errorf("Parse() error should wrap ErrConfigParse")
			}
			if tt.wantLine < 0 {
				if perr.Line <= 0 {
					t.Errorf("ParseError.Line = %d, want a line number (%v)", perr.Line, perr)
				}
			} else if perr.Line != tt.wantLine {
				t.Errorf("ParseError.Line = %d, want %d (%v)", perr.Line, tt.wantLine, perr)
			}
			if perr.Field != tt.wantField {
				t.Errorf("ParseError.Field = %q, want %q", perr.Field, tt.wantField)
			}
		})
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		opts     ValidateOptions
		wantRule string
	}{
		{
			name:     "no image",
			data:     "shell: bash\n",
			wantRule: RuleImageRequired,
		},
		{
			name:     "empty document",
			data:     "",
			wantRule: RuleImageRequired,
		},
		{
			name:     "pull and build",
			data:     "image:\n  name: alpine\n  build:\n    context: .\n",
			wantRule: RuleImageExclusive,
		},
		{
			name:     "bad reference",
			data:     "image: Not_A/Valid:Ref:x\n",
			wantRule: RuleImageReference,
		},
		{
			name:     "relative mount",
			data:     "image: alpine\nmount: src\n",
			wantRule: RuleMountAbsolute,
		},
		{
			name:     "unknown shell",
			data:     "image: alpine\nshell: cmd.exe\n",
			opts:     ValidateOptions{ValidateShell: true},
			wantRule: RuleShellKnown,
		},
		{
			name:     "mapping volume without container",
			data:     "image: alpine\nvolumes:\n  - host: ./cache\n",
			wantRule: RuleVolumeContainer,
		},
		{
			name:     "mapping volume without host",
			data:     "image: alpine\nvolumes:\n  - container: /cache\n",
			wantRule: RuleVolumeHost,
		},
		{
			name:     "relative container path",
			data:     "image: alpine\nvolumes:\n  - ./cache:cache\n",
			wantRule: RuleVolumeAbsolute,
		},
		{
			name:     "bad short mode",
			data:     "image: alpine\nvolumes:\n  - ./cache:/cache:rx\n",
			wantRule: RuleVolumeMode,
		},
		{
			name:     "bad environment name",
			data:     "image: alpine\nenvironment:\n  - 1BAD\n",
			wantRule: RuleEnvironmentName,
		},
		{
			name:     "bad dind mode",
			data:     "image: alpine\ndind:\n  mode: cousin\n",
			wantRule: RuleDinDMode,
		},
		{
			name:     "bad dind fallback",
			data:     "image: alpine\ndind:\n  mode: sibling\n  fallback: retry\n",
			wantRule: RuleDinDFallback,
		},
		{
			name:     "entrypoint suppress and command",
			data:     "image: alpine\nentrypoint:\n  suppress: true\n  command: [tini]\n",
			wantRule: RuleEntrypointExclusive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}

			_, err = doc.Validate(tt.opts)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !errors.Is(err, ErrConfigValidation) {
				t.Errorf("Validate() error should wrap ErrConfigValidation")
			}
			if errors.Is(err, ErrConfigParse) {
				t.Errorf("Validate() error should not be a parse error")
			}
			if verr.Rule != tt.wantRule {
				t.Errorf("ValidationError.Rule = %q, want %q (%v)", verr.Rule, tt.wantRule, err)
			}
		})
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	data := []byte("mount: src\nvolumes:\n  - host: x\n")

	_, err := Load(data, ValidateOptions{})

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Load() error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 3 {
		t.Fatalf("len(ValidationErrors) = %d, want 3: %v", len(verrs), verrs)
	}
	rules := []string{verrs[0].Rule, verrs[1].Rule, verrs[2].Rule}
	want := []string{RuleImageRequired, RuleMountAbsolute, RuleVolumeContainer}
	if !reflect.DeepEqual(rules, want) {
		t.Errorf("rules = %v, want %v", rules, want)
	}
}

func TestUnknownShellAllowedWithoutValidation(t *testing.T) {
	cfg, err := Load([]byte("image: alpine\nshell: /opt/bin/xonsh\n"), ValidateOptions{})
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Shell.Inner != "/opt/bin/xonsh" {
		t.Errorf("Shell.Inner = %q", cfg.Shell.Inner)
	}
}

func TestShellPathValidatesByBaseName(t *testing.T) {
	if _, err := Load([]byte("image: alpine\nshell: /bin/bash\n"), ValidateOptions{ValidateShell: true}); err != nil {
		t.Errorf("Load() unexpected error for /bin/bash: %v", err)
	}
}
