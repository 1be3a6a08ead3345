package config

// Defaults applied when floki.yaml leaves a field out
const (
	DefaultMount      = "/src"
	DefaultShell      = "sh"
	DefaultDinDImage  = "docker:dind"
	DefaultBuildFile  = "Dockerfile"
	DefaultConfigName = "floki.yaml"
)

// DinDMode selects how docker-in-docker is provided
type DinDMode string

// Docker-in-docker modes
const (
	DinDAuto    DinDMode = "auto"
	DinDSibling DinDMode = "sibling"
	DinDNested  DinDMode = "nested"
)

// DinDFallback selects what happens when sibling mode finds no socket
type DinDFallback string

// Docker-in-docker fallbacks
const (
	FallbackUnset  DinDFallback = ""
	FallbackNested DinDFallback = "nested"
	FallbackNone   DinDFallback = "none"
)

// KnownShells are the shell names accepted when shell validation is enabled
var KnownShells = []string{"sh", "bash", "zsh", "ash", "dash", "ksh", "mksh", "fish"}
