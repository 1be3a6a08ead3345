package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// HardcodedDeniedPaths are ALWAYS blocked as volume sources and cannot be overridden
var HardcodedDeniedPaths = []string{
	"~/.gnupg",
	"~/.netrc",
	"~/.docker/config.json",
	"~/.kube/config",
	"~/.aws/credentials",
}

// ErrVolumeDenied is the sentinel wrapped by DeniedPathError.
var ErrVolumeDenied = errors.New("volume source denied")

// DeniedPathError is returned when a volume source falls under a denied path.
type DeniedPathError struct {
	Path   string
	Denied string
}

func (e *DeniedPathError) Error() string {
	return fmt.Sprintf("host path %s is in the denied list (%s)", e.Path, e.Denied)
}

func (e *DeniedPathError) Unwrap() error { return ErrVolumeDenied }

// ExpandPath expands ~ and environment references, anchors relative paths
// to base and cleans the result. base must be absolute.
func ExpandPath(path, base, home string, environ []string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	expanded, err := ExpandVars(path, environ)
	if err != nil {
		return "", err
	}
	path = expandTilde(expanded, home)

	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	return filepath.Clean(path), nil
}

// ValidateMountPath checks if a host path is allowed to be mounted
func ValidateMountPath(path, home string) error {
	for _, denied := range HardcodedDeniedPaths {
		deniedExpanded := expandTilde(denied, home)
		if pathMatches(path, deniedExpanded) {
			return &DeniedPathError{Path: path, Denied: denied}
		}
	}
	return nil
}

// pathMatches checks if path is equal to or a child of target
func pathMatches(path, target string) bool {
	if path == target {
		return true
	}

	rel, err := filepath.Rel(target, path)
	if err != nil {
		return false
	}
	// If relative path starts with "..", path is not under target
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func expandTilde(path, home string) string {
	if home == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		return home
	}
	return path
}

// IsPathInDirectory checks if path is inside directory
func IsPathInDirectory(path, directory string) bool {
	return pathMatches(path, directory)
}
