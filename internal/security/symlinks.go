package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const maxSymlinkHops = 255

// EvalSymlinks resolves every symlink in the absolute path p. A missing
// component ends resolution and the remainder is appended unresolved, so
// paths that do not exist yet are returned as-is. Filesystems without
// symlink support return p cleaned.
func EvalSymlinks(fs afero.Fs, p string) (string, error) {
	lst, okStat := fs.(afero.Lstater)
	lr, okLink := fs.(afero.LinkReader)
	if !okStat || !okLink {
		return filepath.Clean(p), nil
	}

	resolved := string(filepath.Separator)
	rest := splitPath(p)
	hops := 0

	for len(rest) > 0 {
		part := rest[0]
		rest = rest[1:]

		switch part {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, part)
		info, _, err := lst.LstatIfPossible(next)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return filepath.Join(append([]string{next}, rest...)...), nil
			}
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		if hops++; hops > maxSymlinkHops {
			return "", fmt.Errorf("failed to resolve path %s: too many symlinks", p)
		}
		target, err := lr.ReadlinkIfPossible(next)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		if filepath.IsAbs(target) {
			resolved = string(filepath.Separator)
		}
		rest = append(splitPath(target), rest...)
	}

	return resolved, nil
}

func splitPath(p string) []string {
	return strings.Split(filepath.ToSlash(p), "/")
}
