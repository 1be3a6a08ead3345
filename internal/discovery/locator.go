package discovery

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// StartOptions tells a Locator where to begin and what to look for
type StartOptions struct {
	Dir   string   // absolute directory to start from
	Names []string // candidate file names, in preference order
}

// Locator finds a file for a set of start options
type Locator interface {
	Locate(opts StartOptions) (string, bool)
}

// UpwardLocator searches Dir and each of its parents in turn, stopping at
// the first directory holding one of Names or at the filesystem root.
type UpwardLocator struct {
	Fs afero.Fs
}

// Locate implements Locator
func (l UpwardLocator) Locate(opts StartOptions) (string, bool) {
	dir := filepath.Clean(opts.Dir)
	for {
		if found, ok := findIn(l.Fs, dir, opts.Names); ok {
			return found, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// DirLocator only looks in Dir itself
type DirLocator struct {
	Fs afero.Fs
}

// Locate implements Locator
func (l DirLocator) Locate(opts StartOptions) (string, bool) {
	return findIn(l.Fs, filepath.Clean(opts.Dir), opts.Names)
}

func findIn(fs afero.Fs, dir string, names []string) (string, bool) {
	for _, name := range names {
		candidate := filepath.Join(dir, name)
		if isFile(fs, candidate) {
			return candidate, true
		}
	}
	return "", false
}

func isFile(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ReadStartup returns the trimmed contents of the startup script at path
// (already expanded), or "" when there is none or it cannot be read.
func ReadStartup(fs afero.Fs, loc Locator, path string) string {
	if path == "" {
		return ""
	}
	found, ok := loc.Locate(StartOptions{Dir: filepath.Dir(path), Names: []string{filepath.Base(path)}})
	if !ok {
		return ""
	}
	data, err := afero.ReadFile(fs, found)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
