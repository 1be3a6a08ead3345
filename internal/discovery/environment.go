// Package discovery establishes where a floki invocation's project lives.
package discovery

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrConfigNotFound is the sentinel wrapped by ConfigNotFoundError.
var ErrConfigNotFound = errors.New("config file not found")

// ConfigNotFoundError is returned when no configuration file can be found
type ConfigNotFoundError struct {
	Path  string   // explicit path that does not exist, if one was given
	Start string   // directory the search started from
	Names []string // names that were searched for
}

func (e *ConfigNotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config file %s does not exist", e.Path)
	}
	return fmt.Sprintf("no %s found in %s or any parent directory", strings.Join(e.Names, " or "), e.Start)
}

func (e *ConfigNotFoundError) Unwrap() error { return ErrConfigNotFound }

// ProjectEnvironment is where one invocation's project lives. It is created
// once per invocation and not modified afterwards.
type ProjectEnvironment struct {
	ConfigFile string // absolute path of the config file
	Root       string // directory containing ConfigFile
	WorkingDir string // directory floki was invoked from
}

// GatherOptions configures Gather
type GatherOptions struct {
	ConfigFile string   // explicit config file, "" to search
	WorkingDir string   // absolute invocation directory
	Names      []string // config file names to search for
	Fs         afero.Fs
	Locator    Locator // defaults to an UpwardLocator over Fs
}

// Gather resolves the project environment for an invocation
func Gather(opts GatherOptions) (*ProjectEnvironment, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Locator == nil {
		opts.Locator = UpwardLocator{Fs: opts.Fs}
	}

	if opts.ConfigFile != "" {
		path := opts.ConfigFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(opts.WorkingDir, path)
		}
		path = filepath.Clean(path)
		if !isFile(opts.Fs, path) {
			return nil, &ConfigNotFoundError{Path: path}
		}
		return newEnvironment(path, opts.WorkingDir), nil
	}

	found, ok := opts.Locator.Locate(StartOptions{Dir: opts.WorkingDir, Names: opts.Names})
	if !ok {
		return nil, &ConfigNotFoundError{Start: opts.WorkingDir, Names: opts.Names}
	}
	return newEnvironment(found, opts.WorkingDir), nil
}

func newEnvironment(configFile, workingDir string) *ProjectEnvironment {
	return &ProjectEnvironment{
		ConfigFile: configFile,
		Root:       filepath.Dir(configFile),
		WorkingDir: filepath.Clean(workingDir),
	}
}

// ReadConfig reads the environment's config file
func (e *ProjectEnvironment) ReadConfig(fs afero.Fs) ([]byte, error) {
	data, err := afero.ReadFile(fs, e.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", e.ConfigFile, err)
	}
	return data, nil
}

// RelativeWorkingDir returns the working directory relative to Root, or
// "." when the invocation happened outside the project.
func (e *ProjectEnvironment) RelativeWorkingDir() string {
	rel, err := filepath.Rel(e.Root, e.WorkingDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "."
	}
	return rel
}
