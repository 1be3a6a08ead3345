package container

import (
	"errors"
	"fmt"
)

var (
	// ErrImageResolution is the sentinel wrapped by ImageResolutionError.
	ErrImageResolution = errors.New("image resolution failed")

	// ErrRuntimeInvocation is the sentinel wrapped by RuntimeInvocationError.
	ErrRuntimeInvocation = errors.New("container runtime invocation failed")
)

// ImageResolutionError is returned when an image is neither present locally
// nor obtainable by pull or build.
type ImageResolutionError struct {
	Image string
	Err   error
}

func (e *ImageResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve image %s: %v", e.Image, e.Err)
}

func (e *ImageResolutionError) Unwrap() []error { return []error{ErrImageResolution, e.Err} }

// RuntimeInvocationError is returned when the runtime cannot create or
// start the container.
type RuntimeInvocationError struct {
	Op  string
	Err error
}

func (e *RuntimeInvocationError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *RuntimeInvocationError) Unwrap() []error { return []error{ErrRuntimeInvocation, e.Err} }
