package container

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-units"
	"github.com/moby/term"
	"github.com/spf13/afero"

	"github.com/jakenelson/floki/internal/launch"
)

// EnsureImage makes sure src is present locally, pulling or building it
// when it is not.
func (r *Runner) EnsureImage(ctx context.Context, src launch.ImageSource) error {
	name := src.Name()

	info, _, err := r.api.ImageInspectWithRaw(ctx, name)
	if err == nil {
		r.logger.Debug("image present", "image", name, "size", units.HumanSize(float64(info.Size)))
		return nil
	}
	if !client.IsErrNotFound(err) {
		return &ImageResolutionError{Image: name, Err: err}
	}

	return r.Pull(ctx, src)
}

// Pull pulls or builds src regardless of whether it is already present
func (r *Runner) Pull(ctx context.Context, src launch.ImageSource) error {
	var err error
	if src.Build != nil {
		r.logger.Info("building image", "tag", src.Build.Tag, "context", src.Build.Context)
		err = r.build(ctx, *src.Build)
	} else {
		r.logger.Info("pulling image", "image", src.Ref)
		err = r.pull(ctx, src.Ref)
	}
	if err != nil {
		return &ImageResolutionError{Image: src.Name(), Err: err}
	}
	return nil
}

func (r *Runner) pull(ctx context.Context, ref string) error {
	rc, err := r.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer rc.Close()

	return r.displayProgress(rc)
}

func (r *Runner) build(ctx context.Context, b launch.BuildSource) error {
	tmp, err := afero.TempFile(r.fs, "", "floki-context-*.tar")
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer func() {
		tmp.Close()
		r.fs.Remove(tmp.Name())
	}()

	if err := writeContext(r.fs, tmp, b); err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind build context: %w", err)
	}

	resp, err := r.api.ImageBuild(ctx, tmp, types.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Tags:       []string{b.Tag},
		Target:     b.Target,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	return r.displayProgress(resp.Body)
}

// displayProgress renders a pull or build message stream and returns the
// first error the daemon reports in it.
func (r *Runner) displayProgress(in io.Reader) error {
	fd, isTerm := term.GetFdInfo(r.streams.Err)
	return jsonmessage.DisplayJSONMessagesStream(in, r.streams.Err, fd, isTerm, nil)
}

// writeContext tars the build context with the Dockerfile stored as
// "Dockerfile" at its root.
func writeContext(fs afero.Fs, w io.Writer, b launch.BuildSource) error {
	tw := tar.NewWriter(w)

	dockerfile, err := afero.ReadFile(fs, b.Dockerfile)
	if err != nil {
		return fmt.Errorf("failed to read Dockerfile: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: "Dockerfile", Mode: 0644, Size: int64(len(dockerfile))}); err != nil {
		return err
	}
	if _, err := tw.Write(dockerfile); err != nil {
		return err
	}

	err = afero.Walk(fs, b.Context, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == b.Context {
			return nil
		}

		rel, err := filepath.Rel(b.Context, path)
		if err != nil {
			return err
		}
		if rel == "Dockerfile" {
			return nil
		}
		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			lr, ok := fs.(afero.LinkReader)
			if !ok {
				return nil
			}
			if link, err = lr.ReadlinkIfPossible(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := fs.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	return tw.Close()
}
