// Package payload finds the application directory inside an extracted
// package and stages it for re-archiving.
package payload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/otiai10/copy"

	"github.com/testlabtools/debipa/errs"
)

var errFound = errors.New("found")

// Locate returns the first directory named name below dir. The tree is
// walked depth first in lexical order, so the result is stable when
// several directories share the name. Paths in skip are not descended
// into.
func Locate(dir, name string, skip ...string) (string, error) {
	var found string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %q: %w", path, err)
		}

		if !d.IsDir() {
			return nil
		}

		for _, s := range skip {
			if path == s {
				return filepath.SkipDir
			}
		}

		if path != dir && d.Name() == name {
			found = path
			return errFound
		}

		return nil
	})

	if errors.Is(err, errFound) {
		return found, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrIO, err)
	}

	return "", fmt.Errorf("%w: directory %q not found in %q", errs.ErrNotFound, name, dir)
}

// Stage moves the directory name found below dir into dir/staging,
// replacing anything already staged under that name, and returns the
// staging directory.
func Stage(dir, name, staging string) (string, error) {
	stagingDir := filepath.Join(dir, staging)

	src, err := Locate(dir, name, stagingDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create staging directory: %w", errs.ErrIO, err)
	}

	dest := filepath.Join(stagingDir, name)

	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("%w: failed to remove %q: %w", errs.ErrIO, dest, err)
	}

	if err := move(src, dest); err != nil {
		return "", fmt.Errorf("%w: failed to move %q to %q: %w", errs.ErrIO, src, dest, err)
	}

	return stagingDir, nil
}

var rename = os.Rename

// move renames src to dest. If both are on different devices, src is
// copied with symlinks kept as links and removed afterwards.
func move(src, dest string) error {
	err := rename(src, dest)
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	opts := copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
		PreserveTimes: true,
	}
	if err := copy.Copy(src, dest, opts); err != nil {
		return err
	}

	return os.RemoveAll(src)
}
