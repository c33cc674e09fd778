// Package ipa writes staged application directories into zip based iOS
// app archives.
package ipa

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/testlabtools/debipa/errs"
)

// Archive writes every file below stagingDir into a zip container at
// output. Entry names are relative to the parent of stagingDir, so the
// staging directory is the top-level directory of the archive.
// Symlinks are stored as links. Directories get no entries of their own.
//
// The archive is written to a temporary file next to output first and
// only replaces output once it is complete.
func Archive(stagingDir, output string) (err error) {
	info, err := os.Stat(stagingDir)
	if err != nil {
		return fmt.Errorf("%w: failed to stat staging directory: %w", errs.ErrIO, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", errs.ErrIO, stagingDir)
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temporary archive: %w", errs.ErrIO, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp, stagingDir); err != nil {
		return fmt.Errorf("%w: failed to write archive: %w", errs.ErrIO, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close archive: %w", errs.ErrIO, err)
	}

	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("%w: failed to chmod archive: %w", errs.ErrIO, err)
	}

	if err := os.Rename(tmp.Name(), output); err != nil {
		return fmt.Errorf("%w: failed to move archive to %q: %w", errs.ErrIO, output, err)
	}

	return nil
}

func write(w io.Writer, stagingDir string) error {
	base := filepath.Dir(filepath.Clean(stagingDir))

	zw := zip.NewWriter(w)

	err := filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %q: %w", path, err)
		}

		typ := d.Type()
		if !typ.IsRegular() && typ&fs.ModeSymlink == 0 {
			// Skip directories and special files.
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %q: %w", path, err)
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("failed to create header for %q: %w", path, err)
		}
		header.Name = filepath.ToSlash(rel)

		if typ&fs.ModeSymlink != 0 {
			return addSymlink(zw, header, path)
		}

		header.Method = zip.Deflate
		return addFile(zw, header, path)
	})
	if err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

func addFile(zw *zip.Writer, header *zip.FileHeader, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file %q: %w", path, err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %q: %w", header.Name, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %q: %w", header.Name, err)
	}

	return nil
}

func addSymlink(zw *zip.Writer, header *zip.FileHeader, path string) error {
	target, err := os.Readlink(path)
	if err != nil {
		return fmt.Errorf("failed to read link %q: %w", path, err)
	}

	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %q: %w", header.Name, err)
	}

	if _, err := io.WriteString(w, filepath.ToSlash(target)); err != nil {
		return fmt.Errorf("failed to write %q: %w", header.Name, err)
	}

	return nil
}

// List returns the entry names of the archive at path in order.
func List(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %q: %w", path, err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}

	return names, nil
}
