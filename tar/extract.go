package tar

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/testlabtools/debipa/errs"
)

// Extract extracts a tarball into dir, creating dir if needed.
//
// Regular files, directories, symlinks and hard links are materialized;
// other entry types are skipped. Entries with absolute names, names that
// resolve outside of dir, or paths that lead through a symlink pointing
// outside of dir fail with errs.ErrSecurity before anything is written
// for them. Symlink targets themselves are stored verbatim.
func Extract(r io.Reader, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create %q: %w", errs.ErrIO, dir, err)
	}

	root, err := realPath(dir)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve %q: %w", errs.ErrIO, dir, err)
	}

	tr := tar.NewReader(r)

	for {
		// Read the next header
		header, err := tr.Next()
		if err == io.EOF {
			// End of tarball
			break
		}
		if err != nil {
			return fmt.Errorf("%w: failed to read tarball: %w", errs.ErrFormat, err)
		}

		// Data tarballs of Debian packages use "./" prefixed names.
		name := strings.TrimPrefix(header.Name, "./")
		if name == "" || name == "." {
			continue
		}

		target, err := safePath(root, name)
		if err != nil {
			return err
		}

		mode := header.FileInfo().Mode().Perm()

		switch header.Typeflag {
		case tar.TypeDir:
			err = mkdir(root, target, mode)
		case tar.TypeReg:
			err = writeFile(root, target, mode, tr)
		case tar.TypeSymlink:
			err = symlink(root, target, header.Linkname)
		case tar.TypeLink:
			err = hardlink(root, target, header.Linkname)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func realPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// safePath joins name to root and rejects names that leave root.
func safePath(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: entry %q has an absolute path", errs.ErrSecurity, name)
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("%w: entry %q escapes the target directory", errs.ErrSecurity, name)
	}

	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve evaluates symlinks of the longest existing prefix of path.
func resolve(path string) (string, error) {
	missing := ""
	for {
		resolved, err := filepath.EvalSymlinks(path)
		if err == nil {
			return filepath.Join(resolved, missing), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", err
		}
		missing = filepath.Join(filepath.Base(path), missing)
		path = parent
	}
}

// checkParent rejects targets whose parent directory leads outside of
// root through a previously extracted symlink.
func checkParent(root, target string) error {
	parent, err := resolve(filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("%w: failed to resolve %q: %w", errs.ErrIO, target, err)
	}
	if !within(root, parent) {
		return fmt.Errorf("%w: %q leads outside the target directory", errs.ErrSecurity, target)
	}
	return nil
}

// prepare makes sure the parent of target exists and nothing but a
// directory occupies target.
func prepare(root, target string) error {
	if err := checkParent(root, target); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: failed to create parent of %q: %w", errs.ErrIO, target, err)
	}

	// Replace links and files instead of writing through them.
	if info, err := os.Lstat(target); err == nil && !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("%w: failed to replace %q: %w", errs.ErrIO, target, err)
		}
	}

	return nil
}

func mkdir(root, target string, mode fs.FileMode) error {
	if err := checkParent(root, target); err != nil {
		return err
	}

	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("%w: failed to replace %q: %w", errs.ErrIO, target, err)
		}
	}

	if err := os.MkdirAll(target, mode|0700); err != nil {
		return fmt.Errorf("%w: failed to create directory %q: %w", errs.ErrIO, target, err)
	}
	return nil
}

// source remembers read errors of the tarball, so they can be told
// apart from write errors.
type source struct {
	r   io.Reader
	err error
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

func writeFile(root, target string, mode fs.FileMode, r io.Reader) error {
	if err := prepare(root, target); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode|0600)
	if err != nil {
		return fmt.Errorf("%w: failed to create file %q: %w", errs.ErrIO, target, err)
	}

	src := &source{r: r}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		if src.err != nil {
			return fmt.Errorf("%w: failed to read file %q: %w", errs.ErrFormat, target, err)
		}
		return fmt.Errorf("%w: failed to write file %q: %w", errs.ErrIO, target, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close file %q: %w", errs.ErrIO, target, err)
	}

	return nil
}

func symlink(root, target, linkname string) error {
	if err := prepare(root, target); err != nil {
		return err
	}

	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("%w: failed to create symlink %q: %w", errs.ErrIO, target, err)
	}
	return nil
}

func hardlink(root, target, linkname string) error {
	source, err := safePath(root, strings.TrimPrefix(linkname, "./"))
	if err != nil {
		return err
	}

	resolved, err := resolve(source)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve link %q: %w", errs.ErrIO, linkname, err)
	}
	if !within(root, resolved) {
		return fmt.Errorf("%w: link %q leads outside the target directory", errs.ErrSecurity, linkname)
	}

	if err := prepare(root, target); err != nil {
		return err
	}

	if err := os.Link(resolved, target); err != nil {
		return fmt.Errorf("%w: failed to create hard link %q: %w", errs.ErrIO, target, err)
	}
	return nil
}
