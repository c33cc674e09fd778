package tar

import (
	"archive/tar"
	"fmt"
	"io"
	"time"
)

// Entry is a single tarball entry. A zero Type means a regular file.
type Entry struct {
	Name     string
	Type     byte
	Mode     int64
	Body     []byte
	Linkname string
}

// Dir returns a directory entry.
func Dir(name string) Entry {
	return Entry{Name: name, Type: tar.TypeDir, Mode: 0755}
}

// File returns a regular file entry.
func File(name string, body []byte) Entry {
	return Entry{Name: name, Type: tar.TypeReg, Mode: 0644, Body: body}
}

// Symlink returns a symbolic link entry.
func Symlink(name, linkname string) Entry {
	return Entry{Name: name, Type: tar.TypeSymlink, Mode: 0777, Linkname: linkname}
}

// Link returns a hard link entry.
func Link(name, linkname string) Entry {
	return Entry{Name: name, Type: tar.TypeLink, Mode: 0644, Linkname: linkname}
}

var modTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Create creates a tarball from entries in the given order.
// The tarball data is written into out.
func Create(entries []Entry, out io.Writer) error {
	tw := tar.NewWriter(out)

	for _, e := range entries {
		typ := e.Type
		if typ == 0 {
			typ = tar.TypeReg
		}

		mode := e.Mode
		if mode == 0 {
			mode = 0644
		}

		header := &tar.Header{
			Name:     e.Name,
			Typeflag: typ,
			Mode:     mode,
			Linkname: e.Linkname,
			ModTime:  modTime,
		}
		if typ == tar.TypeReg {
			header.Size = int64(len(e.Body))
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header: %w", err)
		}

		if typ != tar.TypeReg {
			continue
		}

		if _, err := tw.Write(e.Body); err != nil {
			return fmt.Errorf("failed to write file content: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}

	return nil
}
