package fake

import (
	"bytes"
	"fmt"
	"time"

	"github.com/blakesmith/ar"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/testlabtools/debipa/tar"
	"github.com/testlabtools/debipa/zstd"
)

// Member is a single member of a fake ar container.
type Member struct {
	Name string
	Data []byte
}

var modTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Ar builds an ar container from members in the given order. Odd sized
// members are padded.
func Ar(members ...Member) ([]byte, error) {
	var buf bytes.Buffer
	w := ar.NewWriter(&buf)

	if err := w.WriteGlobalHeader(); err != nil {
		return nil, fmt.Errorf("failed to write ar header: %w", err)
	}

	for _, m := range members {
		header := &ar.Header{
			Name:    m.Name,
			ModTime: modTime,
			Mode:    0644,
			Size:    int64(len(m.Data)),
		}

		if err := w.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to write ar member header: %w", err)
		}

		// A single write, so the writer pads odd sizes.
		if _, err := w.Write(m.Data); err != nil {
			return nil, fmt.Errorf("failed to write ar member %q: %w", m.Name, err)
		}
	}

	return buf.Bytes(), nil
}

// Compress compresses data with the scheme named by the Debian member
// suffix: "gz", "xz", "bz2", "zst". An empty suffix returns data as is.
func Compress(suffix string, data []byte) ([]byte, error) {
	var buf bytes.Buffer

	switch suffix {
	case "":
		return data, nil
	case "gz":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "xz":
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "bz2":
		w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestSpeed})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "zst":
		if err := zstd.Compress(bytes.NewReader(data), &buf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown compression suffix %q", suffix)
	}

	return buf.Bytes(), nil
}

// Tarball creates a tarball from entries.
func Tarball(entries ...tar.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := tar.Create(entries, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Package is a fake Debian package.
type Package struct {
	// Suffix is the compression suffix of the data member, see Compress.
	Suffix string

	// Entries are the entries of the data tarball.
	Entries []tar.Entry
}

// AppEntries returns data tarball entries of a package that installs
// app into /Applications, with an Info.plist containing plist.
func AppEntries(app string, plist []byte) []tar.Entry {
	return []tar.Entry{
		tar.Dir("./"),
		tar.Dir("./Applications/"),
		tar.Dir("./Applications/" + app + "/"),
		tar.File("./Applications/"+app+"/Info.plist", plist),
		tar.Dir("./Applications/" + app + "/Frameworks/"),
		tar.File("./Applications/"+app+"/Frameworks/lib.dylib", []byte("dylib")),
		tar.Dir("./usr/"),
		tar.Dir("./usr/share/"),
		tar.File("./usr/share/README", []byte("readme")),
	}
}

// Deb builds the package as a .deb file: debian-binary, control.tar.gz
// and data.tar[.suffix].
func (p Package) Deb() ([]byte, error) {
	control, err := Tarball(
		tar.File("./control", []byte("Package: com.example.app\nVersion: 1.0\n")),
	)
	if err != nil {
		return nil, err
	}
	control, err = Compress("gz", control)
	if err != nil {
		return nil, err
	}

	data, err := Tarball(p.Entries...)
	if err != nil {
		return nil, err
	}
	data, err = Compress(p.Suffix, data)
	if err != nil {
		return nil, err
	}

	name := "data.tar"
	if p.Suffix != "" {
		name += "." + p.Suffix
	}

	return Ar(
		Member{Name: "debian-binary", Data: []byte("2.0\n")},
		Member{Name: "control.tar.gz", Data: control},
		Member{Name: name, Data: data},
	)
}
