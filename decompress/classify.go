// Package decompress classifies and decompresses the data member of a
// Debian package.
package decompress

import (
	"bytes"
	"strings"
)

// Kind is the compression scheme of a data member.
type Kind int

const (
	// Unknown payloads are handled like plain tarballs.
	Unknown Kind = iota
	Gzip
	Xz
	Bzip2
	Zstd
	Tar
)

func (k Kind) String() string {
	switch k {
	case Gzip:
		return "gzip"
	case Xz:
		return "xz"
	case Bzip2:
		return "bzip2"
	case Zstd:
		return "zstd"
	case Tar:
		return "tar"
	default:
		return "unknown"
	}
}

// The signatures are disjoint, so the order does not matter.
var magics = []struct {
	kind  Kind
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Xz, []byte{0xfd, '7', 'z', 'X', 'Z'}},
	{Bzip2, []byte{'B', 'Z', 'h'}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
}

var suffixes = []struct {
	kind   Kind
	suffix string
}{
	{Gzip, ".gz"},
	{Xz, ".xz"},
	{Bzip2, ".bz2"},
	{Zstd, ".zst"},
}

const (
	ustarOffset = 257
	ustarMagic  = "ustar"
)

// Classify detects the compression of b. Magic bytes win over the
// ustar marker of a plain tarball; the suffix of name is only used when
// neither matches.
func Classify(b []byte, name string) Kind {
	for _, m := range magics {
		if bytes.HasPrefix(b, m.magic) {
			return m.kind
		}
	}

	if len(b) > ustarOffset+len(ustarMagic) && string(b[ustarOffset:ustarOffset+len(ustarMagic)]) == ustarMagic {
		return Tar
	}

	for _, s := range suffixes {
		if strings.HasSuffix(name, s.suffix) {
			return s.kind
		}
	}

	return Unknown
}
