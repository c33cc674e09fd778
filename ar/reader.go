// Package ar reads members of Unix ar containers, the outer format of
// Debian packages.
//
//	0-15:  name (space padded, optionally terminated with '/')
//	16-47: mtime, uid, gid, mode (ignored)
//	48-57: size in bytes (decimal, space padded)
//	58-59: "`\n"
//
// Member data follows each 60-byte header and is padded to an even
// offset with one extra byte.
package ar

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/testlabtools/debipa/errs"
)

// Magic is the global header every ar container starts with.
const Magic = "!<arch>\n"

const headerSize = 60

// Header describes a single ar member.
type Header struct {
	Name string
	Size int64
}

// Member is a member with its data read into memory. len(Data) always
// equals Size.
type Member struct {
	Header
	Data []byte
}

// Reader iterates over the members of an ar container. Next positions the
// reader at the next member, whose data can then be read with Read.
type Reader struct {
	r io.Reader

	started bool

	// unread data and padding of the current member
	remain int64
	pad    bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next skips the rest of the current member and reads the next header.
// It returns io.EOF at the end of the container. A trailing partial
// header is treated as the end of the container.
func (r *Reader) Next() (*Header, error) {
	if !r.started {
		if err := r.readMagic(); err != nil {
			return nil, err
		}
		r.started = true
	}

	if err := r.skip(); err != nil {
		return nil, err
	}

	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	name := strings.TrimRight(string(hdr[0:16]), " \x00")
	name = strings.TrimSuffix(name, "/")

	field := strings.TrimSpace(string(hdr[48:58]))
	size, err := strconv.ParseInt(field, 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: bad header: member %q has size %q", errs.ErrFormat, name, field)
	}

	r.remain = size
	r.pad = size%2 == 1

	return &Header{Name: name, Size: size}, nil
}

// Read reads from the data of the current member. It returns
// io.ErrUnexpectedEOF if the container ends before the declared size.
func (r *Reader) Read(p []byte) (int, error) {
	if r.remain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remain {
		p = p[:r.remain]
	}

	n, err := r.r.Read(p)
	r.remain -= int64(n)

	if err == io.EOF && r.remain > 0 {
		err = io.ErrUnexpectedEOF
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (r *Reader) readMagic() error {
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(r.r, magic[:]); err != nil || string(magic[:]) != Magic {
		return fmt.Errorf("%w: not an ar archive", errs.ErrFormat)
	}
	return nil
}

func (r *Reader) skip() error {
	if r.remain > 0 {
		n, err := io.CopyN(io.Discard, r.r, r.remain)
		r.remain -= n
		if err != nil {
			return truncated(err)
		}
	}

	if r.pad {
		r.pad = false

		var b [1]byte
		if _, err := io.ReadFull(r.r, b[:]); err != nil {
			if err == io.EOF {
				// Some writers omit the padding of the last member.
				return nil
			}
			return fmt.Errorf("failed to read padding: %w", err)
		}
	}

	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated member data", errs.ErrFormat)
	}
	return fmt.Errorf("failed to read member data: %w", err)
}

// ReadMember returns the first member whose name starts with prefix.
func ReadMember(r io.Reader, prefix string) (*Member, error) {
	ar := NewReader(r)

	for {
		hdr, err := ar.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no member with prefix %q", errs.ErrNotFound, prefix)
		}
		if err != nil {
			return nil, err
		}

		if !strings.HasPrefix(hdr.Name, prefix) {
			continue
		}

		data, err := io.ReadAll(ar)
		if err != nil {
			return nil, truncated(err)
		}

		return &Member{Header: *hdr, Data: data}, nil
	}
}

// List returns the headers of all members in file order.
func List(r io.Reader) ([]Header, error) {
	ar := NewReader(r)

	var headers []Header
	for {
		hdr, err := ar.Next()
		if err == io.EOF {
			return headers, nil
		}
		if err != nil {
			return nil, err
		}
		headers = append(headers, *hdr)
	}
}
