package decompress

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/testlabtools/debipa/errs"
	"github.com/testlabtools/debipa/zstd"
)

// DefaultMaxSize bounds the size of a decompressed data member.
const DefaultMaxSize = 2 << 30

type Options struct {
	// DisableZstd turns zstd support off, so zstd members fail with
	// errs.ErrCapability.
	DisableZstd bool

	// MaxSize is the maximum decompressed size. If omitted (or zero),
	// DefaultMaxSize is used.
	MaxSize int64
}

// Capabilities holds the optional decompressors available to one
// pipeline run. Optional decompressors are provisioned on first use.
type Capabilities struct {
	MaxSize int64

	zstdDisabled bool
	zstd         *zstd.Decoder
	zstdErr      error
	provisioned  bool
}

// Probe returns the capabilities for o.
func Probe(o Options) *Capabilities {
	limit := o.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}

	return &Capabilities{
		MaxSize:      limit,
		zstdDisabled: o.DisableZstd,
	}
}

// Supports reports whether payloads of kind k can be decompressed
// without provisioning failures being known yet.
func (c *Capabilities) Supports(k Kind) bool {
	if k != Zstd {
		return true
	}
	return c != nil && !c.zstdDisabled && c.zstdErr == nil
}

// Zstd returns the zstd decoder, allocating it on the first call.
func (c *Capabilities) Zstd() (*zstd.Decoder, error) {
	if c == nil || c.zstdDisabled {
		return nil, fmt.Errorf("%w: zstd support is disabled", errs.ErrCapability)
	}

	if !c.provisioned {
		c.zstd, c.zstdErr = zstd.NewDecoder(c.MaxSize)
		c.provisioned = true
	}
	if c.zstdErr != nil {
		return nil, fmt.Errorf("%w: failed to provision zstd: %w", errs.ErrCapability, c.zstdErr)
	}

	return c.zstd, nil
}

// Close releases provisioned decompressors.
func (c *Capabilities) Close() {
	if c == nil || c.zstd == nil {
		return
	}
	c.zstd.Close()
	c.zstd = nil
	c.provisioned = false
}

func (c *Capabilities) maxSize() int64 {
	if c == nil || c.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return c.MaxSize
}

// Decompress returns the tarball wrapped in b. Tar and Unknown payloads
// are returned unchanged.
func Decompress(b []byte, k Kind, caps *Capabilities) ([]byte, error) {
	limit := caps.maxSize()

	switch k {
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read gzip header: %w", errs.ErrDecompress, err)
		}
		defer zr.Close()
		return readAll(zr, k, limit)

	case Xz:
		xr, err := xz.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read xz header: %w", errs.ErrDecompress, err)
		}
		return readAll(xr, k, limit)

	case Bzip2:
		return readAll(bzip2.NewReader(bytes.NewReader(b)), k, limit)

	case Zstd:
		dec, err := caps.Zstd()
		if err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		if err := dec.Decompress(bytes.NewReader(b), &buf, limit+1); err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrDecompress, err)
		}
		if int64(buf.Len()) > limit {
			return nil, tooLarge(k, limit)
		}
		return buf.Bytes(), nil

	default:
		return b, nil
	}
}

func readAll(r io.Reader, k Kind, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s stream: %w", errs.ErrDecompress, k, err)
	}
	if int64(len(data)) > limit {
		return nil, tooLarge(k, limit)
	}
	return data, nil
}

func tooLarge(k Kind, limit int64) error {
	return fmt.Errorf("%w: decompressed %s stream exceeds %d bytes", errs.ErrDecompress, k, limit)
}
