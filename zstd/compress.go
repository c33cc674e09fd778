package zstd

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compress compresses everything read from r using Zstd into the writer.
func Compress(r io.Reader, w io.Writer) error {
	z, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create Zstd writer: %w", err)
	}

	if _, err := z.ReadFrom(r); err != nil {
		z.Close()
		return fmt.Errorf("failed to write compressed content: %w", err)
	}

	if err := z.Close(); err != nil {
		return fmt.Errorf("failed to close Zstd writer: %w", err)
	}

	return nil
}

// Decoder is a reusable Zstd decoder. It decodes on the calling goroutine.
type Decoder struct {
	z *zstd.Decoder
}

// NewDecoder allocates a decoder. If maxMemory is positive, decoding a
// stream that needs more memory fails.
func NewDecoder(maxMemory int64) (*Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
	}
	if maxMemory > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(uint64(maxMemory)))
	}

	z, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Zstd reader: %w", err)
	}

	return &Decoder{z: z}, nil
}

// Decompress decompresses compressed data using Zstd into the writer.
// If limit is positive, at most limit bytes are decompressed and the
// rest of the stream is left unread.
func (d *Decoder) Decompress(r io.Reader, w io.Writer, limit int64) error {
	// Hide Len and Bytes of in-memory readers, so the decoder streams
	// instead of decoding the whole input at once.
	if err := d.z.Reset(struct{ io.Reader }{r}); err != nil {
		return fmt.Errorf("failed to reset Zstd reader: %w", err)
	}

	var src io.Reader = d.z
	if limit > 0 {
		src = io.LimitReader(d.z, limit)
	}

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to read compressed content: %w", err)
	}

	return nil
}

// Close releases the decoder. It must not be used afterwards.
func (d *Decoder) Close() {
	d.z.Close()
}
