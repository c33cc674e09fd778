package debipa

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/testlabtools/debipa/ar"
	"github.com/testlabtools/debipa/decompress"
	"github.com/testlabtools/debipa/errs"
)

// Report describes a package without extracting it.
type Report struct {
	Members []ar.Header

	// Data is the data member, or nil if the package has none.
	Data *ar.Header

	Compression decompress.Kind

	// Supported reports whether the data member can be decompressed
	// with the given options.
	Supported bool
}

// Inspect lists the members of the package at path and classifies its
// data member.
func Inspect(l *slog.Logger, path string, o decompress.Options) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open package: %w", errs.ErrIO, err)
	}
	defer f.Close()

	members, err := ar.List(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", path, err)
	}

	report := &Report{Members: members}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: failed to rewind %q: %w", errs.ErrIO, path, err)
	}

	member, err := ar.ReadMember(bufio.NewReader(f), DataMemberPrefix)
	if errors.Is(err, errs.ErrNotFound) {
		l.Warn("package has no data member", "file", path)
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	report.Data = &member.Header
	report.Compression = decompress.Classify(member.Data, member.Name)

	caps := decompress.Probe(o)
	defer caps.Close()
	report.Supported = caps.Supports(report.Compression)

	l.Debug("inspected package", "file", path, "members", len(members), "data", member.Name)

	return report, nil
}
