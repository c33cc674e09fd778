// Package errs declares the error kinds reported by the repackaging
// pipeline. Stages wrap one of these sentinels with fmt.Errorf and %w so
// callers can classify a failure with errors.Is.
package errs

import "errors"

var (
	// ErrNetwork is returned when fetching the package fails.
	ErrNetwork = errors.New("network error")

	// ErrFormat is returned for malformed ar or tar input.
	ErrFormat = errors.New("format error")

	// ErrNotFound is returned for a missing archive member or payload
	// directory.
	ErrNotFound = errors.New("not found")

	// ErrSecurity is returned when an archive entry would be written
	// outside of the extraction directory.
	ErrSecurity = errors.New("security error")

	// ErrCapability is returned when an optional decompressor is not
	// available.
	ErrCapability = errors.New("capability error")

	// ErrDecompress is returned for corrupt compressed streams.
	ErrDecompress = errors.New("decompress error")

	// ErrIO is returned for filesystem failures.
	ErrIO = errors.New("io error")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNetwork, "network"},
	{ErrFormat, "format"},
	{ErrNotFound, "not_found"},
	{ErrSecurity, "security"},
	{ErrCapability, "capability"},
	{ErrDecompress, "decompress"},
	{ErrIO, "io"},
}

// Kind returns a short name of the error kind wrapped by err, or
// "unknown" if err does not wrap any of them.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
