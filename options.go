package debipa

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultURL     = "https://tigisoftware.com/cydia/com.tigisoftware.filza_4.0.1-2_iphoneos-arm.deb"
	DefaultDebFile = "filza.deb"
	DefaultWorkDir = "_DEBIPA_TEMP"
	DefaultOutput  = "Filza-Jailed-iOS26.ipa"
	DefaultApp     = "Filza.app"

	// DataMemberPrefix selects the data member of a Debian package.
	DataMemberPrefix = "data.tar"

	// StagingDir is the top-level directory of an ipa.
	StagingDir = "Payload"
)

type BuildOptions struct {
	// URL is the package URL. If omitted, env var DEBIPA_URL or
	// DefaultURL is used.
	URL string

	// DebFile is the local path the package is downloaded to.
	DebFile string

	// Source is a local package. If set, nothing is downloaded.
	Source string

	// Output is the path of the ipa. If omitted, env var DEBIPA_OUTPUT
	// or DefaultOutput is used.
	Output string

	// WorkDir is the scratch directory, removed before and after the
	// build. If omitted, env var DEBIPA_WORKDIR or DefaultWorkDir is used.
	WorkDir string

	// App is the name of the application directory to package.
	App string

	// ForceDownload downloads the package even if DebFile exists.
	ForceDownload bool

	// KeepWorkDir keeps the scratch directory after the build for
	// debugging.
	KeepWorkDir bool

	// NoZstd disables zstd support.
	NoZstd bool

	// MaxSize is the maximum size of the decompressed data member.
	MaxSize int64

	// Attempts is the number of download requests made on transient
	// failures. If omitted (or zero), a single request is made.
	Attempts int

	// Timeout is the download timeout.
	Timeout time.Duration

	// Client overrides the HTTP client.
	Client *http.Client

	// Progress receives a download progress bar if not nil.
	Progress io.Writer
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (o *BuildOptions) setDefaults(env map[string]string) {
	o.URL = firstNonEmpty(o.URL, env["DEBIPA_URL"], DefaultURL)
	o.DebFile = firstNonEmpty(o.DebFile, env["DEBIPA_DEB"], DefaultDebFile)
	o.Output = firstNonEmpty(o.Output, env["DEBIPA_OUTPUT"], DefaultOutput)
	o.WorkDir = firstNonEmpty(o.WorkDir, env["DEBIPA_WORKDIR"], DefaultWorkDir)
	o.App = firstNonEmpty(o.App, env["DEBIPA_APP"], DefaultApp)
}

// contains reports whether path is dir or lies below it.
func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// checkWorkDir makes sure removing the work dir cannot delete the
// current directory or any of the given paths.
func checkWorkDir(work string, paths ...string) error {
	clean := filepath.Clean(work)
	if clean == "." || clean == ".." || clean == string(filepath.Separator) {
		return fmt.Errorf("invalid work dir %q", work)
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("failed to resolve work dir %q: %w", work, err)
	}

	cwd, err := filepath.Abs(".")
	if err != nil {
		return fmt.Errorf("failed to resolve current dir: %w", err)
	}
	if contains(abs, cwd) {
		return fmt.Errorf("work dir %q contains the current directory", work)
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		ap, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", p, err)
		}
		if contains(abs, ap) {
			return fmt.Errorf("work dir %q must not contain %q", work, p)
		}
	}

	return nil
}
