package debipa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/testlabtools/debipa/errs"
)

// DefaultTimeout is the HTTP client timeout for downloads.
const DefaultTimeout = 5 * time.Minute

type DownloadOptions struct {
	// URL is the package URL.
	URL string

	// Dest is the local path of the downloaded package.
	Dest string

	// Force downloads the package even if Dest already exists.
	Force bool

	// Attempts is the number of requests made before giving up on
	// transport errors and 5xx responses. If omitted (or zero), a single
	// request is made.
	Attempts int

	// Timeout limits the whole request including the body. If omitted
	// (or zero), DefaultTimeout is used.
	Timeout time.Duration

	// Client overrides the HTTP client, e.g. in tests.
	Client *http.Client

	// Progress receives a progress bar if not nil.
	Progress io.Writer
}

func newHTTPClient(l *slog.Logger, attempts int, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &retryTransport{
			maxAttempts: attempts,
			log:         l,
		},
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Download fetches the package into o.Dest and returns its path. An
// existing file at o.Dest is reused unless o.Force is set. The file is
// written under a temporary name first, so an interrupted download
// never leaves a partial package at o.Dest.
func Download(ctx context.Context, l *slog.Logger, o DownloadOptions) (string, error) {
	if o.URL == "" {
		return "", fmt.Errorf("%w: package url is required", errs.ErrNetwork)
	}

	if !o.Force && fileExists(o.Dest) {
		l.Warn("package already exists, skip download", "file", o.Dest)
		return o.Dest, nil
	}

	hc := o.Client
	if hc == nil {
		l.Debug("use default http client", "attempts", max(o.Attempts, 1), "timeout", o.Timeout)
		hc = newHTTPClient(l, o.Attempts, o.Timeout)
	} else {
		l.Debug("use provided http client")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create HTTP request: %w", errs.ErrNetwork, err)
	}

	l.Info("download package", "url", MaskURL(o.URL), "file", o.Dest)

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to send HTTP request: %w", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: download failed with status %d", errs.ErrNetwork, resp.StatusCode)
	}

	size, err := save(ctx, resp, o.Dest, o.Progress)
	if err != nil {
		return "", err
	}

	l.Info("download completed", "file", o.Dest, "size", size)

	return o.Dest, nil
}

// body remembers read errors of the response, so they can be told
// apart from write errors.
type body struct {
	r   io.Reader
	err error
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}

func save(ctx context.Context, resp *http.Response, dest string, progress io.Writer) (n int64, err error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("%w: failed to create %q: %w", errs.ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create temporary file: %w", errs.ErrIO, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	src := &body{r: resp.Body}

	var r io.Reader = src
	var p *mpb.Progress
	var bar *mpb.Bar

	if progress != nil {
		p = mpb.NewWithContext(ctx, mpb.WithOutput(progress), mpb.WithWidth(40), mpb.WithAutoRefresh())
		bar = p.AddBar(resp.ContentLength,
			mpb.PrependDecorators(decor.Name(filepath.Base(dest)+" ")),
			mpb.AppendDecorators(decor.CountersKibiByte("% .1f / % .1f")),
		)
		r = bar.ProxyReader(src)
	}

	n, err = io.Copy(tmp, r)

	if bar != nil {
		if err != nil {
			bar.Abort(false)
		} else {
			bar.SetTotal(-1, true)
		}
		p.Wait()
	}

	if err != nil {
		if src.err != nil {
			return n, fmt.Errorf("%w: failed to read response: %w", errs.ErrNetwork, err)
		}
		return n, fmt.Errorf("%w: failed to write %q: %w", errs.ErrIO, tmp.Name(), err)
	}

	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("%w: failed to close %q: %w", errs.ErrIO, tmp.Name(), err)
	}

	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return n, fmt.Errorf("%w: failed to chmod %q: %w", errs.ErrIO, tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, fmt.Errorf("%w: failed to move download to %q: %w", errs.ErrIO, dest, err)
	}

	return n, nil
}
