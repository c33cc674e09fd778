package debipa

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/testlabtools/debipa/ar"
	"github.com/testlabtools/debipa/decompress"
	"github.com/testlabtools/debipa/errs"
	"github.com/testlabtools/debipa/ipa"
	"github.com/testlabtools/debipa/payload"
	"github.com/testlabtools/debipa/tar"
)

// Build turns a Debian package into an ipa: it downloads the package
// (unless o.Source is set), extracts its data member into the work dir,
// moves the application directory into Payload/ and archives it at
// o.Output. The work dir is removed on success and on failure.
func Build(ctx context.Context, l *slog.Logger, env map[string]string, o BuildOptions) (err error) {
	o.setDefaults(env)

	if err := checkWorkDir(o.WorkDir, o.Output, o.DebFile, o.Source); err != nil {
		return err
	}

	src := o.Source
	if src == "" {
		src, err = Download(ctx, l, DownloadOptions{
			URL:      o.URL,
			Dest:     o.DebFile,
			Force:    o.ForceDownload,
			Attempts: o.Attempts,
			Timeout:  o.Timeout,
			Client:   o.Client,
			Progress: o.Progress,
		})
		if err != nil {
			return fmt.Errorf("failed to download package: %w", err)
		}
	} else {
		l.Info("use local package", "file", src)
	}

	if err := resetDir(o.WorkDir); err != nil {
		return err
	}

	defer func() {
		if o.KeepWorkDir {
			l.Warn("keep work dir", "dir", o.WorkDir)
			return
		}
		if rerr := os.RemoveAll(o.WorkDir); rerr != nil {
			l.Warn("failed to remove work dir", "dir", o.WorkDir, "err", rerr)
		}
	}()

	if err := unpack(l, src, o); err != nil {
		return err
	}

	staging, err := payload.Stage(o.WorkDir, o.App, StagingDir)
	if err != nil {
		return fmt.Errorf("failed to prepare payload: %w", err)
	}

	l.Info("payload prepared", "dir", staging, "app", o.App)

	if err := ipa.Archive(staging, o.Output); err != nil {
		return fmt.Errorf("failed to build ipa: %w", err)
	}

	l.Info("ipa built", "output", o.Output)

	return nil
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: failed to clean work dir %q: %w", errs.ErrIO, dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create work dir %q: %w", errs.ErrIO, dir, err)
	}
	return nil
}

// unpack extracts the data member of the package at src into the work
// dir.
func unpack(l *slog.Logger, src string, o BuildOptions) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: failed to open package: %w", errs.ErrIO, err)
	}
	defer f.Close()

	member, err := ar.ReadMember(bufio.NewReader(f), DataMemberPrefix)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", src, err)
	}

	l.Info("found data member", "member", member.Name, "size", member.Size)

	caps := decompress.Probe(decompress.Options{
		DisableZstd: o.NoZstd,
		MaxSize:     o.MaxSize,
	})
	defer caps.Close()

	kind := decompress.Classify(member.Data, member.Name)

	raw, err := decompress.Decompress(member.Data, kind, caps)
	if err != nil {
		return fmt.Errorf("failed to decompress %q: %w", member.Name, err)
	}

	l.Info("detected compression", "compression", kind.String(), "rawSize", len(raw))

	if err := tar.Extract(bytes.NewReader(raw), o.WorkDir); err != nil {
		return fmt.Errorf("failed to extract %q: %w", member.Name, err)
	}

	l.Info("extraction completed", "dir", o.WorkDir)

	return nil
}
