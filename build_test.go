package debipa

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"

	"github.com/testlabtools/debipa/errs"
	"github.com/testlabtools/debipa/fake"
	"github.com/testlabtools/debipa/tar"
)

func deb(t *testing.T, p fake.Package) []byte {
	t.Helper()

	data, err := p.Deb()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func appPackage(suffix string, plist string) fake.Package {
	return fake.Package{
		Suffix:  suffix,
		Entries: fake.AppEntries(DefaultApp, []byte(plist)),
	}
}

// readIPA returns the files of the archive at path.
func readIPA(t *testing.T, path string) map[string][]byte {
	t.Helper()

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	files := make(map[string][]byte)
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		files[f.Name] = b
	}
	return files
}

// testOptions returns options that keep every path inside a test
// directory.
func testOptions(t *testing.T) BuildOptions {
	dir := t.TempDir()

	return BuildOptions{
		DebFile: filepath.Join(dir, "app.deb"),
		Output:  filepath.Join(dir, "App.ipa"),
		WorkDir: filepath.Join(dir, "_work"),
		Client:  http.DefaultClient,
	}
}

func TestBuild(t *testing.T) {
	var tests = []struct {
		name   string
		suffix string
	}{
		{name: "gzip", suffix: "gz"},
		{name: "xz", suffix: "xz"},
		{name: "bzip2", suffix: "bz2"},
		{name: "zstd", suffix: "zst"},
		{name: "tar", suffix: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := slogt.New(t)
			assert := assert.New(t)

			srv := fake.NewServer(t, l, deb(t, appPackage(tt.suffix, "<plist/>")))
			defer srv.Close()

			o := testOptions(t)

			err := Build(context.Background(), l, srv.Env, o)
			if !assert.NoError(err) {
				return
			}

			assert.Equal(map[string][]byte{
				"Payload/Filza.app/Info.plist":           []byte("<plist/>"),
				"Payload/Filza.app/Frameworks/lib.dylib": []byte("dylib"),
			}, readIPA(t, o.Output))

			assert.Equal(1, srv.Requests)
			assert.FileExists(o.DebFile)
			assert.NoDirExists(o.WorkDir)
		})
	}
}

func TestBuildSingleFile(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	p := fake.Package{
		Suffix: "gz",
		Entries: []tar.Entry{
			tar.Dir("Filza.app/"),
			tar.File("Filza.app/Info.plist", []byte("plist")),
		},
	}

	srv := fake.NewServer(t, l, deb(t, p))
	defer srv.Close()

	o := testOptions(t)

	err := Build(context.Background(), l, srv.Env, o)
	if !assert.NoError(err) {
		return
	}

	assert.Equal(map[string][]byte{
		"Payload/Filza.app/Info.plist": []byte("plist"),
	}, readIPA(t, o.Output))
}

func TestBuildOverwritesOutput(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	first := fake.Package{
		Suffix: "gz",
		Entries: []tar.Entry{
			tar.File("Applications/Filza.app/Info.plist", []byte("old")),
			tar.File("Applications/Filza.app/stale.txt", []byte("stale")),
		},
	}

	srv := fake.NewServer(t, l, deb(t, first))
	defer srv.Close()

	o := testOptions(t)

	if !assert.NoError(Build(context.Background(), l, srv.Env, o)) {
		return
	}

	srv.Deb = deb(t, fake.Package{
		Suffix: "xz",
		Entries: []tar.Entry{
			tar.File("Applications/Filza.app/Info.plist", []byte("new")),
		},
	})
	o.ForceDownload = true

	if !assert.NoError(Build(context.Background(), l, srv.Env, o)) {
		return
	}

	assert.Equal(2, srv.Requests)
	assert.Equal(map[string][]byte{
		"Payload/Filza.app/Info.plist": []byte("new"),
	}, readIPA(t, o.Output))
}

func TestBuildReusesDownload(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	srv := fake.NewServer(t, l, deb(t, appPackage("gz", "plist")))
	defer srv.Close()

	o := testOptions(t)

	for range 2 {
		if !assert.NoError(Build(context.Background(), l, srv.Env, o)) {
			return
		}
	}

	assert.Equal(1, srv.Requests)
}

func TestBuildFromSource(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	o := testOptions(t)
	o.Source = filepath.Join(t.TempDir(), "local.deb")
	o.URL = "http://127.0.0.1:0/unused.deb"

	if err := os.WriteFile(o.Source, deb(t, appPackage("zst", "local")), 0644); err != nil {
		t.Fatal(err)
	}

	err := Build(context.Background(), l, nil, o)
	if !assert.NoError(err) {
		return
	}

	assert.NoFileExists(o.DebFile)
	assert.Equal([]byte("local"), readIPA(t, o.Output)["Payload/Filza.app/Info.plist"])
}

func TestBuildErrors(t *testing.T) {
	var tests = []struct {
		name   string
		deb    func(t *testing.T) []byte
		status int
		modify func(o *BuildOptions)
		err    error
	}{
		{
			name:   "not found status",
			deb:    func(t *testing.T) []byte { return deb(t, appPackage("gz", "plist")) },
			status: http.StatusNotFound,
			err:    errs.ErrNetwork,
		},
		{
			name:   "server error",
			deb:    func(t *testing.T) []byte { return deb(t, appPackage("gz", "plist")) },
			status: http.StatusInternalServerError,
			err:    errs.ErrNetwork,
		},
		{
			name: "not an ar archive",
			deb:  func(t *testing.T) []byte { return []byte("<html>not a package</html>") },
			err:  errs.ErrFormat,
		},
		{
			name: "missing data member",
			deb: func(t *testing.T) []byte {
				data, err := fake.Ar(fake.Member{Name: "debian-binary", Data: []byte("2.0\n")})
				if err != nil {
					t.Fatal(err)
				}
				return data
			},
			err: errs.ErrNotFound,
		},
		{
			name: "missing app",
			deb: func(t *testing.T) []byte {
				return deb(t, fake.Package{
					Suffix:  "xz",
					Entries: []tar.Entry{tar.File("Applications/Other.app/Info.plist", []byte("plist"))},
				})
			},
			err: errs.ErrNotFound,
		},
		{
			name: "traversal",
			deb: func(t *testing.T) []byte {
				return deb(t, fake.Package{
					Suffix:  "gz",
					Entries: []tar.Entry{tar.File("../../evil", []byte("evil"))},
				})
			},
			err: errs.ErrSecurity,
		},
		{
			name: "zstd disabled",
			deb:  func(t *testing.T) []byte { return deb(t, appPackage("zst", "plist")) },
			modify: func(o *BuildOptions) {
				o.NoZstd = true
			},
			err: errs.ErrCapability,
		},
		{
			name: "corrupt stream",
			deb: func(t *testing.T) []byte {
				data, err := fake.Ar(fake.Member{Name: "data.tar.gz", Data: []byte{0x1f, 0x8b, 0x08, 0x00}})
				if err != nil {
					t.Fatal(err)
				}
				return data
			},
			err: errs.ErrDecompress,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := slogt.New(t)
			assert := assert.New(t)

			srv := fake.NewServer(t, l, tt.deb(t))
			defer srv.Close()

			if tt.status != 0 {
				srv.Status(tt.status)
			}

			o := testOptions(t)
			if tt.modify != nil {
				tt.modify(&o)
			}

			err := Build(context.Background(), l, srv.Env, o)
			assert.ErrorIs(err, tt.err)

			// No partial output and no leftovers.
			assert.NoFileExists(o.Output)
			assert.NoDirExists(o.WorkDir)
			assert.NoFileExists(filepath.Join(filepath.Dir(o.WorkDir), "evil"))
		})
	}
}

func TestBuildKeepWorkDir(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	srv := fake.NewServer(t, l, deb(t, appPackage("gz", "plist")))
	defer srv.Close()

	o := testOptions(t)
	o.KeepWorkDir = true

	if !assert.NoError(Build(context.Background(), l, srv.Env, o)) {
		return
	}

	assert.DirExists(filepath.Join(o.WorkDir, StagingDir, DefaultApp))
	assert.FileExists(filepath.Join(o.WorkDir, "usr", "share", "README"))
}

func TestBuildResetsWorkDir(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	srv := fake.NewServer(t, l, deb(t, appPackage("gz", "plist")))
	defer srv.Close()

	o := testOptions(t)

	// A leftover app from an earlier run must not be picked up.
	stale := filepath.Join(o.WorkDir, "Applications", "A", DefaultApp)
	if err := os.MkdirAll(stale, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "stale.txt"), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	if !assert.NoError(Build(context.Background(), l, srv.Env, o)) {
		return
	}

	files := readIPA(t, o.Output)
	assert.NotContains(files, "Payload/Filza.app/stale.txt")
	assert.Contains(files, "Payload/Filza.app/Info.plist")
}

func TestBuildRejectsWorkDir(t *testing.T) {
	var tests = []struct {
		name    string
		workDir func(o BuildOptions) string
	}{
		{
			name:    "current dir",
			workDir: func(o BuildOptions) string { return "." },
		},
		{
			name:    "parent dir",
			workDir: func(o BuildOptions) string { return ".." },
		},
		{
			name:    "contains output",
			workDir: func(o BuildOptions) string { return filepath.Dir(o.Output) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := slogt.New(t)
			assert := assert.New(t)

			o := testOptions(t)
			o.WorkDir = tt.workDir(o)
			o.Source = filepath.Join(t.TempDir(), "missing.deb")

			err := Build(context.Background(), l, nil, o)
			assert.ErrorContains(err, "work dir")
		})
	}
}

func TestSetDefaults(t *testing.T) {
	assert := assert.New(t)

	var o BuildOptions
	o.setDefaults(map[string]string{
		"DEBIPA_OUTPUT": "env.ipa",
	})

	assert.Equal(DefaultURL, o.URL)
	assert.Equal(DefaultDebFile, o.DebFile)
	assert.Equal("env.ipa", o.Output)
	assert.Equal(DefaultWorkDir, o.WorkDir)
	assert.Equal(DefaultApp, o.App)

	o = BuildOptions{Output: "flag.ipa"}
	o.setDefaults(map[string]string{
		"DEBIPA_OUTPUT": "env.ipa",
	})
	assert.Equal("flag.ipa", o.Output)
}
