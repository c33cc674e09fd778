package tar

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/testlabtools/debipa/errs"
)

func tarball(t *testing.T, entries ...Entry) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	if err := Create(entries, &buf); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestExtract(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()

	buf := tarball(t,
		Dir("./"),
		Dir("./Applications/"),
		Dir("./Applications/Filza.app/"),
		File("./Applications/Filza.app/Info.plist", []byte("<plist/>")),
		Entry{Name: "./Applications/Filza.app/Filza", Mode: 0755, Body: []byte("binary")},
		Symlink("./Applications/Filza.app/Current", "Info.plist"),
		Link("./usr/bin/filza", "./Applications/Filza.app/Filza"),
	)

	err := Extract(buf, dir)
	if !assert.NoError(err) {
		return
	}

	content, err := os.ReadFile(filepath.Join(dir, "Applications/Filza.app/Info.plist"))
	assert.NoError(err)
	assert.Equal([]byte("<plist/>"), content)

	info, err := os.Stat(filepath.Join(dir, "Applications/Filza.app/Filza"))
	if assert.NoError(err) {
		assert.Equal(os.FileMode(0755), info.Mode().Perm())
	}

	link, err := os.Readlink(filepath.Join(dir, "Applications/Filza.app/Current"))
	assert.NoError(err)
	assert.Equal("Info.plist", link)

	content, err = os.ReadFile(filepath.Join(dir, "usr/bin/filza"))
	assert.NoError(err)
	assert.Equal([]byte("binary"), content)
}

func TestExtractCreatesTargetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "work")

	err := Extract(tarball(t, File("a.txt", []byte("a"))), dir)
	if !assert.NoError(t, err) {
		return
	}

	assert.FileExists(t, filepath.Join(dir, "a.txt"))
}

// Path traversal must be rejected. Writing outside of the extraction
// directory is never acceptable, whatever the package contains.
func TestExtractRejectsTraversal(t *testing.T) {
	var tests = []struct {
		name    string
		entries []Entry
		outside string
	}{
		{
			name:    "parent",
			entries: []Entry{File("../../evil", []byte("evil"))},
			outside: "evil",
		},
		{
			name:    "nested parent",
			entries: []Entry{File("./ok/../../evil", []byte("evil"))},
			outside: "evil",
		},
		{
			name:    "absolute",
			entries: []Entry{File("/tmp/evil", []byte("evil"))},
		},
		{
			name: "through symlink",
			entries: []Entry{
				Symlink("link", "../../outside"),
				File("link/evil", []byte("evil")),
			},
			outside: "outside/evil",
		},
		{
			name: "hard link",
			entries: []Entry{
				Link("passwd", "../outside/secret"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			base := t.TempDir()
			dir := filepath.Join(base, "work", "a")
			if err := os.MkdirAll(filepath.Join(base, "outside"), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(base, "outside", "secret"), []byte("secret"), 0644); err != nil {
				t.Fatal(err)
			}

			err := Extract(tarball(t, tt.entries...), dir)
			assert.ErrorIs(err, errs.ErrSecurity)

			if tt.outside != "" {
				assert.NoFileExists(filepath.Join(base, tt.outside))
				assert.NoFileExists(filepath.Join(base, "work", tt.outside))
			}
			assert.NoFileExists(filepath.Join(dir, "passwd"))
		})
	}
}

func TestExtractMalformed(t *testing.T) {
	var tests = []struct {
		name string
		data []byte
	}{
		{
			name: "garbage header",
			data: bytes.Repeat([]byte("x"), 1024),
		},
		{
			name: "short",
			data: []byte("not a tarball"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Extract(bytes.NewReader(tt.data), t.TempDir())
			assert.ErrorIs(t, err, errs.ErrFormat)
		})
	}
}

func TestExtractTruncatedFile(t *testing.T) {
	buf := tarball(t, File("big.bin", bytes.Repeat([]byte("a"), 4096)))

	err := Extract(bytes.NewReader(buf.Bytes()[:1024]), t.TempDir())
	assert.ErrorIs(t, err, errs.ErrFormat)
}

func TestExtractEmpty(t *testing.T) {
	dir := t.TempDir()

	err := Extract(bytes.NewReader(nil), dir)
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}
