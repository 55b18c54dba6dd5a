package vfs

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitScheme(t *testing.T) {
	cases := map[string][2]string{
		"osfs:///tmp/bento":     {"osfs", "/tmp/bento"},
		"temp://mylabel":        {"temp", "mylabel"},
		"zip:///tmp/b.zip":      {"zip", "/tmp/b.zip"},
		"ZIP:///tmp/b.zip":      {"zip", "/tmp/b.zip"},
		"/tmp/bento":            {"", "/tmp/bento"},
		"relative/path":         {"", "relative/path"},
		"c:\\bentos\\b":         {"", "c:\\bentos\\b"},
		"weird-1://x":           {"", "weird-1://x"},
		"://x":                  {"", "://x"},
		"s3+like://not-letters": {"", "s3+like://not-letters"},
	}
	for in, want := range cases {
		scheme, rest := SplitScheme(in)
		assert.Equal(t, want[0], scheme, in)
		assert.Equal(t, want[1], rest, in)
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]string{
		"b.bento":          FormatBento,
		"b.tar":            FormatTar,
		"b.gz":             FormatGzip,
		"b.tgz":            FormatGzip,
		"b.ZIP":            FormatZip,
		"/some/dir/b.gz":   FormatGzip,
		"noext":            "",
		"archive.rar":      "",
		"bento.yaml":       "",
		"name_version.zip": FormatZip,
	}
	for p, want := range cases {
		assert.Equal(t, want, FormatFromPath(p), p)
	}
}

func TestKnownFormat(t *testing.T) {
	for _, f := range []string{FormatBento, FormatTar, FormatGzip, FormatZip} {
		assert.True(t, KnownFormat(f), f)
	}
	assert.False(t, KnownFormat("rar"))
	assert.False(t, KnownFormat(""))
}

func TestTempDir(t *testing.T) {
	dir, err := TempDir("pytest-some-temp")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	require.True(t, strings.HasSuffix(filepath.Base(dir), "pytest-some-temp"), dir)
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	// Separators in the label must not escape the temp root.
	dir2, err := TempDir("a/b")
	require.NoError(t, err)
	defer os.RemoveAll(dir2)
	require.True(t, strings.HasSuffix(filepath.Base(dir2), "a-b"), dir2)
}

func testTree(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/bento.yaml", []byte("service: svc\n"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/src/service.py", []byte("print('hi')\n"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/src/sub/util.py", []byte("x = 1\n"), 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/models/demo/v1/model.bin", []byte("weights"), 0o644))
	return fsys
}

func TestMirror(t *testing.T) {
	src := testTree(t)
	dst := afero.NewMemMapFs()
	require.NoError(t, Mirror(src, dst, "models"))

	data, err := afero.ReadFile(dst, "bento.yaml")
	require.NoError(t, err)
	assert.Equal(t, "service: svc\n", string(data))

	data, err = afero.ReadFile(dst, "src/sub/util.py")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))

	exists, err := afero.Exists(dst, "models/demo/v1/model.bin")
	require.NoError(t, err)
	assert.False(t, exists, "skipped tree was mirrored")
}

func TestTarRoundTrip(t *testing.T) {
	src := testTree(t)

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, FormatBento, Tree{FS: src}))

	dir := t.TempDir()
	require.NoError(t, ExtractTar(bytes.NewReader(buf.Bytes()), Dir(dir)))

	for p, want := range map[string]string{
		"bento.yaml":              "service: svc\n",
		"src/service.py":          "print('hi')\n",
		"src/sub/util.py":         "x = 1\n",
		"models/demo/v1/model.bin": "weights",
	} {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		require.NoError(t, err, p)
		assert.Equal(t, want, string(data), p)
	}

	fi, err := os.Stat(filepath.Join(dir, "src", "sub", "util.py"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), fi.Mode().Perm())
}

func TestTarDeterministic(t *testing.T) {
	src := testTree(t)
	var a, b bytes.Buffer
	require.NoError(t, WriteTar(&a, Tree{FS: src}))
	require.NoError(t, WriteTar(&b, Tree{FS: src}))
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestTarTreePrefix(t *testing.T) {
	main := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(main, "/bento.yaml", []byte("service: svc\n"), 0o644))
	model := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(model, "/model.yaml", []byte("name: m\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, WriteTar(&buf,
		Tree{FS: main},
		Tree{FS: model, Prefix: "models/m/v1"},
	))

	dst := afero.NewMemMapFs()
	require.NoError(t, ExtractTar(&buf, dst))

	data, err := afero.ReadFile(dst, "models/m/v1/model.yaml")
	require.NoError(t, err)
	assert.Equal(t, "name: m\n", string(data))
}

func TestGzipRoundTrip(t *testing.T) {
	src := testTree(t)

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, FormatGzip, Tree{FS: src}))

	dst := afero.NewMemMapFs()
	require.NoError(t, ExtractTarGz(bytes.NewReader(buf.Bytes()), dst))

	data, err := afero.ReadFile(dst, "src/service.py")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(data))
}

func TestZipRoundTrip(t *testing.T) {
	src := testTree(t)

	archive := filepath.Join(t.TempDir(), "b.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	require.NoError(t, WriteArchive(f, FormatZip, Tree{FS: src, Prefix: "sub/path"}))
	require.NoError(t, f.Close())

	dst := afero.NewMemMapFs()
	require.NoError(t, ExtractZip(archive, dst))

	data, err := afero.ReadFile(dst, "sub/path/bento.yaml")
	require.NoError(t, err)
	assert.Equal(t, "service: svc\n", string(data))
}

func TestExtractRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../evil.txt", Size: 4, Mode: 0o644}))
	_, err := tw.Write([]byte("evil"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	err = ExtractTar(bytes.NewReader(buf.Bytes()), afero.NewMemMapFs())
	require.ErrorIs(t, err, ErrCorruptArchive)
}

func TestExtractCorruptGzip(t *testing.T) {
	err := ExtractTarGz(strings.NewReader("definitely not gzip"), afero.NewMemMapFs())
	require.ErrorIs(t, err, ErrCorruptArchive)
}

func TestOpen(t *testing.T) {
	t.Run("directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bento.yaml"), []byte("service: svc\n"), 0o644))

		fsys, cleanup, err := Open(dir, "")
		require.NoError(t, err)
		defer cleanup()

		data, err := afero.ReadFile(fsys, "bento.yaml")
		require.NoError(t, err)
		assert.Equal(t, "service: svc\n", string(data))

		// In-place directory trees are read-only.
		require.Error(t, afero.WriteFile(fsys, "new.txt", []byte("x"), 0o644))
	})

	t.Run("osfs scheme", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bento.yaml"), []byte("service: svc\n"), 0o644))

		fsys, cleanup, err := Open("osfs://"+dir, "")
		require.NoError(t, err)
		defer cleanup()

		exists, err := afero.Exists(fsys, "bento.yaml")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("archive", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "b.bento")
		f, err := os.Create(archive)
		require.NoError(t, err)
		require.NoError(t, WriteArchive(f, FormatBento, Tree{FS: testTree(t)}))
		require.NoError(t, f.Close())

		fsys, cleanup, err := Open(archive, "")
		require.NoError(t, err)

		data, err := afero.ReadFile(fsys, "src/service.py")
		require.NoError(t, err)
		assert.Equal(t, "print('hi')\n", string(data))
		require.NoError(t, cleanup())
	})

	t.Run("temp scheme", func(t *testing.T) {
		fsys, cleanup, err := Open("temp://label", "")
		require.NoError(t, err)
		defer cleanup()

		exists, err := afero.Exists(fsys, "bento.yaml")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, _, err := Open("ftp://host/b.bento", "")
		require.ErrorIs(t, err, ErrUnsupportedBackend)
	})

	t.Run("unknown extension", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "b.rar")
		require.NoError(t, os.WriteFile(p, []byte("not an archive"), 0o644))
		_, _, err := Open(p, "")
		require.ErrorIs(t, err, ErrUnsupportedBackend)
	})

	t.Run("missing source", func(t *testing.T) {
		_, _, err := Open(filepath.Join(t.TempDir(), "nope.bento"), "")
		require.Error(t, err)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("12345"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("1234567"), 0o644))

	size, err := DirSize(dir)
	require.NoError(t, err)
	require.Equal(t, int64(12), size)
}
