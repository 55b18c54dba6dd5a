// Package vfs routes bento sources and destinations to filesystem
// implementations: plain directories, temporary directories and archive
// files, addressed either by bare OS paths or by scheme-prefixed URLs such
// as osfs://, temp:// and zip://.
//
// All trees are handled through afero.Fs with slash-rooted paths, so the
// same walking, mirroring and archiving code serves in-memory build trees,
// store directories and extracted archives alike.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/bentoml/bento/envconfig"
)

// ErrUnsupportedBackend is returned for sources or destinations whose
// scheme or archive format is not recognized.
var ErrUnsupportedBackend = errors.New("unsupported filesystem backend")

// SplitScheme splits a source like "osfs:///bentos/x" into its scheme and
// path. Sources without a scheme, including Windows drive paths, return
// scheme "".
func SplitScheme(s string) (scheme, rest string) {
	i := strings.Index(s, "://")
	if i <= 0 {
		return "", s
	}
	for _, c := range []byte(s[:i]) {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return "", s
		}
	}
	return strings.ToLower(s[:i]), s[i+3:]
}

// Dir returns a filesystem rooted at dir on the host OS.
func Dir(dir string) afero.Fs {
	return afero.NewBasePathFs(afero.NewOsFs(), dir)
}

// ReadOnlyDir returns a read-only filesystem rooted at dir.
func ReadOnlyDir(dir string) afero.Fs {
	return afero.NewReadOnlyFs(Dir(dir))
}

// TempDir creates a fresh temporary directory whose final path element
// ends with label, honoring BENTOML_TMPDIR.
func TempDir(label string) (string, error) {
	label = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, label)
	return os.MkdirTemp(envconfig.TmpDir, "*"+label)
}

// Mirror copies the tree rooted at src into dst, preserving structure and
// permissions. Top-level names listed in skip are not copied.
func Mirror(src, dst afero.Fs, skip ...string) error {
	return afero.Walk(src, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if rel == "" {
			return nil
		}
		for _, s := range skip {
			if rel == s || strings.HasPrefix(rel, s+"/") {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if info.IsDir() {
			return dst.MkdirAll(rel, dirPerm(info.Mode().Perm()))
		}
		return copyFile(src, dst, p, rel, filePerm(info.Mode().Perm()))
	})
}

// CopyFile copies one file between filesystems, creating parent directories
// in dst and preserving the source's permission bits.
func CopyFile(src, dst afero.Fs, from, to string) error {
	info, err := src.Stat(from)
	if err != nil {
		return err
	}
	if dir := filepath.ToSlash(filepath.Dir(to)); dir != "." && dir != "/" {
		if err := dst.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return copyFile(src, dst, from, to, filePerm(info.Mode().Perm()))
}

func copyFile(src, dst afero.Fs, from, to string, perm fs.FileMode) error {
	in, err := src.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := dst.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// DirSize returns the total size in bytes of the regular files under dir.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// Open resolves source to a readable tree. Directory sources are opened in
// place; archive sources are unpacked into a scratch directory first. The
// returned cleanup releases any scratch space and must be called once the
// tree is no longer needed. An empty format means detect from the file
// extension.
func Open(source, format string) (fsys afero.Fs, cleanup func() error, err error) {
	noop := func() error { return nil }
	scheme, rest := SplitScheme(source)
	switch scheme {
	case "", "osfs":
		fi, err := os.Stat(rest)
		if err != nil {
			return nil, nil, err
		}
		if fi.IsDir() {
			return ReadOnlyDir(rest), noop, nil
		}
		if format == "" {
			format = FormatFromPath(rest)
		}
		return openArchive(rest, format)
	case "zip":
		return openArchive(rest, FormatZip)
	case "temp":
		dir, err := TempDir(rest)
		if err != nil {
			return nil, nil, err
		}
		return ReadOnlyDir(dir), func() error { return os.RemoveAll(dir) }, nil
	default:
		return nil, nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedBackend, scheme)
	}
}

func openArchive(archivePath, format string) (afero.Fs, func() error, error) {
	if format == "" {
		return nil, nil, fmt.Errorf("%w: cannot detect archive format of %q", ErrUnsupportedBackend, archivePath)
	}
	scratch, err := os.MkdirTemp(envconfig.TmpDir, "bento-extract-")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return os.RemoveAll(scratch) }
	slog.Debug("extracting archive", "path", archivePath, "format", format, "scratch", scratch)

	dst := Dir(scratch)
	switch format {
	case FormatBento, FormatTar:
		err = extractFile(archivePath, dst, ExtractTar)
	case FormatGzip:
		err = extractFile(archivePath, dst, ExtractTarGz)
	case FormatZip:
		err = ExtractZip(archivePath, dst)
	default:
		err = fmt.Errorf("%w: archive format %q", ErrUnsupportedBackend, format)
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return ReadOnlyDir(scratch), cleanup, nil
}

func extractFile(p string, dst afero.Fs, extract func(io.Reader, afero.Fs) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return extract(f, dst)
}

// Archive permission bits of 0 come from hand-crafted archives; writing
// entries with no permissions would make the extracted tree unreadable.
func filePerm(perm fs.FileMode) fs.FileMode {
	if perm == 0 {
		return 0o644
	}
	return perm
}

func dirPerm(perm fs.FileMode) fs.FileMode {
	if perm == 0 {
		return 0o755
	}
	return perm
}
