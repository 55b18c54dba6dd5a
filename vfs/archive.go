package vfs

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/spf13/afero"

	"github.com/bentoml/bento/logutil"
)

// Archive formats. A bento archive is a plain tar stream; the format names
// double as the canonical file extensions.
const (
	FormatBento = "bento"
	FormatTar   = "tar"
	FormatGzip  = "gz"
	FormatZip   = "zip"
)

// ErrCorruptArchive is returned when an archive cannot be read or contains
// entries that would escape the extraction root.
var ErrCorruptArchive = errors.New("corrupt bento archive")

var extFormats = map[string]string{
	".bento": FormatBento,
	".tar":   FormatTar,
	".gz":    FormatGzip,
	".tgz":   FormatGzip,
	".zip":   FormatZip,
}

// FormatFromPath guesses the archive format from the extension of p,
// returning "" when the extension is not recognized.
func FormatFromPath(p string) string {
	return extFormats[strings.ToLower(filepath.Ext(p))]
}

// KnownFormat reports whether format names a supported archive format.
func KnownFormat(format string) bool {
	switch format {
	case FormatBento, FormatTar, FormatGzip, FormatZip:
		return true
	}
	return false
}

// A Tree is one filesystem to be placed into an archive under Prefix.
// Archives that bundle models alongside the bento tree are written as a
// sequence of trees.
type Tree struct {
	FS     afero.Fs
	Prefix string
}

// WriteArchive writes trees to w in the named format. Trees are walked in
// deterministic order: parents before children, lexicographic siblings.
func WriteArchive(w io.Writer, format string, trees ...Tree) error {
	switch format {
	case FormatBento, FormatTar:
		return WriteTar(w, trees...)
	case FormatGzip:
		return WriteTarGz(w, trees...)
	case FormatZip:
		return WriteZip(w, trees...)
	default:
		return fmt.Errorf("%w: archive format %q", ErrUnsupportedBackend, format)
	}
}

// WriteTar writes trees to w as a tar stream.
func WriteTar(w io.Writer, trees ...Tree) error {
	tw := tar.NewWriter(w)
	for _, t := range trees {
		if err := writeTarTree(tw, t.FS, t.Prefix); err != nil {
			return err
		}
	}
	return tw.Close()
}

// WriteTarGz writes trees to w as a gzip-compressed tar stream.
func WriteTarGz(w io.Writer, trees ...Tree) error {
	zw := pgzip.NewWriter(w)
	if err := WriteTar(zw, trees...); err != nil {
		return err
	}
	return zw.Close()
}

// WriteZip writes trees to w as a zip archive.
func WriteZip(w io.Writer, trees ...Tree) error {
	zw := zip.NewWriter(w)
	for _, t := range trees {
		if err := writeZipTree(zw, t.FS, t.Prefix); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeTarTree(tw *tar.Writer, fsys afero.Fs, prefix string) error {
	return afero.Walk(fsys, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if rel == "" {
			return nil
		}
		name := path.Join(prefix, rel)
		logutil.Trace("tar entry", "name", name)
		if info.IsDir() {
			return tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     name + "/",
				Mode:     int64(info.Mode().Perm()),
				ModTime:  info.ModTime(),
			})
		}
		if !info.Mode().IsRegular() {
			slog.Warn("skipping irregular file", "name", name)
			return nil
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:    name,
			Size:    info.Size(),
			Mode:    int64(info.Mode().Perm()),
			ModTime: info.ModTime(),
		}); err != nil {
			return err
		}
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
		return nil
	})
}

func writeZipTree(zw *zip.Writer, fsys afero.Fs, prefix string) error {
	return afero.Walk(fsys, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if rel == "" {
			return nil
		}
		name := path.Join(prefix, rel)
		logutil.Trace("zip entry", "name", name)
		if info.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		if !info.Mode().IsRegular() {
			slog.Warn("skipping irregular file", "name", name)
			return nil
		}
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(info.Mode().Perm())
		hdr.Modified = info.ModTime()
		out, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(out, f); err != nil {
			return err
		}
		return nil
	})
}

// ExtractTar unpacks a tar stream into dst. Entry names are validated so
// an archive cannot write outside the extraction root.
func ExtractTar(r io.Reader, dst afero.Fs) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
		}
		name, err := safeName(hdr.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		logutil.Trace("extract entry", "name", name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := dst.MkdirAll(name, dirPerm(fs.FileMode(hdr.Mode).Perm())); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(dst, name, filePerm(fs.FileMode(hdr.Mode).Perm()), tr); err != nil {
				return err
			}
		default:
			slog.Warn("skipping unsupported archive entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

// ExtractTarGz unpacks a gzip-compressed tar stream into dst.
func ExtractTarGz(r io.Reader, dst afero.Fs) error {
	gzr, err := pgzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer gzr.Close()
	return ExtractTar(gzr, dst)
}

// ExtractZip unpacks the zip archive at archivePath into dst. Zip archives
// need random access, so the source is a file path rather than a stream.
func ExtractZip(archivePath string, dst afero.Fs) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		name, err := safeName(f.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		logutil.Trace("extract entry", "name", name)
		if f.FileInfo().IsDir() {
			if err := dst.MkdirAll(name, dirPerm(f.Mode().Perm())); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
		}
		err = writeEntry(dst, name, filePerm(f.Mode().Perm()), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(dst afero.Fs, name string, perm fs.FileMode, r io.Reader) error {
	if dir := path.Dir(name); dir != "." {
		if err := dst.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	out, err := dst.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// safeName normalizes an archive entry name and rejects paths that would
// escape the extraction root.
func safeName(name string) (string, error) {
	name = path.Clean(filepath.ToSlash(name))
	if name == "." || name == "/" {
		return "", nil
	}
	name = strings.TrimPrefix(name, "/")
	if name == ".." || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf("%w: unsafe entry path %q", ErrCorruptArchive, name)
	}
	return name, nil
}
