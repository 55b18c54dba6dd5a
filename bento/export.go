package bento

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/bentoml/bento/model"
	"github.com/bentoml/bento/types/errtypes"
	"github.com/bentoml/bento/vfs"
)

// ErrInvalidDestination is returned for export destinations that fail
// validation before any archive data is written: a trailing separator that
// does not name an existing directory, a missing parent directory, an
// extension conflicting with the requested format, or a subpath on a
// destination that cannot hold one.
var ErrInvalidDestination = errors.New("invalid export destination")

// Export writes the bento as an archive to dest and returns the path the
// archive was written to, so callers never re-derive it.
//
// A destination naming an existing directory receives a file named
// name_version.<format> inside it; a destination naming a file is used as
// is, with its extension selecting the format unless format is given
// explicitly. temp:// destinations create a fresh temporary directory and
// behave like a directory destination; zip:// destinations write exactly at
// the named path and are returned with their scheme intact. subpath places
// the tree under that path inside a zip archive and is rejected for every
// other destination.
//
// Referenced models are bundled under models/ from the bento's bound model
// store, or from ms when the bento has never been saved.
func (b *Bento) Export(dest, format, subpath string, ms *model.Store) (string, error) {
	if format != "" && !vfs.KnownFormat(format) {
		return "", fmt.Errorf("%w: output format %q", vfs.ErrUnsupportedBackend, format)
	}

	scheme, rest := vfs.SplitScheme(dest)
	if subpath != "" && scheme != "zip" {
		return "", fmt.Errorf("%w: subpath %q requires a zip destination", ErrInvalidDestination, subpath)
	}

	switch scheme {
	case "", "osfs":
		out, outFormat, err := b.resolveDestination(rest, format)
		if err != nil {
			return "", err
		}
		return out, b.writeArchiveFile(out, outFormat, "", ms)
	case "zip":
		if format != "" && format != vfs.FormatZip {
			return "", fmt.Errorf("%w: zip destination conflicts with output format %q", ErrInvalidDestination, format)
		}
		if err := checkParent(rest); err != nil {
			return "", err
		}
		return dest, b.writeArchiveFile(rest, vfs.FormatZip, subpath, ms)
	case "temp":
		dir, err := vfs.TempDir(rest)
		if err != nil {
			return "", err
		}
		out := filepath.Join(dir, b.exportName(format))
		return out, b.writeArchiveFile(out, defaultFormat(format), "", ms)
	default:
		return "", fmt.Errorf("%w: scheme %q", vfs.ErrUnsupportedBackend, scheme)
	}
}

// WriteArchive streams the bento to w as an archive in the given format,
// bundling referenced models the same way Export does.
func (b *Bento) WriteArchive(w io.Writer, format string, ms *model.Store) error {
	if !vfs.KnownFormat(format) {
		return fmt.Errorf("%w: archive format %q", vfs.ErrUnsupportedBackend, format)
	}
	trees, err := b.archiveTrees(ms)
	if err != nil {
		return err
	}
	return vfs.WriteArchive(w, format, trees...)
}

// resolveDestination turns a bare or osfs:// destination into the concrete
// output path and archive format.
func (b *Bento) resolveDestination(p, format string) (string, string, error) {
	trailing := strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(os.PathSeparator))
	fi, err := os.Stat(p)
	if err == nil && fi.IsDir() {
		return filepath.Join(p, b.exportName(format)), defaultFormat(format), nil
	}
	if trailing {
		return "", "", fmt.Errorf("%w: %q does not name an existing directory", ErrInvalidDestination, p)
	}

	if err := checkParent(p); err != nil {
		return "", "", err
	}
	extFormat := vfs.FormatFromPath(p)
	switch {
	case extFormat == "":
		return p + "." + defaultFormat(format), defaultFormat(format), nil
	case format != "" && format != extFormat:
		return "", "", fmt.Errorf("%w: extension of %q conflicts with output format %q", ErrInvalidDestination, p, format)
	default:
		return p, extFormat, nil
	}
}

func checkParent(p string) error {
	fi, err := os.Stat(filepath.Dir(p))
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: parent directory of %q does not exist", ErrInvalidDestination, p)
	}
	return nil
}

func defaultFormat(format string) string {
	if format == "" {
		return vfs.FormatBento
	}
	return format
}

// exportName is the derived file name used when exporting into a directory.
func (b *Bento) exportName(format string) string {
	return b.tag.Name + "_" + b.tag.Version + "." + defaultFormat(format)
}

// writeArchiveFile writes the archive to a temporary file next to out and
// renames it into place, so a failed export never leaves a partial file at
// the destination.
func (b *Bento) writeArchiveFile(out, format, subpath string, ms *model.Store) error {
	trees, err := b.archiveTrees(ms)
	if err != nil {
		return err
	}
	if subpath != "" {
		sub := strings.TrimPrefix(path.Clean("/"+subpath), "/")
		for i := range trees {
			trees[i].Prefix = path.Join(sub, trees[i].Prefix)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), ".bento-export-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := vfs.WriteArchive(tmp, format, trees...); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), out)
}

// archiveTrees composes the filesystems an exported archive is written
// from: the bento tree itself plus one tree per referenced model. A tree
// that already bundles its models, as an imported but never saved bento
// does, is archived as is.
func (b *Bento) archiveTrees(ms *model.Store) ([]vfs.Tree, error) {
	trees := []vfs.Tree{{FS: b.fsys}}
	if len(b.info.Models) == 0 {
		return trees, nil
	}

	if ok, err := afero.DirExists(b.fsys, "/"+modelsDir); err != nil {
		return nil, err
	} else if ok {
		return trees, nil
	}

	store := b.models
	if store == nil {
		store = ms
	}
	for _, ref := range b.info.Models {
		if store == nil {
			return nil, fmt.Errorf("model %s: no model store is available: %w", ref.Tag, errtypes.ErrNotFound)
		}
		p, err := store.Path(ref.Tag)
		if err != nil {
			return nil, err
		}
		trees = append(trees, vfs.Tree{
			FS:     vfs.ReadOnlyDir(p),
			Prefix: path.Join(modelsDir, ref.Tag.Name, ref.Tag.Version),
		})
	}
	return trees, nil
}
