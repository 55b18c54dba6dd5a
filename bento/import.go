package bento

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/bentoml/bento/manifest"
	"github.com/bentoml/bento/vfs"
)

// Import opens source and reconstructs the bento it contains, without
// touching any store. Archive sources are unpacked into scratch space that
// is held until Close or a successful Save; directory sources are read in
// place. An empty format is detected from the source's extension.
//
// The returned bento has no model store binding: bundled models stay inside
// its tree until Save moves them into the local model store.
func Import(source, format string) (*Bento, error) {
	if format != "" && !vfs.KnownFormat(format) {
		return nil, fmt.Errorf("%w: input format %q", vfs.ErrUnsupportedBackend, format)
	}

	fsys, cleanup, err := vfs.Open(source, format)
	if err != nil {
		return nil, err
	}
	info, err := manifest.Load(fsys, "/"+manifest.Filename)
	if err != nil {
		cleanup()
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q does not contain %s", vfs.ErrCorruptArchive, source, manifest.Filename)
		}
		return nil, err
	}
	t, err := info.Tag()
	if err != nil {
		cleanup()
		return nil, err
	}

	slog.Debug("imported bento", "tag", t, "source", source)
	return &Bento{tag: t, info: info, fsys: fsys, cleanup: cleanup}, nil
}
