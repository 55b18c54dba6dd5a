package bento

import (
	"time"

	"github.com/bentoml/bento/manifest"
	"github.com/bentoml/bento/store"
	"github.com/bentoml/bento/types/tag"
	"github.com/bentoml/bento/vfs"
)

// Store is the tag-addressed bento store.
type Store struct {
	items *store.Store
}

// NewStore opens (creating if needed) the bento store rooted at dir.
func NewStore(dir string) (*Store, error) {
	items, err := store.New(dir, manifest.Filename, createdAt)
	if err != nil {
		return nil, err
	}
	return &Store{items: items}, nil
}

func createdAt(dir string) (time.Time, error) {
	info, err := manifest.Load(vfs.Dir(dir), "/"+manifest.Filename)
	if err != nil {
		return time.Time{}, err
	}
	return info.CreationTime.Time, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.items.Root()
}

// Get resolves t and returns the stored bento, bound read-only to its
// directory in the store.
func (s *Store) Get(t tag.Tag) (*Bento, error) {
	e, err := s.items.Get(t)
	if err != nil {
		return nil, err
	}
	info, err := manifest.Load(vfs.Dir(e.Path), "/"+manifest.Filename)
	if err != nil {
		return nil, err
	}
	return &Bento{
		tag:  e.Tag,
		info: info,
		fsys: vfs.ReadOnlyDir(e.Path),
		path: e.Path,
	}, nil
}

// Path resolves t and returns the stored bento's directory.
func (s *Store) Path(t tag.Tag) (string, error) {
	return s.items.Path(t)
}

// List returns every stored bento, newest first.
func (s *Store) List() ([]store.Entry, error) {
	return s.items.List()
}

// ListName returns every stored version of name, newest first.
func (s *Store) ListName(name string) ([]store.Entry, error) {
	return s.items.ListName(name)
}

// Delete removes the bento addressed by t.
func (s *Store) Delete(t tag.Tag) error {
	return s.items.Delete(t)
}
