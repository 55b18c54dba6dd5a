// Package model implements the local model store. Models are tag-addressed
// directories holding opaque artifact files next to a model.yaml manifest.
// The packaging layer never inspects the artifacts themselves; it only moves
// them between stores and archives and reads enough of model.yaml to index
// them.
package model

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/bentoml/bento/manifest"
	"github.com/bentoml/bento/store"
	"github.com/bentoml/bento/types/tag"
	"github.com/bentoml/bento/version"
	"github.com/bentoml/bento/vfs"
)

// Filename is the name of the model manifest inside a model directory.
const Filename = "model.yaml"

// Info is the subset of model.yaml this toolchain reads and writes. Files
// produced by other toolchains carry additional fields (options, metadata,
// signatures); decoding is deliberately loose so those files index cleanly,
// and imported files are stored byte for byte, never re-encoded.
type Info struct {
	Name           string            `yaml:"name"`
	Version        string            `yaml:"version"`
	Module         string            `yaml:"module"`
	Labels         map[string]string `yaml:"labels"`
	BentomlVersion string            `yaml:"bentoml_version"`
	CreationTime   manifest.Time     `yaml:"creation_time"`
}

// Tag returns the tag recorded in the manifest.
func (i Info) Tag() (tag.Tag, error) {
	if i.Version == "" {
		return tag.Tag{}, fmt.Errorf("%w: model %q has no version", tag.ErrInvalidTag, i.Name)
	}
	return tag.New(i.Name, i.Version)
}

// Model is a handle to a stored or bundled model.
type Model struct {
	Tag  tag.Tag
	Info Info
	Path string
	Size int64
}

// FromFs reads a model rooted at fsys, as laid out under the models/ tree of
// an exported archive.
func FromFs(fsys afero.Fs) (*Model, error) {
	info, err := readInfo(fsys)
	if err != nil {
		return nil, err
	}
	t, err := info.Tag()
	if err != nil {
		return nil, err
	}
	return &Model{Tag: t, Info: info}, nil
}

func readInfo(fsys afero.Fs) (Info, error) {
	data, err := afero.ReadFile(fsys, "/"+Filename)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := yaml.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("%s: %w", Filename, err)
	}
	return info, nil
}

// Store is the tag-addressed model store.
type Store struct {
	items *store.Store
}

// NewStore opens (creating if needed) the model store rooted at dir.
func NewStore(dir string) (*Store, error) {
	items, err := store.New(dir, Filename, createdAt)
	if err != nil {
		return nil, err
	}
	return &Store{items: items}, nil
}

func createdAt(dir string) (time.Time, error) {
	info, err := readInfo(vfs.Dir(dir))
	if err != nil {
		return time.Time{}, err
	}
	return info.CreationTime.Time, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.items.Root()
}

// Get resolves t and returns a handle to the stored model.
func (s *Store) Get(t tag.Tag) (*Model, error) {
	e, err := s.items.Get(t)
	if err != nil {
		return nil, err
	}
	info, err := readInfo(vfs.Dir(e.Path))
	if err != nil {
		return nil, err
	}
	return &Model{Tag: e.Tag, Info: info, Path: e.Path, Size: e.Size}, nil
}

// Path resolves t and returns the stored model's directory.
func (s *Store) Path(t tag.Tag) (string, error) {
	return s.items.Path(t)
}

// List returns every stored model, newest first.
func (s *Store) List() ([]store.Entry, error) {
	return s.items.List()
}

// ListName returns every stored version of name, newest first.
func (s *Store) ListName(name string) ([]store.Entry, error) {
	return s.items.ListName(name)
}

// Delete removes the model addressed by t.
func (s *Store) Delete(t tag.Tag) error {
	return s.items.Delete(t)
}

// Create registers a new model. fill populates the model directory with
// artifact files; model.yaml is written afterwards from info, whose name and
// version are taken from the tag. An unversioned tag is assigned a generated
// version.
func (s *Store) Create(t tag.Tag, info Info, fill func(dir string) error) (*Model, error) {
	if t.Version == "" {
		t = t.MakeNewVersion()
	}
	info.Name, info.Version = t.Name, t.Version
	if info.CreationTime.IsZero() {
		info.CreationTime = manifest.Now()
	}
	if info.BentomlVersion == "" {
		info.BentomlVersion = version.Version
	}
	if info.Labels == nil {
		info.Labels = map[string]string{}
	}
	err := s.items.Register(t, func(dir string) error {
		if fill != nil {
			if err := fill(dir); err != nil {
				return err
			}
		}
		return writeInfo(vfs.Dir(dir), info)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(t)
}

// Import copies the model rooted at src into the store, keeping its files,
// model.yaml included, exactly as read.
func (s *Store) Import(src afero.Fs) (*Model, error) {
	m, err := FromFs(src)
	if err != nil {
		return nil, err
	}
	err = s.items.Register(m.Tag, func(dir string) error {
		return vfs.Mirror(src, vfs.Dir(dir))
	})
	if err != nil {
		return nil, err
	}
	return s.Get(m.Tag)
}

func writeInfo(fsys afero.Fs, info Info) error {
	f, err := fsys.Create("/" + Filename)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(info); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
