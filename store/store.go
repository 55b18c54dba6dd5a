// Package store implements a tag-addressed directory store shared by the
// bento and model stores. Items live at <root>/<name>/<version>/ and a
// per-name "latest" pointer file names the version an unversioned tag
// resolves to.
//
// Writes are staged in a hidden temp directory on the same filesystem and
// renamed into place, so concurrent readers, including other processes,
// never observe a partially written item.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/bentoml/bento/types/errtypes"
	"github.com/bentoml/bento/types/tag"
	"github.com/bentoml/bento/vfs"
)

const latestFile = "latest"

// Store is a tag-addressed directory store.
type Store struct {
	root     string
	manifest string
	created  func(dir string) (time.Time, error)
}

// New opens, creating if necessary, a store rooted at root. manifest names
// the file every item must carry at its top level; created reads an item's
// creation time from its directory, ordering versions for latest
// resolution.
func New(root, manifest string, created func(dir string) (time.Time, error)) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, manifest: manifest, created: created}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// An Entry describes one stored item.
type Entry struct {
	Tag       tag.Tag
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Register stores a new item under t. fill receives an empty staging
// directory and must populate it; on success the directory is renamed into
// place and the latest pointer updated if this version is the newest. The
// tag must carry an explicit version, and registering an existing version
// fails with ErrExists.
func (s *Store) Register(t tag.Tag, fill func(dir string) error) error {
	if t.Latest() {
		return fmt.Errorf("%w: registering %q requires an explicit version", tag.ErrInvalidTag, t.String())
	}
	nameDir := filepath.Join(s.root, t.Name)
	if err := os.MkdirAll(nameDir, 0o755); err != nil {
		return err
	}
	final := filepath.Join(nameDir, t.Version)
	if _, err := os.Stat(final); err == nil {
		return fmt.Errorf("%w: %s", errtypes.ErrExists, t)
	} else if !os.IsNotExist(err) {
		return err
	}

	staging, err := os.MkdirTemp(nameDir, ".tmp-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := fill(staging); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(staging, s.manifest)); err != nil {
		return fmt.Errorf("item %s is missing %s: %w", t, s.manifest, err)
	}

	if err := os.Rename(staging, final); err != nil {
		// A concurrent Register of the same tag won the rename.
		if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
			return fmt.Errorf("%w: %s", errtypes.ErrExists, t)
		}
		return err
	}
	slog.Debug("registered", "tag", t, "path", final)
	return s.promoteLatest(t, final)
}

// Resolve maps t to a concrete stored version. Unversioned tags and the
// literal version "latest" resolve through the latest pointer, falling
// back to a creation-time scan when the pointer is missing or dangling.
func (s *Store) Resolve(t tag.Tag) (tag.Tag, error) {
	if !t.Latest() {
		if _, err := os.Stat(filepath.Join(s.root, t.Name, t.Version)); err != nil {
			if os.IsNotExist(err) {
				return tag.Tag{}, fmt.Errorf("%w: %s", errtypes.ErrNotFound, t)
			}
			return tag.Tag{}, err
		}
		return t, nil
	}

	if version, err := s.readLatest(t.Name); err == nil {
		return tag.Tag{Name: t.Name, Version: version}, nil
	}
	entries, err := s.ListName(t.Name)
	if err != nil {
		return tag.Tag{}, err
	}
	if len(entries) == 0 {
		return tag.Tag{}, fmt.Errorf("%w: %s", errtypes.ErrNotFound, t)
	}
	return entries[0].Tag, nil
}

// Path returns the directory of the stored item t resolves to.
func (s *Store) Path(t tag.Tag) (string, error) {
	resolved, err := s.Resolve(t)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, resolved.Name, resolved.Version), nil
}

// Get returns the entry t resolves to.
func (s *Store) Get(t tag.Tag) (Entry, error) {
	resolved, err := s.Resolve(t)
	if err != nil {
		return Entry{}, err
	}
	dir := filepath.Join(s.root, resolved.Name, resolved.Version)
	createdAt, err := s.created(dir)
	if err != nil {
		return Entry{}, fmt.Errorf("reading %s: %w", resolved, err)
	}
	size, err := vfs.DirSize(dir)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Tag: resolved, Path: dir, Size: size, CreatedAt: createdAt}, nil
}

// Delete removes the stored item t resolves to. When the latest pointer
// named the deleted version it is repointed at the next newest version;
// deleting the last version removes the name directory entirely.
func (s *Store) Delete(t tag.Tag) error {
	resolved, err := s.Resolve(t)
	if err != nil {
		return err
	}
	nameDir := filepath.Join(s.root, resolved.Name)
	if err := os.RemoveAll(filepath.Join(nameDir, resolved.Version)); err != nil {
		return err
	}
	slog.Debug("deleted", "tag", resolved)

	remaining, err := s.ListName(resolved.Name)
	if err != nil || len(remaining) == 0 {
		return os.RemoveAll(nameDir)
	}
	if cur, err := s.readLatest(resolved.Name); err != nil || cur == resolved.Version {
		return s.writeLatest(resolved.Name, remaining[0].Tag.Version)
	}
	return nil
}

// List returns every stored item, newest first.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var all []Entry
	for _, de := range dirents {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		entries, err := s.ListName(de.Name())
		if err != nil {
			slog.Warn("skipping unreadable store entry", "name", de.Name(), "error", err)
			continue
		}
		all = append(all, entries...)
	}
	sortEntries(all)
	return all, nil
}

// ListName returns the stored versions of name, newest first. A name with
// no versions yields an empty slice, not an error.
func (s *Store) ListName(name string) ([]Entry, error) {
	nameDir := filepath.Join(s.root, name)
	dirents, err := os.ReadDir(nameDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	for _, de := range dirents {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		t, err := tag.New(name, de.Name())
		if err != nil {
			slog.Warn("skipping invalid version directory", "name", name, "version", de.Name(), "error", err)
			continue
		}
		dir := filepath.Join(nameDir, de.Name())
		createdAt, err := s.created(dir)
		if err != nil {
			slog.Warn("skipping unreadable item", "tag", t, "error", err)
			continue
		}
		size, err := vfs.DirSize(dir)
		if err != nil {
			slog.Warn("sizing item", "tag", t, "error", err)
		}
		entries = append(entries, Entry{Tag: t, Path: dir, Size: size, CreatedAt: createdAt})
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Tag.String() < entries[j].Tag.String()
	})
}

// promoteLatest points the latest pointer at t if t is newer than the
// version the pointer currently names.
func (s *Store) promoteLatest(t tag.Tag, dir string) error {
	createdAt, err := s.created(dir)
	if err != nil {
		return err
	}
	if cur, err := s.readLatest(t.Name); err == nil {
		curCreated, err := s.created(filepath.Join(s.root, t.Name, cur))
		if err == nil && !createdAt.After(curCreated) {
			return nil
		}
	}
	return s.writeLatest(t.Name, t.Version)
}

// readLatest returns the version the latest pointer names, verifying the
// target still exists.
func (s *Store) readLatest(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, name, latestFile))
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(string(data))
	if _, err := os.Stat(filepath.Join(s.root, name, version)); err != nil {
		return "", err
	}
	return version, nil
}

// writeLatest atomically replaces the latest pointer.
func (s *Store) writeLatest(name, version string) error {
	nameDir := filepath.Join(s.root, name)
	f, err := os.CreateTemp(nameDir, ".latest-")
	if err != nil {
		return err
	}
	if _, err := f.WriteString(version); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), filepath.Join(nameDir, latestFile))
}
