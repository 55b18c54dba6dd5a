// Package bento builds, stores, exports and imports bentos. A bento is an
// immutable, versioned package of service code, declared model references
// and runtime configuration, addressed by a name:version tag and described
// by a bento.yaml manifest at the root of its file tree.
package bento

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/bentoml/bento/bentofile"
	"github.com/bentoml/bento/manifest"
	"github.com/bentoml/bento/model"
	"github.com/bentoml/bento/types/errtypes"
	"github.com/bentoml/bento/types/tag"
	"github.com/bentoml/bento/vfs"
)

// modelsDir is the tree prefix bundled models live under in exported
// archives. Stored bentos never contain it; their models live in the model
// store.
const modelsDir = "models"

// Bento is a built, imported or stored bento. Freshly built bentos own an
// in-memory tree; imported and stored ones wrap a read-only view of their
// backing directory.
type Bento struct {
	tag  tag.Tag
	info *manifest.Info
	fsys afero.Fs

	// path is the backing directory for stored bentos, empty otherwise.
	path string

	// cleanup releases the scratch directory of an imported archive.
	cleanup func() error

	// models is set to the local model store by a successful Save and
	// never changes afterwards. It is where the manifest's model
	// references resolve.
	models *model.Store
}

// Tag returns the bento's tag.
func (b *Bento) Tag() tag.Tag { return b.tag }

// Info returns the bento's manifest.
func (b *Bento) Info() *manifest.Info { return b.info }

// FS returns the bento's file tree.
func (b *Bento) FS() afero.Fs { return b.fsys }

// Path returns the backing directory for bentos loaded from a store, and ""
// for built or imported ones.
func (b *Bento) Path() string { return b.path }

// ModelStore returns the store the bento's model references resolve
// against. It is nil until the bento has been saved.
func (b *Bento) ModelStore() *model.Store { return b.models }

// Close releases any scratch space held by an imported bento. It is safe to
// call more than once.
func (b *Bento) Close() error {
	if b.cleanup == nil {
		return nil
	}
	cleanup := b.cleanup
	b.cleanup = nil
	return cleanup()
}

// Create builds a bento from cfg against the build context rooted at ctx.
// An empty version is replaced with a generated one. The service module and
// every model reference must resolve at build time; anything unresolved
// fails the build.
func Create(cfg *bentofile.Config, version string, ctx afero.Fs, models *model.Store) (*Bento, error) {
	c := cfg.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	modPath, err := c.LocateModule(ctx)
	if err != nil {
		return nil, err
	}

	name, err := c.BentoName()
	if err != nil {
		return nil, err
	}
	t, err := tag.New(name, version)
	if err != nil {
		return nil, err
	}
	if t.Version == "latest" {
		return nil, fmt.Errorf("%w: version %q is reserved", tag.ErrInvalidTag, t.Version)
	}
	if t.Version == "" {
		t = t.MakeNewVersion()
	}

	info := manifest.New(t, c.Service)
	if len(c.Labels) > 0 {
		info.Labels = c.Labels
	}
	if len(c.Envs) > 0 {
		info.Envs = c.Envs
	}
	if len(c.Args) > 0 {
		info.Args = c.Args
	}
	info.Docker, info.Python, info.Conda = c.Docker, c.Python, c.Conda

	for _, spec := range c.Models {
		if models == nil {
			return nil, fmt.Errorf("%w: model %s referenced but no model store is available: %w",
				bentofile.ErrBuild, spec.Tag, errtypes.ErrNotFound)
		}
		m, err := models.Get(spec.Tag)
		if err != nil {
			return nil, fmt.Errorf("%w: model %s: %w", bentofile.ErrBuild, spec.Tag, err)
		}
		info.Models = append(info.Models, manifest.ModelInfo{
			Tag:          m.Tag,
			Module:       m.Info.Module,
			CreationTime: m.Info.CreationTime,
			Alias:        spec.Alias,
		})
	}

	fsys := afero.NewMemMapFs()
	if err := buildTree(fsys, &c, info, ctx, modPath); err != nil {
		return nil, err
	}

	slog.Debug("built bento", "tag", t, "service", c.Service, "models", len(info.Models))
	return &Bento{tag: t, info: info, fsys: fsys}, nil
}

// buildTree assembles the bento's file tree: the compiled build context
// under src/, generated env/ and apis/ metadata, a README and the manifest
// itself.
func buildTree(fsys afero.Fs, c *bentofile.Config, info *manifest.Info, ctx afero.Fs, modPath string) error {
	files, err := c.Compile(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(files, modPath) {
		return fmt.Errorf("%w: service module %q is excluded by the build patterns", bentofile.ErrBuild, modPath)
	}
	for _, rel := range files {
		if err := vfs.CopyFile(ctx, fsys, "/"+rel, "/src/"+rel); err != nil {
			return err
		}
	}

	var cfgText strings.Builder
	if err := c.Encode(&cfgText); err != nil {
		return err
	}
	if err := afero.WriteFile(fsys, "/src/"+bentofile.DefaultFilename, []byte(cfgText.String()), 0o644); err != nil {
		return err
	}

	if err := writeEnv(fsys, c, ctx); err != nil {
		return err
	}

	readme := fmt.Sprintf("# %s\n\n%s\n", info.Name, readmeBody(c))
	if err := afero.WriteFile(fsys, "/README.md", []byte(readme), 0o644); err != nil {
		return err
	}

	openapi := fmt.Sprintf("openapi: 3.0.2\ninfo:\n  title: %s\n  version: %s\npaths: {}\n", info.Name, info.Version)
	if err := afero.WriteFile(fsys, "/apis/openapi.yaml", []byte(openapi), 0o644); err != nil {
		return err
	}

	f, err := fsys.Create("/" + manifest.Filename)
	if err != nil {
		return err
	}
	if err := info.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readmeBody(c *bentofile.Config) string {
	if c.Description != "" {
		return c.Description
	}
	return fmt.Sprintf("A bento serving %s.", c.Service)
}

// writeEnv materializes the environment files referenced by the config so
// the bento is self-contained: python requirements, the docker setup script
// and the conda environment.
func writeEnv(fsys afero.Fs, c *bentofile.Config, ctx afero.Fs) error {
	if err := fsys.MkdirAll("/env", 0o755); err != nil {
		return err
	}

	switch {
	case c.Python.RequirementsTxt.Valid():
		if err := vfs.CopyFile(ctx, fsys, ctxPath(c.Python.RequirementsTxt.Value()), "/env/python/requirements.txt"); err != nil {
			return fmt.Errorf("%w: requirements_txt: %v", bentofile.ErrBuild, err)
		}
	case c.Python.Packages.Valid():
		reqs := strings.Join(c.Python.Packages.Value(), "\n") + "\n"
		if err := afero.WriteFile(fsys, "/env/python/requirements.txt", []byte(reqs), 0o644); err != nil {
			return err
		}
	}

	if c.Docker.SetupScript.Valid() {
		if err := vfs.CopyFile(ctx, fsys, ctxPath(c.Docker.SetupScript.Value()), "/env/docker/setup_script"); err != nil {
			return fmt.Errorf("%w: setup_script: %v", bentofile.ErrBuild, err)
		}
	}

	if c.Conda.EnvironmentYml.Valid() {
		if err := vfs.CopyFile(ctx, fsys, ctxPath(c.Conda.EnvironmentYml.Value()), "/env/conda/environment.yml"); err != nil {
			return fmt.Errorf("%w: environment_yml: %v", bentofile.ErrBuild, err)
		}
	}
	return nil
}

// ctxPath anchors a config-supplied relative path, ./environment.yaml and
// the like, at the build context root.
func ctxPath(p string) string {
	return path.Join("/", p)
}

// Save materializes the bento into bs. Referenced models are resolved
// first: a model already in ms is left alone, one bundled under the bento's
// models/ tree is imported, and anything else fails with ErrNotFound. The
// stored tree itself excludes models/. On success the bento is re-bound
// read-only to its stored directory and its model store binding is set.
func (b *Bento) Save(bs *Store, ms *model.Store) error {
	for _, ref := range b.info.Models {
		if err := restoreModel(ms, ref.Tag, b.fsys); err != nil {
			return err
		}
	}

	err := bs.items.Register(b.tag, func(dir string) error {
		return vfs.Mirror(b.fsys, vfs.Dir(dir), modelsDir)
	})
	if err != nil {
		return err
	}

	p, err := bs.items.Path(b.tag)
	if err != nil {
		return err
	}
	if cerr := b.Close(); cerr != nil {
		slog.Warn("could not release import scratch space", "tag", b.tag, "error", cerr)
	}
	b.path = p
	b.fsys = vfs.ReadOnlyDir(p)
	b.models = ms
	return nil
}

// restoreModel makes sure the model referenced by t is present in ms,
// importing it from the bento's bundled models/ tree when needed.
func restoreModel(ms *model.Store, t tag.Tag, fsys afero.Fs) error {
	if ms == nil {
		return fmt.Errorf("model %s: no model store is available: %w", t, errtypes.ErrNotFound)
	}
	if _, err := ms.Get(t); err == nil {
		return nil
	} else if !errors.Is(err, errtypes.ErrNotFound) {
		return err
	}

	bundled := path.Join("/", modelsDir, t.Name, t.Version)
	ok, err := afero.DirExists(fsys, bundled)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("model %s is not in the model store and not bundled with the bento: %w", t, errtypes.ErrNotFound)
	}
	if _, err := ms.Import(afero.NewBasePathFs(fsys, bundled)); err != nil {
		return err
	}
	slog.Debug("restored bundled model", "tag", t)
	return nil
}
