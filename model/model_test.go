package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bentoml/bento/manifest"
	"github.com/bentoml/bento/types/errtypes"
	"github.com/bentoml/bento/types/tag"
	"github.com/bentoml/bento/version"
)

// foreignModelYaml is a manifest as written by the Python toolchain: extra
// top-level fields and a quoted offset timestamp.
const foreignModelYaml = `name: demo
version: qojf5xxbbbi6zcphca6rzl235
module: bentoml.sklearn
labels:
  stage: prod
options:
  model_format: pickle
metadata: {}
context:
  framework_name: sklearn
  framework_versions:
    scikit-learn: 1.1.1
  bentoml_version: 1.0.25
  python_version: 3.8.13
signatures:
  predict:
    batchable: false
api_version: v1
creation_time: '2023-07-01T10:00:00.832481+00:00'
`

func testModelStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "models"))
	require.NoError(t, err)
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := testModelStore(t)

	m, err := s.Create(tag.MustParse("demo:v1"), Info{Module: "bentoml.sklearn"}, func(dir string) error {
		return os.WriteFile(filepath.Join(dir, "saved_model.pkl"), []byte("weights"), 0o644)
	})
	require.NoError(t, err)
	assert.Equal(t, tag.MustParse("demo:v1"), m.Tag)
	assert.Equal(t, "demo", m.Info.Name)
	assert.Equal(t, "v1", m.Info.Version)
	assert.Equal(t, "bentoml.sklearn", m.Info.Module)
	assert.Equal(t, version.Version, m.Info.BentomlVersion)
	assert.False(t, m.Info.CreationTime.IsZero())
	assert.Greater(t, m.Size, int64(0))

	got, err := s.Get(tag.MustParse("demo:v1"))
	require.NoError(t, err)
	assert.Equal(t, m.Tag, got.Tag)
	assert.Equal(t, m.Info, got.Info)

	data, err := os.ReadFile(filepath.Join(got.Path, "saved_model.pkl"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
}

func TestCreateGeneratesVersion(t *testing.T) {
	s := testModelStore(t)

	m, err := s.Create(tag.Tag{Name: "demo"}, Info{}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, m.Tag.Version)
	assert.NotEqual(t, "latest", m.Tag.Version)

	_, err = tag.Parse(m.Tag.String())
	require.NoError(t, err)
}

func TestCreateDuplicate(t *testing.T) {
	s := testModelStore(t)

	_, err := s.Create(tag.MustParse("demo:v1"), Info{}, nil)
	require.NoError(t, err)
	_, err = s.Create(tag.MustParse("demo:v1"), Info{}, nil)
	require.ErrorIs(t, err, errtypes.ErrExists)
}

func TestLatestResolution(t *testing.T) {
	s := testModelStore(t)

	older := Info{CreationTime: manifest.Time{Time: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}}
	newer := Info{CreationTime: manifest.Time{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}

	_, err := s.Create(tag.MustParse("demo:v2"), newer, nil)
	require.NoError(t, err)
	_, err = s.Create(tag.MustParse("demo:v1"), older, nil)
	require.NoError(t, err)

	m, err := s.Get(tag.MustParse("demo"))
	require.NoError(t, err)
	assert.Equal(t, "v2", m.Tag.Version)

	m, err = s.Get(tag.MustParse("demo:latest"))
	require.NoError(t, err)
	assert.Equal(t, "v2", m.Tag.Version)
}

func TestFromFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/model.yaml", []byte(foreignModelYaml), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/saved_model.pkl", []byte("weights"), 0o644))

	m, err := FromFs(fsys)
	require.NoError(t, err)
	assert.Equal(t, tag.MustParse("demo:qojf5xxbbbi6zcphca6rzl235"), m.Tag)
	assert.Equal(t, "bentoml.sklearn", m.Info.Module)
	assert.Equal(t, map[string]string{"stage": "prod"}, m.Info.Labels)
	assert.Equal(t, time.UTC, m.Info.CreationTime.Location())
}

func TestFromFsErrors(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		_, err := FromFs(afero.NewMemMapFs())
		require.Error(t, err)
	})

	t.Run("missing version", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "/model.yaml", []byte("name: demo\n"), 0o644))
		_, err := FromFs(fsys)
		require.ErrorIs(t, err, tag.ErrInvalidTag)
	})
}

func TestImportKeepsBytes(t *testing.T) {
	s := testModelStore(t)

	src := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(src, "/model.yaml", []byte(foreignModelYaml), 0o644))
	require.NoError(t, afero.WriteFile(src, "/saved_model.pkl", []byte("weights"), 0o644))

	m, err := s.Import(src)
	require.NoError(t, err)
	assert.Equal(t, tag.MustParse("demo:qojf5xxbbbi6zcphca6rzl235"), m.Tag)

	// The stored manifest is the source file verbatim, not a re-encoding.
	data, err := os.ReadFile(filepath.Join(m.Path, Filename))
	require.NoError(t, err)
	assert.Equal(t, foreignModelYaml, string(data))

	_, err = s.Import(src)
	require.ErrorIs(t, err, errtypes.ErrExists)
}

func TestDelete(t *testing.T) {
	s := testModelStore(t)

	_, err := s.Create(tag.MustParse("demo:v1"), Info{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Delete(tag.MustParse("demo:v1")))

	_, err = s.Get(tag.MustParse("demo:v1"))
	require.ErrorIs(t, err, errtypes.ErrNotFound)
}
