package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bentoml/bento/api"
	"github.com/bentoml/bento/bento"
	"github.com/bentoml/bento/bentofile"
	"github.com/bentoml/bento/model"
	"github.com/bentoml/bento/types/errtypes"
	"github.com/bentoml/bento/types/tag"
	"github.com/bentoml/bento/version"
)

func testStores(t *testing.T) (*bento.Store, *model.Store) {
	t.Helper()
	bentos, err := bento.NewStore(filepath.Join(t.TempDir(), "bentos"))
	require.NoError(t, err)
	models, err := model.NewStore(filepath.Join(t.TempDir(), "models"))
	require.NoError(t, err)
	return bentos, models
}

func testClient(t *testing.T, s *Server) *api.Client {
	t.Helper()
	ts := httptest.NewServer(s.GenerateRoutes())
	t.Cleanup(ts.Close)
	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return api.NewClient(base, http.DefaultClient)
}

// saveTestBento builds and saves a bento referencing classifier:v1,
// creating that model on first use.
func saveTestBento(t *testing.T, bs *bento.Store, ms *model.Store, name, ver string) *bento.Bento {
	t.Helper()

	modelTag := tag.MustParse("classifier:v1")
	_, err := ms.Create(modelTag, model.Info{Module: "bentoml.sklearn"}, func(dir string) error {
		return afero.WriteFile(afero.NewBasePathFs(afero.NewOsFs(), dir), "/saved_model.pkl", []byte("weights"), 0o644)
	})
	if err != nil && !errors.Is(err, errtypes.ErrExists) {
		t.Fatal(err)
	}

	ctx := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(ctx, "/service.py", []byte("class Svc: pass\n"), 0o644))

	cfg := &bentofile.Config{
		Service: "service.py:Svc",
		Name:    name,
		Labels:  map[string]string{"team": "serving"},
		Models:  []bentofile.ModelSpec{{Tag: modelTag}},
	}
	b, err := bento.Create(cfg, ver, ctx, ms)
	require.NoError(t, err)
	require.NoError(t, b.Save(bs, ms))
	return b
}

func TestHeartbeatAndVersion(t *testing.T) {
	bs, ms := testStores(t)
	client := testClient(t, NewServer(bs, ms))

	require.NoError(t, client.Heartbeat(context.Background()))

	v, err := client.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, version.Version, v)
}

func TestListShowDelete(t *testing.T) {
	bs, ms := testStores(t)
	saveTestBento(t, bs, ms, "demo", "v1")
	saveTestBento(t, bs, ms, "demo", "v2")
	saveTestBento(t, bs, ms, "other", "v1")
	client := testClient(t, NewServer(bs, ms))
	ctx := context.Background()

	list, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, list.Bentos, 3)
	// Newest first.
	assert.Equal(t, "other:v1", list.Bentos[0].Tag)
	assert.Equal(t, "demo:v2", list.Bentos[1].Tag)
	assert.Equal(t, "demo:v1", list.Bentos[2].Tag)
	for _, b := range list.Bentos {
		assert.Equal(t, "service.py:Svc", b.Service)
		assert.Positive(t, b.Size)
		assert.False(t, b.CreationTime.IsZero())
	}

	versions, err := client.ListVersions(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, versions.Bentos, 2)
	assert.Equal(t, "demo:v2", versions.Bentos[0].Tag)

	show, err := client.Show(ctx, "demo", "")
	require.NoError(t, err)
	assert.Equal(t, "demo:v2", show.Tag)
	assert.Equal(t, "service.py:Svc", show.Service)
	assert.Equal(t, map[string]string{"team": "serving"}, show.Labels)
	require.Len(t, show.Models, 1)
	assert.Equal(t, "classifier:v1", show.Models[0].Tag)
	assert.Equal(t, "bentoml.sklearn", show.Models[0].Module)
	assert.Contains(t, show.Manifest, "service: service.py:Svc")

	var statusErr api.StatusError
	_, err = client.Show(ctx, "demo", "UPPER")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)

	_, err = client.Show(ctx, "missing", "")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	require.NoError(t, client.Delete(ctx, "demo", "v2"))
	versions, err = client.ListVersions(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, versions.Bentos, 1)
	assert.Equal(t, "demo:v1", versions.Bentos[0].Tag)

	err = client.Delete(ctx, "demo", "v2")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestExportImportRoundTrip(t *testing.T) {
	bs, ms := testStores(t)
	saveTestBento(t, bs, ms, "demo", "v1")
	client := testClient(t, NewServer(bs, ms))
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, client.Export(ctx, "demo", "v1", "", &buf))
	assert.Positive(t, buf.Len())

	// Importing over the existing bento conflicts.
	_, err := client.Import(ctx, "", bytes.NewReader(buf.Bytes()))
	var statusErr api.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)

	// Drop the bento and its model; the archive restores both.
	require.NoError(t, client.Delete(ctx, "demo", "v1"))
	require.NoError(t, client.DeleteModel(ctx, "classifier", "v1"))

	resp, err := client.Import(ctx, "", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "demo:v1", resp.Tag)

	show, err := client.Show(ctx, "demo", "v1")
	require.NoError(t, err)
	assert.Equal(t, "demo:v1", show.Tag)

	models, err := client.Models(ctx)
	require.NoError(t, err)
	require.Len(t, models.Models, 1)
	assert.Equal(t, "classifier:v1", models.Models[0].Tag)
	assert.Equal(t, "bentoml.sklearn", models.Models[0].Module)
}

func TestExportFormats(t *testing.T) {
	bs, ms := testStores(t)
	saveTestBento(t, bs, ms, "demo", "v1")
	s := NewServer(bs, ms)
	ts := httptest.NewServer(s.GenerateRoutes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/bentos/demo/v1/export?format=zip")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "demo_v1.zip")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// Zip archives start with the PK signature.
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	resp, err = http.Get(ts.URL + "/api/bentos/demo/v1/export?format=rar")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportErrors(t *testing.T) {
	bs, ms := testStores(t)
	client := testClient(t, NewServer(bs, ms))
	ctx := context.Background()

	var statusErr api.StatusError

	_, err := client.Import(ctx, "", strings.NewReader("this is not a tar archive"))
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)

	_, err = client.Import(ctx, "rar", strings.NewReader(""))
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestDeleteModel(t *testing.T) {
	bs, ms := testStores(t)
	saveTestBento(t, bs, ms, "demo", "v1")
	client := testClient(t, NewServer(bs, ms))
	ctx := context.Background()

	require.NoError(t, client.DeleteModel(ctx, "classifier", ""))

	var statusErr api.StatusError
	err := client.DeleteModel(ctx, "classifier", "")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
