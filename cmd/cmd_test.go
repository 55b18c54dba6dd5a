package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bentoml/bento/envconfig"
	"github.com/bentoml/bento/types/errtypes"
	"github.com/bentoml/bento/types/tag"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	root := NewCLI()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func writeBuildContext(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "service.py"), []byte("class Svc: pass\n"), 0o644))
	config := "service: service.py:Svc\nname: cli_demo\nlabels:\n  team: {{ .team }}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bentofile.yaml"), []byte(config), 0o644))
	return dir
}

func TestParseBuildArgs(t *testing.T) {
	cases := map[string]struct {
		in      []string
		want    map[string]string
		wantErr bool
	}{
		"none":          {in: nil, want: nil},
		"single":        {in: []string{"stage=prod"}, want: map[string]string{"stage": "prod"}},
		"value with eq": {in: []string{"expr=a=b"}, want: map[string]string{"expr": "a=b"}},
		"empty value":   {in: []string{"stage="}, want: map[string]string{"stage": ""}},
		"missing eq":    {in: []string{"stage"}, wantErr: true},
		"empty key":     {in: []string{"=prod"}, wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := parseBuildArgs(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCLIWorkflow(t *testing.T) {
	t.Setenv("BENTOML_HOME", t.TempDir())
	envconfig.LoadConfig()

	ctxDir := writeBuildContext(t)
	require.NoError(t, runCLI(t, "build", "--version", "v1", "--arg", "team=serving", ctxDir))

	bentos, _, err := openStores()
	require.NoError(t, err)
	b, err := bentos.Get(tag.MustParse("cli_demo:v1"))
	require.NoError(t, err)
	assert.Equal(t, "serving", b.Info().Labels["team"])

	require.NoError(t, runCLI(t, "list"))
	require.NoError(t, runCLI(t, "get", "cli_demo:v1"))

	dest := t.TempDir()
	require.NoError(t, runCLI(t, "export", "cli_demo:v1", dest))
	archive := filepath.Join(dest, "cli_demo_v1.bento")
	_, err = os.Stat(archive)
	require.NoError(t, err)

	require.NoError(t, runCLI(t, "delete", "cli_demo:v1"))
	_, err = bentos.Get(tag.MustParse("cli_demo:v1"))
	require.ErrorIs(t, err, errtypes.ErrNotFound)

	// Inspect without saving, then import for real.
	require.NoError(t, runCLI(t, "import", "--no-save", archive))
	_, err = bentos.Get(tag.MustParse("cli_demo:v1"))
	require.ErrorIs(t, err, errtypes.ErrNotFound)

	require.NoError(t, runCLI(t, "import", archive))
	restored, err := bentos.Get(tag.MustParse("cli_demo:v1"))
	require.NoError(t, err)
	assert.Equal(t, b.Tag(), restored.Tag())
}

func TestBuildRejectsBadArgs(t *testing.T) {
	t.Setenv("BENTOML_HOME", t.TempDir())
	envconfig.LoadConfig()

	ctxDir := writeBuildContext(t)
	err := runCLI(t, "build", "--arg", "not-a-pair", ctxDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}

func TestModelCommandsOnEmptyStore(t *testing.T) {
	t.Setenv("BENTOML_HOME", t.TempDir())
	envconfig.LoadConfig()

	require.NoError(t, runCLI(t, "models", "list"))

	err := runCLI(t, "models", "get", "nope:v1")
	require.ErrorIs(t, err, errtypes.ErrNotFound)

	err = runCLI(t, "models", "delete", "nope:v1")
	require.ErrorIs(t, err, errtypes.ErrNotFound)
}
