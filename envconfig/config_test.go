package envconfig

import (
	"net"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("BENTOML_HOME", "/var/lib/bentoml")
	t.Setenv("BENTOML_DEBUG", "1")
	t.Setenv("BENTOML_ORIGINS", "http://foo.example,https://bar.example")
	LoadConfig()

	require.Equal(t, "/var/lib/bentoml", Home)
	require.Equal(t, filepath.Join("/var/lib/bentoml", "bentos"), BentoStoreDir())
	require.Equal(t, filepath.Join("/var/lib/bentoml", "models"), ModelStoreDir())
	require.True(t, Debug)
	assert.True(t, slices.Contains(AllowOrigins, "http://foo.example"))
	assert.True(t, slices.Contains(AllowOrigins, "https://bar.example"))
	assert.True(t, slices.Contains(AllowOrigins, "http://localhost:*"))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BENTOML_HOME", "")
	t.Setenv("BENTOML_DEBUG", "")
	t.Setenv("BENTOML_HOST", "")
	t.Setenv("BENTOML_ORIGINS", "")
	LoadConfig()

	require.NotEmpty(t, Home)
	require.Equal(t, "bentoml", filepath.Base(Home))
	require.False(t, Debug)
	require.Equal(t, "127.0.0.1:3000", Host)
}

func TestGetHost(t *testing.T) {
	type testCase struct {
		value  string
		expect string
		err    error
	}

	hostTestCases := map[string]*testCase{
		"empty":               {value: "", expect: "127.0.0.1:3000"},
		"only address":        {value: "1.2.3.4", expect: "1.2.3.4:3000"},
		"only port":           {value: ":1234", expect: ":1234"},
		"address and port":    {value: "1.2.3.4:1234", expect: "1.2.3.4:1234"},
		"hostname":            {value: "example.com", expect: "example.com:3000"},
		"hostname and port":   {value: "example.com:1234", expect: "example.com:1234"},
		"zero port":           {value: ":0", expect: ":0"},
		"too large port":      {value: ":66000", err: ErrInvalidHostPort},
		"too small port":      {value: ":-1", err: ErrInvalidHostPort},
		"ipv6 localhost":      {value: "[::1]", expect: "[::1]:3000"},
		"ipv6 world open":     {value: "[::]", expect: "[::]:3000"},
		"ipv6 no brackets":    {value: "::1", expect: "[::1]:3000"},
		"ipv6 + port":         {value: "[::1]:1337", expect: "[::1]:1337"},
		"extra space":         {value: " 1.2.3.4 ", expect: "1.2.3.4:3000"},
		"extra quotes":        {value: "\"1.2.3.4\"", expect: "1.2.3.4:3000"},
		"extra single quotes": {value: "'1.2.3.4'", expect: "1.2.3.4:3000"},
		"http scheme":         {value: "http://example.com", expect: "example.com:80"},
		"https scheme":        {value: "https://example.com/", expect: "example.com:443"},
	}

	for k, v := range hostTestCases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("BENTOML_HOST", v.value)
			LoadConfig()

			hc, err := GetHost()
			if err != v.err {
				t.Fatalf("expected %s, got %s", v.err, err)
			}

			if err == nil {
				host := net.JoinHostPort(hc.Host, hc.Port)
				assert.Equal(t, v.expect, host)
			}
		})
	}
}
