package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// Set via BENTOML_HOME in the environment
	Home string
	// Set via BENTOML_HOST in the environment
	Host string
	// Set via BENTOML_DEBUG in the environment
	Debug bool
	// Set via BENTOML_ORIGINS in the environment
	AllowOrigins []string
	// Set via BENTOML_TMPDIR in the environment
	TmpDir string
)

var ErrInvalidHostPort = errors.New("invalid port specified in BENTOML_HOST")

type HostConfig struct {
	Scheme string
	Host   string
	Port   string
}

// GetHost parses the configured BENTOML_HOST into scheme, host and port.
// A bare host gets the default port 3000; an explicit http or https scheme
// implies its usual port.
func GetHost() (*HostConfig, error) {
	defaultPort := "3000"

	scheme, hostport, ok := strings.Cut(Host, "://")
	switch {
	case !ok:
		scheme, hostport = "http", Host
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport = strings.TrimRight(hostport, "/")

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if portNum, err := strconv.ParseInt(port, 10, 32); err != nil || portNum > 65535 || portNum < 0 {
		return nil, ErrInvalidHostPort
	}

	return &HostConfig{Scheme: scheme, Host: host, Port: port}, nil
}

// BentoStoreDir returns the directory holding the local bento store.
func BentoStoreDir() string {
	return filepath.Join(Home, "bentos")
}

// ModelStoreDir returns the directory holding the local model store.
func ModelStoreDir() string {
	return filepath.Join(Home, "models")
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"BENTOML_HOME":    {"BENTOML_HOME", Home, "The directory for local bento and model stores (default \"~/bentoml\")"},
		"BENTOML_HOST":    {"BENTOML_HOST", Host, "The host:port for the bento API server (default \"127.0.0.1:3000\")"},
		"BENTOML_DEBUG":   {"BENTOML_DEBUG", Debug, "Show additional debug information (e.g. BENTOML_DEBUG=1)"},
		"BENTOML_ORIGINS": {"BENTOML_ORIGINS", AllowOrigins, "A comma separated list of allowed origins"},
		"BENTOML_TMPDIR":  {"BENTOML_TMPDIR", TmpDir, "Location for temporary files"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

var defaultAllowOrigins = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug = false
	if debug := clean("BENTOML_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	Home = clean("BENTOML_HOME")
	if Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("failed to lookup user home directory", "error", err)
		}
		Home = filepath.Join(home, "bentoml")
	}

	Host = clean("BENTOML_HOST")
	if Host == "" {
		Host = "127.0.0.1:3000"
	}

	TmpDir = clean("BENTOML_TMPDIR")

	AllowOrigins = nil
	if origins := clean("BENTOML_ORIGINS"); origins != "" {
		AllowOrigins = strings.Split(origins, ",")
	}
	for _, allowOrigin := range defaultAllowOrigins {
		AllowOrigins = append(AllowOrigins,
			fmt.Sprintf("http://%s", allowOrigin),
			fmt.Sprintf("https://%s", allowOrigin),
			fmt.Sprintf("http://%s:*", allowOrigin),
			fmt.Sprintf("https://%s:*", allowOrigin),
		)
	}
}
