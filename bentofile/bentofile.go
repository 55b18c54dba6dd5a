// Package bentofile reads, validates and compiles declarative build
// configuration. A bentofile names the service entrypoint and describes what
// goes into the built bento: include and exclude patterns over the build
// context, model references, labels and the docker, python and conda
// sub-configurations carried into the manifest.
package bentofile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/bentoml/bento/manifest"
	"github.com/bentoml/bento/types"
	"github.com/bentoml/bento/types/tag"
)

const (
	// DefaultFilename is the conventional name of the build file inside a
	// build context.
	DefaultFilename = "bentofile.yaml"

	// IgnoreFilename is the ignore file read from the build context root.
	// Its patterns are additional excludes.
	IgnoreFilename = ".bentoignore"
)

// Defaults applied by WithDefaults when the corresponding field is unset.
const (
	DefaultDistro        = "debian"
	DefaultPythonVersion = "3.11"
)

// ErrBuild is returned for build configurations that cannot produce a bento:
// a bad entrypoint, a malformed build file or an unresolvable model
// reference.
var ErrBuild = errors.New("bento build failed")

// Config is a parsed bentofile.
type Config struct {
	Service     string                `yaml:"service"`
	Name        string                `yaml:"name,omitempty"`
	Description string                `yaml:"description,omitempty"`
	Labels      map[string]string     `yaml:"labels,omitempty"`
	Include     []string              `yaml:"include,omitempty"`
	Exclude     []string              `yaml:"exclude,omitempty"`
	Envs        []manifest.EnvVar     `yaml:"envs,omitempty"`
	Models      []ModelSpec           `yaml:"models,omitempty"`
	Docker      manifest.DockerConfig `yaml:"docker,omitempty"`
	Python      manifest.PythonConfig `yaml:"python,omitempty"`
	Conda       manifest.CondaConfig  `yaml:"conda,omitempty"`

	// Args holds the build arguments the file was templated with. They are
	// recorded in the manifest, not serialized back into the bentofile.
	Args map[string]string `yaml:"-"`
}

// ModelSpec is one entry of the models list. In YAML it is either a bare tag
// string or a mapping with tag and alias keys.
type ModelSpec struct {
	Tag   tag.Tag
	Alias string
}

// UnmarshalYAML implements [yaml.Unmarshaler].
func (m *ModelSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		t, err := tag.Parse(s)
		if err != nil {
			return err
		}
		*m = ModelSpec{Tag: t}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Tag   tag.Tag `yaml:"tag"`
			Alias string  `yaml:"alias"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw.Tag.IsZero() {
			return fmt.Errorf("%w: model entry is missing a tag", ErrBuild)
		}
		*m = ModelSpec{Tag: raw.Tag, Alias: raw.Alias}
		return nil
	default:
		return fmt.Errorf("%w: model entry must be a tag string or a mapping", ErrBuild)
	}
}

// MarshalYAML implements [yaml.Marshaler]. Entries without an alias collapse
// back to the bare tag form.
func (m ModelSpec) MarshalYAML() (any, error) {
	if m.Alias == "" {
		return m.Tag.String(), nil
	}
	return struct {
		Tag   tag.Tag `yaml:"tag"`
		Alias string  `yaml:"alias"`
	}{m.Tag, m.Alias}, nil
}

// Parse reads a bentofile from r. When args is non-empty the file is first
// rendered as a text template with {{ .name }} references resolved against
// args; referencing an argument that was not supplied is an error.
func Parse(r io.Reader, args map[string]string) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		tmpl, err := template.New(DefaultFilename).Option("missingkey=error").Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBuild, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBuild, err)
		}
		data = buf.Bytes()
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuild, err)
	}
	cfg.Args = args
	return &cfg, nil
}

// ReadFile reads and parses the bentofile at path.
func ReadFile(path string, args map[string]string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, args)
}

// Encode writes the config back out as YAML, as stored under src/ of a built
// bento.
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// WithDefaults returns a copy of c with unset fields replaced by their
// defaults: include everything, debian base images on the default python,
// locked and git-packed python dependencies.
func (c Config) WithDefaults() Config {
	if len(c.Include) == 0 {
		c.Include = []string{"*"}
	}
	if c.Labels == nil {
		c.Labels = map[string]string{}
	}
	if !c.Docker.Distro.Valid() {
		c.Docker.Distro = types.NullWithValue(DefaultDistro)
	}
	if !c.Docker.PythonVersion.Valid() {
		c.Docker.PythonVersion = types.NullWithValue(DefaultPythonVersion)
	}
	if !c.Python.LockPackages.Valid() {
		c.Python.LockPackages = types.NullWithValue(true)
	}
	if !c.Python.PackGitPackages.Valid() {
		c.Python.PackGitPackages = types.NullWithValue(true)
	}
	return c
}

// Validate checks the parts of the config that must hold before a build can
// start. Model resolution happens later, against a store.
func (c *Config) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("%w: service entrypoint is required", ErrBuild)
	}
	if _, _, ok := splitEntrypoint(c.Service); !ok {
		return fmt.Errorf("%w: service entrypoint %q must be of the form module:attribute", ErrBuild, c.Service)
	}
	if c.Name != "" {
		t, err := tag.Parse(c.Name)
		if err != nil || t.Version != "" {
			return fmt.Errorf("%w: invalid bento name %q", ErrBuild, c.Name)
		}
	}
	for _, env := range c.Envs {
		if env.Name == "" {
			return fmt.Errorf("%w: environment variable with empty name", ErrBuild)
		}
	}
	return nil
}

// BentoName returns the configured name, or one derived from the service
// entrypoint: the module basename with any .py suffix dropped, lowercased.
func (c *Config) BentoName() (string, error) {
	if c.Name != "" {
		return c.Name, nil
	}
	mod, _, ok := splitEntrypoint(c.Service)
	if !ok {
		return "", fmt.Errorf("%w: service entrypoint %q must be of the form module:attribute", ErrBuild, c.Service)
	}
	name := strings.TrimSuffix(mod, ".py")
	if i := strings.LastIndexAny(name, "/."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	if _, err := tag.Parse(name); err != nil {
		return "", fmt.Errorf("%w: cannot derive a bento name from service %q, set name explicitly", ErrBuild, c.Service)
	}
	return name, nil
}

func splitEntrypoint(s string) (module, attr string, ok bool) {
	module, attr, found := strings.Cut(s, ":")
	if !found || module == "" || attr == "" || strings.ContainsAny(s, " \t") {
		return "", "", false
	}
	return module, attr, true
}
