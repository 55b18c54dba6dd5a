// Package manifest implements the bento manifest: the bento.yaml file at
// the root of every bento describing its service, referenced models,
// runtime configuration and build metadata.
//
// Field order in the encoded document is part of the format. Tools diff
// manifests textually, so encoding the same Info twice must produce
// byte-identical output, and unset configuration values are encoded as
// explicit nulls rather than omitted.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/bentoml/bento/types"
	"github.com/bentoml/bento/types/tag"
	"github.com/bentoml/bento/version"
)

const (
	// Filename is the manifest file name at the root of a bento.
	Filename = "bento.yaml"

	// SpecVersion is the manifest schema version this package reads and
	// writes.
	SpecVersion = 1
)

var (
	// ErrCorrupt is returned when a manifest cannot be parsed or fails
	// validation.
	ErrCorrupt = errors.New("corrupt bento manifest")

	// ErrUnsupportedSchema is returned when a manifest declares a schema
	// version newer than SpecVersion. Newer manifests are rejected rather
	// than partially decoded.
	ErrUnsupportedSchema = errors.New("unsupported bento schema version")
)

// Info is the decoded form of bento.yaml. Struct field order matches the
// serialized field order.
type Info struct {
	Service        string            `yaml:"service"`
	Name           string            `yaml:"name"`
	Version        string            `yaml:"version"`
	BentomlVersion string            `yaml:"bentoml_version"`
	CreationTime   Time              `yaml:"creation_time"`
	Labels         map[string]string `yaml:"labels"`
	Models         []ModelInfo       `yaml:"models"`
	EntryService   string            `yaml:"entry_service"`
	Services       []ServiceInfo     `yaml:"services"`
	Envs           []EnvVar          `yaml:"envs"`
	Schema         map[string]any    `yaml:"schema"`
	Args           map[string]string `yaml:"args"`
	Spec           int               `yaml:"spec"`
	Runners        []RunnerInfo      `yaml:"runners"`
	APIs           []APIInfo         `yaml:"apis"`
	Docker         DockerConfig      `yaml:"docker"`
	Python         PythonConfig      `yaml:"python"`
	Conda          CondaConfig       `yaml:"conda"`
}

// ModelInfo is a reference to a model the bento depends on.
type ModelInfo struct {
	Tag          tag.Tag `yaml:"tag"`
	Module       string  `yaml:"module"`
	CreationTime Time    `yaml:"creation_time"`
	Alias        string  `yaml:"alias,omitempty"`
}

// ServiceInfo describes one service of a multi-service bento.
type ServiceInfo struct {
	Name         string         `yaml:"name"`
	Service      string         `yaml:"service"`
	Models       []ModelInfo    `yaml:"models"`
	Dependencies []string       `yaml:"dependencies"`
	Config       map[string]any `yaml:"config"`
}

// EnvVar is an environment variable baked into the bento.
type EnvVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// APIInfo describes one exposed API endpoint.
type APIInfo struct {
	Name       string `yaml:"name"`
	InputType  string `yaml:"input_type"`
	OutputType string `yaml:"output_type"`
}

// RunnerInfo describes a runner the service schedules work on.
type RunnerInfo struct {
	Name           string                     `yaml:"name"`
	RunnableType   string                     `yaml:"runnable_type"`
	Embedded       bool                       `yaml:"embedded"`
	Models         []string                   `yaml:"models"`
	ResourceConfig types.Null[map[string]any] `yaml:"resource_config"`
}

// DockerConfig mirrors the docker section of the manifest.
type DockerConfig struct {
	Distro             types.Null[string]            `yaml:"distro"`
	PythonVersion      types.Null[string]            `yaml:"python_version"`
	CudaVersion        types.Null[string]            `yaml:"cuda_version"`
	Env                types.Null[map[string]string] `yaml:"env"`
	SystemPackages     types.Null[[]string]          `yaml:"system_packages"`
	SetupScript        types.Null[string]            `yaml:"setup_script"`
	BaseImage          types.Null[string]            `yaml:"base_image"`
	DockerfileTemplate types.Null[string]            `yaml:"dockerfile_template"`
}

// PythonConfig mirrors the python section of the manifest.
type PythonConfig struct {
	RequirementsTxt types.Null[string]   `yaml:"requirements_txt"`
	Packages        types.Null[[]string] `yaml:"packages"`
	LockPackages    types.Null[bool]     `yaml:"lock_packages"`
	PackGitPackages types.Null[bool]     `yaml:"pack_git_packages"`
	IndexURL        types.Null[string]   `yaml:"index_url"`
	NoIndex         types.Null[bool]     `yaml:"no_index"`
	TrustedHost     types.Null[[]string] `yaml:"trusted_host"`
	FindLinks       types.Null[[]string] `yaml:"find_links"`
	ExtraIndexURL   types.Null[[]string] `yaml:"extra_index_url"`
	PipArgs         types.Null[string]   `yaml:"pip_args"`
	Wheels          types.Null[[]string] `yaml:"wheels"`
}

// CondaConfig mirrors the conda section of the manifest.
type CondaConfig struct {
	EnvironmentYml types.Null[string]   `yaml:"environment_yml"`
	Channels       types.Null[[]string] `yaml:"channels"`
	Dependencies   types.Null[[]string] `yaml:"dependencies"`
	Pip            types.Null[[]string] `yaml:"pip"`
}

// New returns an Info for the given tag and service with the creation time
// set to now and every container initialized so the encoded document always
// carries the full key set.
func New(t tag.Tag, service string) *Info {
	return &Info{
		Service:        service,
		Name:           t.Name,
		Version:        t.Version,
		BentomlVersion: version.Version,
		CreationTime:   Now(),
		Labels:         map[string]string{},
		Models:         []ModelInfo{},
		Services:       []ServiceInfo{},
		Envs:           []EnvVar{},
		Schema:         map[string]any{},
		Args:           map[string]string{},
		Spec:           SpecVersion,
		Runners:        []RunnerInfo{},
		APIs:           []APIInfo{},
	}
}

// Tag returns the manifest's name and version as a Tag.
func (i *Info) Tag() (tag.Tag, error) {
	return tag.New(i.Name, i.Version)
}

// Validate checks the fields every well-formed manifest must carry.
func (i *Info) Validate() error {
	if i.Spec > SpecVersion {
		return fmt.Errorf("%w: spec %d", ErrUnsupportedSchema, i.Spec)
	}
	if i.Service == "" {
		return fmt.Errorf("%w: missing service", ErrCorrupt)
	}
	if _, err := i.Tag(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// Encode writes i to w as YAML. Encoding is deterministic: the same Info
// always produces the same bytes.
func (i *Info) Encode(w io.Writer) error {
	if err := i.Validate(); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(i); err != nil {
		return fmt.Errorf("encoding bento manifest: %w", err)
	}
	return enc.Close()
}

// Decode reads a manifest from r. Manifests declaring a schema version
// newer than SpecVersion are rejected with ErrUnsupportedSchema before any
// field-level decoding; unknown fields in a supported version are an error
// rather than silently dropped.
func Decode(r io.Reader) (*Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Spec int `yaml:"spec"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if probe.Spec > SpecVersion {
		return nil, fmt.Errorf("%w: spec %d, supported up to %d", ErrUnsupportedSchema, probe.Spec, SpecVersion)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var info Info
	if err := dec.Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if info.Spec == 0 {
		info.Spec = SpecVersion
	}
	info.normalize()
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// Load reads and decodes the manifest at path in fsys.
func Load(fsys afero.Fs, path string) (*Info, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// normalize replaces nil containers with empty ones so decoded manifests
// compare and re-encode the same as freshly built ones.
func (i *Info) normalize() {
	if i.Labels == nil {
		i.Labels = map[string]string{}
	}
	if i.Models == nil {
		i.Models = []ModelInfo{}
	}
	if i.Services == nil {
		i.Services = []ServiceInfo{}
	}
	if i.Envs == nil {
		i.Envs = []EnvVar{}
	}
	if i.Schema == nil {
		i.Schema = map[string]any{}
	}
	if i.Args == nil {
		i.Args = map[string]string{}
	}
	if i.Runners == nil {
		i.Runners = []RunnerInfo{}
	}
	if i.APIs == nil {
		i.APIs = []APIInfo{}
	}
}
