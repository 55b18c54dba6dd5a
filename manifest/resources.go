package manifest

import (
	"github.com/mitchellh/mapstructure"
)

// ResourceSpec is the typed view of a runner's resource_config mapping.
// The mapping is open-ended in the manifest; only the well-known keys are
// decoded here.
type ResourceSpec struct {
	CPU       float64 `mapstructure:"cpu"`
	Memory    string  `mapstructure:"memory"`
	NvidiaGPU float64 `mapstructure:"nvidia.com/gpu"`
}

// Resources decodes the runner's resource_config into a ResourceSpec. It
// returns nil when the runner carries no resource configuration.
func (r RunnerInfo) Resources() (*ResourceSpec, error) {
	if !r.ResourceConfig.Valid() {
		return nil, nil
	}
	var spec ResourceSpec
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(r.ResourceConfig.Value()); err != nil {
		return nil, err
	}
	return &spec, nil
}
