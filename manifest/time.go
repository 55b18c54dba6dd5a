package manifest

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// timeLayouts are accepted when decoding. Manifests written by older
// tooling carry naive timestamps without a zone offset; those are taken
// as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Time is a UTC timestamp that serializes to YAML as an RFC 3339 string.
// yaml.v3 ignores encoding.TextMarshaler, hence the explicit
// implementation.
type Time struct {
	time.Time
}

// Now returns the current time in UTC.
func Now() Time {
	return Time{time.Now().UTC()}
}

// MarshalYAML implements [yaml.Marshaler].
func (t Time) MarshalYAML() (any, error) {
	return t.UTC().Format(time.RFC3339Nano), nil
}

// UnmarshalYAML implements [yaml.Unmarshaler].
func (t *Time) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
