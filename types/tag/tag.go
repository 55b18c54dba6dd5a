// Package tag implements parsing and formatting of bento and model tags.
//
// A tag is a string of the form:
//
//	name[:version]
//
// where both parts are lowercase alphanumeric and may contain interior
// dots, dashes and underscores. The version part is optional; an absent
// version, or the literal version "latest", refers to whichever stored
// version carries the newest creation time.
package tag

import (
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MaxPartLen is the maximum length of the name or version part of a tag.
const MaxPartLen = 63

var (
	// ErrInvalidTag is returned for tags that do not follow the
	// name[:version] grammar. Callers can compare against it with
	// errors.Is.
	ErrInvalidTag = errors.New("invalid tag")
)

// Tag is a parsed bento or model tag. The zero value is invalid.
type Tag struct {
	Name    string
	Version string
}

// Parse parses s into a Tag. The string is split at the last colon, so a
// missing version yields a Tag with an empty Version. Parse never mutates
// the input: uppercase or otherwise malformed parts are rejected rather
// than normalized.
func Parse(s string) (Tag, error) {
	name, version := s, ""
	if i := strings.LastIndex(s, ":"); i >= 0 {
		name, version = s[:i], s[i+1:]
		if version == "" {
			return Tag{}, fmt.Errorf("%w: %q: version is empty", ErrInvalidTag, s)
		}
	}
	if !isValidPart(name) {
		return Tag{}, fmt.Errorf("%w: %q: invalid name %q", ErrInvalidTag, s, name)
	}
	if version != "" && !isValidPart(version) {
		return Tag{}, fmt.Errorf("%w: %q: invalid version %q", ErrInvalidTag, s, version)
	}
	return Tag{Name: name, Version: version}, nil
}

// New builds a Tag from separate name and version parts, validating both.
// An empty version is allowed and leaves the tag unversioned.
func New(name, version string) (Tag, error) {
	if version == "" {
		return Parse(name)
	}
	return Parse(name + ":" + version)
}

// MustParse is like Parse but panics on error. It is intended for tests and
// for literals known to be valid.
func MustParse(s string) Tag {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the canonical name:version form, or just the name when the
// tag is unversioned.
func (t Tag) String() string {
	if t.Version == "" {
		return t.Name
	}
	return t.Name + ":" + t.Version
}

// IsZero reports whether t is the zero Tag.
func (t Tag) IsZero() bool {
	return t.Name == "" && t.Version == ""
}

// Latest reports whether the tag needs version resolution, that is whether
// its version is empty or the literal "latest".
func (t Tag) Latest() bool {
	return t.Version == "" || t.Version == "latest"
}

// MakeNewVersion returns a copy of t with a generated version, a
// base32-encoded UUIDv7. The UUID embeds a millisecond timestamp, so
// generated versions are unique without coordination. It panics if t
// already carries a version; generating a version for a versioned tag is
// always a caller bug.
func (t Tag) MakeNewVersion() Tag {
	if t.Version != "" {
		panic(fmt.Sprintf("tag: MakeNewVersion of versioned tag %q", t))
	}
	id := uuid.Must(uuid.NewV7())
	t.Version = strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(id[:]))
	return t
}

// LogValue implements slog.LogValuer.
func (t Tag) LogValue() slog.Value {
	return slog.StringValue(t.String())
}

// MarshalYAML implements [yaml.Marshaler]. yaml.v3 does not consult
// encoding.TextMarshaler, so tags implement the YAML interfaces directly.
func (t Tag) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnmarshalYAML implements [yaml.Unmarshaler].
func (t *Tag) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler] for JSON API payloads.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (t *Tag) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// isValidPart reports whether s is a valid tag part: it starts and ends
// with a lowercase letter or digit, contains only [-._a-z0-9], and is at
// most MaxPartLen bytes.
func isValidPart(s string) bool {
	if s == "" || len(s) > MaxPartLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_':
			if i == 0 || i == len(s)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
