package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/blang/semver/v4"
)

// VersionClass is the "class" discriminant the server expects on versions.
const VersionClass = "Version"

// Version is the protocol version announced in Connect.
type Version struct {
	Major uint `json:"major"`
	Minor uint `json:"minor"`
	Build uint `json:"build"`
}

// DefaultVersion is the protocol version sent when none is configured.
var DefaultVersion = Version{Major: 5, Minor: 0, Build: 0}

// ParseVersion parses a semantic version string such as "5.0.0" or "0.5".
func ParseVersion(s string) (Version, error) {
	v, err := semver.ParseTolerant(s)
	if err != nil {
		return Version{}, fmt.Errorf("invalid protocol version %q: %w", s, err)
	}
	return Version{
		Major: uint(v.Major),
		Minor: uint(v.Minor),
		Build: uint(v.Patch),
	}, nil
}

// String formats the version as major.minor.build.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// MarshalJSON emits the version with its "class" tag.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Class string `json:"class"`
		Major uint   `json:"major"`
		Minor uint   `json:"minor"`
		Build uint   `json:"build"`
	}{
		Class: VersionClass,
		Major: v.Major,
		Minor: v.Minor,
		Build: v.Build,
	})
}
