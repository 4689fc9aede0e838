package models

import (
	"fmt"
	"strings"
)

// ModelKey identifies a deployable model artifact by name and version.
type ModelKey struct {
	Name    string
	Version string
}

// String returns the canonical "name:version" text form used as both
// registry key suffix and PlacementCache set member.
func (k ModelKey) String() string {
	return k.Name + ":" + k.Version
}

// ParseModelKey splits a canonical "name:version" string back into a
// ModelKey. It splits on the first ":", so a version may itself contain
// ":" but a name may not.
func ParseModelKey(s string) (ModelKey, error) {
	name, version, ok := strings.Cut(s, ":")
	if !ok || name == "" || version == "" {
		return ModelKey{}, fmt.Errorf("malformed model key %q", s)
	}
	return ModelKey{Name: name, Version: version}, nil
}
