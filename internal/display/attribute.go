package display

import (
	"fmt"
	"sort"
	"strings"
)

// Attribute names a mutable monitor parameter.
type Attribute string

const (
	AttrMode        Attribute = "mode"
	AttrBrightness  Attribute = "brightness"
	AttrScale       Attribute = "scale"
	AttrOrientation Attribute = "orientation"
	AttrPower       Attribute = "power"
	AttrHDR         Attribute = "hdr"
	AttrInput       Attribute = "input"
)

// AllAttributes lists every attribute in a stable order.
var AllAttributes = []Attribute{
	AttrMode,
	AttrBrightness,
	AttrScale,
	AttrOrientation,
	AttrPower,
	AttrHDR,
	AttrInput,
}

// ParseAttribute converts a name into an Attribute.
func ParseAttribute(s string) (Attribute, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "resolution" || s == "refresh" {
		return AttrMode, nil
	}
	for _, a := range AllAttributes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown attribute %q", s)
}

// Capabilities is the set of attributes a monitor's channel can write.
type Capabilities map[Attribute]bool

// NewCapabilities builds a set from the given attributes.
func NewCapabilities(attrs ...Attribute) Capabilities {
	caps := make(Capabilities, len(attrs))
	for _, a := range attrs {
		caps[a] = true
	}
	return caps
}

// Has reports whether the attribute is writable.
func (c Capabilities) Has(a Attribute) bool {
	return c[a]
}

// List returns the writable attributes sorted by name.
func (c Capabilities) List() []Attribute {
	out := make([]Attribute, 0, len(c))
	for a, ok := range c {
		if ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
