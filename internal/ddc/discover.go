package ddc

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSysfsRoot is where the kernel exposes DRM connectors.
const DefaultSysfsRoot = "/sys/class/drm"

// Port is a DRM connector with the i2c bus its monitor answers DDC on.
type Port struct {
	Connector string
	Bus       string
	EDID      []byte
}

// Discover lists connected DRM connectors that expose an i2c bus.
// Connector names drop the "cardN-" prefix ("card0-HDMI-A-1" -> "HDMI-A-1").
func Discover(root string) ([]Port, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	entries, err := filepath.Glob(filepath.Join(root, "card*-*"))
	if err != nil {
		return nil, err
	}

	var ports []Port
	for _, dir := range entries {
		status, err := os.ReadFile(filepath.Join(dir, "status"))
		if err != nil || strings.TrimSpace(string(status)) != "connected" {
			continue
		}
		bus := i2cBus(dir)
		if bus == "" {
			continue
		}
		edid, _ := os.ReadFile(filepath.Join(dir, "edid"))

		name := filepath.Base(dir)
		if i := strings.Index(name, "-"); i >= 0 {
			name = name[i+1:]
		}
		ports = append(ports, Port{Connector: name, Bus: bus, EDID: edid})
	}
	return ports, nil
}

// i2cBus finds the i2c-N node for a connector, either through the ddc
// symlink or an i2c-N child directory (DP AUX channels).
func i2cBus(dir string) string {
	if target, err := filepath.EvalSymlinks(filepath.Join(dir, "ddc")); err == nil {
		if name := filepath.Base(target); strings.HasPrefix(name, "i2c-") {
			return "/dev/" + name
		}
	}
	children, err := filepath.Glob(filepath.Join(dir, "i2c-*"))
	if err == nil && len(children) > 0 {
		return "/dev/" + filepath.Base(children[0])
	}
	return ""
}

// MatchEDID returns the port whose EDID base block equals edid.
func MatchEDID(ports []Port, edid []byte) (Port, bool) {
	if len(edid) < 128 {
		return Port{}, false
	}
	for _, p := range ports {
		if len(p.EDID) >= 128 && bytes.Equal(p.EDID[:128], edid[:128]) {
			return p, true
		}
	}
	return Port{}, false
}

// MatchConnector finds a port by connector name, tolerating the naming
// differences between DRM ("HDMI-A-1") and RandR ("HDMI-1", "HDMI-A-1").
func MatchConnector(ports []Port, name string) (Port, bool) {
	want := normalizeConnector(name)
	for _, p := range ports {
		if normalizeConnector(p.Connector) == want {
			return p, true
		}
	}
	return Port{}, false
}

func normalizeConnector(name string) string {
	name = strings.ToUpper(name)
	name = strings.Replace(name, "-A-", "-", 1)
	name = strings.Replace(name, "DISPLAYPORT", "DP", 1)
	return name
}
