package display

import (
	"fmt"
	"strconv"
	"strings"
)

// MCCS input source codes (VCP 0x60). Some vendors use their own values for
// USB-C and alternate HDMI/DP ports; those are listed with the vendor prefix.
var inputCodes = map[string]uint8{
	"vga1":       0x01,
	"vga2":       0x02,
	"dvi1":       0x03,
	"dvi2":       0x04,
	"composite1": 0x05,
	"composite2": 0x06,
	"svideo1":    0x07,
	"svideo2":    0x08,
	"tuner1":     0x09,
	"tuner2":     0x0A,
	"tuner3":     0x0B,
	"component1": 0x0C,
	"component2": 0x0D,
	"component3": 0x0E,
	"dp1":        0x0F,
	"dp2":        0x10,
	"hdmi1":      0x11,
	"hdmi2":      0x12,
	"hdmi3":      0x13,
	"usbc":       0x19,
	"usbc2":      0x1A,
	"usbc3":      0x1B,
	"usbc4":      0x31,
	"lg-usbc":    0xD0,
	"lg-dp":      0xD1,
	"lg-usbc2":   0xD2,
	"lg-hdmi1":   0x90,
	"lg-hdmi2":   0x91,
}

var inputAliases = map[string]string{
	"vga":         "vga1",
	"dvi":         "dvi1",
	"dp":          "dp1",
	"displayport": "dp1",
	"hdmi":        "hdmi1",
	"usb-c":       "usbc",
	"usbc1":       "usbc",
	"typec":       "usbc",
	"composite":   "composite1",
	"svideo":      "svideo1",
	"tuner":       "tuner1",
	"component":   "component1",
}

var inputLabels = map[uint8]string{
	0x01: "VGA 1",
	0x02: "VGA 2",
	0x03: "DVI 1",
	0x04: "DVI 2",
	0x05: "Composite 1",
	0x06: "Composite 2",
	0x07: "S-Video 1",
	0x08: "S-Video 2",
	0x09: "Tuner 1",
	0x0A: "Tuner 2",
	0x0B: "Tuner 3",
	0x0C: "Component 1",
	0x0D: "Component 2",
	0x0E: "Component 3",
	0x0F: "DisplayPort 1",
	0x10: "DisplayPort 2",
	0x11: "HDMI 1",
	0x12: "HDMI 2",
	0x13: "HDMI 3",
	0x19: "USB-C",
	0x1A: "USB-C 2",
	0x1B: "USB-C 3",
	0x31: "USB-C 4",
	0x90: "HDMI 1 (LG)",
	0x91: "HDMI 2 (LG)",
	0xD0: "USB-C (LG)",
	0xD1: "DisplayPort (LG)",
	0xD2: "USB-C 2 (LG)",
}

// ParseInput resolves an input name ("hdmi1", "dp", "usbc") or a numeric
// code ("0x11", "17") to an MCCS input code.
func ParseInput(s string) (uint8, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return 0, fmt.Errorf("empty input source")
	}
	if alias, ok := inputAliases[name]; ok {
		name = alias
	}
	if code, ok := inputCodes[name]; ok {
		return code, nil
	}

	base := 10
	digits := name
	if strings.HasPrefix(digits, "0x") {
		base = 16
		digits = digits[2:]
	}
	v, err := strconv.ParseUint(digits, base, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown input source %q", s)
	}
	if v == 0 {
		return 0, fmt.Errorf("input source code must be non-zero")
	}
	return uint8(v), nil
}

// InputLabel returns a human readable name for an input code.
func InputLabel(code uint8) string {
	if label, ok := inputLabels[code]; ok {
		return label
	}
	return fmt.Sprintf("Input 0x%02X", code)
}
