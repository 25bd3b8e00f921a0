package mcp

// MonitorRefInput selects a monitor.
type MonitorRefInput struct {
	Monitor string `json:"monitor" jsonschema:"Monitor ID (connector name such as DP-1), name, or 1-based index as shown by identify_monitors"`
}

// ListMonitorsInput is the input for the list_monitors tool.
type ListMonitorsInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"Re-enumerate hardware before answering instead of returning the cached snapshot"`
}

// MonitorInfo is the tool-facing view of one monitor.
type MonitorInfo struct {
	Index        int      `json:"index"`
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	FriendlyName string   `json:"friendly_name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Serial       string   `json:"serial,omitempty"`
	Primary      bool     `json:"primary"`
	BuiltIn      bool     `json:"built_in"`
	Connection   string   `json:"connection"`
	X            int      `json:"x"`
	Y            int      `json:"y"`
	Resolution   string   `json:"resolution"`
	RefreshHz    int      `json:"refresh_hz"`
	MaxNative    string   `json:"max_native,omitempty"`
	Modes        []string `json:"modes,omitempty"`
	Scale        int      `json:"scale"`
	Scales       []int    `json:"scales,omitempty"`
	Orientation  int      `json:"orientation"`
	Brightness   *int     `json:"brightness,omitempty"`
	Power        string   `json:"power"`
	HDR          string   `json:"hdr"`
	Input        string   `json:"input,omitempty"`
	Inputs       []string `json:"inputs,omitempty"`
	Writable     []string `json:"writable"`
	Stale        bool     `json:"stale,omitempty"`
}

// ListMonitorsOutput is the output for the list_monitors tool.
type ListMonitorsOutput struct {
	Generation uint64        `json:"generation"`
	Monitors   []MonitorInfo `json:"monitors"`
}

// SetResolutionInput is the input for the set_resolution tool.
type SetResolutionInput struct {
	Monitor   string `json:"monitor" jsonschema:"Monitor ID, name, or 1-based index"`
	Width     int    `json:"width" jsonschema:"Horizontal resolution in pixels"`
	Height    int    `json:"height" jsonschema:"Vertical resolution in pixels"`
	RefreshHz int    `json:"refresh_hz,omitempty" jsonschema:"Refresh rate in Hz (default: highest supported for the resolution)"`
}

// SetBrightnessInput is the input for the set_brightness tool.
type SetBrightnessInput struct {
	Monitor string `json:"monitor" jsonschema:"Monitor ID, name, or 1-based index"`
	Percent int    `json:"percent" jsonschema:"Brightness from 0 to 100"`
}

// SetScaleInput is the input for the set_scale tool.
type SetScaleInput struct {
	Monitor string `json:"monitor" jsonschema:"Monitor ID, name, or 1-based index"`
	Percent int    `json:"percent" jsonschema:"Scale factor in percent, one of the monitor's supported scales (e.g. 100, 125, 150)"`
}

// SetOrientationInput is the input for the set_orientation tool.
type SetOrientationInput struct {
	Monitor string `json:"monitor" jsonschema:"Monitor ID, name, or 1-based index"`
	Degrees int    `json:"degrees" jsonschema:"Clockwise rotation: 0, 90, 180 or 270"`
}

// SetPowerInput is the input for the set_power tool.
type SetPowerInput struct {
	Monitor string `json:"monitor" jsonschema:"Monitor ID, name, or 1-based index"`
	On      bool   `json:"on" jsonschema:"true to power on, false to enter standby"`
}

// SetHDRInput is the input for the set_hdr tool.
type SetHDRInput struct {
	Monitor string `json:"monitor" jsonschema:"Monitor ID, name, or 1-based index"`
	Enabled bool   `json:"enabled" jsonschema:"true to enable HDR"`
}

// SetInputSourceInput is the input for the set_input_source tool.
type SetInputSourceInput struct {
	Monitor string `json:"monitor" jsonschema:"Monitor ID, name, or 1-based index"`
	Input   string `json:"input" jsonschema:"Input name (hdmi1, hdmi2, dp1, dp2, usbc, dvi1, vga1) or MCCS code such as 0x11"`
}

// MutationOutput is returned by every set_* tool once the change is verified.
type MutationOutput struct {
	RequestID string      `json:"request_id"`
	Attempts  int         `json:"attempts"`
	Monitor   MonitorInfo `json:"monitor"`
}

// InputSourceOutput is the output for the get_input_source tool.
type InputSourceOutput struct {
	Monitor string `json:"monitor"`
	Code    int    `json:"code"`
	Label   string `json:"label"`
}

// IdentifyInput is the input for the identify_monitors tool.
type IdentifyInput struct{}

// IdentifyOutput is the output for the identify_monitors tool.
type IdentifyOutput struct {
	Monitors []string `json:"monitors"`
}
