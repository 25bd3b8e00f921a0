package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/1broseidon/monctl/internal/display"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload         CommandType = "RELOAD"
	CommandGetStatus      CommandType = "GET_STATUS"
	CommandListMonitors   CommandType = "LIST_MONITORS"
	CommandGetMonitor     CommandType = "GET_MONITOR"
	CommandSetResolution  CommandType = "SET_RESOLUTION"
	CommandSetBrightness  CommandType = "SET_BRIGHTNESS"
	CommandGetBrightness  CommandType = "GET_BRIGHTNESS"
	CommandSetScale       CommandType = "SET_SCALE"
	CommandSetOrientation CommandType = "SET_ORIENTATION"
	CommandSetPower       CommandType = "SET_POWER"
	CommandSetHDR         CommandType = "SET_HDR"
	CommandSetInput       CommandType = "SET_INPUT"
	CommandGetInput       CommandType = "GET_INPUT"
	CommandGetCaps        CommandType = "GET_CAPS"
	CommandIdentify       CommandType = "IDENTIFY"
	CommandWatch          CommandType = "WATCH"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client. Typed display
// errors keep their kind, op and device so the client can rebuild them.
type Response struct {
	Status   string          `json:"status"` // "OK" or "ERROR"
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Kind     display.Kind    `json:"kind,omitempty"`
	Op       string          `json:"op,omitempty"`
	DeviceID string          `json:"device_id,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Backend       string    `json:"backend"`
	Generation    uint64    `json:"generation"`
	TakenAt       time.Time `json:"taken_at"`
	Monitors      int       `json:"monitors"`
	BusyPolicy    string    `json:"busy_policy"`
	Subscribers   int       `json:"subscribers"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	DaemonRunning bool      `json:"daemon_running"`
}

// ListMonitorsPayload is the payload for LIST_MONITORS.
type ListMonitorsPayload struct {
	Refresh bool `json:"refresh,omitempty"`
}

// MonitorPayload addresses one monitor by ID, name or 1-based index. Used by
// GET_MONITOR, GET_BRIGHTNESS, GET_INPUT and GET_CAPS.
type MonitorPayload struct {
	Monitor string `json:"monitor"`
}

// ResolutionPayload is the payload for SET_RESOLUTION. A zero refresh rate
// picks the highest rate the monitor offers at that size.
type ResolutionPayload struct {
	Monitor   string `json:"monitor"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	RefreshHz int    `json:"refresh_hz,omitempty"`
}

// ValuePayload carries an integer setting: brightness and scale in percent,
// orientation in degrees.
type ValuePayload struct {
	Monitor string `json:"monitor"`
	Value   int    `json:"value"`
}

// TogglePayload is the payload for SET_POWER and SET_HDR.
type TogglePayload struct {
	Monitor string `json:"monitor"`
	Enable  bool   `json:"enable"`
}

// InputPayload is the payload for SET_INPUT. Input is a name such as
// "hdmi1" or a numeric MCCS code.
type InputPayload struct {
	Monitor string `json:"monitor"`
	Input   string `json:"input"`
}

// InputData is returned by GET_INPUT.
type InputData struct {
	Monitor string `json:"monitor"`
	Code    uint8  `json:"code"`
	Label   string `json:"label"`
}

// BrightnessData is returned by GET_BRIGHTNESS.
type BrightnessData struct {
	Monitor string `json:"monitor"`
	Percent int    `json:"percent"`
}

// CapabilitiesData is returned by GET_CAPS.
type CapabilitiesData struct {
	Monitor      string  `json:"monitor"`
	Capabilities string  `json:"capabilities"`
	Inputs       []uint8 `json:"inputs,omitempty"`
}

// NewOKResponse creates a successful response
func NewOKResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		rawData = bytes
	}

	return &Response{
		Status: StatusOK,
		Data:   rawData,
	}, nil
}

// NewErrorResponse creates an error response for a malformed request.
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: StatusError,
		Error:  errMsg,
		Kind:   display.KindInvalidRequest,
	}
}

// NewFailureResponse creates an error response from an operation error.
func NewFailureResponse(err error) *Response {
	resp := &Response{Status: StatusError, Kind: display.KindOf(err)}
	var de *display.Error
	if errors.As(err, &de) && err == error(de) {
		resp.Op = de.Op
		resp.DeviceID = de.DeviceID
		if de.Err != nil {
			resp.Error = de.Err.Error()
		}
		return resp
	}
	resp.Error = err.Error()
	return resp
}

// Err rebuilds the error carried by an ERROR response. It returns nil for
// OK responses.
func (r *Response) Err() error {
	if r.Status != StatusError {
		return nil
	}
	e := &display.Error{
		Kind:     display.ParseKind(string(r.Kind)),
		Op:       r.Op,
		DeviceID: r.DeviceID,
	}
	if r.Error != "" {
		e.Err = errors.New(r.Error)
	}
	return e
}

// ParseRequest parses a JSON request
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("missing command")
	}
	return &req, nil
}

// Marshal converts response to JSON
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
