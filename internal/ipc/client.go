package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
	"github.com/1broseidon/monctl/internal/runtimepath"
	"github.com/1broseidon/monctl/internal/service"
)

// DefaultTimeout bounds one request. Mutations include retries, settle
// delays and read-back, so it is well above a single DDC/CI round trip.
const DefaultTimeout = 30 * time.Second

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientAt(socketPath)
}

// NewClientAt creates a client for an explicit socket path.
func NewClientAt(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    DefaultTimeout,
	}
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	return conn, nil
}

func writeRequest(conn net.Conn, command CommandType, payload interface{}) error {
	req := Request{Command: command}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", command, err)
		}
		req.Payload = data
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

func readResponse(reader *bufio.Reader) (*Response, error) {
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call sends a request and decodes the response data into out when out is
// not nil. Daemon errors come back as *display.Error.
func (c *Client) call(command CommandType, payload, out interface{}) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if err := writeRequest(conn, command, payload); err != nil {
		return err
	}
	resp, err := readResponse(bufio.NewReader(conn))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", command, err)
	}
	return nil
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	return c.call(CommandReload, nil, nil)
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	var status StatusData
	if err := c.call(CommandGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListMonitors retrieves the monitor snapshot, optionally enumerating first.
func (c *Client) ListMonitors(refresh bool) (*display.Snapshot, error) {
	var snap display.Snapshot
	if err := c.call(CommandListMonitors, ListMonitorsPayload{Refresh: refresh}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetMonitor retrieves one monitor by ID, name or index.
func (c *Client) GetMonitor(ref string) (*display.Monitor, error) {
	var m display.Monitor
	if err := c.call(CommandGetMonitor, MonitorPayload{Monitor: ref}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) mutate(command CommandType, payload interface{}) (*service.Result, error) {
	var res service.Result
	if err := c.call(command, payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetResolution switches a monitor to width x height at hz (0 = highest).
func (c *Client) SetResolution(ref string, width, height, hz int) (*service.Result, error) {
	return c.mutate(CommandSetResolution, ResolutionPayload{Monitor: ref, Width: width, Height: height, RefreshHz: hz})
}

// SetBrightness sets brightness in percent.
func (c *Client) SetBrightness(ref string, percent int) (*service.Result, error) {
	return c.mutate(CommandSetBrightness, ValuePayload{Monitor: ref, Value: percent})
}

// SetScale sets the scale factor in percent.
func (c *Client) SetScale(ref string, percent int) (*service.Result, error) {
	return c.mutate(CommandSetScale, ValuePayload{Monitor: ref, Value: percent})
}

// SetOrientation rotates a monitor to 0, 90, 180 or 270 degrees.
func (c *Client) SetOrientation(ref string, degrees int) (*service.Result, error) {
	return c.mutate(CommandSetOrientation, ValuePayload{Monitor: ref, Value: degrees})
}

// SetPower turns a monitor on or off.
func (c *Client) SetPower(ref string, on bool) (*service.Result, error) {
	return c.mutate(CommandSetPower, TogglePayload{Monitor: ref, Enable: on})
}

// SetHDR enables or disables HDR.
func (c *Client) SetHDR(ref string, enable bool) (*service.Result, error) {
	return c.mutate(CommandSetHDR, TogglePayload{Monitor: ref, Enable: enable})
}

// SetInput switches the input source. input is a name or numeric code.
func (c *Client) SetInput(ref, input string) (*service.Result, error) {
	return c.mutate(CommandSetInput, InputPayload{Monitor: ref, Input: input})
}

// GetBrightness reads brightness from the hardware.
func (c *Client) GetBrightness(ref string) (*BrightnessData, error) {
	var data BrightnessData
	if err := c.call(CommandGetBrightness, MonitorPayload{Monitor: ref}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetInput reads the active input source from the hardware.
func (c *Client) GetInput(ref string) (*InputData, error) {
	var data InputData
	if err := c.call(CommandGetInput, MonitorPayload{Monitor: ref}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCapabilities reads the raw DDC/CI capability string.
func (c *Client) GetCapabilities(ref string) (*CapabilitiesData, error) {
	var data CapabilitiesData
	if err := c.call(CommandGetCaps, MonitorPayload{Monitor: ref}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Identify shows numbered labels on every monitor.
func (c *Client) Identify() error {
	return c.call(CommandIdentify, nil, nil)
}

// Watch streams topology events to fn until ctx ends, the daemon closes the
// stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(events.Event) error) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetDeadline(time.Now().Add(c.timeout))
	if err := writeRequest(conn, CommandWatch, nil); err != nil {
		return err
	}
	reader := bufio.NewReader(conn)
	if _, err := readResponse(reader); err != nil {
		return err
	}
	conn.SetDeadline(time.Time{})

	dec := json.NewDecoder(reader)
	for {
		var ev events.Event
		if err := dec.Decode(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
