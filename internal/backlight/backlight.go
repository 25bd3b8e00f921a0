// Package backlight controls built-in panel brightness through
// /sys/class/backlight.
package backlight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
)

// DefaultRoot is the sysfs backlight class directory.
const DefaultRoot = "/sys/class/backlight"

// Device is one backlight interface such as intel_backlight.
type Device struct {
	Name string
	dir  string
}

// Find returns the preferred backlight device under root. Firmware and
// platform interfaces are only used when no raw driver exists.
func Find(root string) (*Device, error) {
	if root == "" {
		root = DefaultRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	type candidate struct {
		name string
		rank int
	}
	var found []candidate
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		kind, err := os.ReadFile(filepath.Join(dir, "type"))
		if err != nil {
			continue
		}
		rank := 2
		switch strings.TrimSpace(string(kind)) {
		case "raw":
			rank = 0
		case "platform":
			rank = 1
		}
		found = append(found, candidate{name: e.Name(), rank: rank})
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no backlight device in %s: %w", root, fs.ErrNotExist)
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].rank != found[j].rank {
			return found[i].rank < found[j].rank
		}
		return found[i].name < found[j].name
	})
	return &Device{Name: found[0].name, dir: filepath.Join(root, found[0].name)}, nil
}

func (d *Device) readInt(name string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s/%s: %w", d.Name, name, err)
	}
	return v, nil
}

// Percent returns the current brightness scaled to 0..100.
func (d *Device) Percent() (int, error) {
	maximum, err := d.readInt("max_brightness")
	if err != nil {
		return 0, err
	}
	cur, err := d.readInt("brightness")
	if err != nil {
		return 0, err
	}
	if maximum <= 0 {
		return 0, fmt.Errorf("backlight %s reports max_brightness %d", d.Name, maximum)
	}
	return (cur*100 + maximum/2) / maximum, nil
}

// SetPercent writes a brightness scaled from 0..100.
func (d *Device) SetPercent(percent int) error {
	maximum, err := d.readInt("max_brightness")
	if err != nil {
		return err
	}
	value := (maximum*percent + 50) / 100
	return os.WriteFile(filepath.Join(d.dir, "brightness"), []byte(strconv.Itoa(value)), 0o644)
}

// Channel exposes a backlight device as a brightness-only channel.
type Channel struct {
	channel.Unsupported
	deviceID string
	dev      *Device
}

var _ channel.Channel = (*Channel)(nil)

// NewChannel binds dev to the monitor identified by deviceID.
func NewChannel(deviceID string, dev *Device) *Channel {
	return &Channel{deviceID: deviceID, dev: dev}
}

func (c *Channel) Capabilities() display.Capabilities {
	return display.NewCapabilities(display.AttrBrightness)
}

func (c *Channel) Brightness(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, err := c.dev.Percent()
	if err != nil {
		return 0, c.classify("get_brightness", err)
	}
	return v, nil
}

func (c *Channel) SetBrightness(ctx context.Context, percent int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.dev.SetPercent(percent); err != nil {
		return c.classify("set_brightness", err)
	}
	return nil
}

func (c *Channel) classify(op string, err error) error {
	kind := display.KindFailed
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = display.KindDeviceGone
	case errors.Is(err, fs.ErrPermission):
		kind = display.KindUnsupported
		err = fmt.Errorf("%w (brightness file not writable; add a udev rule or join the video group)", err)
	}
	return &display.Error{Kind: kind, Op: op, DeviceID: c.deviceID, Err: err}
}
