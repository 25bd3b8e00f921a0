package ddc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/monctl/internal/display"
)

// fakeMonitor answers DDC/CI requests from an in-memory VCP table.
type fakeMonitor struct {
	mu      sync.Mutex
	values  map[byte]uint16
	max     map[byte]uint16
	writes  [][]byte
	pending []byte
	caps    string
	open    int
	maxOpen int
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		values: map[byte]uint16{VCPBrightness: 30, VCPInputSource: 0x0F, VCPPowerMode: 0x01},
		max:    map[byte]uint16{VCPBrightness: 200, VCPInputSource: 0xFF, VCPPowerMode: 0x05},
		caps:   "(prot(monitor)type(lcd)vcp(10 60(0F 11) D6))",
	}
}

func (f *fakeMonitor) opener(string) (io.ReadWriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	return &fakeDevice{m: f}, nil
}

type fakeDevice struct{ m *fakeMonitor }

func (d *fakeDevice) Write(p []byte) (int, error) {
	f := d.m
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), p...))
	switch p[2] {
	case opGetVCP:
		code := p[3]
		f.pending = vcpReply(code, f.max[code], f.values[code])
	case opSetVCP:
		f.values[p[3]] = uint16(p[4])<<8 | uint16(p[5])
	case opCapsRequest:
		off := int(p[3])<<8 | int(p[4])
		end := off + 32
		if end > len(f.caps) {
			end = len(f.caps)
		}
		var chunk []byte
		if off < len(f.caps) {
			chunk = []byte(f.caps[off:end])
		}
		msg := []byte{sourceAddr, 0x80 | byte(len(chunk)+3), opCapsReply, byte(off >> 8), byte(off)}
		msg = append(msg, chunk...)
		f.pending = append(msg, checksum(0x50, msg))
	}
	return len(p), nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	n := copy(p, d.m.pending)
	return n, nil
}

func (d *fakeDevice) Close() error {
	d.m.mu.Lock()
	d.m.open--
	d.m.mu.Unlock()
	return nil
}

func vcpReply(code byte, maximum, current uint16) []byte {
	msg := []byte{sourceAddr, 0x88, opGetVCPReply, 0x00, code, 0x00,
		byte(maximum >> 8), byte(maximum), byte(current >> 8), byte(current)}
	return append(msg, checksum(0x50, msg))
}

func testBus(m *fakeMonitor) *Bus {
	return NewBus("/dev/i2c-fake", Options{
		WriteDelay: time.Millisecond,
		ReadDelay:  time.Millisecond,
		Open:       m.opener,
	})
}

func TestFrameChecksum(t *testing.T) {
	got := frame(opSetVCP, VCPBrightness, 0x00, 0x32)
	want := []byte{0x51, 0x84, 0x03, 0x10, 0x00, 0x32}
	if !bytes.Equal(got[:6], want) {
		t.Fatalf("frame = % X, want prefix % X", got, want)
	}
	if got[6] != checksum(0x6E, want) {
		t.Fatalf("checksum = %#x", got[6])
	}
}

func TestParseVCPReply(t *testing.T) {
	cur, maximum, err := parseVCPReply(vcpReply(VCPBrightness, 100, 42), VCPBrightness)
	if err != nil || cur != 42 || maximum != 100 {
		t.Fatalf("parseVCPReply = %d, %d, %v", cur, maximum, err)
	}

	bad := vcpReply(VCPBrightness, 100, 42)
	bad[len(bad)-1] ^= 0xFF
	if _, _, err := parseVCPReply(bad, VCPBrightness); !errors.Is(err, errChecksum) {
		t.Fatalf("corrupt reply err = %v", err)
	}

	unsupported := []byte{sourceAddr, 0x88, opGetVCPReply, 0x01, 0xDC, 0, 0, 0, 0, 0}
	unsupported = append(unsupported, checksum(0x50, unsupported))
	if _, _, err := parseVCPReply(unsupported, 0xDC); !errors.Is(err, ErrUnsupportedCode) {
		t.Fatalf("unsupported reply err = %v", err)
	}

	if _, _, err := parseVCPReply([]byte{0x6E, 0x80}, VCPBrightness); !errors.Is(err, errNoReply) {
		t.Fatalf("empty reply err = %v", err)
	}
}

func TestChannelBrightnessScalesToMax(t *testing.T) {
	m := newFakeMonitor()
	ch := NewChannel("DP-1", testBus(m))
	ctx := context.Background()

	got, err := ch.Brightness(ctx)
	if err != nil {
		t.Fatalf("Brightness: %v", err)
	}
	if got != 15 {
		t.Fatalf("Brightness = %d, want 15 (30 of 200)", got)
	}

	if err := ch.SetBrightness(ctx, 50); err != nil {
		t.Fatalf("SetBrightness: %v", err)
	}
	if m.values[VCPBrightness] != 100 {
		t.Fatalf("raw brightness = %d, want 100", m.values[VCPBrightness])
	}
}

func TestChannelInputAndPower(t *testing.T) {
	m := newFakeMonitor()
	ch := NewChannel("DP-1", testBus(m))
	ctx := context.Background()

	if err := ch.SetInputSource(ctx, 0x11); err != nil {
		t.Fatalf("SetInputSource: %v", err)
	}
	if code, err := ch.InputSource(ctx); err != nil || code != 0x11 {
		t.Fatalf("InputSource = %#x, %v", code, err)
	}

	if state, _ := ch.Power(ctx); state != display.PowerOn {
		t.Fatalf("Power = %q, want on", state)
	}
	if err := ch.SetPower(ctx, display.PowerOff); err != nil {
		t.Fatalf("SetPower: %v", err)
	}
	if m.values[VCPPowerMode] != powerHardOff {
		t.Fatalf("power vcp = %#x, want %#x", m.values[VCPPowerMode], powerHardOff)
	}
	if state, _ := ch.Power(ctx); state != display.PowerOff {
		t.Fatalf("Power after off = %q", state)
	}

	err := ch.SetPower(ctx, display.PowerUnknown)
	if display.KindOf(err) != display.KindInvalidRequest {
		t.Fatalf("SetPower(unknown) kind = %q", display.KindOf(err))
	}
}

func TestChannelCapabilityString(t *testing.T) {
	m := newFakeMonitor()
	m.caps = "(prot(monitor)type(lcd)model(U2720Q)cmds(01 02 03 07 0C E3 F3)vcp(02 04 05 10 12 60(0F 11 1B) D6(01 04 05)))"
	ch := NewChannel("DP-1", testBus(m))

	got, err := ch.CapabilityString(context.Background())
	if err != nil {
		t.Fatalf("CapabilityString: %v", err)
	}
	if got != m.caps {
		t.Fatalf("CapabilityString = %q, want %q", got, m.caps)
	}
}

func TestBusSerializesTransactions(t *testing.T) {
	m := newFakeMonitor()
	bus := testBus(m)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint16) {
			defer wg.Done()
			_ = bus.SetVCP(context.Background(), VCPBrightness, v)
		}(uint16(i))
	}
	wg.Wait()
	if m.maxOpen != 1 {
		t.Fatalf("max concurrent bus opens = %d, want 1", m.maxOpen)
	}
}

func TestBusHonorsContextWhileWaiting(t *testing.T) {
	bus := testBus(newFakeMonitor())
	bus.sem <- struct{}{}
	defer func() { <-bus.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := bus.GetVCP(ctx, VCPBrightness); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("GetVCP err = %v, want deadline exceeded", err)
	}
}

func TestClassifyMissingDevice(t *testing.T) {
	bus := NewBus(filepath.Join(t.TempDir(), "i2c-404"), Options{WriteDelay: time.Millisecond})
	ch := NewChannel("HDMI-1", bus)
	_, err := ch.Brightness(context.Background())
	if display.KindOf(err) != display.KindDeviceGone {
		t.Fatalf("kind = %q, want device_gone (err %v)", display.KindOf(err), err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	mk := func(name, status string, withDDC bool, edid []byte) {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if edid != nil {
			if err := os.WriteFile(filepath.Join(dir, "edid"), edid, 0o644); err != nil {
				t.Fatal(err)
			}
		}
		if withDDC {
			if err := os.MkdirAll(filepath.Join(dir, "i2c-7"), 0o755); err != nil {
				t.Fatal(err)
			}
		}
	}
	edid := bytes.Repeat([]byte{0xAB}, 128)
	mk("card0-DP-1", "connected", true, edid)
	mk("card0-HDMI-A-1", "disconnected", true, nil)
	mk("card0-eDP-1", "connected", false, nil)

	ports, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(ports) != 1 || ports[0].Connector != "DP-1" || ports[0].Bus != "/dev/i2c-7" {
		t.Fatalf("Discover = %+v", ports)
	}
	if _, ok := MatchEDID(ports, edid); !ok {
		t.Fatal("MatchEDID missed identical edid")
	}
	if _, ok := MatchConnector(ports, "DisplayPort-1"); !ok {
		t.Fatal("MatchConnector should normalize DisplayPort-1")
	}
	if _, ok := MatchConnector(ports, "HDMI-1"); ok {
		t.Fatal("MatchConnector matched a disconnected port")
	}
}

func TestInputsFromCapabilities(t *testing.T) {
	tests := []struct {
		name string
		caps string
		want []uint8
	}{
		{"dell", "(prot(monitor)type(LCD)model(U2720Q)cmds(01 02 03 07 0C E3 F3)vcp(02 04 05 10 12 14(05 08 0B) 60(0F 11 1B) D6(01 04 05))mccs_ver(2.1))", []uint8{0x0F, 0x11, 0x1B}},
		{"lowercase", "vcp(10 12 60( 01 03 11 ) d6(01 05))", []uint8{0x01, 0x03, 0x11}},
		{"no input values", "vcp(10 12 60 D6(01 05))", nil},
		{"no vcp", "(prot(monitor))", nil},
		{"nested only", "vcp(14(60 61) 10)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InputsFromCapabilities(tt.caps)
			if len(got) != len(tt.want) {
				t.Fatalf("InputsFromCapabilities() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("InputsFromCapabilities() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
