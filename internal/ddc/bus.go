// Package ddc speaks DDC/CI to external monitors through Linux i2c-dev.
package ddc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// i2c-dev ioctl to bind the file descriptor to a slave address.
	i2cSlave = 0x0703
	// DDC/CI slave address (0x6E >> 1).
	ddcAddr = 0x37

	hostAddr   = 0x51
	sourceAddr = 0x6E

	opGetVCP      = 0x01
	opGetVCPReply = 0x02
	opSetVCP      = 0x03
	opCapsRequest = 0xF3
	opCapsReply   = 0xE3
)

// VCP feature codes used by this package.
const (
	VCPBrightness  byte = 0x10
	VCPInputSource byte = 0x60
	VCPPowerMode   byte = 0xD6
)

var (
	errNoReply  = errors.New("no valid ddc reply")
	errChecksum = errors.New("ddc reply checksum mismatch")
	// ErrUnsupportedCode is returned when the monitor reports the VCP code as unsupported.
	ErrUnsupportedCode = errors.New("vcp code not supported by monitor")
)

// Opener opens an i2c bus already bound to the DDC/CI address.
type Opener func(path string) (io.ReadWriteCloser, error)

// Options tunes DDC/CI timing. Monitors need a pause between a request
// and reading its reply, and between consecutive messages.
type Options struct {
	WriteDelay time.Duration
	ReadDelay  time.Duration
	Retries    int
	Open       Opener
}

func (o Options) withDefaults() Options {
	if o.WriteDelay <= 0 {
		o.WriteDelay = 50 * time.Millisecond
	}
	if o.ReadDelay <= 0 {
		o.ReadDelay = 40 * time.Millisecond
	}
	if o.Retries <= 0 {
		o.Retries = 2
	}
	if o.Open == nil {
		o.Open = OpenDevice
	}
	return o
}

// Bus serializes access to one i2c bus. DDC/CI is half duplex, so only a
// single transaction may be outstanding at a time.
type Bus struct {
	path string
	opts Options

	sem      chan struct{}
	mu       sync.Mutex
	lastDone time.Time
}

// NewBus returns a bus handle for an i2c device node such as /dev/i2c-5.
func NewBus(path string, opts Options) *Bus {
	return &Bus{
		path: path,
		opts: opts.withDefaults(),
		sem:  make(chan struct{}, 1),
	}
}

// Path returns the device node path.
func (b *Bus) Path() string {
	return b.path
}

// OpenDevice opens an i2c-dev node and binds it to the DDC/CI address.
func OpenDevice(path string) (io.ReadWriteCloser, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, ddcAddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind ddc address on %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}

// acquire waits for the bus. Once a transaction starts it runs to
// completion regardless of ctx.
func (b *Bus) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.Lock()
	wait := b.opts.WriteDelay - time.Since(b.lastDone)
	b.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
	return nil
}

func (b *Bus) release() {
	b.mu.Lock()
	b.lastDone = time.Now()
	b.mu.Unlock()
	<-b.sem
}

// GetVCP reads a continuous VCP feature and returns its current and
// maximum values.
func (b *Bus) GetVCP(ctx context.Context, code byte) (current, maximum uint16, err error) {
	if err := b.acquire(ctx); err != nil {
		return 0, 0, err
	}
	defer b.release()

	dev, err := b.opts.Open(b.path)
	if err != nil {
		return 0, 0, err
	}
	defer dev.Close()

	var lastErr error
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(b.opts.WriteDelay)
		}
		if _, err := dev.Write(frame(opGetVCP, code)); err != nil {
			lastErr = fmt.Errorf("write get-vcp 0x%02X: %w", code, err)
			continue
		}
		time.Sleep(b.opts.ReadDelay)

		reply := make([]byte, 12)
		n, err := dev.Read(reply)
		if err != nil {
			lastErr = fmt.Errorf("read get-vcp 0x%02X: %w", code, err)
			continue
		}
		current, maximum, err = parseVCPReply(reply[:n], code)
		if err == nil || errors.Is(err, ErrUnsupportedCode) {
			return current, maximum, err
		}
		lastErr = err
	}
	return 0, 0, lastErr
}

// SetVCP writes a VCP feature value. The monitor does not acknowledge
// writes; callers confirm by reading back.
func (b *Bus) SetVCP(ctx context.Context, code byte, value uint16) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	dev, err := b.opts.Open(b.path)
	if err != nil {
		return err
	}
	defer dev.Close()

	msg := frame(opSetVCP, code, byte(value>>8), byte(value))
	var lastErr error
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(b.opts.WriteDelay)
		}
		if _, err := dev.Write(msg); err != nil {
			lastErr = fmt.Errorf("write set-vcp 0x%02X: %w", code, err)
			continue
		}
		return nil
	}
	return lastErr
}

// Capabilities reads the MCCS capability string in 32 byte fragments.
func (b *Bus) Capabilities(ctx context.Context) (string, error) {
	if err := b.acquire(ctx); err != nil {
		return "", err
	}
	defer b.release()

	dev, err := b.opts.Open(b.path)
	if err != nil {
		return "", err
	}
	defer dev.Close()

	var out []byte
	offset := 0
	for fragments := 0; fragments < 64; fragments++ {
		if _, err := dev.Write(frame(opCapsRequest, byte(offset>>8), byte(offset))); err != nil {
			return "", fmt.Errorf("write capabilities request: %w", err)
		}
		time.Sleep(b.opts.ReadDelay * 2)

		reply := make([]byte, 38)
		n, err := dev.Read(reply)
		if err != nil {
			return "", fmt.Errorf("read capabilities: %w", err)
		}
		chunk, err := parseCapsReply(reply[:n], offset)
		if err != nil {
			return "", err
		}
		if len(chunk) == 0 {
			break
		}
		out = append(out, chunk...)
		offset += len(chunk)
		time.Sleep(b.opts.WriteDelay)
	}
	for len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	return string(out), nil
}

// frame builds a host-to-display message with length byte and checksum.
func frame(payload ...byte) []byte {
	msg := make([]byte, 0, len(payload)+3)
	msg = append(msg, hostAddr, 0x80|byte(len(payload)))
	msg = append(msg, payload...)
	return append(msg, checksum(sourceAddr, msg))
}

func checksum(seed byte, data []byte) byte {
	sum := seed
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// parseVCPReply decodes a Get VCP Feature reply:
// 6E 88 02 rc code type maxH maxL curH curL chk
func parseVCPReply(reply []byte, code byte) (uint16, uint16, error) {
	for i := 0; i+8 <= len(reply); i++ {
		if reply[i] != opGetVCPReply || reply[i+2] != code {
			continue
		}
		if i < 2 || reply[i-1]&0x7F != 8 {
			continue
		}
		if i+8 < len(reply) {
			// Checksum covers everything from the source address; the
			// reply is sent to the virtual host address 0x50.
			if checksum(0x50, reply[i-2:i+8]) != reply[i+8] {
				return 0, 0, errChecksum
			}
		}
		if reply[i+1] != 0 {
			return 0, 0, ErrUnsupportedCode
		}
		maximum := uint16(reply[i+4])<<8 | uint16(reply[i+5])
		current := uint16(reply[i+6])<<8 | uint16(reply[i+7])
		return current, maximum, nil
	}
	return 0, 0, errNoReply
}

// parseCapsReply decodes: 6E (80|len) E3 offH offL data... chk
func parseCapsReply(reply []byte, offset int) ([]byte, error) {
	if len(reply) < 5 || reply[2] != opCapsReply {
		return nil, errNoReply
	}
	length := int(reply[1]&0x7F) - 3
	if length < 0 || 5+length > len(reply) {
		return nil, errNoReply
	}
	got := int(reply[3])<<8 | int(reply[4])
	if got != offset {
		return nil, fmt.Errorf("capabilities fragment offset %d, want %d", got, offset)
	}
	return reply[5 : 5+length], nil
}
