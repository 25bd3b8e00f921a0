// Package edid decodes the identification fields of an EDID base block.
package edid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// BlockSize is the length of an EDID base block.
const BlockSize = 128

var header = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// ErrInvalid is returned for blocks that fail the header or checksum test.
var ErrInvalid = errors.New("invalid edid block")

// Info holds the identification data of a monitor.
type Info struct {
	Manufacturer string
	ProductCode  uint16
	SerialNumber uint32
	Week         int
	Year         int
	Name         string
	SerialText   string
	// Digital is false for analog (VGA) inputs.
	Digital bool
	// WidthCM and HeightCM are zero for projectors.
	WidthCM  int
	HeightCM int
}

// Parse decodes the base block of raw. Extension blocks are ignored.
func Parse(raw []byte) (Info, error) {
	if len(raw) < BlockSize {
		return Info{}, fmt.Errorf("%w: %d bytes", ErrInvalid, len(raw))
	}
	block := raw[:BlockSize]
	if !bytes.Equal(block[:8], header) {
		return Info{}, fmt.Errorf("%w: bad header", ErrInvalid)
	}
	var sum byte
	for _, b := range block {
		sum += b
	}
	if sum != 0 {
		return Info{}, fmt.Errorf("%w: checksum", ErrInvalid)
	}

	info := Info{
		Manufacturer: manufacturer(binary.BigEndian.Uint16(block[8:10])),
		ProductCode:  binary.LittleEndian.Uint16(block[10:12]),
		SerialNumber: binary.LittleEndian.Uint32(block[12:16]),
		Week:         int(block[16]),
		Digital:      block[20]&0x80 != 0,
		WidthCM:      int(block[21]),
		HeightCM:     int(block[22]),
	}
	if block[17] != 0 {
		info.Year = 1990 + int(block[17])
	}
	if info.Week == 0xFF {
		// Week 0xFF marks the year byte as model year.
		info.Week = 0
	}

	for off := 54; off+18 <= 126; off += 18 {
		d := block[off : off+18]
		if d[0] != 0 || d[1] != 0 || d[2] != 0 {
			continue
		}
		switch d[3] {
		case 0xFC:
			info.Name = descriptorText(d[5:])
		case 0xFF:
			info.SerialText = descriptorText(d[5:])
		}
	}
	return info, nil
}

// Model returns the monitor name, or the manufacturer and product code when
// the block carries no name descriptor.
func (i Info) Model() string {
	if i.Name != "" {
		return i.Name
	}
	return fmt.Sprintf("%s %04X", i.Manufacturer, i.ProductCode)
}

// Serial returns the text serial, falling back to the numeric one.
func (i Info) Serial() string {
	if i.SerialText != "" {
		return i.SerialText
	}
	if i.SerialNumber != 0 {
		return fmt.Sprintf("%d", i.SerialNumber)
	}
	return ""
}

func manufacturer(v uint16) string {
	letters := []byte{
		byte((v>>10)&0x1F) + 'A' - 1,
		byte((v>>5)&0x1F) + 'A' - 1,
		byte(v&0x1F) + 'A' - 1,
	}
	for _, c := range letters {
		if c < 'A' || c > 'Z' {
			return ""
		}
	}
	return string(letters)
}

func descriptorText(b []byte) string {
	if i := bytes.IndexByte(b, 0x0A); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
