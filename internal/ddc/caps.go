package ddc

import (
	"strconv"
	"strings"
)

// InputsFromCapabilities extracts the permitted values of the input select
// feature (VCP 0x60) from an MCCS capability string such as
// "(prot(monitor)type(lcd)vcp(02 10 12 60(0F 11 12) D6(01 05)))".
func InputsFromCapabilities(caps string) []uint8 {
	upper := strings.ToUpper(caps)
	start := strings.Index(upper, "VCP(")
	if start < 0 {
		return nil
	}
	body := upper[start+4:]

	// Walk the vcp list at depth zero looking for code 60 followed by "(".
	depth := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
			continue
		case ')':
			if depth == 0 {
				return nil
			}
			depth--
			continue
		}
		if depth != 0 || !strings.HasPrefix(body[i:], "60") {
			continue
		}
		if i > 0 && isHex(body[i-1]) {
			continue
		}
		rest := strings.TrimLeft(body[i+2:], " ")
		if !strings.HasPrefix(rest, "(") {
			return nil
		}
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return nil
		}
		var out []uint8
		for _, f := range strings.Fields(rest[1:end]) {
			v, err := strconv.ParseUint(f, 16, 8)
			if err != nil || v == 0 {
				continue
			}
			out = append(out, uint8(v))
		}
		return out
	}
	return nil
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'F')
}
